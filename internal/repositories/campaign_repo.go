package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wanotify/backend/internal/models"
)

type CampaignRepo struct {
	pool *pgxpool.Pool
}

func NewCampaignRepo(pool *pgxpool.Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

func (r *CampaignRepo) Create(ctx context.Context, c *models.Campaign) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO campaigns (user_id, template_id, name, status, total_contacts)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, c.UserID, c.TemplateID, c.Name, c.Status, c.TotalContacts,
	).Scan(&c.ID, &c.CreatedAt)
}

const campaignColumns = `
	id, user_id, template_id, name, status, total_contacts,
	sent_count, error_count, failure_reason, job_id, created_at, sent_at`

func (r *CampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var c models.Campaign
	err := r.pool.QueryRow(ctx, `SELECT`+campaignColumns+` FROM campaigns WHERE id = $1`, id).
		Scan(&c.ID, &c.UserID, &c.TemplateID, &c.Name, &c.Status, &c.TotalContacts,
			&c.SentCount, &c.ErrorCount, &c.FailureReason, &c.JobID, &c.CreatedAt, &c.SentAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type CampaignFilter struct {
	UserID *uuid.UUID
	Status *string
	Limit  int
	Offset int
}

func (r *CampaignRepo) List(ctx context.Context, f CampaignFilter) ([]models.Campaign, error) {
	query := `SELECT` + campaignColumns + ` FROM campaigns`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.UserID != nil {
		where = append(where, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, *f.UserID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		var c models.Campaign
		if err := rows.Scan(&c.ID, &c.UserID, &c.TemplateID, &c.Name, &c.Status, &c.TotalContacts,
			&c.SentCount, &c.ErrorCount, &c.FailureReason, &c.JobID, &c.CreatedAt, &c.SentAt); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, nil
}

// UpdateStatus flips the campaign status. The WHERE clause re-checks the
// current status so a terminal campaign never regresses even under races.
func (r *CampaignRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET status = $1 WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign %s is not in status %s", id, from)
	}
	return nil
}

func (r *CampaignRepo) SetJobID(ctx context.Context, id uuid.UUID, jobID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE campaigns SET job_id = $1 WHERE id = $2`, jobID, id)
	return err
}

func (r *CampaignRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	// a retried job may find the row already in processing after a crash
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns SET status = $1, sent_at = COALESCE(sent_at, now())
		WHERE id = $2 AND status IN ($3, $4, $1)
	`, models.CampaignStatusProcessing, id, models.CampaignStatusQueued, models.CampaignStatusPaused)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign %s cannot start processing", id)
	}
	return nil
}

func (r *CampaignRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE campaigns SET status = $1, failure_reason = $2
		WHERE id = $3 AND status NOT IN ($4, $5)
	`, models.CampaignStatusFailed, reason, id,
		models.CampaignStatusCompleted, models.CampaignStatusCompletedWithErrors)
	return err
}

func (r *CampaignRepo) IncrementSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET sent_count = sent_count + 1 WHERE id = $1`, id)
	return err
}

func (r *CampaignRepo) IncrementError(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET error_count = error_count + 1 WHERE id = $1`, id)
	return err
}
