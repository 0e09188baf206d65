package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wanotify/backend/internal/models"
)

type MessageLogRepo struct {
	pool *pgxpool.Pool
}

func NewMessageLogRepo(pool *pgxpool.Pool) *MessageLogRepo {
	return &MessageLogRepo{pool: pool}
}

func (r *MessageLogRepo) Create(ctx context.Context, m *models.MessageLog) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO message_logs (campaign_id, phone, status, message_sid, error_message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, m.CampaignID, m.Phone, m.Status, m.MessageSid, m.ErrorMessage, m.SentAt,
	).Scan(&m.ID)
}

// LoggedPhones returns the set of phones that already have a log row for the
// campaign. The worker uses it to resume a retried job without double-sends.
func (r *MessageLogRepo) LoggedPhones(ctx context.Context, campaignID uuid.UUID) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT phone FROM message_logs WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	phones := make(map[string]bool)
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, err
		}
		phones[phone] = true
	}
	return phones, nil
}

// UpdateStatusBySid applies a delivery callback. Only status and the delivery
// timestamp are touched; unknown sids report pgx.ErrNoRows. Returns the
// owning campaign so the caller can notify its room.
func (r *MessageLogRepo) UpdateStatusBySid(ctx context.Context, sid, status string, deliveredAt *time.Time) (uuid.UUID, error) {
	var campaignID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		UPDATE message_logs
		SET status = $1, delivered_at = COALESCE($2, delivered_at)
		WHERE message_sid = $3
		RETURNING campaign_id
	`, status, deliveredAt, sid).Scan(&campaignID)
	return campaignID, err
}

type DeliveryStats struct {
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Read      int `json:"read"`
	Failed    int `json:"failed"`
}

// Stats aggregates per-message outcomes for one campaign. Delivered and read
// rows both count as delivered for rate reporting.
func (r *MessageLogRepo) Stats(ctx context.Context, campaignID uuid.UUID) (*DeliveryStats, error) {
	var s DeliveryStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('sent', 'delivered', 'read')),
			COUNT(*) FILTER (WHERE status IN ('delivered', 'read')),
			COUNT(*) FILTER (WHERE status = 'read'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM message_logs WHERE campaign_id = $1
	`, campaignID).Scan(&s.Sent, &s.Delivered, &s.Read, &s.Failed)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
