package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wanotify/backend/internal/models"
)

type TemplateRepo struct {
	pool *pgxpool.Pool
}

func NewTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

const templateColumns = `
	id, user_id, name, variables, content_sid, twilio_sid, template_sid, is_public, created_at`

func (r *TemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	var t models.Template
	err := r.pool.QueryRow(ctx, `SELECT`+templateColumns+` FROM templates WHERE id = $1`, id).
		Scan(&t.ID, &t.UserID, &t.Name, &t.Variables, &t.ContentSid, &t.TwilioSid,
			&t.TemplateSid, &t.IsPublic, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindBySidOrName resolves the templateSid request field against any of the
// gateway-side identifiers, falling back to the template name.
func (r *TemplateRepo) FindBySidOrName(ctx context.Context, key string) (*models.Template, error) {
	var t models.Template
	err := r.pool.QueryRow(ctx, `
		SELECT`+templateColumns+`
		FROM templates
		WHERE content_sid = $1 OR twilio_sid = $1 OR template_sid = $1 OR name = $1
		LIMIT 1
	`, key).Scan(&t.ID, &t.UserID, &t.Name, &t.Variables, &t.ContentSid, &t.TwilioSid,
		&t.TemplateSid, &t.IsPublic, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
