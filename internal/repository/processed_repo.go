package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessedEmailRepository records which emails were already considered for a
// user, whether or not they produced an application.
type ProcessedEmailRepository struct {
	db *pgxpool.Pool
}

func NewProcessedEmailRepository(db *pgxpool.Pool) *ProcessedEmailRepository {
	return &ProcessedEmailRepository{db: db}
}

// MarkProcessed is idempotent.
func (r *ProcessedEmailRepository) MarkProcessed(ctx context.Context, userID, emailID string) error {
	query := `
		INSERT INTO processed_emails (user_id, email_id, processed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, email_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, userID, emailID); err != nil {
		return fmt.Errorf("mark email processed: %w", err)
	}
	return nil
}

func (r *ProcessedEmailRepository) IsProcessed(ctx context.Context, userID, emailID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_emails WHERE user_id = $1 AND email_id = $2)`,
		userID, emailID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed email: %w", err)
	}
	return exists, nil
}
