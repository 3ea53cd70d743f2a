package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	mqcontracts "jobmail/contracts/mq"
	"jobmail/internal/merge"
	"jobmail/internal/model"
	"jobmail/pkg/mq"
	"jobmail/pkg/outbox"
	"jobmail/pkg/trace"
)

const aggregateJobApplication = "job_application"

// JobRepository persists JobApplications in Postgres. Every write also
// records an outbox event in the same transaction.
type JobRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
}

func NewJobRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository) *JobRepository {
	return &JobRepository{db: db, outbox: outboxRepo}
}

const jobColumns = `id, user_id, company, role, normalized_company, normalized_role, location,
	status, stipend, date_applied, notes, email_id, status_history, version, created_at, updated_at`

// FindByKey returns (nil, nil) when no record exists for the key.
func (r *JobRepository) FindByKey(ctx context.Context, userID, normalizedCompany, normalizedRole string) (*model.JobApplication, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job_applications
		WHERE user_id = $1 AND normalized_company = $2 AND normalized_role = $3
	`
	app, err := scanJob(r.db.QueryRow(ctx, query, userID, normalizedCompany, normalizedRole))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find job application: %w", err)
	}
	return app, nil
}

// Create inserts app. A concurrent insert of the same key yields merge.ErrDuplicateKey.
func (r *JobRepository) Create(ctx context.Context, app *model.JobApplication) error {
	history, err := json.Marshal(app.StatusHistory)
	if err != nil {
		return fmt.Errorf("encode status history: %w", err)
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO job_applications (user_id, company, role, normalized_company, normalized_role,
				location, status, stipend, date_applied, notes, email_id, status_history, version,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)
			ON CONFLICT (user_id, normalized_company, normalized_role) DO NOTHING
			RETURNING id, version
		`
		err := tx.QueryRow(ctx, query,
			app.UserID, app.Company, app.Role, app.NormalizedCompany, app.NormalizedRole,
			app.Location, string(app.Status), app.Stipend, app.DateApplied, app.Notes, app.EmailID,
			history, app.CreatedAt, app.UpdatedAt,
		).Scan(&app.ID, &app.Version)
		if errors.Is(err, pgx.ErrNoRows) {
			return merge.ErrDuplicateKey
		}
		if err != nil {
			return fmt.Errorf("insert job application: %w", translate(err))
		}

		return r.writeEvent(ctx, tx, mq.RoutingApplicationCreated, app)
	})
}

// Update writes app if its version is still current, then bumps the version.
// A stale version yields merge.ErrConflict.
func (r *JobRepository) Update(ctx context.Context, app *model.JobApplication) error {
	history, err := json.Marshal(app.StatusHistory)
	if err != nil {
		return fmt.Errorf("encode status history: %w", err)
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			UPDATE job_applications
			SET location = $1, status = $2, stipend = $3, date_applied = $4, notes = $5,
				email_id = $6, status_history = $7, updated_at = $8, version = version + 1
			WHERE id = $9 AND version = $10
			RETURNING version
		`
		var version int
		err := tx.QueryRow(ctx, query,
			app.Location, string(app.Status), app.Stipend, app.DateApplied, app.Notes,
			app.EmailID, history, app.UpdatedAt, app.ID, app.Version,
		).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return merge.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("update job application %d: %w", app.ID, translate(err))
		}
		app.Version = version

		return r.writeEvent(ctx, tx, mq.RoutingApplicationUpdated, app)
	})
}

// ListByUser returns a user's applications, most recently applied first.
func (r *JobRepository) ListByUser(ctx context.Context, userID string) ([]*model.JobApplication, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job_applications
		WHERE user_id = $1
		ORDER BY date_applied DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list job applications: %w", err)
	}
	defer rows.Close()

	var apps []*model.JobApplication
	for rows.Next() {
		app, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// KnownEmailIDs returns every email id already attached to an application
// (directly or through its history) or marked processed for userID.
func (r *JobRepository) KnownEmailIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	query := `
		SELECT email_id FROM job_applications
		WHERE user_id = $1 AND email_id <> ''
		UNION
		SELECT h->>'emailId' FROM job_applications, jsonb_array_elements(status_history) AS h
		WHERE user_id = $1 AND COALESCE(h->>'emailId', '') <> ''
		UNION
		SELECT email_id FROM processed_emails
		WHERE user_id = $1
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query known email ids: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan known email id: %w", err)
		}
		known[id] = struct{}{}
	}
	return known, rows.Err()
}

func (r *JobRepository) writeEvent(ctx context.Context, tx pgx.Tx, routingKey string, app *model.JobApplication) error {
	id := app.ID
	return outbox.InsertEventInTx(ctx, tx, r.outbox, aggregateJobApplication, &id, routingKey,
		mqcontracts.ApplicationEventPayload{
			TraceID:       trace.FromContext(ctx),
			UserID:        app.UserID,
			ApplicationID: app.ID,
			EmailID:       lastEmailID(app),
			Company:       app.Company,
			Role:          app.Role,
			Status:        string(app.Status),
			Version:       app.Version,
			OccurredAt:    app.UpdatedAt,
		})
}

// lastEmailID is the email behind the most recent history entry that has one.
func lastEmailID(app *model.JobApplication) string {
	for i := len(app.StatusHistory) - 1; i >= 0; i-- {
		if id := app.StatusHistory[i].EmailID; id != "" {
			return id
		}
	}
	return app.EmailID
}

func scanJob(row pgx.Row) (*model.JobApplication, error) {
	var (
		app     model.JobApplication
		status  string
		history []byte
		applied time.Time
	)
	err := row.Scan(
		&app.ID,
		&app.UserID,
		&app.Company,
		&app.Role,
		&app.NormalizedCompany,
		&app.NormalizedRole,
		&app.Location,
		&status,
		&app.Stipend,
		&applied,
		&app.Notes,
		&app.EmailID,
		&history,
		&app.Version,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	app.Status = model.Status(status)
	app.DateApplied = applied.UTC()
	if len(history) > 0 {
		if err := json.Unmarshal(history, &app.StatusHistory); err != nil {
			return nil, fmt.Errorf("decode status history: %w", err)
		}
	}
	return &app, nil
}

// translate maps a unique violation to merge.ErrDuplicateKey.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", merge.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}
