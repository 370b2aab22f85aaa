package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vidinfra/subflow/internal/domain/schedule"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/postgres"
	"github.com/vidinfra/subflow/internal/types"
)

type scheduleRepository struct {
	client *postgres.Client
	log    *logger.Logger
}

func NewScheduleRepository(client *postgres.Client, log *logger.Logger) schedule.Repository {
	return &scheduleRepository{client: client, log: log}
}

// eventRow flattens the composite subscription key into one column.
type eventRow struct {
	ID        string    `db:"id"`
	Hook      string    `db:"hook"`
	OwnerID   string    `db:"owner_id"`
	SubKey    string    `db:"subscription_key"`
	FireAt    time.Time `db:"fire_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *eventRow) toEvent() (*schedule.Event, error) {
	key, err := types.ParseSubscriptionKey(r.SubKey)
	if err != nil {
		return nil, err
	}
	return &schedule.Event{
		ID:        r.ID,
		Hook:      r.Hook,
		OwnerID:   r.OwnerID,
		Key:       key,
		FireAt:    r.FireAt,
		CreatedAt: r.CreatedAt,
	}, nil
}

func (r *scheduleRepository) Upsert(ctx context.Context, event *schedule.Event) error {
	row := &eventRow{
		ID:        event.ID,
		Hook:      event.Hook,
		OwnerID:   event.OwnerID,
		SubKey:    event.Key.String(),
		FireAt:    event.FireAt.UTC(),
		CreatedAt: event.CreatedAt.UTC(),
	}
	_, err := r.client.DB.NamedExecContext(ctx, `
		INSERT INTO scheduled_events (id, hook, owner_id, subscription_key, fire_at, created_at)
		VALUES (:id, :hook, :owner_id, :subscription_key, :fire_at, :created_at)
		ON CONFLICT (hook, owner_id, subscription_key)
		DO UPDATE SET id = EXCLUDED.id, fire_at = EXCLUDED.fire_at, created_at = EXCLUDED.created_at`, row)
	if err != nil {
		return dbErr(err, "failed to upsert scheduled event")
	}
	return nil
}

func (r *scheduleRepository) Delete(ctx context.Context, hook, ownerID string, key types.SubscriptionKey) error {
	_, err := r.client.DB.ExecContext(ctx, `
		DELETE FROM scheduled_events
		WHERE hook = $1 AND owner_id = $2 AND subscription_key = $3`, hook, ownerID, key.String())
	if err != nil {
		return dbErr(err, "failed to delete scheduled event")
	}
	return nil
}

func (r *scheduleRepository) Get(ctx context.Context, hook, ownerID string, key types.SubscriptionKey) (*schedule.Event, error) {
	var row eventRow
	err := r.client.DB.GetContext(ctx, &row, `
		SELECT id, hook, owner_id, subscription_key, fire_at, created_at
		FROM scheduled_events
		WHERE hook = $1 AND owner_id = $2 AND subscription_key = $3`, hook, ownerID, key.String())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err, "failed to load scheduled event")
	}
	return row.toEvent()
}

func (r *scheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*schedule.Event, error) {
	var rows []*eventRow
	err := r.client.DB.SelectContext(ctx, &rows, `
		SELECT id, hook, owner_id, subscription_key, fire_at, created_at
		FROM scheduled_events
		WHERE fire_at <= $1
		ORDER BY fire_at
		LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, dbErr(err, "failed to list due scheduled events")
	}
	events := make([]*schedule.Event, 0, len(rows))
	for _, row := range rows {
		event, err := row.toEvent()
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("corrupt subscription key on scheduled event").
				Mark(ierr.ErrDatabase)
		}
		events = append(events, event)
	}
	return events, nil
}
