package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/postgres"
)

type TripEventRepo struct {
	db *pgxpool.Pool
}

func NewTripEventRepo(db *pgxpool.Pool) *TripEventRepo {
	return &TripEventRepo{db: db}
}

// CreateEvent inserts a new trip event into trip_events.
func (r *TripEventRepo) CreateEvent(ctx context.Context, tripID uuid.UUID, eventType types.TripEventType, eventData json.RawMessage) error {
	q := TxorDB(ctx, r.db)

	if len(eventData) == 0 {
		eventData = json.RawMessage("{}")
	}

	query := `INSERT INTO trip_events (trip_id, event_type, event_data)
			  VALUES ($1, $2, $3);`

	if _, err := q.Exec(ctx, query, tripID, string(eventType), eventData); err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return types.ErrTripNotFound
		}
		return fmt.Errorf("trip event repo: CreateEvent: %w", err)
	}
	return nil
}

// History returns the events of a trip in the order they happened.
func (r *TripEventRepo) History(ctx context.Context, tripID uuid.UUID) ([]models.TripEvent, error) {
	q := TxorDB(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT id, event_type, event_data, created_at
		FROM trip_events
		WHERE trip_id = $1
		ORDER BY created_at, id;`, tripID)
	if err != nil {
		return nil, fmt.Errorf("trip event repo: History: %w", err)
	}
	defer rows.Close()

	var events []models.TripEvent
	for rows.Next() {
		var e models.TripEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("trip event repo: History scan: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
