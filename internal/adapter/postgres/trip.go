package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
)

type TripRepo struct {
	db *pgxpool.Pool
}

func NewTripRepo(db *pgxpool.Pool) *TripRepo {
	return &TripRepo{db: db}
}

const tripColumns = `
	id, service_type, status, requester_id, fulfiller_id,
	pickup_address, pickup_lat, pickup_lng, pickup_contact_name, pickup_contact_phone,
	dropoff_address, dropoff_lat, dropoff_lng, dropoff_contact_name, dropoff_contact_phone,
	fare, distance_km, duration_min, security_code, cancellation_reason,
	created_at, updated_at, accepted_at, arrived_at, started_at, completed_at, cancelled_at`

// statuses a trip cannot leave
var terminalStatuses = []string{
	types.StatusCompleted.String(),
	types.StatusCancelled.String(),
	types.StatusNoFulfillerAvailable.String(),
}

func (r *TripRepo) Create(ctx context.Context, trip *models.Trip) error {
	q := TxorDB(ctx, r.db)

	pickupName, pickupPhone := contactArgs(trip.Pickup.Contact)
	dropoffName, dropoffPhone := contactArgs(trip.Dropoff.Contact)

	query := `
		INSERT INTO trips (
			id, service_type, status, requester_id,
			pickup_address, pickup_lat, pickup_lng, pickup_contact_name, pickup_contact_phone,
			dropoff_address, dropoff_lat, dropoff_lng, dropoff_contact_name, dropoff_contact_phone,
			fare, distance_km, duration_min, security_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19);`

	_, err := q.Exec(ctx, query,
		trip.ID, trip.ServiceType.String(), trip.Status.String(), trip.RequesterID,
		trip.Pickup.Address, trip.Pickup.Coordinates.Lat, trip.Pickup.Coordinates.Lng, pickupName, pickupPhone,
		trip.Dropoff.Address, trip.Dropoff.Coordinates.Lat, trip.Dropoff.Coordinates.Lng, dropoffName, dropoffPhone,
		trip.Fare, trip.DistanceKm, trip.DurationMin, trip.SecurityCode, trip.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("trip repo: Create: %w", err)
	}
	return nil
}

func (r *TripRepo) Get(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	q := TxorDB(ctx, r.db)

	trip, err := scanTrip(q.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1;`, tripID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrTripNotFound
		}
		return nil, fmt.Errorf("trip repo: Get: %w", err)
	}
	return trip, nil
}

// List returns a page of trips where userID takes part. uuid.Nil lists every trip.
func (r *TripRepo) List(ctx context.Context, userID uuid.UUID, filter models.TripFilter) ([]models.Trip, models.Metadata, error) {
	q := TxorDB(ctx, r.db)

	statuses := make([]string, 0, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses = append(statuses, s.String())
	}

	// sort column comes from the safelist, never from raw input
	query := fmt.Sprintf(`
		SELECT count(*) OVER(), %s
		FROM trips
		WHERE ($1::uuid = '00000000-0000-0000-0000-000000000000' OR requester_id = $1 OR fulfiller_id = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY %s %s, id ASC
		LIMIT $3 OFFSET $4;`, tripColumns, filter.Filters.SortColumn(), filter.Filters.SortDirection())

	rows, err := q.Query(ctx, query, userID, statuses, filter.Filters.Limit(), filter.Filters.Offset())
	if err != nil {
		return nil, models.Metadata{}, fmt.Errorf("trip repo: List: %w", err)
	}
	defer rows.Close()

	var (
		total int
		trips []models.Trip
	)
	for rows.Next() {
		var t models.Trip
		var pc, dc contactCols
		dest := append([]any{&total}, tripDest(&t, &pc, &dc)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, models.Metadata{}, fmt.Errorf("trip repo: List scan: %w", err)
		}
		t.Pickup.Contact, t.Dropoff.Contact = pc.contact(), dc.contact()
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Metadata{}, fmt.Errorf("trip repo: List rows: %w", err)
	}

	return trips, models.CalculateMetadata(total, filter.Filters.Page, filter.Filters.PageSize), nil
}

// UpdateStatus is a compare-and-set on status; the matching *_at column is stamped.
func (r *TripRepo) UpdateStatus(ctx context.Context, tripID uuid.UUID, from, to types.TripStatus, at time.Time) (*models.Trip, error) {
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE trips SET
			status       = $3,
			updated_at   = $4,
			arrived_at   = CASE WHEN $3 = 'arrived'     THEN $4 ELSE arrived_at END,
			started_at   = CASE WHEN $3 = 'in_progress' THEN $4 ELSE started_at END,
			completed_at = CASE WHEN $3 = 'completed'   THEN $4 ELSE completed_at END
		WHERE id = $1 AND status = $2
		RETURNING ` + tripColumns + `;`

	trip, err := scanTrip(q.QueryRow(ctx, query, tripID, from.String(), to.String(), at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missOrReject(ctx, tripID, types.ErrTransitionRejected)
		}
		return nil, fmt.Errorf("trip repo: UpdateStatus: %w", err)
	}
	return trip, nil
}

// AssignFulfiller only claims a pending trip nobody has taken yet.
func (r *TripRepo) AssignFulfiller(ctx context.Context, tripID, fulfillerID uuid.UUID, at time.Time) (*models.Trip, error) {
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE trips SET
			status       = 'accepted',
			fulfiller_id = $2,
			accepted_at  = $3,
			updated_at   = $3
		WHERE id = $1 AND status = 'pending' AND fulfiller_id IS NULL
		RETURNING ` + tripColumns + `;`

	trip, err := scanTrip(q.QueryRow(ctx, query, tripID, fulfillerID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missOrReject(ctx, tripID, types.ErrOfferConflict)
		}
		return nil, fmt.Errorf("trip repo: AssignFulfiller: %w", err)
	}
	return trip, nil
}

func (r *TripRepo) Cancel(ctx context.Context, tripID uuid.UUID, reason string, at time.Time) (*models.Trip, error) {
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE trips SET
			status              = 'cancelled',
			cancellation_reason = $2,
			cancelled_at        = $3,
			updated_at          = $3
		WHERE id = $1 AND status <> ALL($4)
		RETURNING ` + tripColumns + `;`

	trip, err := scanTrip(q.QueryRow(ctx, query, tripID, reason, at, terminalStatuses))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missOrReject(ctx, tripID, types.ErrTransitionRejected)
		}
		return nil, fmt.Errorf("trip repo: Cancel: %w", err)
	}
	return trip, nil
}

// missOrReject tells a missing trip apart from a failed condition.
func (r *TripRepo) missOrReject(ctx context.Context, tripID uuid.UUID, reject error) error {
	q := TxorDB(ctx, r.db)

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trips WHERE id = $1);`, tripID).Scan(&exists); err != nil {
		return fmt.Errorf("trip repo: exists: %w", err)
	}
	if !exists {
		return types.ErrTripNotFound
	}
	return reject
}

type contactCols struct {
	name, phone *string
}

func (c contactCols) contact() *models.Contact {
	if c.name == nil && c.phone == nil {
		return nil
	}
	var out models.Contact
	if c.name != nil {
		out.Name = *c.name
	}
	if c.phone != nil {
		out.Phone = *c.phone
	}
	return &out
}

func contactArgs(c *models.Contact) (name, phone *string) {
	if c == nil {
		return nil, nil
	}
	return &c.Name, &c.Phone
}

// tripDest lists scan targets in tripColumns order.
func tripDest(t *models.Trip, pickup, dropoff *contactCols) []any {
	return []any{
		&t.ID, &t.ServiceType, &t.Status, &t.RequesterID, &t.FulfillerID,
		&t.Pickup.Address, &t.Pickup.Coordinates.Lat, &t.Pickup.Coordinates.Lng, &pickup.name, &pickup.phone,
		&t.Dropoff.Address, &t.Dropoff.Coordinates.Lat, &t.Dropoff.Coordinates.Lng, &dropoff.name, &dropoff.phone,
		&t.Fare, &t.DistanceKm, &t.DurationMin, &t.SecurityCode, &t.CancellationReason,
		&t.CreatedAt, &t.UpdatedAt, &t.AcceptedAt, &t.ArrivedAt, &t.StartedAt, &t.CompletedAt, &t.CancelledAt,
	}
}

func scanTrip(row pgx.Row) (*models.Trip, error) {
	var t models.Trip
	var pc, dc contactCols
	if err := row.Scan(tripDest(&t, &pc, &dc)...); err != nil {
		return nil, err
	}
	t.Pickup.Contact, t.Dropoff.Contact = pc.contact(), dc.contact()
	return &t, nil
}
