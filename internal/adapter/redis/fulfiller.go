// Package redis keeps the pool of online fulfillers: availability, last position
// and a geohash cell index used to find candidates near a pickup point.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/geo"
)

const (
	// ~5x5 km cells; a cell plus its neighbours covers the search radius
	cellPrecision = 5
	// a fulfiller who stops reporting drops out of the pool
	stateTTL = 10 * time.Minute
)

const (
	fieldStatus  = "status"
	fieldService = "service"
	fieldLat     = "lat"
	fieldLng     = "lng"
	fieldHeading = "heading"
	fieldTS      = "ts"
	fieldCell    = "cell"
)

type FulfillerIndex struct {
	rdb *redis.Client
}

func NewFulfillerIndex(rdb *redis.Client) *FulfillerIndex {
	return &FulfillerIndex{rdb: rdb}
}

func stateKey(id uuid.UUID) string {
	return "fulfiller:" + id.String()
}

func cellKey(service types.ServiceType, cell string) string {
	return fmt.Sprintf("fulfillers:%s:%s", service, cell)
}

func cellOf(c models.Coordinates) string {
	return geohash.EncodeWithPrecision(c.Lat, c.Lng, cellPrecision)
}

// searchCells returns the cell of center with its eight neighbours.
func searchCells(center models.Coordinates) []string {
	cell := cellOf(center)
	return append(geohash.Neighbors(cell), cell)
}

// GoOnline puts the fulfiller into the pool as available at pos.
func (f *FulfillerIndex) GoOnline(ctx context.Context, id uuid.UUID, service types.ServiceType, pos models.FulfillerPosition) error {
	cell := cellOf(pos.Coordinates)

	old, err := f.rdb.HMGet(ctx, stateKey(id), fieldService, fieldCell).Result()
	if err != nil {
		return fmt.Errorf("fulfiller index: GoOnline: %w", err)
	}

	_, err = f.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if oldService, ok := old[0].(string); ok {
			if oldCell, ok := old[1].(string); ok {
				p.SRem(ctx, cellKey(types.ServiceType(oldService), oldCell), id.String())
			}
		}
		p.HSet(ctx, stateKey(id),
			fieldStatus, string(types.FulfillerAvailable),
			fieldService, service.String(),
			fieldLat, pos.Coordinates.Lat,
			fieldLng, pos.Coordinates.Lng,
			fieldHeading, pos.Heading,
			fieldTS, pos.Timestamp.UnixMilli(),
			fieldCell, cell,
		)
		p.Expire(ctx, stateKey(id), stateTTL)
		p.SAdd(ctx, cellKey(service, cell), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("fulfiller index: GoOnline: %w", err)
	}
	return nil
}

// GoOffline removes the fulfiller from the pool.
func (f *FulfillerIndex) GoOffline(ctx context.Context, id uuid.UUID) error {
	state, err := f.rdb.HGetAll(ctx, stateKey(id)).Result()
	if err != nil {
		return fmt.Errorf("fulfiller index: GoOffline: %w", err)
	}
	if len(state) == 0 {
		return types.ErrNotFound
	}

	_, err = f.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SRem(ctx, cellKey(types.ServiceType(state[fieldService]), state[fieldCell]), id.String())
		p.Del(ctx, stateKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("fulfiller index: GoOffline: %w", err)
	}
	return nil
}

// UpdatePosition stores the newest position only; older samples are ignored.
func (f *FulfillerIndex) UpdatePosition(ctx context.Context, id uuid.UUID, pos models.FulfillerPosition) error {
	state, err := f.rdb.HGetAll(ctx, stateKey(id)).Result()
	if err != nil {
		return fmt.Errorf("fulfiller index: UpdatePosition: %w", err)
	}
	if len(state) == 0 {
		return types.ErrNotFound
	}

	if last, err := strconv.ParseInt(state[fieldTS], 10, 64); err == nil && pos.Timestamp.UnixMilli() < last {
		return nil
	}

	service := types.ServiceType(state[fieldService])
	cell := cellOf(pos.Coordinates)

	_, err = f.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if old := state[fieldCell]; old != cell {
			p.SRem(ctx, cellKey(service, old), id.String())
			p.SAdd(ctx, cellKey(service, cell), id.String())
		}
		p.HSet(ctx, stateKey(id),
			fieldLat, pos.Coordinates.Lat,
			fieldLng, pos.Coordinates.Lng,
			fieldHeading, pos.Heading,
			fieldTS, pos.Timestamp.UnixMilli(),
			fieldCell, cell,
		)
		p.Expire(ctx, stateKey(id), stateTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("fulfiller index: UpdatePosition: %w", err)
	}
	return nil
}

// SetStatus changes availability of an online fulfiller. Offline fulfillers are left alone.
func (f *FulfillerIndex) SetStatus(ctx context.Context, id uuid.UUID, status types.FulfillerStatus) error {
	exists, err := f.rdb.Exists(ctx, stateKey(id)).Result()
	if err != nil {
		return fmt.Errorf("fulfiller index: SetStatus: %w", err)
	}
	if exists == 0 {
		return nil
	}
	if err := f.rdb.HSet(ctx, stateKey(id), fieldStatus, string(status)).Err(); err != nil {
		return fmt.Errorf("fulfiller index: SetStatus: %w", err)
	}
	return nil
}

// Position returns the last position the fulfiller reported.
func (f *FulfillerIndex) Position(ctx context.Context, id uuid.UUID) (models.FulfillerPosition, error) {
	state, err := f.rdb.HGetAll(ctx, stateKey(id)).Result()
	if err != nil {
		return models.FulfillerPosition{}, fmt.Errorf("fulfiller index: Position: %w", err)
	}
	if len(state) == 0 {
		return models.FulfillerPosition{}, types.ErrPositionUnavailable
	}
	return parsePosition(state)
}

// Nearby returns available fulfillers of the service within radiusKm, nearest first.
func (f *FulfillerIndex) Nearby(ctx context.Context, service types.ServiceType, center models.Coordinates, radiusKm float64, limit int) ([]models.NearbyFulfiller, error) {
	cells := searchCells(center)
	keys := make([]string, 0, len(cells))
	for _, c := range cells {
		keys = append(keys, cellKey(service, c))
	}

	ids, err := f.rdb.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fulfiller index: Nearby: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringStringMapCmd, len(ids))
	if _, err := f.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, "fulfiller:"+id)
		}
		return nil
	}); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("fulfiller index: Nearby states: %w", err)
	}

	var (
		out   []models.NearbyFulfiller
		stale []any
	)
	for i, raw := range ids {
		state := cmds[i].Val()
		if len(state) == 0 {
			// state expired, the cell entry is left over
			stale = append(stale, raw)
			continue
		}
		if types.FulfillerStatus(state[fieldStatus]) != types.FulfillerAvailable {
			continue
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		pos, err := parsePosition(state)
		if err != nil {
			continue
		}

		d := geo.HaversineKm(center, pos.Coordinates)
		if d > radiusKm {
			continue
		}
		out = append(out, models.NearbyFulfiller{ID: id, Position: pos, DistanceKm: d})
	}

	if len(stale) > 0 {
		for _, key := range keys {
			f.rdb.SRem(ctx, key, stale...)
		}
	}

	sortByDistance(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortByDistance(list []models.NearbyFulfiller) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].DistanceKm < list[j].DistanceKm
	})
}

func parsePosition(state map[string]string) (models.FulfillerPosition, error) {
	lat, err := strconv.ParseFloat(state[fieldLat], 64)
	if err != nil {
		return models.FulfillerPosition{}, fmt.Errorf("bad lat: %w", err)
	}
	lng, err := strconv.ParseFloat(state[fieldLng], 64)
	if err != nil {
		return models.FulfillerPosition{}, fmt.Errorf("bad lng: %w", err)
	}

	pos := models.FulfillerPosition{Coordinates: models.Coordinates{Lat: lat, Lng: lng}}
	if h, err := strconv.ParseFloat(state[fieldHeading], 64); err == nil {
		pos.Heading = h
	}
	if ts, err := strconv.ParseInt(state[fieldTS], 10, 64); err == nil {
		pos.Timestamp = time.UnixMilli(ts)
	}
	return pos, nil
}
