package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"telemetry-server/cache"
	"telemetry-server/clock"
	"telemetry-server/entities"
	"telemetry-server/repositories"
)

// Aggregation is the bucket width of an aggregated query.
type Aggregation string

const (
	AggregateNone   Aggregation = ""
	AggregateMinute Aggregation = "minute"
	AggregateHour   Aggregation = "hour"
	AggregateDay    Aggregation = "day"
)

func ParseAggregation(s string) (Aggregation, error) {
	switch a := Aggregation(s); a {
	case AggregateNone, AggregateMinute, AggregateHour, AggregateDay:
		return a, nil
	}
	return "", entities.Errorf(entities.ErrInvalidArgument, "Invalid aggregation %q: use minute, hour or day", s)
}

// Truncate returns the start of the UTC bucket holding t.
func (a Aggregation) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch a {
	case AggregateMinute:
		return t.Truncate(time.Minute)
	case AggregateHour:
		return t.Truncate(time.Hour)
	case AggregateDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t
}

// IngestRequest is one reading as submitted by a device.
type IngestRequest struct {
	ServerULID     string
	Temperature    *float64
	Humidity       *float64
	Voltage        *float64
	Current        *float64
	IdempotencyKey string
}

type TelemetryUseCase struct {
	servers      repositories.ServerRepository
	readings     repositories.SensorReadingRepository
	health       *HealthUseCase
	readingCache *cache.Typed[entities.ReadingView]
	queryCache   *cache.Typed[[]entities.ReadingView]
	clock        clock.Clock
	readingTTL   time.Duration
	queryTTL     time.Duration
	log          *slog.Logger
}

func NewTelemetryUseCase(
	servers repositories.ServerRepository,
	readings repositories.SensorReadingRepository,
	health *HealthUseCase,
	store cache.Store,
	c clock.Clock,
	readingTTL, queryTTL time.Duration,
	log *slog.Logger,
) *TelemetryUseCase {
	return &TelemetryUseCase{
		servers:      servers,
		readings:     readings,
		health:       health,
		readingCache: cache.NewTyped[entities.ReadingView](store, log),
		queryCache:   cache.NewTyped[[]entities.ReadingView](store, log),
		clock:        c,
		readingTTL:   readingTTL,
		queryTTL:     queryTTL,
		log:          log,
	}
}

// Ingest stores one reading stamped with the current time. When the request
// carries an idempotency key already used for the server, the stored reading
// is returned with replayed set and nothing is written.
func (uc *TelemetryUseCase) Ingest(ctx context.Context, req IngestRequest) (view *entities.ReadingView, replayed bool, err error) {
	server, err := uc.servers.GetByULID(ctx, req.ServerULID)
	if errors.Is(err, entities.ErrNotFound) {
		return nil, false, entities.Errorf(entities.ErrNotFound, "Server not found")
	}
	if err != nil {
		return nil, false, err
	}

	if req.IdempotencyKey != "" {
		if prior, ok, err := uc.replay(ctx, req); ok || err != nil {
			return prior, ok, err
		}
	}

	reading := &entities.SensorReading{
		ServerULID:  server.ULID,
		Timestamp:   uc.clock.Now().UTC().Truncate(time.Microsecond),
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		Voltage:     req.Voltage,
		Current:     req.Current,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		reading.IdempotencyKey = &key
	}

	if err := uc.readings.Create(ctx, reading); err != nil {
		// a concurrent request with the same key won the insert
		if req.IdempotencyKey != "" && errors.Is(err, entities.ErrConflict) {
			if prior, ok, rerr := uc.replay(ctx, req); ok || rerr != nil {
				return prior, ok, rerr
			}
		}
		return nil, false, err
	}

	v := reading.View()
	key := "reading:" + reading.ID
	if err := uc.readingCache.Set(ctx, key, v, uc.readingTTL); err != nil {
		uc.log.Warn("reading cache write failed", "key", key, "error", err)
	}
	if uc.health != nil {
		uc.health.RecordReading(ctx, server, reading.Timestamp)
	}
	return &v, false, nil
}

func (uc *TelemetryUseCase) replay(ctx context.Context, req IngestRequest) (*entities.ReadingView, bool, error) {
	prior, err := uc.readings.GetByIdempotencyKey(ctx, req.ServerULID, req.IdempotencyKey)
	switch {
	case errors.Is(err, entities.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	v := prior.View()
	return &v, true, nil
}

// Query returns the readings matching filter, bucketed when aggregation is
// set. Results are cached per filter for the query TTL.
func (uc *TelemetryUseCase) Query(ctx context.Context, filter repositories.ReadingFilter, aggregation string) ([]entities.ReadingView, error) {
	agg, err := ParseAggregation(aggregation)
	if err != nil {
		return nil, err
	}

	key := queryKey(filter, agg)
	if views, ok, err := uc.queryCache.Get(ctx, key); err != nil {
		return nil, fmt.Errorf("read query cache: %w", err)
	} else if ok {
		return views, nil
	}

	readings, err := uc.readings.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	var views []entities.ReadingView
	if agg == AggregateNone {
		views = make([]entities.ReadingView, 0, len(readings))
		for i := range readings {
			views = append(views, readings[i].View())
		}
	} else {
		views = Aggregate(readings, agg)
	}
	if len(views) == 0 {
		return nil, entities.Errorf(entities.ErrNotFound, "No sensor data found")
	}

	if err := uc.queryCache.Set(ctx, key, views, uc.queryTTL); err != nil {
		uc.log.Warn("query cache write failed", "key", key, "error", err)
	}
	return views, nil
}

func queryKey(filter repositories.ReadingFilter, agg Aggregation) string {
	var start, end string
	if filter.HasRange() {
		start = entities.FormatTimestamp(*filter.Start)
		end = entities.FormatTimestamp(*filter.End)
	}
	return fmt.Sprintf("sensor_data:%s:%s:%s:%s", filter.ServerULID, start, end, agg)
}

// mean is a running average. It stays finite for any finite inputs, where a
// plain sum of large readings would overflow.
type mean struct {
	avg float64
	n   int
}

func (m *mean) add(v *float64) {
	if v != nil {
		m.n++
		m.avg += *v/float64(m.n) - m.avg/float64(m.n)
	}
}

func (m *mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.avg
	return &v
}

// bucket accumulates temperature, humidity, voltage and current in that order.
type bucket struct {
	server string
	start  time.Time
	fields [4]mean
}

func (b *bucket) add(r *entities.SensorReading) {
	for i, v := range []*float64{r.Temperature, r.Humidity, r.Voltage, r.Current} {
		b.fields[i].add(v)
	}
}

// Aggregate groups readings by server and bucket and averages each field
// over the readings that carry it. Rows are ordered by bucket, then server.
func Aggregate(readings []entities.SensorReading, agg Aggregation) []entities.ReadingView {
	type groupKey struct {
		server string
		start  int64
	}
	groups := make(map[groupKey]*bucket)
	for i := range readings {
		r := &readings[i]
		start := agg.Truncate(r.Timestamp)
		k := groupKey{server: r.ServerULID, start: start.UnixNano()}
		b, ok := groups[k]
		if !ok {
			b = &bucket{server: r.ServerULID, start: start}
			groups[k] = b
		}
		b.add(r)
	}

	buckets := make([]*bucket, 0, len(groups))
	for _, b := range groups {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		if !buckets[i].start.Equal(buckets[j].start) {
			return buckets[i].start.Before(buckets[j].start)
		}
		return buckets[i].server < buckets[j].server
	})

	views := make([]entities.ReadingView, 0, len(buckets))
	for _, b := range buckets {
		views = append(views, entities.ReadingView{
			ID:          entities.NewID(),
			ServerULID:  b.server,
			Timestamp:   entities.FormatTimestamp(b.start),
			Temperature: b.fields[0].value(),
			Humidity:    b.fields[1].value(),
			Voltage:     b.fields[2].value(),
			Current:     b.fields[3].value(),
			Aggregated:  true,
		})
	}
	return views
}
