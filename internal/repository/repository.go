package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/meter-dashboard/internal/consumption"
	"github.com/septivank/meter-dashboard/internal/db"
)

var (
	// ErrNotFound is returned when a meter, reading or user does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when creating a meter whose id is taken
	ErrDuplicate = errors.New("already exists")
)

const uniqueViolation = "23505"

// Repository handles database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const meterColumns = `meter_id, meter_name, type, factory, process, max_cap::float8, max_meter::float8, period`

func scanMeter(row pgx.Row) (consumption.MeterConfig, error) {
	var m db.MeterInfo
	if err := row.Scan(&m.MeterID, &m.MeterName, &m.Type, &m.Factory, &m.Process, &m.MaxCap, &m.MaxMeter, &m.Period); err != nil {
		return consumption.MeterConfig{}, err
	}
	return m.Config(), nil
}

func (r *Repository) queryMeters(ctx context.Context, query string, args ...any) ([]consumption.MeterConfig, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query meters: %w", err)
	}
	defer rows.Close()

	var meters []consumption.MeterConfig
	for rows.Next() {
		m, err := scanMeter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meter: %w", err)
		}
		meters = append(meters, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return meters, nil
}

// ListMeters returns every registered meter ordered by id
func (r *Repository) ListMeters(ctx context.Context) ([]consumption.MeterConfig, error) {
	query := `SELECT ` + meterColumns + ` FROM public."wastewater_info" ORDER BY meter_id ASC`
	return r.queryMeters(ctx, query)
}

// ListMetersByFactory returns the meters of one factory ordered by id
func (r *Repository) ListMetersByFactory(ctx context.Context, factory string) ([]consumption.MeterConfig, error) {
	query := `SELECT ` + meterColumns + ` FROM public."wastewater_info" WHERE factory = $1 ORDER BY meter_id ASC`
	return r.queryMeters(ctx, query, factory)
}

// GetMeter returns one meter's configuration
func (r *Repository) GetMeter(ctx context.Context, meterID string) (consumption.MeterConfig, error) {
	query := `SELECT ` + meterColumns + ` FROM public."wastewater_info" WHERE meter_id = $1`

	m, err := scanMeter(r.pool.QueryRow(ctx, query, consumption.NormalizeMeterID(meterID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return consumption.MeterConfig{}, fmt.Errorf("meter %s: %w", meterID, ErrNotFound)
	}
	if err != nil {
		return consumption.MeterConfig{}, fmt.Errorf("failed to query meter: %w", err)
	}
	return m, nil
}

func meterArgs(m consumption.MeterConfig) []any {
	var maxMeter *float64
	if m.RolloverMax > 0 {
		v := m.RolloverMax
		maxMeter = &v
	}
	return []any{
		consumption.NormalizeMeterID(m.MeterID),
		nullable(m.Name),
		nullable(m.Type),
		nullable(m.Factory),
		nullable(m.Process),
		m.DailyCapacity,
		maxMeter,
		nullable(string(m.Period)),
	}
}

// CreateMeter registers a new meter
func (r *Repository) CreateMeter(ctx context.Context, m consumption.MeterConfig) error {
	query := `
		INSERT INTO public."wastewater_info" (meter_id, meter_name, type, factory, process, max_cap, max_meter, period)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query, meterArgs(m)...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("meter %s: %w", m.MeterID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert meter: %w", err)
	}
	return nil
}

// UpdateMeter replaces the editable attributes of a meter
func (r *Repository) UpdateMeter(ctx context.Context, m consumption.MeterConfig) error {
	query := `
		UPDATE public."wastewater_info"
		SET meter_name = $2, type = $3, factory = $4, process = $5, max_cap = $6, max_meter = $7, period = $8
		WHERE meter_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, meterArgs(m)...)
	if err != nil {
		return fmt.Errorf("failed to update meter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("meter %s: %w", m.MeterID, ErrNotFound)
	}
	return nil
}

// DeleteMeter removes a meter from the registry. Its readings are kept.
func (r *Repository) DeleteMeter(ctx context.Context, meterID string) error {
	query := `DELETE FROM public."wastewater_info" WHERE meter_id = $1`

	tag, err := r.pool.Exec(ctx, query, consumption.NormalizeMeterID(meterID))
	if err != nil {
		return fmt.Errorf("failed to delete meter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("meter %s: %w", meterID, ErrNotFound)
	}
	return nil
}

const readingSelect = `
	SELECT r.meter_id, r.log_datetime, r.meter_value::text, r.user_id::text, u.name
	FROM public."water_meter_record_wwt_a" AS r
	LEFT JOIN public."user_info" AS u ON r.user_id = u.user_id
`

func (r *Repository) queryReadings(ctx context.Context, query string, args ...any) ([]consumption.Reading, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []consumption.Reading
	for rows.Next() {
		var rec db.MeterRecord
		var raw *string
		if err := rows.Scan(&rec.MeterID, &rec.LogDatetime, &raw, &rec.UserID, &rec.UserName); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		rec.MeterValue = ParseMeterValue(raw)
		readings = append(readings, rec.Reading())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return readings, nil
}

// ListReadings returns one meter's readings with from <= log_datetime < to.
// A zero bound leaves that side open. Rows come back ascending by time.
func (r *Repository) ListReadings(ctx context.Context, meterID string, from, to time.Time) ([]consumption.Reading, error) {
	query := readingSelect + `
		WHERE r.meter_id = $1
		  AND ($2::timestamptz IS NULL OR r.log_datetime >= $2)
		  AND ($3::timestamptz IS NULL OR r.log_datetime < $3)
		ORDER BY r.log_datetime ASC
	`
	return r.queryReadings(ctx, query, consumption.NormalizeMeterID(meterID), optionalTime(from), optionalTime(to))
}

// ListReadingsBetween returns the readings of every meter with from <= log_datetime < to
func (r *Repository) ListReadingsBetween(ctx context.Context, from, to time.Time) ([]consumption.Reading, error) {
	query := readingSelect + `
		WHERE r.log_datetime >= $1 AND r.log_datetime < $2
		ORDER BY r.meter_id, r.log_datetime ASC
	`
	return r.queryReadings(ctx, query, from, to)
}

// ListRecentReadings returns up to limit readings of a meter before until, newest first
func (r *Repository) ListRecentReadings(ctx context.Context, meterID string, until time.Time, limit int) ([]consumption.Reading, error) {
	query := readingSelect + `
		WHERE r.meter_id = $1 AND r.log_datetime < $2
		ORDER BY r.log_datetime DESC
		LIMIT $3
	`
	return r.queryReadings(ctx, query, consumption.NormalizeMeterID(meterID), until, limit)
}

// LatestReadingTimes returns the newest log time of every meter that has readings
func (r *Repository) LatestReadingTimes(ctx context.Context) (map[string]time.Time, error) {
	query := `
		SELECT meter_id, MAX(log_datetime)
		FROM public."water_meter_record_wwt_a"
		GROUP BY meter_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest readings: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]time.Time)
	for rows.Next() {
		var meterID string
		var ts time.Time
		if err := rows.Scan(&meterID, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan latest reading: %w", err)
		}
		latest[consumption.NormalizeMeterID(meterID)] = ts
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return latest, nil
}

// InsertReading appends a reading to the log
func (r *Repository) InsertReading(ctx context.Context, reading consumption.Reading, userID string) error {
	query := `
		INSERT INTO public."water_meter_record_wwt_a" (meter_id, log_datetime, meter_value, user_id)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query,
		consumption.NormalizeMeterID(reading.MeterID),
		reading.Timestamp,
		reading.Value,
		nullable(userID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert meter reading: %w", err)
	}
	return nil
}

// InsertReadings appends a batch of readings in one transaction. Either every
// reading is stored or none is.
func (r *Repository) InsertReadings(ctx context.Context, readings []consumption.Reading, userID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO public."water_meter_record_wwt_a" (meter_id, log_datetime, meter_value, user_id)
		VALUES ($1, $2, $3, $4)
	`

	batch := &pgx.Batch{}
	for _, reading := range readings {
		batch.Queue(query,
			consumption.NormalizeMeterID(reading.MeterID),
			reading.Timestamp,
			reading.Value,
			nullable(userID),
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range readings {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to insert meter reading %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateReadingValue corrects the value logged for a meter at an exact time
func (r *Repository) UpdateReadingValue(ctx context.Context, meterID string, at time.Time, value *float64, userID string) error {
	query := `
		UPDATE public."water_meter_record_wwt_a"
		SET meter_value = $1, user_id = $2
		WHERE meter_id = $3 AND log_datetime = $4
	`

	tag, err := r.pool.Exec(ctx, query, value, nullable(userID), consumption.NormalizeMeterID(meterID), at)
	if err != nil {
		return fmt.Errorf("failed to update meter reading: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reading %s at %s: %w", meterID, at.Format(time.RFC3339), ErrNotFound)
	}
	return nil
}

// GetUserByName looks up a dashboard user for login
func (r *Repository) GetUserByName(ctx context.Context, name string) (db.UserInfo, error) {
	query := `SELECT user_id::text, name, password FROM public."user_info" WHERE name = $1`

	var u db.UserInfo
	err := r.pool.QueryRow(ctx, query, name).Scan(&u.UserID, &u.Name, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return db.UserInfo{}, fmt.Errorf("user %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return db.UserInfo{}, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

// ParseMeterValue converts a stored meter value. NULL stays nil and text that
// is not a number becomes NaN so the reading counts as present but unusable.
func ParseMeterValue(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
	if err != nil {
		v = math.NaN()
	}
	return &v
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
