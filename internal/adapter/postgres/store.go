// Package postgres persists earthquake state and its audit trail.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

// Pool is the subset of *pgxpool.Pool the store needs.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store reads and writes the earthquakes and earthquake_updates tables.
type Store struct {
	pool   Pool
	logger *slog.Logger

	selectSQL string
	insertSQL string
}

// NewStore creates a store over pool. Call Migrate before first use.
func NewStore(pool Pool, logger *slog.Logger) *Store {
	cols := quotedColumns()
	placeholders := make([]string, len(cols)+1)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	return &Store{
		pool:   pool,
		logger: logger,
		selectSQL: "SELECT id, " + strings.Join(cols, ", ") +
			", updated_at FROM earthquakes WHERE id = $1",
		insertSQL: "INSERT INTO earthquakes (id, " + strings.Join(cols, ", ") +
			") VALUES (" + strings.Join(placeholders, ", ") + ")",
	}
}

func quotedColumns() []string {
	cols := domain.Columns()
	for i, c := range cols {
		cols[i] = pgx.Identifier{c}.Sanitize()
	}
	return cols
}

// FetchByID returns the stored event, or nil when the id is unknown.
func (s *Store) FetchByID(ctx context.Context, id string) (*domain.EarthquakeEvent, error) {
	var e domain.EarthquakeEvent
	dest := make([]any, 0, len(domain.Fields)+2)
	dest = append(dest, &e.ID)
	for _, f := range domain.Fields {
		dest = append(dest, f.Ref(&e))
	}
	dest = append(dest, &e.UpdatedAt)

	if err := s.pool.QueryRow(ctx, s.selectSQL, id).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: fetch earthquake %s", id)
	}

	e.Time = e.Time.UTC()
	if e.UpdatedAt != nil {
		t := e.UpdatedAt.UTC()
		e.UpdatedAt = &t
	}
	return &e, nil
}

// Apply persists a reconciliation result. No-ops write nothing.
func (s *Store) Apply(ctx context.Context, r domain.Result) error {
	switch r.Action {
	case domain.ActionInsert:
		return s.Insert(ctx, r.Event)
	case domain.ActionUpdate:
		return s.Update(ctx, r.ID, r.Updates, r.Changes, r.UpdatedAt)
	default:
		return nil
	}
}

// Insert writes a new event with every field. updated_at stays NULL.
func (s *Store) Insert(ctx context.Context, e domain.EarthquakeEvent) error {
	args := make([]any, 0, len(domain.Fields)+1)
	args = append(args, e.ID)
	for _, f := range domain.Fields {
		args = append(args, f.Value(&e))
	}

	if _, err := s.pool.Exec(ctx, s.insertSQL, args...); err != nil {
		return eris.Wrapf(err, "postgres: insert earthquake %s", e.ID)
	}
	return nil
}

// Update sets the changed columns and appends the audit records in one
// transaction. Either all of it lands or none of it does.
func (s *Store) Update(ctx context.Context, id string, updates []domain.FieldUpdate, changes []domain.FieldChange, updatedAt time.Time) error {
	if len(updates) == 0 {
		return nil
	}

	sets := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+2)
	for _, u := range updates {
		args = append(args, u.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{u.Field.Column}.Sanitize(), len(args)))
	}
	args = append(args, updatedAt)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)
	updateSQL := fmt.Sprintf("UPDATE earthquakes SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, updateSQL, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update earthquake %s", id)
	}
	if tag.RowsAffected() != 1 {
		return eris.Errorf("postgres: update earthquake %s: %d rows affected", id, tag.RowsAffected())
	}

	for _, c := range changes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO earthquake_updates (earthquake_id, field_name, old_value, new_value, update_time)
			VALUES ($1, $2, $3, $4, $5)`,
			c.EarthquakeID, c.FieldName, c.OldValue, c.NewValue, c.UpdateTime); err != nil {
			return eris.Wrapf(err, "postgres: record change of %s.%s", id, c.FieldName)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "postgres: commit update of %s", id)
	}
	return nil
}

// TopCountries aggregates events at or after since by country, largest count
// first with ties broken by country name.
func (s *Store) TopCountries(ctx context.Context, since time.Time, limit int) ([]domain.CountrySummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT country, COUNT(*) AS events, AVG(magnitude) AS avg_magnitude
		FROM earthquakes
		WHERE time >= $1
		GROUP BY country
		ORDER BY events DESC, country
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query country summary")
	}
	defer rows.Close()

	var out []domain.CountrySummary
	for rows.Next() {
		var cs domain.CountrySummary
		if err := rows.Scan(&cs.Country, &cs.Events, &cs.AvgMagnitude); err != nil {
			return nil, eris.Wrap(err, "postgres: scan country summary")
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate country summary")
	}
	return out, nil
}

// ChangesFor returns up to limit audit records for one event, oldest first.
func (s *Store) ChangesFor(ctx context.Context, id string, limit int) ([]domain.FieldChange, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, earthquake_id, field_name, old_value, new_value, update_time
		FROM earthquake_updates
		WHERE earthquake_id = $1
		ORDER BY id
		LIMIT $2`, id, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query changes for %s", id)
	}
	defer rows.Close()

	changes := []domain.FieldChange{}
	for rows.Next() {
		var c domain.FieldChange
		if err := rows.Scan(&c.ID, &c.EarthquakeID, &c.FieldName, &c.OldValue, &c.NewValue, &c.UpdateTime); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change")
		}
		c.UpdateTime = c.UpdateTime.UTC()
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: iterate changes for %s", id)
	}
	return changes, nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
