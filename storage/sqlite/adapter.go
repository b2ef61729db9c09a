// Package sqlite provides a single-file fragment store, suited for
// local runs and small deployments that do not warrant Postgres
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // driver registration

	"github.com/sig-0/dutyrates/storage/types"
)

const schema = `CREATE TABLE IF NOT EXISTS rate_fragments (
	code               TEXT    NOT NULL,
	origin             TEXT    NOT NULL,
	destination        TEXT    NOT NULL,
	class              TEXT    NOT NULL,
	base_state         TEXT    NOT NULL DEFAULT 'unknown',
	base_rate          REAL,
	preferential_state TEXT    NOT NULL DEFAULT 'unknown',
	preferential_rate  REAL,
	overlays           TEXT,
	overlays_known     INTEGER NOT NULL DEFAULT 0,
	source             TEXT    NOT NULL,
	confidence         INTEGER NOT NULL,
	description        TEXT    NOT NULL DEFAULT '',
	justification      TEXT    NOT NULL DEFAULT '',
	verified_at        INTEGER NOT NULL,
	ttl_seconds        INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (code, origin, destination, class)
);`

const fragmentColumns = `code, origin, destination, class,
	base_state, base_rate, preferential_state, preferential_rate,
	overlays, overlays_known, source, confidence, description, justification,
	verified_at, ttl_seconds`

type Storage struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema
func Open(ctx context.Context, path string) (*Storage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}

	// sqlite serializes writers; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("unable to apply schema: %w", err)
	}

	return &Storage{
		db: db,
	}, nil
}

// Close closes the underlying database
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Get(ctx context.Context, key types.Key) (*types.Fragment, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+fragmentColumns+` FROM rate_fragments
		WHERE code = ? AND origin = ? AND destination = ? AND class = ?`,
		key.Code,
		key.Origin.String(),
		key.Destination.String(),
		key.Class.String(),
	)

	fragment, err := scanFragment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // valid case
		}

		return nil, fmt.Errorf("unable to fetch fragment: %w", err)
	}

	return fragment, nil
}

func (s *Storage) GetByPrefix(ctx context.Context, prefix types.Prefix) ([]*types.Fragment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+fragmentColumns+` FROM rate_fragments
		WHERE origin = ? AND destination = ? AND class = ? AND substr(code, 1, ?) = ?
		ORDER BY code ASC`,
		prefix.Origin.String(),
		prefix.Destination.String(),
		prefix.Class.String(),
		len(prefix.CodePrefix),
		prefix.CodePrefix,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch fragments: %w", err)
	}
	defer rows.Close()

	out := make([]*types.Fragment, 0)

	for rows.Next() {
		fragment, err := scanFragment(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan fragment: %w", err)
		}

		out = append(out, fragment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to iterate fragments: %w", err)
	}

	return out, nil
}

func (s *Storage) Put(ctx context.Context, f *types.Fragment, ttl time.Duration) error {
	overlays, err := json.Marshal(f.Overlays)
	if err != nil {
		return fmt.Errorf("unable to encode overlays: %w", err)
	}

	baseState, baseRate := rateToColumns(f.BaseRate)
	prefState, prefRate := rateToColumns(f.PreferentialRate)

	_, err = s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO rate_fragments (`+fragmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Key.Code,
		f.Key.Origin.String(),
		f.Key.Destination.String(),
		f.Key.Class.String(),
		baseState,
		baseRate,
		prefState,
		prefRate,
		string(overlays),
		f.OverlaysKnown,
		f.Source.String(),
		f.Confidence,
		f.Description,
		f.Justification,
		f.VerifiedAt.UTC().UnixNano(),
		int64(ttl/time.Second),
	)
	if err != nil {
		return fmt.Errorf("unable to save fragment: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFragment(row scanner) (*types.Fragment, error) {
	var (
		code, origin, destination, class string
		baseState, prefState             string
		baseRate, prefRate               sql.NullFloat64
		overlays                         sql.NullString
		overlaysKnown                    bool
		source                           string
		confidence                       int
		description, justification       string
		verifiedAt                       int64
		ttlSeconds                       int64
	)

	if err := row.Scan(
		&code,
		&origin,
		&destination,
		&class,
		&baseState,
		&baseRate,
		&prefState,
		&prefRate,
		&overlays,
		&overlaysKnown,
		&source,
		&confidence,
		&description,
		&justification,
		&verifiedAt,
		&ttlSeconds,
	); err != nil {
		return nil, err
	}

	fragment := &types.Fragment{
		Key: types.Key{
			Code:        code,
			Origin:      types.Country(origin),
			Destination: types.Country(destination),
			Class:       types.FieldClass(class),
		},
		BaseRate:         columnsToRate(baseState, baseRate),
		PreferentialRate: columnsToRate(prefState, prefRate),
		OverlaysKnown:    overlaysKnown,
		Source:           types.LookupSource(source),
		Confidence:       confidence,
		Description:      description,
		Justification:    justification,
		VerifiedAt:       time.Unix(0, verifiedAt).UTC(),
		TTL:              time.Duration(ttlSeconds) * time.Second,
	}

	if overlays.Valid && overlays.String != "" && overlays.String != "null" {
		if err := json.Unmarshal([]byte(overlays.String), &fragment.Overlays); err != nil {
			return nil, fmt.Errorf("unable to decode overlays: %w", err)
		}
	}

	return fragment, nil
}

func rateToColumns(r types.Rate) (string, sql.NullFloat64) {
	v, ok := r.Value()
	if !ok {
		return r.State().String(), sql.NullFloat64{}
	}

	return r.State().String(), sql.NullFloat64{Float64: v, Valid: true}
}

func columnsToRate(state string, value sql.NullFloat64) types.Rate {
	switch state {
	case types.RateConfirmedZero.String():
		return types.ConfirmedZero()
	case types.RateKnown.String():
		if !value.Valid {
			return types.Unknown()
		}

		return types.RateOf(value.Float64)
	default:
		return types.Unknown()
	}
}
