package sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sig-0/dutyrates/storage/types"
)

// DB is the subset of the pgx connection API used by the storage
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const fragmentColumns = `code, origin, destination, class,
	base_state, base_rate, preferential_state, preferential_rate,
	overlays, overlays_known, source, confidence, description, justification,
	verified_at, ttl_seconds`

const getFragmentQuery = `SELECT ` + fragmentColumns + `
FROM rate_fragments
WHERE code = $1 AND origin = $2 AND destination = $3 AND class = $4`

const prefixFragmentsQuery = `SELECT ` + fragmentColumns + `
FROM rate_fragments
WHERE origin = $1 AND destination = $2 AND class = $3 AND code LIKE $4 || '%'
ORDER BY code ASC`

const putFragmentQuery = `INSERT INTO rate_fragments (` + fragmentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (code, origin, destination, class) DO UPDATE SET
	base_state = EXCLUDED.base_state,
	base_rate = EXCLUDED.base_rate,
	preferential_state = EXCLUDED.preferential_state,
	preferential_rate = EXCLUDED.preferential_rate,
	overlays = EXCLUDED.overlays,
	overlays_known = EXCLUDED.overlays_known,
	source = EXCLUDED.source,
	confidence = EXCLUDED.confidence,
	description = EXCLUDED.description,
	justification = EXCLUDED.justification,
	verified_at = EXCLUDED.verified_at,
	ttl_seconds = EXCLUDED.ttl_seconds`

type Storage struct {
	db DB
}

func NewStorage(db DB) *Storage {
	return &Storage{
		db: db,
	}
}

func (s *Storage) Get(ctx context.Context, key types.Key) (*types.Fragment, error) {
	row := s.db.QueryRow(
		ctx,
		getFragmentQuery,
		key.Code,
		key.Origin.String(),
		key.Destination.String(),
		key.Class.String(),
	)

	fragment, err := scanFragment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // valid case
		}

		return nil, fmt.Errorf("unable to fetch fragment: %w", err)
	}

	return fragment, nil
}

func (s *Storage) GetByPrefix(ctx context.Context, prefix types.Prefix) ([]*types.Fragment, error) {
	rows, err := s.db.Query(
		ctx,
		prefixFragmentsQuery,
		prefix.Origin.String(),
		prefix.Destination.String(),
		prefix.Class.String(),
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

	_, err = s.db.Exec(
		ctx,
		putFragmentQuery,
		f.Key.Code,
		f.Key.Origin.String(),
		f.Key.Destination.String(),
		f.Key.Class.String(),
		baseState,
		baseRate,
		prefState,
		prefRate,
		overlays,
		f.OverlaysKnown,
		f.Source.String(),
		int32(f.Confidence), //nolint:gosec // confidence is 0-100
		f.Description,
		f.Justification,
		timeToTimestampz(f.VerifiedAt),
		int64(ttl/time.Second),
	)
	if err != nil {
		return fmt.Errorf("unable to save fragment: %w", err)
	}

	return nil
}

// scanFragment parses a single rate_fragments row to the common Go type
func scanFragment(row pgx.Row) (*types.Fragment, error) {
	var (
		code, origin, destination, class string
		baseState, prefState             string
		baseRate, prefRate               pgtype.Numeric
		overlays                         []byte
		overlaysKnown                    bool
		source                           string
		confidence                       int32
		description, justification       string
		verifiedAt                       pgtype.Timestamptz
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
		Confidence:       int(confidence),
		Description:      description,
		Justification:    justification,
		VerifiedAt:       timestampzToTime(verifiedAt),
		TTL:              time.Duration(ttlSeconds) * time.Second,
	}

	if len(overlays) > 0 && string(overlays) != "null" {
		if err := json.Unmarshal(overlays, &fragment.Overlays); err != nil {
			return nil, fmt.Errorf("unable to decode overlays: %w", err)
		}
	}

	return fragment, nil
}

// rateToColumns splits the tri-state rate into its state and numeric columns
func rateToColumns(r types.Rate) (string, pgtype.Numeric) {
	v, ok := r.Value()
	if !ok {
		return r.State().String(), pgtype.Numeric{}
	}

	return r.State().String(), floatToNumeric(v)
}

// columnsToRate rebuilds the tri-state rate from its columns
func columnsToRate(state string, value pgtype.Numeric) types.Rate {
	switch state {
	case types.RateConfirmedZero.String():
		return types.ConfirmedZero()
	case types.RateKnown.String():
		if !value.Valid || value.Int == nil {
			return types.Unknown()
		}

		return types.RateOf(numericToFloat(value))
	default:
		return types.Unknown()
	}
}

// floatToNumeric converts the float value to postgres numeric
func floatToNumeric(value float64) pgtype.Numeric {
	// round to 4dp and store as integer with exponent -4
	i := int64(math.Round(value * 1e4))

	return pgtype.Numeric{
		Int:   big.NewInt(i),
		Exp:   -4,
		Valid: true,
	}
}

// numericToFloat converts the postgres value to float
func numericToFloat(value pgtype.Numeric) float64 {
	f, _ := new(big.Rat).SetInt(value.Int).Float64()

	if value.Exp > 0 {
		f *= math.Pow10(int(value.Exp))
	} else if value.Exp < 0 {
		f /= math.Pow10(int(-value.Exp))
	}

	return f
}

// timeToTimestampz converts the time value to postgres timestamp
func timeToTimestampz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  t.UTC(),
		Valid: true,
	}
}

// timestampzToTime converts the postgres timestamp value to time
func timestampzToTime(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}

	return ts.Time.UTC()
}
