package repository

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rafflehub/platform/internal/infra"
)

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// money collects numeric(18,2) scan targets and converts them to minor
// units once the row has been scanned.
type money struct {
	pairs []moneyPair
}

type moneyPair struct {
	num *pgtype.Numeric
	dst *int64
}

func (m *money) into(dst *int64) *pgtype.Numeric {
	n := new(pgtype.Numeric)
	m.pairs = append(m.pairs, moneyPair{num: n, dst: dst})
	return n
}

func (m *money) apply() error {
	for _, p := range m.pairs {
		v, err := infra.NumericToMinor(*p.num)
		if err != nil {
			return err
		}
		*p.dst = v
	}
	return nil
}

// collect scans every row with fn.
func collect[T any](rows pgx.Rows, what string, fn func(scanner) (*T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := fn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", what, err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
