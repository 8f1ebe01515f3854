package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

// Querier is the write surface BulkUpsert needs. Both Pool and pgx.Tx
// satisfy it, so upserts compose into a caller-managed transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// UpsertSpec describes one bulk upsert: all columns inserted, the columns
// forming the unique key, and the columns rewritten on conflict (nil means
// every non-key column).
type UpsertSpec struct {
	Table        string
	Columns      []string
	ConflictKeys []string
	UpdateCols   []string
}

// BulkUpsert loads rows through a temp table and folds them into the target
// with INSERT ... ON CONFLICT DO UPDATE. COPY keeps large imports fast.
// Run it inside a transaction when the upsert must land together with other
// writes; the temp table drops with the transaction.
func BulkUpsert(ctx context.Context, q Querier, spec UpsertSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(spec.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(spec.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	updateCols := spec.UpdateCols
	if updateCols == nil {
		keySet := make(map[string]bool, len(spec.ConflictKeys))
		for _, k := range spec.ConflictKeys {
			keySet[k] = true
		}
		for _, c := range spec.Columns {
			if !keySet[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	tempTable := "_tmp_upsert_" + spec.Table

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		pgx.Identifier{spec.Table}.Sanitize(),
	)
	if _, err := q.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", spec.Table)
	}

	if _, err := q.CopyFrom(ctx, pgx.Identifier{tempTable}, spec.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", spec.Table)
	}

	setClauses := make([]string, 0, len(updateCols))
	for _, col := range updateCols {
		q := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}

	upsertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		pgx.Identifier{spec.Table}.Sanitize(),
		quoteAndJoin(spec.Columns),
		quoteAndJoin(spec.Columns),
		pgx.Identifier{tempTable}.Sanitize(),
		quoteAndJoin(spec.ConflictKeys),
		strings.Join(setClauses, ", "),
	)

	tag, err := q.Exec(ctx, upsertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", spec.Table)
	}
	return tag.RowsAffected(), nil
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
