package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aussiebroadwan/pmboard/internal/devapi/domain"
	"github.com/aussiebroadwan/pmboard/internal/devapi/store"
)

// Filter keys become JSON paths, so they are restricted to plain field names.
var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type recordsRepo struct {
	q querier
}

const recordColumns = `id, resource, data, created_by, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (domain.Record, error) {
	var (
		rec              domain.Record
		data             string
		created, updated int64
	)
	if err := row.Scan(&rec.ID, &rec.Resource, &data, &rec.CreatedBy, &created, &updated); err != nil {
		return domain.Record{}, mapNotFound(err)
	}
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return domain.Record{}, fmt.Errorf("decode record %s: %w", rec.ID, err)
	}
	rec.CreatedAt = fromMillis(created)
	rec.UpdatedAt = fromMillis(updated)
	return rec, nil
}

func (r *recordsRepo) ListRecords(ctx context.Context, resource string, filter store.Filter) ([]domain.Record, error) {
	var (
		where = []string{"resource = ?"}
		args  = []any{resource}
	)

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !fieldName.MatchString(k) {
			return nil, fmt.Errorf("%w: field %q", store.ErrInvalidFilter, k)
		}
		where = append(where, "CAST(json_extract(data, ?) AS TEXT) = ?")
		args = append(args, "$."+k, filter[k])
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE `+strings.Join(where, " AND ")+` ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *recordsRepo) GetRecord(ctx context.Context, resource, id string) (domain.Record, error) {
	return scanRecord(r.q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE resource = ? AND id = ?`, resource, id))
}

func (r *recordsRepo) CreateRecord(ctx context.Context, rec domain.Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Resource, string(data), rec.CreatedBy, toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
	)
	return mapConstraint(err)
}

func (r *recordsRepo) UpdateRecord(ctx context.Context, rec domain.Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE records SET data = ?, updated_at = ? WHERE resource = ? AND id = ?`,
		string(data), toMillis(rec.UpdatedAt), rec.Resource, rec.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *recordsRepo) DeleteRecord(ctx context.Context, resource, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM records WHERE resource = ? AND id = ?`, resource, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
