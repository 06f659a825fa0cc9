package sqlitebackend

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/objectbind/objectbind"
)

func (b *Backend) queryStateOf(h objectbind.QueryHandle) (*queryState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	qs, ok := b.queries[h]
	if !ok {
		return nil, fmt.Errorf("sqlitebackend: unknown query handle")
	}
	snapshot := *qs
	return &snapshot, nil
}

func (b *Backend) rows(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, limit, offset int64, useLimit bool) ([]objectbind.Row, error) {
	qs, err := b.queryStateOf(h)
	if err != nil {
		return nil, err
	}
	sqlStr, args, err := b.querySQL(qs, limit, offset, useLimit)
	if err != nil {
		return nil, classifyErr(err)
	}
	sqlxTx, err := txOf(tx)
	if err != nil {
		return nil, err
	}
	rows, err := sqlxTx.QueryxContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []objectbind.Row
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, classifyErr(err)
		}
		out = append(out, objectbind.Row(m))
	}
	if err := rows.Err(); err != nil {
		return nil, classifyErr(err)
	}
	return out, nil
}

func (b *Backend) FindFirst(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle) (objectbind.Row, bool, error) {
	rows, err := b.rows(ctx, tx, h, 1, 0, true)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// FindUnique fetches up to two matching rows to decide uniqueness without a
// separate COUNT round trip.
func (b *Backend) FindUnique(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle) (objectbind.Row, bool, int, error) {
	rows, err := b.rows(ctx, tx, h, 2, 0, true)
	if err != nil {
		return nil, false, 0, err
	}
	switch len(rows) {
	case 0:
		return nil, false, 0, nil
	case 1:
		return rows[0], true, 1, nil
	default:
		return rows[0], true, 2, nil
	}
}

func (b *Backend) FindList(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle) ([]objectbind.Row, error) {
	return b.rows(ctx, tx, h, 0, 0, false)
}

func (b *Backend) FindListPage(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, offset, limit uint64) ([]objectbind.Row, error) {
	return b.rows(ctx, tx, h, int64(limit), int64(offset), true)
}

func (b *Backend) FindIDs(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle) ([]int64, error) {
	qs, err := b.queryStateOf(h)
	if err != nil {
		return nil, err
	}
	meta, ok := b.metaFor(qs.entityName)
	if !ok {
		return nil, fmt.Errorf("sqlitebackend: entity %q not registered", qs.entityName)
	}
	idCol, _, err := b.column(qs.entityName, meta.IDProperty().ID)
	if err != nil {
		return nil, err
	}

	sb := sq.Select(idCol.Name).From(qs.entityName)
	whereSQL, whereArgs := qs.where.Build()
	if whereSQL != "" {
		sb = sb.Where(whereSQL, whereArgs...)
	}
	for _, o := range qs.orders {
		sb = sb.OrderBy(o.Build())
	}
	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, classifyErr(err)
	}
	sqlxTx, err := txOf(tx)
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := sqlxTx.SelectContext(ctx, &ids, sqlStr, args...); err != nil {
		return nil, classifyErr(err)
	}
	return ids, nil
}

func (b *Backend) metaFor(entityName string) (objectbind.EntityMeta, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.metas[entityName]
	return m, ok
}

func (b *Backend) LoadByID(ctx context.Context, tx objectbind.Tx, entityName string, id int64) (objectbind.Row, bool, error) {
	meta, ok := b.metaFor(entityName)
	if !ok {
		return nil, false, fmt.Errorf("sqlitebackend: entity %q not registered", entityName)
	}
	idCol, _, err := b.column(entityName, meta.IDProperty().ID)
	if err != nil {
		return nil, false, err
	}
	sqlStr, args, err := sq.Select("*").From(entityName).Where(sq.Eq{idCol.Name: id}).ToSql()
	if err != nil {
		return nil, false, classifyErr(err)
	}
	sqlxTx, err := txOf(tx)
	if err != nil {
		return nil, false, err
	}
	rows, err := sqlxTx.QueryxContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, false, classifyErr(err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, false, classifyErr(rows.Err())
	}
	m := make(map[string]any)
	if err := rows.MapScan(m); err != nil {
		return nil, false, classifyErr(err)
	}
	return objectbind.Row(m), true, nil
}

func (b *Backend) Count(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle) (uint64, error) {
	qs, err := b.queryStateOf(h)
	if err != nil {
		return 0, err
	}
	sb := sq.Select("COUNT(*)").From(qs.entityName)
	whereSQL, whereArgs := qs.where.Build()
	if whereSQL != "" {
		sb = sb.Where(whereSQL, whereArgs...)
	}
	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return 0, classifyErr(err)
	}
	sqlxTx, err := txOf(tx)
	if err != nil {
		return 0, err
	}
	var n uint64
	if err := sqlxTx.GetContext(ctx, &n, sqlStr, args...); err != nil {
		return 0, classifyErr(err)
	}
	return n, nil
}

func (b *Backend) Remove(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle) (uint64, error) {
	qs, err := b.queryStateOf(h)
	if err != nil {
		return 0, err
	}
	db := sq.Delete(qs.entityName)
	whereSQL, whereArgs := qs.where.Build()
	if whereSQL != "" {
		db = db.Where(whereSQL, whereArgs...)
	}
	sqlStr, args, err := db.ToSql()
	if err != nil {
		return 0, classifyErr(err)
	}
	sqlxTx, err := txOf(tx)
	if err != nil {
		return 0, err
	}
	res, err := sqlxTx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, classifyErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classifyErr(err)
	}
	return uint64(n), nil
}

// --- property-scoped retrieval ---

func (b *Backend) propertySQL(qs *queryState, col string, opts objectbind.PropertyFetchOptions) (string, []any, error) {
	expr := col
	if opts.Distinct && opts.DistinctCaseless {
		expr = "DISTINCT " + col + " COLLATE NOCASE"
	} else if opts.Distinct {
		expr = "DISTINCT " + col
	}
	sb := sq.Select(expr).From(qs.entityName)
	whereSQL, whereArgs := qs.where.Build()
	if whereSQL != "" {
		sb = sb.Where(whereSQL, whereArgs...)
	}
	return sb.ToSql()
}

func toScalar(raw any, tag objectbind.TypeTag) objectbind.Scalar {
	if raw == nil {
		return objectbind.Scalar{Null: true}
	}
	switch tag {
	case objectbind.String:
		return objectbind.Scalar{Str: fmt.Sprintf("%v", raw)}
	case objectbind.ByteArray:
		if bs, ok := raw.([]byte); ok {
			return objectbind.Scalar{Bytes: bs}
		}
		return objectbind.Scalar{Bytes: []byte(fmt.Sprintf("%v", raw))}
	case objectbind.Bool:
		return objectbind.Scalar{Bool: toInt64(raw) != 0}
	case objectbind.Float, objectbind.Double:
		return objectbind.Scalar{Float: toFloat64(raw)}
	default:
		return objectbind.Scalar{Int: toInt64(raw)}
	}
}

func toInt64(raw any) int64 {
	switch v := raw.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case []byte:
		var n int64
		fmt.Sscanf(string(v), "%d", &n)
		return n
	default:
		return 0
	}
}

func toFloat64(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case []byte:
		var f float64
		fmt.Sscanf(string(v), "%g", &f)
		return f
	default:
		return 0
	}
}

func (b *Backend) FindScalars(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32, tag objectbind.TypeTag, opts objectbind.PropertyFetchOptions) ([]objectbind.Scalar, error) {
	qs, err := b.queryStateOf(h)
	if err != nil {
		return nil, err
	}
	col, _, err := b.column(qs.entityName, propertyID)
	if err != nil {
		return nil, err
	}
	sqlStr, args, err := b.propertySQL(qs, col.Name, opts)
	if err != nil {
		return nil, classifyErr(err)
	}
	sqlxTx, err := txOf(tx)
	if err != nil {
		return nil, err
	}
	rows, err := sqlxTx.QueryxContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []objectbind.Scalar
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, classifyErr(err)
		}
		if raw == nil && !opts.HasNullValue {
			continue
		}
		if raw == nil {
			out = append(out, nullSubstitute(tag, opts))
			continue
		}
		out = append(out, toScalar(raw, tag))
	}
	if err := rows.Err(); err != nil {
		return nil, classifyErr(err)
	}
	return out, nil
}

func nullSubstitute(tag objectbind.TypeTag, opts objectbind.PropertyFetchOptions) objectbind.Scalar {
	switch tag {
	case objectbind.String:
		return objectbind.Scalar{Str: opts.NullValueStr}
	case objectbind.Float:
		return objectbind.Scalar{Float: float64(opts.NullValueFloat)}
	case objectbind.Double:
		return objectbind.Scalar{Float: opts.NullValueDouble}
	case objectbind.ByteArray:
		return objectbind.Scalar{Null: true}
	default:
		return objectbind.Scalar{Int: opts.NullValueLong}
	}
}

func (b *Backend) FindScalar(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32, tag objectbind.TypeTag, opts objectbind.PropertyFetchOptions) (objectbind.Scalar, bool, int, error) {
	scalars, err := b.FindScalars(ctx, tx, h, propertyID, tag, opts)
	if err != nil {
		return objectbind.Scalar{}, false, 0, err
	}
	if len(scalars) == 0 {
		return objectbind.Scalar{}, false, 0, nil
	}
	if opts.Unique && len(scalars) > 1 {
		return scalars[0], true, len(scalars), &objectbind.NotUniqueError{Count: len(scalars)}
	}
	return scalars[0], true, len(scalars), nil
}

// --- aggregates ---

func (b *Backend) aggregate(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32, fn string) (any, error) {
	qs, err := b.queryStateOf(h)
	if err != nil {
		return nil, err
	}
	col, _, err := b.column(qs.entityName, propertyID)
	if err != nil {
		return nil, err
	}
	sb := sq.Select(fmt.Sprintf("%s(%s)", fn, col.Name)).From(qs.entityName)
	whereSQL, whereArgs := qs.where.Build()
	if whereSQL != "" {
		sb = sb.Where(whereSQL, whereArgs...)
	}
	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, classifyErr(err)
	}
	sqlxTx, err := txOf(tx)
	if err != nil {
		return nil, err
	}
	var raw sql.NullFloat64
	if err := sqlxTx.GetContext(ctx, &raw, sqlStr, args...); err != nil {
		return nil, classifyErr(err)
	}
	if !raw.Valid {
		return float64(0), nil
	}
	return raw.Float64, nil
}

func (b *Backend) Sum(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (int64, error) {
	v, err := b.aggregate(ctx, tx, h, propertyID, "SUM")
	if err != nil {
		return 0, err
	}
	return int64(v.(float64)), nil
}

func (b *Backend) SumDouble(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (float64, error) {
	v, err := b.aggregate(ctx, tx, h, propertyID, "SUM")
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (b *Backend) Max(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (int64, error) {
	v, err := b.aggregate(ctx, tx, h, propertyID, "MAX")
	if err != nil {
		return 0, err
	}
	return int64(v.(float64)), nil
}

func (b *Backend) MaxDouble(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (float64, error) {
	v, err := b.aggregate(ctx, tx, h, propertyID, "MAX")
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (b *Backend) Min(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (int64, error) {
	v, err := b.aggregate(ctx, tx, h, propertyID, "MIN")
	if err != nil {
		return 0, err
	}
	return int64(v.(float64)), nil
}

func (b *Backend) MinDouble(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (float64, error) {
	v, err := b.aggregate(ctx, tx, h, propertyID, "MIN")
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (b *Backend) Avg(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (float64, error) {
	v, err := b.aggregate(ctx, tx, h, propertyID, "AVG")
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}
