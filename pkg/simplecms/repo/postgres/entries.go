package postgres

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

const entryColumns = `id, site_id, content_type_id, permalink, position, data, created_at, updated_at`

func scanEntry(ct *simplecms.ContentType, row pgx.Row) (*simplecms.Entry, error) {
	var (
		e         simplecms.Entry
		permalink *string
		data      map[string]interface{}
	)
	err := row.Scan(&e.ID, &e.SiteID, &e.ContentTypeID, &permalink, &e.Position, &data, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if permalink != nil {
		e.Permalink = *permalink
	}
	e.Values = simplecms.DecodeValues(ct, data)
	return &e, nil
}

func nullablePermalink(p string) *string {
	if p == "" {
		return nil
	}
	return &p
}

// Entry operations

func (r *Repository) GetEntry(ctx context.Context, ct *simplecms.ContentType, id uuid.UUID) (*simplecms.Entry, error) {
	return getEntry(ctx, r.db, ct, id)
}

func getEntry(ctx context.Context, db DBTX, ct *simplecms.ContentType, id uuid.UUID) (*simplecms.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE content_type_id = $1 AND id = $2`
	e, err := scanEntry(ct, db.QueryRow(ctx, query, ct.ID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplecms.ErrEntryNotFound
		}
		return nil, handlePostgresError("get entry", err)
	}
	return e, nil
}

func (r *Repository) GetEntryByPermalink(ctx context.Context, ct *simplecms.ContentType, permalink string) (*simplecms.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE content_type_id = $1 AND permalink = $2`
	e, err := scanEntry(ct, r.db.QueryRow(ctx, query, ct.ID, permalink))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplecms.ErrEntryNotFound
		}
		return nil, handlePostgresError("get entry by permalink", err)
	}
	return e, nil
}

// QueryEntries reads the page and the total in one repeatable-read snapshot.
func (r *Repository) QueryEntries(ctx context.Context, ct *simplecms.ContentType, q simplecms.EntryQuery) ([]*simplecms.Entry, int, error) {
	b := newWhereBuilder(ct)
	if err := b.addFilter(q.Filter); err != nil {
		return nil, 0, err
	}
	order, err := orderClause(ct, q.OrderBy)
	if err != nil {
		return nil, 0, err
	}

	var (
		entries = []*simplecms.Entry{}
		total   int
	)
	err = r.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM entries WHERE `+b.String(), b.args...).Scan(&total); err != nil {
			return handlePostgresError("count entries", err)
		}
		if q.Offset() >= int64(total) {
			return nil
		}

		args := append([]interface{}{}, b.args...)
		query := fmt.Sprintf(`SELECT %s FROM entries WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
			entryColumns, b.String(), order, len(args)+1, len(args)+2)
		args = append(args, q.PerPage, q.Offset())

		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return handlePostgresError("query entries", err)
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEntry(ct, rows)
			if err != nil {
				return handlePostgresError("scan entry", err)
			}
			entries = append(entries, e)
		}
		if err := rows.Err(); err != nil {
			return handlePostgresError("query entries", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *Repository) CountEntries(ctx context.Context, ct *simplecms.ContentType, filter simplecms.Filter) (int, error) {
	b := newWhereBuilder(ct)
	if err := b.addFilter(filter); err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM entries WHERE `+b.String(), b.args...).Scan(&n); err != nil {
		return 0, handlePostgresError("count entries", err)
	}
	return n, nil
}

// WithinContentType runs fn in a transaction holding the content type's
// advisory lock until commit or rollback.
func (r *Repository) WithinContentType(ctx context.Context, ct *simplecms.ContentType, fn func(ctx context.Context, tx simplecms.EntryTx) error) error {
	return r.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryKey(ct.ID)); err != nil {
			return handlePostgresError("lock content type", err)
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM content_types WHERE id = $1)`, ct.ID).Scan(&exists); err != nil {
			return handlePostgresError("lock content type", err)
		}
		if !exists {
			return simplecms.ErrContentTypeNotFound
		}
		return fn(ctx, &entryTx{db: tx, ct: ct})
	})
}

// advisoryKey folds a content type id into the bigint key space of
// pg_advisory_xact_lock.
func advisoryKey(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]) ^ binary.BigEndian.Uint64(id[8:]))
}

// entryTx is the write view handed out by WithinContentType.
type entryTx struct {
	db DBTX
	ct *simplecms.ContentType
}

func (tx *entryTx) GetEntry(ctx context.Context, id uuid.UUID) (*simplecms.Entry, error) {
	return getEntry(ctx, tx.db, tx.ct, id)
}

func (tx *entryTx) PermalinkTaken(ctx context.Context, permalink string, exclude uuid.UUID) (bool, error) {
	var taken bool
	err := tx.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entries WHERE content_type_id = $1 AND permalink = $2 AND id <> $3)`,
		tx.ct.ID, permalink, exclude).Scan(&taken)
	if err != nil {
		return false, handlePostgresError("check permalink", err)
	}
	return taken, nil
}

func (tx *entryTx) ValueTaken(ctx context.Context, field string, v simplecms.Value, exclude uuid.UUID) (bool, error) {
	b := newWhereBuilder(tx.ct)
	if err := b.addPredicate(simplecms.Predicate{Field: field, Op: simplecms.OpEq, Value: v}); err != nil {
		return false, err
	}
	b.and("id <> " + b.arg(exclude))
	var taken bool
	if err := tx.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM entries WHERE `+b.String()+`)`, b.args...).Scan(&taken); err != nil {
		return false, handlePostgresError("check unique value", err)
	}
	return taken, nil
}

func (tx *entryTx) NextPosition(ctx context.Context) (int, error) {
	var next int
	err := tx.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM entries WHERE content_type_id = $1`, tx.ct.ID).Scan(&next)
	if err != nil {
		return 0, handlePostgresError("next position", err)
	}
	return next, nil
}

func (tx *entryTx) InsertEntry(ctx context.Context, e *simplecms.Entry) error {
	query := `INSERT INTO entries (` + entryColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := tx.db.Exec(ctx, query,
		e.ID, e.SiteID, e.ContentTypeID, nullablePermalink(e.Permalink), e.Position,
		simplecms.EncodeValues(e.Values), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return handlePostgresError("insert entry", err)
	}
	return nil
}

func (tx *entryTx) UpdateEntry(ctx context.Context, e *simplecms.Entry) error {
	query := `
		UPDATE entries SET permalink = $3, position = $4, data = $5, updated_at = $6
		WHERE content_type_id = $1 AND id = $2`
	tag, err := tx.db.Exec(ctx, query,
		tx.ct.ID, e.ID, nullablePermalink(e.Permalink), e.Position, simplecms.EncodeValues(e.Values), e.UpdatedAt)
	if err != nil {
		return handlePostgresError("update entry", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrEntryNotFound
	}
	return nil
}

func (tx *entryTx) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := tx.db.Exec(ctx, `DELETE FROM entries WHERE content_type_id = $1 AND id = $2`, tx.ct.ID, id)
	if err != nil {
		return handlePostgresError("delete entry", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrEntryNotFound
	}
	return nil
}

func (tx *entryTx) DeleteEntries(ctx context.Context, filter simplecms.Filter) (int, error) {
	b := newWhereBuilder(tx.ct)
	if err := b.addFilter(filter); err != nil {
		return 0, err
	}
	tag, err := tx.db.Exec(ctx, `DELETE FROM entries WHERE `+b.String(), b.args...)
	if err != nil {
		return 0, handlePostgresError("delete entries", err)
	}
	return int(tag.RowsAffected()), nil
}
