package engine

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/storage"
)

//go:embed schema.sql
var catalogSQL string

// catalog is the per-array SQLite registry of fragments and metadata.
type catalog struct {
	db *sql.DB
}

func openCatalog(path string) (*catalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect catalog: %w", err)
	}

	// one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("catalog: execute %q: %w", p, err)
		}
	}
	if _, err := db.Exec(catalogSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}
	return &catalog{db: db}, nil
}

func (c *catalog) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// fragmentRecord is one catalog row.
type fragmentRecord struct {
	Name           string
	TimestampStart uint64
	TimestampEnd   uint64
	Dense          bool
	Blob           storage.BlobRef
	CellNum        uint64
	NonEmptyDomain []byte
}

func (c *catalog) insertFragment(ctx context.Context, r fragmentRecord) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO fragments (name, timestamp_start, timestamp_end, dense, first_page, length, cell_num, non_empty_domain)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, int64(r.TimestampStart), int64(r.TimestampEnd), r.Dense,
		int64(r.Blob.FirstPageID), int64(r.Blob.Length), int64(r.CellNum), r.NonEmptyDomain,
	)
	if err != nil {
		return fmt.Errorf("catalog: insert fragment %s: %w", r.Name, err)
	}
	return nil
}

// fragments lists fragments visible at timestamp ts, oldest first.
func (c *catalog) fragments(ctx context.Context, ts uint64) ([]fragmentRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT name, timestamp_start, timestamp_end, dense, first_page, length, cell_num, non_empty_domain
		FROM fragments
		WHERE timestamp_end <= ?
		ORDER BY timestamp_end, rowid`, int64(ts))
	if err != nil {
		return nil, fmt.Errorf("catalog: list fragments: %w", err)
	}
	defer rows.Close()

	var out []fragmentRecord
	for rows.Next() {
		var (
			r                               fragmentRecord
			tStart, tEnd, first, n, cellNum int64
		)
		if err := rows.Scan(&r.Name, &tStart, &tEnd, &r.Dense, &first, &n, &cellNum, &r.NonEmptyDomain); err != nil {
			return nil, fmt.Errorf("catalog: scan fragment: %w", err)
		}
		r.TimestampStart, r.TimestampEnd = uint64(tStart), uint64(tEnd)
		r.Blob = storage.BlobRef{FirstPageID: uint32(first), Length: uint64(n)}
		r.CellNum = uint64(cellNum)
		out = append(out, r)
	}
	return out, rows.Err()
}

// lastTimestamp is the newest fragment end timestamp, 0 when empty.
func (c *catalog) lastTimestamp(ctx context.Context) (uint64, error) {
	var ts sql.NullInt64
	if err := c.db.QueryRowContext(ctx, `SELECT MAX(timestamp_end) FROM fragments`).Scan(&ts); err != nil {
		return 0, fmt.Errorf("catalog: last timestamp: %w", err)
	}
	return uint64(ts.Int64), nil
}

// Metadata is one key/value pair attached to an array. Value holds Num
// elements of Type.
type Metadata struct {
	Key   string
	Type  datatype.Datatype
	Num   uint32
	Value []byte
}

func (c *catalog) putMetadata(ctx context.Context, m Metadata) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value_type, value_num, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_type = excluded.value_type,
			value_num = excluded.value_num, value = excluded.value`,
		m.Key, int64(m.Type), int64(m.Num), nonNil(m.Value),
	)
	if err != nil {
		return fmt.Errorf("catalog: put metadata %q: %w", m.Key, err)
	}
	return nil
}

func (c *catalog) deleteMetadata(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key); err != nil {
		return fmt.Errorf("catalog: delete metadata %q: %w", key, err)
	}
	return nil
}

func (c *catalog) getMetadata(ctx context.Context, key string) (Metadata, error) {
	m := Metadata{Key: key}
	var typ, num int64
	err := c.db.QueryRowContext(ctx,
		`SELECT value_type, value_num, value FROM metadata WHERE key = ?`, key,
	).Scan(&typ, &num, &m.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, fmt.Errorf("%w: %q", ErrMetadataNotFound, key)
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("catalog: get metadata %q: %w", key, err)
	}
	m.Type, m.Num = datatype.Datatype(typ), uint32(num)
	return m, nil
}

// listMetadata returns every entry ordered by key.
func (c *catalog) listMetadata(ctx context.Context) ([]Metadata, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT key, value_type, value_num, value FROM metadata ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list metadata: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var (
			m        Metadata
			typ, num int64
		)
		if err := rows.Scan(&m.Key, &typ, &num, &m.Value); err != nil {
			return nil, fmt.Errorf("catalog: scan metadata: %w", err)
		}
		m.Type, m.Num = datatype.Datatype(typ), uint32(num)
		out = append(out, m)
	}
	return out, rows.Err()
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
