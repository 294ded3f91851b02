package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tania-lang/trublog-writer/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	company TEXT,
	sitemaps_visited INTEGER NOT NULL,
	stop_reason TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	include_subdomains INTEGER NOT NULL DEFAULT 0,
	max_urls INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS snapshots_domain_created ON snapshots (domain, created_at);
CREATE TABLE IF NOT EXISTS pages (
	snapshot_id TEXT NOT NULL REFERENCES snapshots (id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	url TEXT NOT NULL,
	slug TEXT NOT NULL,
	domain TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, position)
);
`

// addedColumns are applied to databases created before the columns existed.
var addedColumns = []string{
	`ALTER TABLE snapshots ADD COLUMN include_subdomains INTEGER NOT NULL DEFAULT 0`,
	`ALTER TABLE snapshots ADD COLUMN max_urls INTEGER NOT NULL DEFAULT 0`,
}

// New opens (or creates) the SQLite database at dsn.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY on file databases.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	for _, stmt := range addedColumns {
		if _, err := db.Exec(stmt); err != nil && !strings.Contains(err.Error(), "duplicate column") {
			_ = db.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, snap *storage.Snapshot) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO snapshots (
		id, domain, company, sitemaps_visited, stop_reason, duration_ms, created_at,
		include_subdomains, max_urls
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID,
		snap.Domain,
		snap.Company,
		snap.SitemapsVisited,
		snap.StopReason,
		snap.Duration.Milliseconds(),
		snap.CreatedAt.UTC(),
		snap.IncludeSubdomains,
		snap.MaxURLs,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", snap.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO pages (snapshot_id, position, url, slug, domain) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare page insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range snap.Pages {
		if _, err := stmt.ExecContext(ctx, snap.ID, i, p.URL, p.Slug, p.Domain); err != nil {
			return fmt.Errorf("insert page %s: %w", p.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot %s: %w", snap.ID, err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Snapshot, error) {
	query := `SELECT id, domain, company, sitemaps_visited, stop_reason, duration_ms, created_at, include_subdomains, max_urls FROM snapshots WHERE 1=1`
	args := []any{}

	if filter.Domain != "" {
		query += ` AND domain = ?`
		args = append(args, filter.Domain)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}

	var snaps []*storage.Snapshot
	for rows.Next() {
		var s storage.Snapshot
		var company sql.NullString
		var durationMs int64

		if err := rows.Scan(&s.ID, &s.Domain, &company, &s.SitemapsVisited, &s.StopReason, &durationMs, &s.CreatedAt, &s.IncludeSubdomains, &s.MaxURLs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.Company = company.String
		s.Duration = time.Duration(durationMs) * time.Millisecond
		snaps = append(snaps, &s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	rows.Close()

	// Pages are loaded after the snapshot cursor is closed: the pool holds a
	// single connection.
	for _, s := range snaps {
		pages, err := b.pages(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		s.Pages = pages
	}

	return snaps, nil
}

func (b *sqliteBackend) pages(ctx context.Context, snapshotID string) ([]storage.PageRecord, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT url, slug, domain FROM pages WHERE snapshot_id = ? ORDER BY position`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("query pages for %s: %w", snapshotID, err)
	}
	defer rows.Close()

	pages := []storage.PageRecord{}
	for rows.Next() {
		var p storage.PageRecord
		if err := rows.Scan(&p.URL, &p.Slug, &p.Domain); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
