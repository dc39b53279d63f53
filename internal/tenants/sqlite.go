package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// schema is executed on every open; IF NOT EXISTS keeps it idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS sites (
    name       TEXT PRIMARY KEY,
    added_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Site is one row of the sites table.
type Site struct {
	Name    string
	AddedAt time.Time
}

// SQLiteResolver keeps the registered sites in a local SQLite database in WAL mode.
type SQLiteResolver struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dbPath and ensures the schema.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteResolver, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("tenants: open database: %w", err)
	}
	// SQLite has a single writer; one connection avoids SQLITE_BUSY between
	// pooled connections.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("tenants: init database: %w", err)
		}
	}
	return &SQLiteResolver{db: db}, nil
}

// Add registers a site.
func (r *SQLiteResolver) Add(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, "INSERT INTO sites (name) VALUES (?)", name)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("tenants: add %q: %w", name, ErrSiteExists)
		}
		return fmt.Errorf("tenants: add %q: %w", name, err)
	}
	return nil
}

// Remove unregisters a site.
func (r *SQLiteResolver) Remove(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM sites WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("tenants: remove %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("tenants: remove %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("tenants: remove %q: %w", name, ErrUnknownSite)
	}
	return nil
}

// Sites returns every registered site ordered by name.
func (r *SQLiteResolver) Sites(ctx context.Context) ([]Site, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name, added_at FROM sites ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("tenants: list sites: %w", err)
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		var s Site
		var ts string
		if err := rows.Scan(&s.Name, &ts); err != nil {
			return nil, fmt.Errorf("tenants: scan site: %w", err)
		}
		if s.AddedAt, err = parseTimestamp(ts); err != nil {
			return nil, fmt.Errorf("tenants: site %q: %w", s.Name, err)
		}
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tenants: list sites: %w", err)
	}
	return sites, nil
}

// List returns the registered site names ordered by name.
func (r *SQLiteResolver) List(ctx context.Context) ([]string, error) {
	sites, err := r.Sites(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(sites))
	for i, s := range sites {
		names[i] = s.Name
	}
	return names, nil
}

// parseTimestamp accepts both the RFC 3339 form modernc.org/sqlite returns
// for CURRENT_TIMESTAMP and the space-separated canonical SQLite form.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// Close closes the database.
func (r *SQLiteResolver) Close() error {
	return r.db.Close()
}
