package catalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/spotthespy/game-engine/internal/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres serves administrator-curated entries from the locations/roles tables.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects through the pgx stdlib driver and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an existing handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies the embedded schema and seed migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// Close closes the underlying pool.
func (p *Postgres) Close() error { return p.db.Close() }

const listEntriesQuery = `
SELECT l.name, l.category, COALESCE(r.name, '')
FROM locations l
LEFT JOIN roles r ON r.location_id = l.id
WHERE l.enabled
ORDER BY l.name, r.position`

// ListEntries returns enabled locations with their roles in curated order.
func (p *Postgres) ListEntries(ctx context.Context) ([]types.CatalogEntry, error) {
	rows, err := p.db.QueryContext(ctx, listEntriesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var (
		entries []types.CatalogEntry
		index   = make(map[string]int)
	)
	for rows.Next() {
		var location, category, role string
		if err := rows.Scan(&location, &category, &role); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		i, ok := index[location]
		if !ok {
			i = len(entries)
			index[location] = i
			entries = append(entries, types.CatalogEntry{Location: location, Category: category})
		}
		if role != "" {
			entries[i].Roles = append(entries[i].Roles, role)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return entries, nil
}
