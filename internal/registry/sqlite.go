package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS resources (
	origin         TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL,
	price          TEXT NOT NULL,
	network        TEXT NOT NULL,
	description    TEXT NOT NULL,
	enabled        INTEGER NOT NULL,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);`

// SQLiteStore is a per-key document store for protected resources. Unlike the
// file store it rewrites single rows, but it honors the same interface
// semantics and the same last-completed-write-wins stance.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the registry database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init registry schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func scanResource(row interface{ Scan(...any) error }) (Resource, error) {
	var (
		res                  Resource
		enabled              int
		createdAt, updatedAt string
	)
	if err := row.Scan(&res.WalletAddress, &res.Price, &res.Network, &res.Description, &enabled, &createdAt, &updatedAt); err != nil {
		return Resource{}, err
	}
	res.Enabled = enabled != 0
	var err error
	if res.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Resource{}, fmt.Errorf("parse created_at: %w", err)
	}
	if res.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Resource{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return res, nil
}

// Get implements Registry.
func (s *SQLiteStore) Get(ctx context.Context, origin string) (Resource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT wallet_address, price, network, description, enabled, created_at, updated_at
		 FROM resources WHERE origin = ?`, origin)
	res, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Resource{}, ErrNotFound
	}
	if err != nil {
		return Resource{}, fmt.Errorf("query resource: %w", err)
	}
	return res, nil
}

// List implements Registry.
func (s *SQLiteStore) List(ctx context.Context) (map[string]Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT origin, wallet_address, price, network, description, enabled, created_at, updated_at
		 FROM resources`)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	resources := map[string]Resource{}
	for rows.Next() {
		var (
			origin               string
			res                  Resource
			enabled              int
			createdAt, updatedAt string
		)
		if err := rows.Scan(&origin, &res.WalletAddress, &res.Price, &res.Network, &res.Description, &enabled, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		res.Enabled = enabled != 0
		if res.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if res.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		resources[origin] = res
	}
	return resources, rows.Err()
}

// Create implements Registry.
func (s *SQLiteStore) Create(ctx context.Context, origin string, res Resource) (Resource, error) {
	canonical, err := validateCreate(origin, res)
	if err != nil {
		return Resource{}, err
	}
	if _, err := s.Get(ctx, canonical); err == nil {
		return Resource{}, ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return Resource{}, err
	}
	stampNew(&res)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resources (origin, wallet_address, price, network, description, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		canonical, res.WalletAddress, res.Price, res.Network, res.Description, boolInt(res.Enabled),
		res.CreatedAt.Format(time.RFC3339Nano), res.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Resource{}, fmt.Errorf("insert resource: %w", err)
	}
	return res, nil
}

// Update implements Registry.
func (s *SQLiteStore) Update(ctx context.Context, origin string, upd Update) (Resource, error) {
	res, err := s.Get(ctx, origin)
	if err != nil {
		return Resource{}, err
	}
	upd.apply(&res)
	_, err = s.db.ExecContext(ctx,
		`UPDATE resources SET wallet_address = ?, price = ?, network = ?, description = ?, enabled = ?, updated_at = ?
		 WHERE origin = ?`,
		res.WalletAddress, res.Price, res.Network, res.Description, boolInt(res.Enabled),
		res.UpdatedAt.Format(time.RFC3339Nano), origin)
	if err != nil {
		return Resource{}, fmt.Errorf("update resource: %w", err)
	}
	return res, nil
}

// Delete implements Registry.
func (s *SQLiteStore) Delete(ctx context.Context, origin string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE origin = ?`, origin)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
