// Package mysql stores credentials in a MySQL table.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/vovakirdan/linechat/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	username      VARCHAR(64)  NOT NULL PRIMARY KEY,
	password_hash VARCHAR(255) NOT NULL,
	created_at    TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP
) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin
`

// ER_DUP_ENTRY
const errDuplicateEntry = 1062

// Store implements store.CredentialStore on MySQL.
type Store struct {
	db *sql.DB
}

// New connects with a go-sql-driver DSN such as "user:pass@tcp(host:3306)/linechat"
// and makes sure the credentials table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create credentials table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns every stored credential.
func (s *Store) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, password_hash FROM credentials`)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var username, hash string
		if err := rows.Scan(&username, &hash); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out[username] = hash
	}
	return out, rows.Err()
}

// Lookup retrieves the hash for a username.
func (s *Store) Lookup(ctx context.Context, username string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM credentials WHERE username = ?`, username,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query credential: %w", err)
	}
	return hash, nil
}

// Contains reports whether a credential exists.
func (s *Store) Contains(ctx context.Context, username string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credentials WHERE username = ?`, username,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count credential: %w", err)
	}
	return n > 0, nil
}

// Save inserts a credential; a duplicate key maps to store.ErrUserExists.
func (s *Store) Save(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (username, password_hash) VALUES (?, ?)`,
		username, passwordHash,
	)
	if err != nil {
		return mapInsertError(err)
	}
	return nil
}

func mapInsertError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errDuplicateEntry {
		return store.ErrUserExists
	}
	return fmt.Errorf("insert credential: %w", err)
}
