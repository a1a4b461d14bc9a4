// internal/store/store.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/brandsight/brandsight-workflows/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Client wraps the shared sqlx handle used by all repositories.
type Client struct {
	DB *sqlx.DB
}

// NewClient connects to Postgres using our config structure.
func NewClient(ctx context.Context, cfg config.DatabaseConfig) (*Client, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{DB: db}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.DB.Close()
}

// RepositoryManager holds all repositories on one connection.
type RepositoryManager struct {
	db          *Client
	RunRepo     RunRepository
	MetricsRepo MetricsRepository
}

// NewRepositoryManager creates a repository manager with all repositories.
func NewRepositoryManager(db *Client) *RepositoryManager {
	return &RepositoryManager{
		db:          db,
		RunRepo:     NewRunRepo(db),
		MetricsRepo: NewMetricsRepo(db),
	}
}

// BeginTx starts a database transaction.
func (rm *RepositoryManager) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return rm.db.DB.BeginTxx(ctx, nil)
}
