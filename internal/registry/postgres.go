package registry

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn (a postgres:// URL), applies pending migrations and returns the store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("registry.dsn is required for the postgres driver")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// RunMigrations applies all pending migrations embedded in the binary.
func RunMigrations(dsn string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migrations source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, d *Deployment) error {
	prepare(d)

	query := `
		INSERT INTO deployments (id, network, chain_id, contract, address, tx_hash, block_number,
			deployer, constructor_args, encoded_args, deployed_at, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.Network, d.ChainID, d.Contract, d.Address, d.TxHash, int64(d.BlockNumber),
		d.Deployer, d.ConstructorArgs, d.EncodedArgs, d.DeployedAt, d.Verified,
	)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, network, chain_id, contract, address, tx_hash, block_number,
		deployer, constructor_args, encoded_args, deployed_at, verified
	FROM deployments`

func (s *PostgresStore) Latest(ctx context.Context, network, contract string) (*Deployment, error) {
	query := selectColumns + `
		WHERE network = $1 AND lower(contract) = lower($2)
		ORDER BY deployed_at DESC, id DESC
		LIMIT 1`

	d, err := scanDeployment(s.pool.QueryRow(ctx, query, network, contract))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Latest: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context, network string) ([]Deployment, error) {
	query := selectColumns + `
		WHERE $1 = '' OR network = $1
		ORDER BY deployed_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, network)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var out []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkVerified(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `UPDATE deployments SET verified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("MarkVerified: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDeployment(row pgx.Row) (*Deployment, error) {
	var (
		d     Deployment
		block int64
	)
	err := row.Scan(
		&d.ID, &d.Network, &d.ChainID, &d.Contract, &d.Address, &d.TxHash, &block,
		&d.Deployer, &d.ConstructorArgs, &d.EncodedArgs, &d.DeployedAt, &d.Verified,
	)
	if err != nil {
		return nil, err
	}
	d.BlockNumber = uint64(block)
	d.DeployedAt = d.DeployedAt.UTC()
	return &d, nil
}

var _ Store = (*PostgresStore)(nil)
