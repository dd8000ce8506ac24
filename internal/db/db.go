// Package db owns the process's two shared connections: Postgres for
// every durable record (identities, file records, shares, groups) and
// Redis for sessions and rate limiting. It also runs migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// DB bundles the process's Postgres and Redis connections. Redis is
// optional: a nil Redis disables sessions and rate limiting rather than
// failing startup, trading availability for defense-in-depth.
type DB struct {
	Postgres *sql.DB
	Redis    *redis.Client
}

// Open connects to Postgres (required) and Redis (best-effort) using the
// given connection strings.
func Open(postgresURL, redisAddr, redisPassword string) (*DB, error) {
	if postgresURL == "" {
		return nil, fmt.Errorf("db: postgres url is required")
	}

	pg, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("db: connect postgres: %w", err)
	}
	pg.SetMaxOpenConns(25)
	pg.SetMaxIdleConns(5)
	pg.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pg.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db: ping postgres: %w", err)
	}
	log.Println("[db] postgres connection established")

	rdb := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     redisPassword,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[db] redis unavailable, sessions and rate limiting disabled: %v", err)
		rdb = nil
	} else {
		log.Println("[db] redis connection established")
	}

	return &DB{Postgres: pg, Redis: rdb}, nil
}

// Close closes both connections, collecting errors from each.
func (d *DB) Close() error {
	var errs []error
	if d.Postgres != nil {
		if err := d.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("db: close errors: %v", errs)
	}
	return nil
}

// RunMigrations applies every *.sql file under migrationsPath in
// lexicographic order, tracked in a schema_migrations table so repeated
// runs are idempotent.
func (d *DB) RunMigrations(migrationsPath string) error {
	log.Println("[db] running migrations")

	_, err := d.Postgres.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("db: create migrations table: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(migrationsPath, "*.sql"))
	if err != nil {
		return fmt.Errorf("db: glob migration files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		version := filepath.Base(file)

		var applied bool
		err := d.Postgres.QueryRow(
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("db: check migration %s: %w", version, err)
		}
		if applied {
			continue
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("db: read migration %s: %w", version, err)
		}

		tx, err := d.Postgres.Begin()
		if err != nil {
			return fmt.Errorf("db: begin migration %s: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("db: apply migration %s: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("db: record migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("db: commit migration %s: %w", version, err)
		}
		log.Printf("[db] applied migration %s", version)
	}

	log.Println("[db] migrations complete")
	return nil
}

// Health pings Postgres (required) and Redis (best-effort, logged only).
func (d *DB) Health(ctx context.Context) error {
	if err := d.Postgres.PingContext(ctx); err != nil {
		return fmt.Errorf("db: postgres health check failed: %w", err)
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			log.Printf("[db] redis health check failed: %v", err)
		}
	}
	return nil
}
