package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lta/internal/config"
	"lta/internal/pipeline"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// DataSourceConfig holds connection details. URL, when set, wins over the
// individual fields.
type DataSourceConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require"
}

// DSN returns the connection string for lib/pq.
func (c DataSourceConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.DBName, sslMode)
}

// RunRecord is a stored run.
type RunRecord struct {
	RunID        string    `json:"run_id"`
	CreatedAt    time.Time `json:"created_at"`
	Threshold    float64   `json:"threshold"`
	BootReps     int       `json:"boot_reps"`
	Seed         int64     `json:"seed"`
	Similarities int       `json:"similarities"`
}

// ResultStore persists pipeline results.
type ResultStore interface {
	Migrate(ctx context.Context) error
	SaveRun(ctx context.Context, runID string, cfg config.Config, res *pipeline.Result) error
	ListRuns(ctx context.Context) ([]RunRecord, error)
	Close() error
}

// Postgres implements ResultStore on PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// Connect opens and pings the database.
func Connect(ctx context.Context, cfg DataSourceConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS lta_runs (
		run_id     TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		threshold  DOUBLE PRECISION NOT NULL,
		boot_reps  INTEGER NOT NULL,
		seed       BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lta_class_members (
		run_id   TEXT NOT NULL REFERENCES lta_runs(run_id) ON DELETE CASCADE,
		class    TEXT NOT NULL,
		key      TEXT NOT NULL,
		mode     TEXT NOT NULL,
		lipid    TEXT NOT NULL,
		category TEXT NOT NULL,
		mz       TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lta_similarities (
		run_id     TEXT NOT NULL REFERENCES lta_runs(run_id) ON DELETE CASCADE,
		class      TEXT NOT NULL,
		key        TEXT NOT NULL,
		mode       TEXT NOT NULL,
		category   TEXT NOT NULL,
		j_sim      DOUBLE PRECISION,
		j_dist     DOUBLE PRECISION,
		p_val      DOUBLE PRECISION NOT NULL,
		degenerate BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lta_fold_changes (
		run_id      TEXT NOT NULL REFERENCES lta_runs(run_id) ON DELETE CASCADE,
		mode        TEXT NOT NULL,
		compartment TEXT NOT NULL,
		lipid       TEXT NOT NULL,
		category    TEXT NOT NULL,
		mz          TEXT NOT NULL,
		enfc        DOUBLE PRECISION
	)`,
}

// Migrate creates the tables if they are missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// SaveRun stores a run in one transaction, bulk loading its rows with COPY.
func (p *Postgres) SaveRun(ctx context.Context, runID string, cfg config.Config, res *pipeline.Result) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO lta_runs (run_id, threshold, boot_reps, seed) VALUES ($1, $2, $3, $4)`,
		runID, cfg.Threshold, cfg.BootReps, cfg.Seed)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}

	err = copyRows(ctx, tx, "lta_class_members",
		[]string{"run_id", "class", "key", "mode", "lipid", "category", "mz"},
		func(emit func(...interface{}) error) error {
			for _, cs := range res.Classes() {
				for _, key := range cs.Keys() {
					t, _ := cs.Get(key)
					for _, e := range t.Entities {
						if err := emit(runID, cs.Class, key, t.Mode, e.Name, e.Category, e.MZ); err != nil {
							return err
						}
					}
				}
			}
			return nil
		})
	if err != nil {
		return err
	}

	err = copyRows(ctx, tx, "lta_similarities",
		[]string{"run_id", "class", "key", "mode", "category", "j_sim", "j_dist", "p_val", "degenerate"},
		func(emit func(...interface{}) error) error {
			for _, s := range res.Similarities {
				if err := emit(runID, s.Class, s.Key, s.Mode, s.Category, s.Similarity, s.Distance, s.PValue, s.Degenerate); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return err
	}

	err = copyRows(ctx, tx, "lta_fold_changes",
		[]string{"run_id", "mode", "compartment", "lipid", "category", "mz", "enfc"},
		func(emit func(...interface{}) error) error {
			for _, f := range res.FoldChanges {
				if err := emit(runID, f.Mode, f.Compartment, f.Entity.Name, f.Entity.Category, f.Entity.MZ, f.ENFC); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	log.WithFields(log.Fields{"run": runID, "similarities": len(res.Similarities)}).Info("saved run")
	return nil
}

func copyRows(ctx context.Context, tx *sql.Tx, table string, columns []string, fill func(emit func(...interface{}) error) error) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return fmt.Errorf("store: copy %s: %w", table, err)
	}
	defer stmt.Close()
	emit := func(args ...interface{}) error {
		_, err := stmt.ExecContext(ctx, args...)
		return err
	}
	if err := fill(emit); err != nil {
		return fmt.Errorf("store: copy %s: %w", table, err)
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("store: copy %s: %w", table, err)
	}
	return nil
}

// ListRuns returns stored runs, newest first.
func (p *Postgres) ListRuns(ctx context.Context) ([]RunRecord, error) {
	query := `
		SELECT r.run_id, r.created_at, r.threshold, r.boot_reps, r.seed, COUNT(s.run_id)
		FROM lta_runs r
		LEFT JOIN lta_similarities s ON s.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.created_at DESC;
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.CreatedAt, &r.Threshold, &r.BootReps, &r.Seed, &r.Similarities); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
