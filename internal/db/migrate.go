package db

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

type MigrationStatus struct {
	Filename string
	Applied  bool
}

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`

// Migrate applies every pending migrations/*.sql file in lexical order. Each
// file and its bookkeeping row are committed together.
func Migrate(ctx context.Context, db *sqlx.DB, dir string) ([]string, error) {
	statuses, err := Status(ctx, db, dir)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, status := range statuses {
		if status.Applied {
			continue
		}
		path := filepath.Join(dir, status.Filename)
		err := WithTx(ctx, db, TxOptions{MaxAttempts: 1}, func(tx *sqlx.Tx) error {
			if err := applyFile(ctx, tx, path); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, status.Filename)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", status.Filename, err)
		}
		applied = append(applied, status.Filename)
	}
	return applied, nil
}

func Status(ctx context.Context, db *sqlx.DB, dir string) ([]MigrationStatus, error) {
	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	sort.Strings(files)

	var appliedNames []string
	if err := db.SelectContext(ctx, &appliedNames, `SELECT filename FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("read migration state: %w", err)
	}
	applied := make(map[string]bool, len(appliedNames))
	for _, name := range appliedNames {
		applied[name] = true
	}
	statuses := make([]MigrationStatus, 0, len(files))
	for _, file := range files {
		name := filepath.Base(file)
		statuses = append(statuses, MigrationStatus{Filename: name, Applied: applied[name]})
	}
	return statuses, nil
}

func applyFile(ctx context.Context, tx *sqlx.Tx, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	up := strings.Split(string(content), "-- +migrate Down")[0]
	for _, stmt := range splitSQL(up) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func splitSQL(sqlText string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}
