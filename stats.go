package sleuth

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// UsageStore tracks per-domain usage statistics using SQLite: how many
// discovery runs a domain has consumed, when it last succeeded, and what it
// has cost in model tokens. The selector cache itself lives in JSON files
// owned by CacheStore; this store only carries the bookkeeping around it.
type UsageStore struct {
	db *sql.DB
}

// DomainUsage is one domain's accumulated statistics.
type DomainUsage struct {
	Domain           string     `json:"domain"`
	Attempts         int        `json:"attempts"`
	LastSuccessAt    *time.Time `json:"last_success_at,omitempty"`
	PromptTokens     int        `json:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens"`
}

// NewUsageStore opens (or creates) the statistics database at the given
// path.
func NewUsageStore(dbPath string) (*UsageStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &UsageStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates the usage table if it doesn't exist.
func (u *UsageStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS domain_usage (
		domain TEXT PRIMARY KEY,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_success_at TEXT,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := u.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (u *UsageStore) Close() error {
	return u.db.Close()
}

// RecordAttempt increments the attempt counter for a domain.
func (u *UsageStore) RecordAttempt(domain string) error {
	query := `
	INSERT INTO domain_usage (domain, attempts) VALUES (?, 1)
	ON CONFLICT(domain) DO UPDATE SET attempts = attempts + 1
	`
	if _, err := u.db.Exec(query, domain); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// RecordSuccess stamps the last success time and adds the run's token cost.
func (u *UsageStore) RecordSuccess(domain string, promptTokens, completionTokens int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
	INSERT INTO domain_usage (domain, attempts, last_success_at, prompt_tokens, completion_tokens)
	VALUES (?, 0, ?, ?, ?)
	ON CONFLICT(domain) DO UPDATE SET
		last_success_at = excluded.last_success_at,
		prompt_tokens = prompt_tokens + excluded.prompt_tokens,
		completion_tokens = completion_tokens + excluded.completion_tokens
	`
	if _, err := u.db.Exec(query, domain, now, promptTokens, completionTokens); err != nil {
		return fmt.Errorf("failed to record success: %w", err)
	}
	return nil
}

// Get returns the usage row for a domain, or nil when the domain has never
// been attempted.
func (u *UsageStore) Get(domain string) (*DomainUsage, error) {
	query := `
	SELECT domain, attempts, last_success_at, prompt_tokens, completion_tokens
	FROM domain_usage WHERE domain = ?
	`
	row := u.db.QueryRow(query, domain)

	usage, err := scanUsage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	return usage, nil
}

// List returns usage rows for all domains, ordered by domain name.
func (u *UsageStore) List() ([]DomainUsage, error) {
	query := `
	SELECT domain, attempts, last_success_at, prompt_tokens, completion_tokens
	FROM domain_usage ORDER BY domain
	`
	rows, err := u.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	var all []DomainUsage
	for rows.Next() {
		usage, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		all = append(all, *usage)
	}
	return all, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanUsage.
type scanner interface {
	Scan(dest ...any) error
}

func scanUsage(s scanner) (*DomainUsage, error) {
	var usage DomainUsage
	var lastSuccess sql.NullString

	err := s.Scan(&usage.Domain, &usage.Attempts, &lastSuccess,
		&usage.PromptTokens, &usage.CompletionTokens)
	if err != nil {
		return nil, err
	}

	if lastSuccess.Valid {
		t, err := time.Parse(time.RFC3339, lastSuccess.String)
		if err == nil {
			usage.LastSuccessAt = &t
		}
	}
	return &usage, nil
}
