package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	apperrors "smsrelay/internal/errors"
	"smsrelay/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// schema holds the single-table key-value ledger. All application state
// (messages, upload logs, configuration) is serialized JSON under a key.
const schema = `
CREATE TABLE IF NOT EXISTS app_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Database is a durable key-value ledger backed by SQLite.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

// New opens the ledger. Failures are classified for the caller's retry loop:
// a bad path or bad encryption configuration will never succeed on retry,
// while open/ping/schema failures (locked file, slow volume mount) are marked
// retryable.
func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid database path")
	}

	// Validate database path to prevent directory traversal
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid database path")
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeStoreUnavailable, "failed to create database file")
	}
	if err := file.Close(); err != nil {
		return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeStoreUnavailable, "failed to close database file")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeStoreUnavailable, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeStoreUnavailable, fmt.Sprintf("failed to ping database (close error: %v)", closeErr))
		}
		return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeStoreUnavailable, "failed to ping database")
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeStoreUnavailable, fmt.Sprintf("failed to initialize schema (close error: %v)", closeErr))
		}
		return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeStoreUnavailable, "failed to initialize schema")
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidConfig, fmt.Sprintf("failed to initialize encryptor (close error: %v)", closeErr))
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidConfig, "failed to initialize encryptor")
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Get returns the value stored under key. A key that was never written yields
// an error with code NOT_FOUND; any other failure is STORE_UNAVAILABLE.
func (d *Database) Get(ctx context.Context, key string) (string, error) {
	var encrypted string
	err := d.db.QueryRowContext(ctx,
		`SELECT value FROM app_state WHERE key = ?`, key,
	).Scan(&encrypted)

	if err == sql.ErrNoRows {
		return "", apperrors.New(apperrors.ErrCodeNotFound, "key not found").WithContext("key", key)
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeStoreUnavailable, "failed to read key").WithContext("key", key)
	}

	value, err := d.encryptor.DecryptIfEnabled(encrypted)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeStoreCorrupt, "failed to decrypt value").WithContext("key", key)
	}

	return value, nil
}

// Set writes value under key, replacing any previous value.
func (d *Database) Set(ctx context.Context, key, value string) error {
	encrypted, err := d.encryptor.EncryptIfEnabled(value)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to encrypt value").WithContext("key", key)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, encrypted)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStoreUnavailable, "failed to write key").WithContext("key", key)
	}

	return nil
}

// Delete removes the given keys. Missing keys are not an error.
func (d *Database) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStoreUnavailable, "failed to begin delete")
	}

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM app_state WHERE key = ?`, key); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return apperrors.Wrap(err, apperrors.ErrCodeStoreUnavailable, "failed to delete key").WithContext("rollback_error", rbErr.Error())
			}
			return apperrors.Wrap(err, apperrors.ErrCodeStoreUnavailable, "failed to delete key").WithContext("key", key)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStoreUnavailable, "failed to commit delete")
	}

	return nil
}
