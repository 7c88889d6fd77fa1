package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/mixelka/unimail/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

const accountColumns = `id, user_id, email, display_name, password,
	imap_host, imap_port, imap_encryption, smtp_host, smtp_port, smtp_encryption,
	is_active, last_sync, created_at, updated_at`

// CreateAccount creates a new email account. The password must already be encrypted.
func (db *DB) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO email_accounts (user_id, email, display_name, password,
			imap_host, imap_port, imap_encryption, smtp_host, smtp_port, smtp_encryption,
			is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		account.UserID,
		account.Email,
		account.DisplayName,
		account.Password,
		account.IMAPHost,
		account.IMAPPort,
		account.IMAPEncryption,
		account.SMTPHost,
		account.SMTPPort,
		account.SMTPEncryption,
		account.IsActive,
		now,
		now,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	account.ID = id
	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

// GetAccountByID returns a user's account by ID
func (db *DB) GetAccountByID(ctx context.Context, userID, id int64) (*models.Account, error) {
	var account models.Account
	query := `SELECT ` + accountColumns + ` FROM email_accounts WHERE id = ? AND user_id = ?`
	err := db.GetContext(ctx, &account, query, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetAccountByEmail returns a user's account by address
func (db *DB) GetAccountByEmail(ctx context.Context, userID int64, email string) (*models.Account, error) {
	var account models.Account
	query := `SELECT ` + accountColumns + ` FROM email_accounts WHERE user_id = ? AND email = ?`
	err := db.GetContext(ctx, &account, query, userID, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetAccountsByUser returns a user's accounts, oldest first
func (db *DB) GetAccountsByUser(ctx context.Context, userID int64, activeOnly bool) ([]*models.Account, error) {
	accounts := []*models.Account{}
	query := `SELECT ` + accountColumns + ` FROM email_accounts WHERE user_id = ?`
	if activeOnly {
		query += ` AND is_active = true`
	}
	query += ` ORDER BY id`
	err := db.SelectContext(ctx, &accounts, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	return accounts, nil
}

// UpdateLastSync records when an account was last read
func (db *DB) UpdateLastSync(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE email_accounts SET last_sync = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, at, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	return nil
}

// SetAccountActive sets the active status of an account
func (db *DB) SetAccountActive(ctx context.Context, userID, id int64, active bool) error {
	query := `UPDATE email_accounts SET is_active = ?, updated_at = ? WHERE id = ? AND user_id = ?`
	result, err := db.ExecContext(ctx, query, active, time.Now(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to set account active: %w", err)
	}
	return requireAffected(result)
}

// DeleteAccount deletes a user's account
func (db *DB) DeleteAccount(ctx context.Context, userID, id int64) error {
	query := `DELETE FROM email_accounts WHERE id = ? AND user_id = ?`
	result, err := db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
