package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/unimail/pkg/models"
)

// Decrypter turns a stored credential back into plaintext.
type Decrypter interface {
	Decrypt(encrypted string) (string, error)
}

// AccountStore serves accounts to the mail engine. Passwords leave the
// store decrypted only through GetAccountWithCredential.
type AccountStore struct {
	db  *DB
	dec Decrypter
}

// NewAccountStore creates a new account store
func NewAccountStore(db *DB, dec Decrypter) *AccountStore {
	return &AccountStore{db: db, dec: dec}
}

// ListAccounts returns the user's accounts with passwords blanked.
func (s *AccountStore) ListAccounts(ctx context.Context, userID int64, activeOnly bool) ([]*models.Account, error) {
	accounts, err := s.db.GetAccountsByUser(ctx, userID, activeOnly)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		a.Password = ""
	}
	return accounts, nil
}

// GetAccountWithCredential returns the account with a plaintext password,
// or nil when the user has no such account.
func (s *AccountStore) GetAccountWithCredential(ctx context.Context, userID, accountID int64) (*models.Account, error) {
	account, err := s.db.GetAccountByID(ctx, userID, accountID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	password, err := s.dec.Decrypt(account.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt password: %w", err)
	}
	account.Password = password
	return account, nil
}

// UpdateLastSync records when an account was last read.
func (s *AccountStore) UpdateLastSync(ctx context.Context, accountID int64, at time.Time) error {
	return s.db.UpdateLastSync(ctx, accountID, at)
}
