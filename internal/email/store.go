package email

import (
	"context"
	"time"

	"github.com/mixelka/unimail/pkg/models"
)

// AccountStore is the credential store the engine reads accounts from.
type AccountStore interface {
	// ListAccounts returns the user's accounts without credentials.
	ListAccounts(ctx context.Context, userID int64, activeOnly bool) ([]*models.Account, error)
	// GetAccountWithCredential returns the account with its password in
	// plaintext, or nil when the user has no such account.
	GetAccountWithCredential(ctx context.Context, userID, accountID int64) (*models.Account, error)
}

// SyncRecorder is implemented by stores that track when an account was last read.
type SyncRecorder interface {
	UpdateLastSync(ctx context.Context, accountID int64, at time.Time) error
}
