package email

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/mixelka/unimail/internal/metrics"
	"github.com/mixelka/unimail/pkg/models"
)

// AggregatorConfig configuration for cross-account reads
type AggregatorConfig struct {
	MaxParallel int           // sessions open at once per aggregate call
	Timeout     time.Duration // deadline for the whole call; 0 means none
}

// AccountFailure is one account that did not contribute to an aggregate result.
type AccountFailure struct {
	AccountID int64
	Email     string
	Err       error
}

// UnifiedResult is the merged view over all of a user's accounts.
type UnifiedResult struct {
	OpID     string
	Emails   []models.Email
	Failures []AccountFailure
	// Partial is set when the call ran out of time and some accounts were cut off.
	Partial bool
}

// Aggregator reads folders across accounts.
type Aggregator struct {
	store    AccountStore
	dialer   Dialer
	resolver *FolderResolver
	codec    *Codec
	config   AggregatorConfig
	logger   *slog.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(store AccountStore, dialer Dialer, resolver *FolderResolver, codec *Codec, cfg AggregatorConfig, logger *slog.Logger) *Aggregator {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	return &Aggregator{
		store:    store,
		dialer:   dialer,
		resolver: resolver,
		codec:    codec,
		config:   cfg,
		logger:   logger.With("component", "aggregator"),
	}
}

// FetchSingleAccount returns one page of a logical folder of one account.
func (a *Aggregator) FetchSingleAccount(ctx context.Context, userID, accountID int64, logical string, limit, offset int) ([]models.Email, error) {
	acc, err := loadAccount(ctx, a.store, userID, accountID)
	if err != nil {
		return nil, err
	}
	return a.fetchAccount(ctx, acc, logical, limit, offset)
}

func (a *Aggregator) fetchAccount(ctx context.Context, acc *models.Account, logical string, limit, offset int) ([]models.Email, error) {
	s, err := a.dialer.Open(ctx, acc, FolderInbox)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if _, err := a.resolver.Locate(ctx, s, logical); err != nil {
		return nil, err
	}
	return a.fetchPage(ctx, s, acc, limit, offset)
}

// FetchUnified merges the newest limit messages of a logical folder across
// every active account of the user. A failing account is reported in
// Failures and never fails the call.
func (a *Aggregator) FetchUnified(ctx context.Context, userID int64, logical string, limit int) (*UnifiedResult, error) {
	defer metrics.Observe("fetch_unified", time.Now())

	accounts, err := a.store.ListAccounts(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	res := &UnifiedResult{OpID: uuid.NewString(), Emails: []models.Email{}}
	logger := a.logger.With("op_id", res.OpID, "folder", logical)

	actx := ctx
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	type slot struct {
		emails []models.Email
		err    error
	}
	slots := fanOut(actx, a.config.MaxParallel, accounts, func(ctx context.Context, acc *models.Account) slot {
		if err := ctx.Err(); err != nil {
			return slot{err: err}
		}
		full, err := loadAccount(ctx, a.store, userID, acc.ID)
		if err != nil {
			return slot{err: err}
		}
		emails, err := a.fetchAccount(ctx, full, logical, limit, 0)
		return slot{emails: emails, err: err}
	})

	perAccount := make([][]models.Email, 0, len(accounts))
	for i, s := range slots {
		if s.err != nil {
			acc := accounts[i]
			logger.Warn("failed to fetch account", "account_id", acc.ID, "email", acc.Email, "error", s.err)
			metrics.AccountFailures.WithLabelValues("fetch", string(Describe(s.err).Kind)).Inc()
			res.Failures = append(res.Failures, AccountFailure{AccountID: acc.ID, Email: acc.Email, Err: s.err})
			continue
		}
		perAccount = append(perAccount, s.emails)
	}

	res.Partial = actx.Err() != nil && len(res.Failures) > 0
	res.Emails = mergeEmails(perAccount, limit)

	logger.Debug("unified fetch done", "accounts", len(accounts), "failures", len(res.Failures), "emails", len(res.Emails))
	return res, nil
}

// mergeEmails flattens per-account pages, drops duplicate
// (account, folder, uid) entries, orders by date descending with account id
// as the tie-break, and keeps the first limit.
func mergeEmails(perAccount [][]models.Email, limit int) []models.Email {
	type key struct {
		account int64
		folder  string
		uid     uint32
	}
	seen := make(map[key]struct{})
	out := []models.Email{}
	for _, page := range perAccount {
		for _, e := range page {
			k := key{e.AccountID, e.Folder, e.UID}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, e)
		}
	}

	slices.SortStableFunc(out, func(x, y models.Email) int {
		if c := y.Date.Compare(x.Date); c != 0 {
			return c
		}
		return cmp.Compare(x.AccountID, y.AccountID)
	})

	if limit < 0 {
		limit = 0
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// loadAccount fetches the account with its credential just in time.
func loadAccount(ctx context.Context, store AccountStore, userID, accountID int64) (*models.Account, error) {
	acc, err := store.GetAccountWithCredential(ctx, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %d: %w", accountID, err)
	}
	if acc == nil {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}
