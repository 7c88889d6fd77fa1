package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mixelka/unimail/internal/metrics"
	"github.com/mixelka/unimail/pkg/models"
)

// AccountUnread is the unread count of one account. A failed account has
// zero counts and Err set.
type AccountUnread struct {
	AccountID  int64  `json:"account_id"`
	Email      string `json:"email"`
	Inbox      int    `json:"inbox"`
	Spam       int    `json:"spam"`
	SpamFolder string `json:"spam_folder,omitempty"` // literal folder the spam count came from
	Err        error  `json:"-"`
}

// UnreadCounts totals unread mail over a user's accounts.
type UnreadCounts struct {
	Inbox     int             `json:"inbox"`
	Spam      int             `json:"spam"`
	Total     int             `json:"total"`
	ByAccount []AccountUnread `json:"by_account"`
}

// UnseenCounter counts unread messages per account.
type UnseenCounter struct {
	store       AccountStore
	dialer      Dialer
	resolver    *FolderResolver
	maxParallel int
	logger      *slog.Logger
}

// NewUnseenCounter creates a new counter
func NewUnseenCounter(store AccountStore, dialer Dialer, resolver *FolderResolver, maxParallel int, logger *slog.Logger) *UnseenCounter {
	return &UnseenCounter{
		store:       store,
		dialer:      dialer,
		resolver:    resolver,
		maxParallel: maxParallel,
		logger:      logger.With("component", "unseen_counter"),
	}
}

// CountUnread counts unread inbox and spam messages of every active account.
func (u *UnseenCounter) CountUnread(ctx context.Context, userID int64) (*UnreadCounts, error) {
	accounts, err := u.store.ListAccounts(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	per := fanOut(ctx, u.maxParallel, accounts, func(ctx context.Context, acc *models.Account) AccountUnread {
		r := AccountUnread{AccountID: acc.ID, Email: acc.Email}
		if err := u.countAccount(ctx, userID, acc.ID, &r); err != nil {
			u.logger.Warn("failed to count unread", "account_id", acc.ID, "error", err)
			metrics.AccountFailures.WithLabelValues("count_unread", string(Describe(err).Kind)).Inc()
			return AccountUnread{AccountID: acc.ID, Email: acc.Email, Err: err}
		}
		return r
	})

	res := &UnreadCounts{ByAccount: per}
	for _, r := range per {
		res.Inbox += r.Inbox
		res.Spam += r.Spam
	}
	res.Total = res.Inbox + res.Spam
	return res, nil
}

func (u *UnseenCounter) countAccount(ctx context.Context, userID, accountID int64, r *AccountUnread) error {
	acc, err := loadAccount(ctx, u.store, userID, accountID)
	if err != nil {
		return err
	}

	s, err := u.dialer.Open(ctx, acc, FolderInbox)
	if err != nil {
		return err
	}
	defer s.Close()

	uids, err := s.SearchUnseen(ctx)
	if err != nil {
		return err
	}
	r.Inbox = len(uids)

	// An account without a spam folder simply has no spam to count.
	folder, err := u.resolver.Locate(ctx, s, FolderSpam)
	if err != nil {
		if IsFolderNotFound(err) {
			return nil
		}
		return err
	}
	uids, err = s.SearchUnseen(ctx)
	if err != nil {
		return err
	}
	r.Spam = len(uids)
	r.SpamFolder = folder
	return nil
}
