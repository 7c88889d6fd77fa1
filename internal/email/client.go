package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mixelka/unimail/internal/metrics"
	"github.com/mixelka/unimail/pkg/models"
)

// Prober is implemented by transports that can verify credentials without sending.
type Prober interface {
	Probe(ctx context.Context, account *models.Account) error
}

// ClientConfig configuration for the mail engine
type ClientConfig struct {
	MaxParallel      int
	AggregateTimeout time.Duration
}

// ClientDeps holds the collaborators of a Client
type ClientDeps struct {
	Store     AccountStore
	Dialer    Dialer
	Transport Transport
	Text      TextRenderer
	Resolver  *FolderResolver
	Logger    *slog.Logger
}

// Client is the operation surface of the engine. Every call opens its own
// sessions and closes them before returning; nothing is cached between calls.
type Client struct {
	store      AccountStore
	dialer     Dialer
	transport  Transport
	resolver   *FolderResolver
	codec      *Codec
	mover      *Mover
	aggregator *Aggregator
	sender     *Sender
	counter    *UnseenCounter
	config     ClientConfig
	logger     *slog.Logger
}

// NewClient creates a new engine client
func NewClient(deps ClientDeps, cfg ClientConfig) *Client {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = NewFolderResolver(nil)
	}
	logger := deps.Logger.With("component", "email_client")
	codec := NewCodec(deps.Logger)

	return &Client{
		store:     deps.Store,
		dialer:    deps.Dialer,
		transport: deps.Transport,
		resolver:  resolver,
		codec:     codec,
		mover:     NewMover(resolver, deps.Logger),
		aggregator: NewAggregator(deps.Store, deps.Dialer, resolver, codec, AggregatorConfig{
			MaxParallel: cfg.MaxParallel,
			Timeout:     cfg.AggregateTimeout,
		}, deps.Logger),
		sender:  NewSender(deps.Store, deps.Transport, deps.Text, cfg.MaxParallel, deps.Logger),
		counter: NewUnseenCounter(deps.Store, deps.Dialer, resolver, cfg.MaxParallel, deps.Logger),
		config:  cfg,
		logger:  logger,
	}
}

// Resolver returns the folder resolver in use.
func (c *Client) Resolver() *FolderResolver { return c.resolver }

// openFolder opens a session on folder. A logical role name is resolved to
// its first existing candidate; any other name is selected literally.
func (c *Client) openFolder(ctx context.Context, acc *models.Account, folder string) (Session, error) {
	if folder == "" {
		folder = FolderInbox
	}
	candidates := c.resolver.Resolve(folder)
	if len(candidates) == 1 && candidates[0] == folder {
		return c.dialer.Open(ctx, acc, folder)
	}

	s, err := c.dialer.Open(ctx, acc, FolderInbox)
	if err != nil {
		return nil, err
	}
	if _, err := c.resolver.Locate(ctx, s, folder); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (c *Client) withSession(ctx context.Context, userID, accountID int64, folder string, fn func(*models.Account, Session) error) error {
	acc, err := loadAccount(ctx, c.store, userID, accountID)
	if err != nil {
		return err
	}
	s, err := c.openFolder(ctx, acc, folder)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(acc, s)
}

// FetchUnifiedInbox merges the newest limit inbox messages of all accounts.
func (c *Client) FetchUnifiedInbox(ctx context.Context, userID int64, limit int) (*UnifiedResult, error) {
	return c.aggregator.FetchUnified(ctx, userID, FolderInbox, limit)
}

// FetchInbox returns one page of one account's inbox, newest first.
func (c *Client) FetchInbox(ctx context.Context, userID, accountID int64, limit, offset int) ([]models.Email, error) {
	emails, err := c.FetchFolder(ctx, userID, accountID, FolderInbox, limit, offset)
	if err != nil {
		return nil, err
	}
	if rec, ok := c.store.(SyncRecorder); ok {
		if err := rec.UpdateLastSync(ctx, accountID, time.Now()); err != nil {
			c.logger.Warn("failed to update last sync", "account_id", accountID, "error", err)
		}
	}
	return emails, nil
}

// FetchUnifiedSent merges the newest limit sent messages of all accounts.
func (c *Client) FetchUnifiedSent(ctx context.Context, userID int64, limit int) (*UnifiedResult, error) {
	return c.aggregator.FetchUnified(ctx, userID, FolderSent, limit)
}

// FetchSent returns one page of one account's sent folder.
func (c *Client) FetchSent(ctx context.Context, userID, accountID int64, limit, offset int) ([]models.Email, error) {
	return c.FetchFolder(ctx, userID, accountID, FolderSent, limit, offset)
}

// FetchFolder returns one page of a logical folder of one account.
func (c *Client) FetchFolder(ctx context.Context, userID, accountID int64, logical string, limit, offset int) ([]models.Email, error) {
	defer metrics.Observe("fetch_folder", time.Now())
	return c.aggregator.FetchSingleAccount(ctx, userID, accountID, logical, limit, offset)
}

// FetchUnifiedFolder merges a logical folder across all accounts.
func (c *Client) FetchUnifiedFolder(ctx context.Context, userID int64, logical string, limit int) (*UnifiedResult, error) {
	return c.aggregator.FetchUnified(ctx, userID, logical, limit)
}

// ReadEmail returns the full message with body and attachment list.
//
// Reading is not side-effect free: on success the message is flagged \Seen
// on the server. If setting the flag fails the message is still returned,
// with Seen reporting the flag as it is on the server.
func (c *Client) ReadEmail(ctx context.Context, userID, accountID int64, uid uint32, folder string) (*models.Email, error) {
	defer metrics.Observe("read_email", time.Now())

	var out *models.Email
	err := c.withSession(ctx, userID, accountID, folder, func(acc *models.Account, s Session) error {
		msg, err := s.FetchStructure(ctx, uid)
		if err != nil {
			return err
		}
		if msg == nil {
			return ErrMessageNotFound
		}

		e := c.codec.DecodeHeader(msg)
		e.AccountID = acc.ID
		e.AccountEmail = acc.Email
		e.Folder = s.Folder()
		e.Body = c.codec.DecodeBody(ctx, s, uid, msg.BodyStructure)
		e.Attachments = c.codec.DecodeAttachments(msg.BodyStructure)

		if err := s.StoreSeen(ctx, []uint32{uid}, true); err != nil {
			c.logger.Warn("failed to mark read message as seen", "account_id", acc.ID, "uid", uid, "error", err)
		} else {
			e.Seen = true
		}
		out = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendEmail sends msg from one account.
func (c *Client) SendEmail(ctx context.Context, userID, accountID int64, msg *models.OutgoingMessage) SendResult {
	return c.sender.Send(ctx, userID, accountID, msg)
}

// SendFromMultipleAccounts sends msg once from each account.
func (c *Client) SendFromMultipleAccounts(ctx context.Context, userID int64, accountIDs []int64, msg *models.OutgoingMessage) MultiSendResult {
	return c.sender.SendFromMultiple(ctx, userID, accountIDs, msg)
}

// DeleteEmail flags uid as deleted in folder and expunges it.
func (c *Client) DeleteEmail(ctx context.Context, userID, accountID int64, uid uint32, folder string) error {
	return c.withSession(ctx, userID, accountID, folder, func(_ *models.Account, s Session) error {
		return deleteMessage(ctx, s, uid)
	})
}

// PermanentDelete removes uid from a logical folder, Trash by default.
func (c *Client) PermanentDelete(ctx context.Context, userID, accountID int64, uid uint32, folder string) error {
	if folder == "" {
		folder = FolderTrash
	}
	return c.withSession(ctx, userID, accountID, folder, func(_ *models.Account, s Session) error {
		return deleteMessage(ctx, s, uid)
	})
}

func deleteMessage(ctx context.Context, s Session, uid uint32) error {
	if err := s.MarkDeleted(ctx, uid); err != nil {
		return err
	}
	return s.Expunge(ctx)
}

// MarkAs sets or clears \Seen on uid.
func (c *Client) MarkAs(ctx context.Context, userID, accountID int64, uid uint32, seen bool, folder string) error {
	return c.withSession(ctx, userID, accountID, folder, func(_ *models.Account, s Session) error {
		return s.StoreSeen(ctx, []uint32{uid}, seen)
	})
}

// MoveToFolder moves uid from the literal folder from to the logical folder
// toLogical. The outcome is returned even on failure; the error is
// outcome.Err or a failure to open the session.
func (c *Client) MoveToFolder(ctx context.Context, userID, accountID int64, uid uint32, from, toLogical string) (MoveOutcome, error) {
	defer metrics.Observe("move", time.Now())

	var out MoveOutcome
	err := c.withSession(ctx, userID, accountID, from, func(_ *models.Account, s Session) error {
		out = c.mover.Move(ctx, s, uid, toLogical)
		return out.Err
	})
	return out, err
}

// MoveToSpam moves uid to the account's spam folder.
func (c *Client) MoveToSpam(ctx context.Context, userID, accountID int64, uid uint32, from string) (MoveOutcome, error) {
	return c.MoveToFolder(ctx, userID, accountID, uid, from, FolderSpam)
}

// MoveToTrash moves uid to the account's trash folder.
func (c *Client) MoveToTrash(ctx context.Context, userID, accountID int64, uid uint32, from string) (MoveOutcome, error) {
	return c.MoveToFolder(ctx, userID, accountID, uid, from, FolderTrash)
}

// Restore moves uid back to the inbox. An empty from means the trash folder.
func (c *Client) Restore(ctx context.Context, userID, accountID int64, uid uint32, from string) (MoveOutcome, error) {
	if from == "" {
		from = FolderTrash
	}
	return c.MoveToFolder(ctx, userID, accountID, uid, from, FolderInbox)
}

// MarkAllResult is the outcome of MarkAllAsRead.
type MarkAllResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Errors  int    `json:"errors"`
	Message string `json:"message"`
}

// MarkAllAsRead flags every unseen message of folder as seen, in one account
// or, when accountID is nil, in all active accounts. The call succeeds when
// no account failed or at least one message was marked.
func (c *Client) MarkAllAsRead(ctx context.Context, userID int64, accountID *int64, folder string) (MarkAllResult, error) {
	var ids []int64
	if accountID != nil {
		ids = []int64{*accountID}
	} else {
		accounts, err := c.store.ListAccounts(ctx, userID, true)
		if err != nil {
			return MarkAllResult{}, fmt.Errorf("failed to list accounts: %w", err)
		}
		for _, a := range accounts {
			ids = append(ids, a.ID)
		}
	}

	type slot struct {
		count int
		err   error
	}
	slots := fanOut(ctx, c.config.MaxParallel, ids, func(ctx context.Context, id int64) slot {
		var n int
		err := c.withSession(ctx, userID, id, folder, func(_ *models.Account, s Session) error {
			uids, err := s.SearchUnseen(ctx)
			if err != nil {
				return err
			}
			if err := s.StoreSeen(ctx, uids, true); err != nil {
				return err
			}
			n = len(uids)
			return nil
		})
		return slot{count: n, err: err}
	})

	var res MarkAllResult
	for i, s := range slots {
		if s.err != nil {
			c.logger.Warn("failed to mark all as read", "account_id", ids[i], "error", s.err)
			res.Errors++
			continue
		}
		res.Count += s.count
	}
	res.Success = res.Errors == 0 || res.Count > 0
	res.Message = fmt.Sprintf("%d messages marked as read", res.Count)
	return res, nil
}

// GetUnreadCounts counts unread inbox and spam messages of all accounts.
func (c *Client) GetUnreadCounts(ctx context.Context, userID int64) (*UnreadCounts, error) {
	return c.counter.CountUnread(ctx, userID)
}

// TestConnection checks that acc can log in to IMAP and, when the transport
// supports it, to SMTP. Nothing is stored.
func (c *Client) TestConnection(ctx context.Context, acc *models.Account) error {
	s, err := c.dialer.Open(ctx, acc, FolderInbox)
	if err != nil {
		return err
	}
	s.Close()

	if p, ok := c.transport.(Prober); ok {
		if err := p.Probe(ctx, acc); err != nil {
			return &SendError{AccountID: acc.ID, Provider: err.Error()}
		}
	}
	return nil
}
