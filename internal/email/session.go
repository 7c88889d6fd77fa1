package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"golang.org/x/time/rate"

	"github.com/mixelka/unimail/internal/metrics"
	"github.com/mixelka/unimail/pkg/models"
)

// Session is an authenticated protocol connection for one account with one
// selected folder. A Session is not safe for concurrent use.
type Session interface {
	AccountID() int64
	// Folder is the literal name of the selected folder.
	Folder() string
	// Messages is the message count of the selected folder as of the last select.
	Messages() uint32
	// Reselect switches to another folder on the same connection. It reports
	// false instead of failing; on false the selected folder is unchanged.
	Reselect(ctx context.Context, folder string) bool

	FetchHeaders(ctx context.Context, from, to uint32) ([]*imap.Message, error)
	// FetchStructure returns nil, nil when uid is not in the folder.
	FetchStructure(ctx context.Context, uid uint32) (*imap.Message, error)
	FetchPart(ctx context.Context, uid uint32, part string) ([]byte, error)
	SearchUnseen(ctx context.Context) ([]uint32, error)
	StoreSeen(ctx context.Context, uids []uint32, seen bool) error
	Move(ctx context.Context, uid uint32, dest string) error
	Copy(ctx context.Context, uid uint32, dest string) error
	MarkDeleted(ctx context.Context, uid uint32) error
	Expunge(ctx context.Context) error

	// Close logs out. It is idempotent.
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Open(ctx context.Context, account *models.Account, folder string) (Session, error)
}

// DialerConfig configuration for IMAP sessions
type DialerConfig struct {
	DialTimeout   time.Duration
	OpTimeout     time.Duration
	LoginRate     float64 // logins per second per host
	LoginBurst    int
	TLSSkipVerify bool
}

// IMAPDialer opens go-imap sessions and throttles logins per host.
type IMAPDialer struct {
	config DialerConfig
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewIMAPDialer creates a new dialer
func NewIMAPDialer(cfg DialerConfig, logger *slog.Logger) *IMAPDialer {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = 30 * time.Second
	}
	if cfg.LoginRate <= 0 {
		cfg.LoginRate = 10
	}
	if cfg.LoginBurst <= 0 {
		cfg.LoginBurst = 50
	}
	return &IMAPDialer{
		config:   cfg,
		logger:   logger.With("component", "imap_dialer"),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (d *IMAPDialer) limiter(host string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(d.config.LoginRate), d.config.LoginBurst)
		d.limiters[host] = l
	}
	return l
}

// Open connects, authenticates and selects folder.
func (d *IMAPDialer) Open(ctx context.Context, account *models.Account, folder string) (Session, error) {
	ep := account.IMAP()
	fail := func(err error) (Session, error) {
		metrics.SessionsOpened.WithLabelValues("error").Inc()
		return nil, &ConnectionError{AccountID: account.ID, Server: ep.Addr(), Err: err}
	}

	if err := d.limiter(strings.ToLower(ep.Host)).Wait(ctx); err != nil {
		return fail(fmt.Errorf("login throttled: %w", err))
	}

	c, err := d.dial(ctx, ep)
	if err != nil {
		return fail(err)
	}

	s := &imapSession{
		c:         c,
		accountID: account.ID,
		opTimeout: d.config.OpTimeout,
		logger:    d.logger.With("account_id", account.ID),
	}

	if err := s.do(ctx, "login", func() error { return login(c, account.Email, account.Password) }); err != nil {
		s.Close()
		return fail(err)
	}

	mbox, err := s.selectFolder(ctx, folder)
	if err != nil {
		s.Close()
		return fail(err)
	}
	s.folder = folder
	s.messages = mbox.Messages

	metrics.SessionsOpened.WithLabelValues("ok").Inc()
	s.logger.Debug("session opened", "server", ep.Addr(), "folder", folder)
	return s, nil
}

func (d *IMAPDialer) tlsConfig(host string) *tls.Config {
	return &tls.Config{ServerName: host, InsecureSkipVerify: d.config.TLSSkipVerify}
}

func (d *IMAPDialer) dial(ctx context.Context, ep models.Endpoint) (*client.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.DialTimeout)
	defer cancel()

	dialer := &net.Dialer{Timeout: d.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if ep.Encryption == models.EncryptionSSL || ep.Encryption == "" {
		tlsConn := tls.Client(conn, d.tlsConfig(ep.Host))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to negotiate TLS: %w", err)
		}
		conn = tlsConn
	}

	// The greeting is read inside client.New.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})
	c.Timeout = d.config.OpTimeout

	if ep.Encryption == models.EncryptionTLS {
		if err := c.StartTLS(d.tlsConfig(ep.Host)); err != nil {
			c.Terminate()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	return c, nil
}

func login(c *client.Client, username, password string) error {
	if ok, err := c.SupportAuth(sasl.Plain); err == nil && ok {
		if err := c.Authenticate(sasl.NewPlainClient("", username, password)); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
		return nil
	}
	if err := c.Login(username, password); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	return nil
}

// imapSession is a Session on a go-imap client.
type imapSession struct {
	c         *client.Client
	accountID int64
	folder    string
	messages  uint32
	opTimeout time.Duration
	logger    *slog.Logger

	broken bool
	closed bool
}

func (s *imapSession) AccountID() int64 { return s.accountID }
func (s *imapSession) Folder() string   { return s.folder }
func (s *imapSession) Messages() uint32 { return s.messages }

// do runs one protocol step under the per-operation timeout. The go-imap
// client is not context aware, so on timeout the connection is torn down and
// the session is marked broken.
func (s *imapSession) do(ctx context.Context, op string, fn func() error) error {
	if s.broken || s.closed {
		return ErrSessionBroken
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.broken = true
		s.c.Terminate()
		s.logger.Warn("protocol step timed out", "op", op, "error", ctx.Err())
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func (s *imapSession) selectFolder(ctx context.Context, folder string) (*imap.MailboxStatus, error) {
	var mbox *imap.MailboxStatus
	err := s.do(ctx, "select", func() error {
		var err error
		mbox, err = s.c.Select(folder, false)
		return err
	})
	if err != nil {
		return nil, &OperationError{Op: "select", Folder: folder, Err: err}
	}
	return mbox, nil
}

// exists probes a folder with STATUS, which leaves the selection untouched.
func (s *imapSession) exists(ctx context.Context, folder string) error {
	err := s.do(ctx, "status", func() error {
		_, err := s.c.Status(folder, []imap.StatusItem{imap.StatusMessages})
		return err
	})
	if err != nil {
		if s.broken {
			return err
		}
		return fmt.Errorf("%w: %v", ErrNoSuchFolder, err)
	}
	return nil
}

func (s *imapSession) Reselect(ctx context.Context, folder string) bool {
	if err := s.exists(ctx, folder); err != nil {
		s.logger.Debug("folder probe failed", "folder", folder, "error", err)
		return false
	}

	mbox, err := s.selectFolder(ctx, folder)
	if err != nil {
		// A failed SELECT leaves no folder selected; go back to the previous one.
		if _, rerr := s.selectFolder(ctx, s.folder); rerr != nil {
			s.broken = true
		}
		return false
	}

	s.folder = folder
	s.messages = mbox.Messages
	return true
}

func (s *imapSession) fetch(ctx context.Context, op string, uid bool, seqSet *imap.SeqSet, items []imap.FetchItem) ([]*imap.Message, error) {
	var out []*imap.Message
	err := s.do(ctx, op, func() error {
		messages := make(chan *imap.Message, 16)
		done := make(chan error, 1)
		go func() {
			if uid {
				done <- s.c.UidFetch(seqSet, items, messages)
			} else {
				done <- s.c.Fetch(seqSet, items, messages)
			}
		}()
		for msg := range messages {
			out = append(out, msg)
		}
		return <-done
	})
	if err != nil {
		return nil, &OperationError{Op: op, Folder: s.folder, Err: err}
	}
	return out, nil
}

func (s *imapSession) FetchHeaders(ctx context.Context, from, to uint32) ([]*imap.Message, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, to)
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, imap.FetchRFC822Size, imap.FetchInternalDate}
	return s.fetch(ctx, "fetch headers", false, seqSet, items)
}

func (s *imapSession) FetchStructure(ctx context.Context, uid uint32) (*imap.Message, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	items := []imap.FetchItem{
		imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, imap.FetchRFC822Size,
		imap.FetchInternalDate, imap.FetchBodyStructure,
	}
	msgs, err := s.fetch(ctx, "fetch structure", true, seqSet, items)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		if msg.Uid == uid {
			return msg, nil
		}
	}
	return nil, nil
}

func (s *imapSession) FetchPart(ctx context.Context, uid uint32, part string) ([]byte, error) {
	path, err := partPath(part)
	if err != nil {
		return nil, &OperationError{Op: "fetch part", Folder: s.folder, UID: uid, Err: err}
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	section := &imap.BodySectionName{BodyPartName: imap.BodyPartName{Path: path}, Peek: true}

	msgs, err := s.fetch(ctx, "fetch part", true, seqSet, []imap.FetchItem{section.FetchItem()})
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		if body := msg.GetBody(section); body != nil {
			return io.ReadAll(body)
		}
	}
	return nil, &OperationError{Op: "fetch part", Folder: s.folder, UID: uid, Err: ErrMessageNotFound}
}

func partPath(part string) ([]int, error) {
	if part == "" {
		return nil, nil
	}
	fields := strings.Split(part, ".")
	path := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid part locator %q", part)
		}
		path = append(path, n)
	}
	return path, nil
}

func (s *imapSession) SearchUnseen(ctx context.Context) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	var uids []uint32
	err := s.do(ctx, "search", func() error {
		var err error
		uids, err = s.c.UidSearch(criteria)
		return err
	})
	if err != nil {
		return nil, &OperationError{Op: "search unseen", Folder: s.folder, Err: err}
	}
	return uids, nil
}

func (s *imapSession) store(ctx context.Context, op string, uids []uint32, flagsOp imap.FlagsOp, flag string) error {
	if len(uids) == 0 {
		return nil
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	item := imap.FormatFlagsOp(flagsOp, true)
	flags := []interface{}{flag}

	err := s.do(ctx, op, func() error {
		return s.c.UidStore(seqSet, item, flags, nil)
	})
	if err != nil {
		oe := &OperationError{Op: op, Folder: s.folder, Err: err}
		if len(uids) == 1 {
			oe.UID = uids[0]
		}
		return oe
	}
	return nil
}

func (s *imapSession) StoreSeen(ctx context.Context, uids []uint32, seen bool) error {
	if seen {
		return s.store(ctx, "mark as read", uids, imap.AddFlags, imap.SeenFlag)
	}
	return s.store(ctx, "mark as unread", uids, imap.RemoveFlags, imap.SeenFlag)
}

func (s *imapSession) MarkDeleted(ctx context.Context, uid uint32) error {
	return s.store(ctx, "mark as deleted", []uint32{uid}, imap.AddFlags, imap.DeletedFlag)
}

func (s *imapSession) Move(ctx context.Context, uid uint32, dest string) error {
	var supported bool
	err := s.do(ctx, "capability", func() error {
		var err error
		supported, err = s.c.Support("MOVE")
		return err
	})
	if err != nil {
		return &OperationError{Op: "move", Folder: dest, UID: uid, Err: err}
	}
	if !supported {
		return &OperationError{Op: "move", Folder: dest, UID: uid, Err: ErrMoveUnsupported}
	}
	if err := s.exists(ctx, dest); err != nil {
		return &OperationError{Op: "move", Folder: dest, UID: uid, Err: err}
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	if err := s.do(ctx, "move", func() error { return s.c.UidMove(seqSet, dest) }); err != nil {
		return &OperationError{Op: "move", Folder: dest, UID: uid, Err: err}
	}
	return nil
}

func (s *imapSession) Copy(ctx context.Context, uid uint32, dest string) error {
	if err := s.exists(ctx, dest); err != nil {
		return &OperationError{Op: "copy", Folder: dest, UID: uid, Err: err}
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	if err := s.do(ctx, "copy", func() error { return s.c.UidCopy(seqSet, dest) }); err != nil {
		return &OperationError{Op: "copy", Folder: dest, UID: uid, Err: err}
	}
	return nil
}

func (s *imapSession) Expunge(ctx context.Context) error {
	if err := s.do(ctx, "expunge", func() error { return s.c.Expunge(nil) }); err != nil {
		return &OperationError{Op: "expunge", Folder: s.folder, Err: err}
	}
	return nil
}

func (s *imapSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.broken {
		return s.c.Terminate()
	}

	// Try logout with timeout, then force close
	done := make(chan struct{})
	go func() {
		s.c.Logout()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.c.Terminate()
	}
	return nil
}
