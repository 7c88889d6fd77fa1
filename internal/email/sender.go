package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/mixelka/unimail/internal/metrics"
	"github.com/mixelka/unimail/pkg/models"
)

// Transport hands a composed message to the account's submission server.
type Transport interface {
	Send(ctx context.Context, account *models.Account, from string, rcpt []string, msg []byte) error
}

// TextRenderer turns an HTML body into its plain-text alternative.
type TextRenderer interface {
	Parse(html string) (string, error)
}

// SendResult is the outcome for one account.
type SendResult struct {
	AccountID    int64  `json:"account_id"`
	AccountEmail string `json:"account_email"`
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Err          error  `json:"-"`
}

// MultiSendResult summarizes a send through several accounts.
type MultiSendResult struct {
	Success bool         `json:"success"` // no account failed
	Message string       `json:"message"`
	Sent    int          `json:"sent"`
	Errors  int          `json:"errors"`
	Details []SendResult `json:"details"` // one per requested account, in request order
}

// Sender composes and dispatches outgoing mail.
type Sender struct {
	store       AccountStore
	transport   Transport
	text        TextRenderer
	maxParallel int
	logger      *slog.Logger
	now         func() time.Time
}

// NewSender creates a new sender
func NewSender(store AccountStore, transport Transport, text TextRenderer, maxParallel int, logger *slog.Logger) *Sender {
	return &Sender{
		store:       store,
		transport:   transport,
		text:        text,
		maxParallel: maxParallel,
		logger:      logger.With("component", "sender"),
		now:         time.Now,
	}
}

// Send sends msg from one account. Delivery is attempted once.
func (s *Sender) Send(ctx context.Context, userID, accountID int64, msg *models.OutgoingMessage) SendResult {
	res := SendResult{AccountID: accountID}

	acc, err := loadAccount(ctx, s.store, userID, accountID)
	if err != nil {
		res.Err = err
		res.Message = err.Error()
		return res
	}
	res.AccountEmail = acc.Email

	if err := s.send(ctx, acc, msg); err != nil {
		metrics.MessagesSent.WithLabelValues("error").Inc()
		s.logger.Warn("failed to send", "account_id", acc.ID, "error", err)
		res.Err = err
		res.Message = err.Error()
		return res
	}

	metrics.MessagesSent.WithLabelValues("ok").Inc()
	res.Success = true
	res.Message = "sent"
	return res
}

func (s *Sender) send(ctx context.Context, acc *models.Account, msg *models.OutgoingMessage) error {
	rcpt := msg.Recipients()
	if len(rcpt) == 0 {
		return errors.New("no recipients")
	}
	envelopeRcpt := make([]string, 0, len(rcpt))
	for _, r := range rcpt {
		a, err := mail.ParseAddress(r)
		if err != nil {
			return fmt.Errorf("invalid recipient %q: %w", r, err)
		}
		envelopeRcpt = append(envelopeRcpt, a.Address)
	}

	raw, err := s.compose(acc, msg)
	if err != nil {
		return fmt.Errorf("failed to compose message: %w", err)
	}

	if err := s.transport.Send(ctx, acc, acc.Email, envelopeRcpt, raw); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) {
			return &SendError{AccountID: acc.ID, Provider: tpErr.Error()}
		}
		return &SendError{AccountID: acc.ID, Provider: err.Error()}
	}
	return nil
}

// SendFromMultiple sends the same message once per account. Accounts are
// independent: one failure never stops the others.
func (s *Sender) SendFromMultiple(ctx context.Context, userID int64, accountIDs []int64, msg *models.OutgoingMessage) MultiSendResult {
	details := fanOut(ctx, s.maxParallel, accountIDs, func(ctx context.Context, id int64) SendResult {
		return s.Send(ctx, userID, id, msg)
	})

	res := MultiSendResult{Details: details}
	for _, d := range details {
		if d.Success {
			res.Sent++
		} else {
			res.Errors++
		}
	}
	res.Success = res.Errors == 0
	res.Message = fmt.Sprintf("%d sent, %d failed", res.Sent, res.Errors)
	return res
}

// compose builds a multipart/mixed message with an html+text alternative
// and the attachments that exist on disk.
func (s *Sender) compose(acc *models.Account, msg *models.OutgoingMessage) ([]byte, error) {
	var h mail.Header
	h.SetDate(s.now())
	h.SetSubject(msg.Subject)
	sender := []*mail.Address{{Name: acc.Sender(), Address: acc.Email}}
	h.SetAddressList("From", sender)
	h.SetAddressList("Reply-To", sender)
	for _, field := range []struct {
		key  string
		list []string
	}{{"To", msg.To}, {"Cc", msg.Cc}} {
		if len(field.list) == 0 {
			continue
		}
		addrs, err := parseAddresses(field.list)
		if err != nil {
			return nil, err
		}
		h.SetAddressList(field.key, addrs)
	}
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	plain, err := s.text.Parse(msg.HTMLBody)
	if err != nil {
		s.logger.Debug("failed to render text alternative", "error", err)
		plain = msg.HTMLBody
	}
	if err := writeInline(tw, "text/plain", plain); err != nil {
		return nil, err
	}
	if err := writeInline(tw, "text/html", msg.HTMLBody); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		data, err := os.ReadFile(a.Path)
		if err != nil {
			s.logger.Warn("skipping attachment", "path", a.Path, "error", err)
			continue
		}
		name := a.Name
		if name == "" {
			name = filepath.Base(a.Path)
		}
		ctype := mime.TypeByExtension(filepath.Ext(name))
		if ctype == "" {
			ctype = "application/octet-stream"
		}

		var ah mail.AttachmentHeader
		ah.Set("Content-Type", ctype)
		ah.SetFilename(name)
		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeInline(tw *mail.InlineWriter, ctype, body string) error {
	var th mail.InlineHeader
	th.SetContentType(ctype, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(th)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return err
	}
	return w.Close()
}

func parseAddresses(list []string) ([]*mail.Address, error) {
	out := make([]*mail.Address, 0, len(list))
	for _, s := range list {
		a, err := mail.ParseAddress(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// SMTPTransport submits mail with net/smtp over implicit TLS, STARTTLS or
// plaintext depending on the account's SMTP encryption.
type SMTPTransport struct {
	dialTimeout   time.Duration
	tlsSkipVerify bool
}

// NewSMTPTransport creates a new SMTP transport
func NewSMTPTransport(dialTimeout time.Duration, tlsSkipVerify bool) *SMTPTransport {
	if dialTimeout == 0 {
		dialTimeout = 30 * time.Second
	}
	return &SMTPTransport{dialTimeout: dialTimeout, tlsSkipVerify: tlsSkipVerify}
}

func (t *SMTPTransport) connect(ctx context.Context, acc *models.Account) (*smtp.Client, error) {
	ep := acc.SMTP()
	tlsConfig := &tls.Config{ServerName: ep.Host, InsecureSkipVerify: t.tlsSkipVerify}

	dialer := &net.Dialer{Timeout: t.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.Addr())
	if err != nil {
		return nil, fmt.Errorf("dial to %s: %w", ep.Addr(), err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(2 * t.dialTimeout)
	}
	_ = conn.SetDeadline(deadline)

	if ep.Encryption == models.EncryptionSSL {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake with %s: %w", ep.Addr(), err)
		}
		conn = tlsConn
	}

	c, err := smtp.NewClient(conn, ep.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}

	if ep.Encryption == models.EncryptionTLS {
		if err := c.StartTLS(tlsConfig); err != nil {
			c.Close()
			return nil, err
		}
	}

	if ok, _ := c.Extension("AUTH"); ok {
		if err := c.Auth(smtp.PlainAuth("", acc.Email, acc.Password, ep.Host)); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Send implements Transport.
func (t *SMTPTransport) Send(ctx context.Context, acc *models.Account, from string, rcpt []string, msg []byte) error {
	c, err := t.connect(ctx, acc)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(from); err != nil {
		return err
	}
	for _, r := range rcpt {
		if err := c.Rcpt(r); err != nil {
			return err
		}
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// Probe connects and authenticates without sending anything.
func (t *SMTPTransport) Probe(ctx context.Context, acc *models.Account) error {
	c, err := t.connect(ctx, acc)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Quit()
}
