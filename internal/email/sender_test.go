package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/unimail/pkg/models"
)

type sentMessage struct {
	accountID int64
	from      string
	rcpt      []string
	raw       []byte
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[int64]error
}

func (f *fakeTransport) Send(_ context.Context, acc *models.Account, from string, rcpt []string, msg []byte) error {
	if err := f.fail[acc.ID]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{accountID: acc.ID, from: from, rcpt: rcpt, raw: msg})
	return nil
}

type upperText struct{}

func (upperText) Parse(html string) (string, error) {
	return strings.ToUpper(strings.NewReplacer("<p>", "", "</p>", "").Replace(html)), nil
}

func newTestSender(tr *fakeTransport) (*Sender, *fakeStore) {
	store := &fakeStore{}
	a := store.addAccount(1, 1, "alice@example.org")
	a.DisplayName = "Alice"
	store.addAccount(2, 1, "bob@example.org")
	s := NewSender(store, tr, upperText{}, 2, discardLogger())
	s.now = func() time.Time { return baseDate }
	return s, store
}

func TestSendFromMultipleOneFails(t *testing.T) {
	tr := &fakeTransport{fail: map[int64]error{
		2: &textproto.Error{Code: 550, Msg: "5.7.1 Relaying denied"},
	}}
	s, _ := newTestSender(tr)

	res := s.SendFromMultiple(context.Background(), 1, []int64{1, 2}, &models.OutgoingMessage{
		To: []string{"carol@example.net"}, Subject: "hi", HTMLBody: "<p>hello</p>",
	})

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, res.Details, 2)
	assert.True(t, res.Details[0].Success)
	assert.Equal(t, int64(1), res.Details[0].AccountID)
	assert.False(t, res.Details[1].Success)
	assert.Equal(t, "bob@example.org", res.Details[1].AccountEmail)
	assert.Equal(t, "550 5.7.1 Relaying denied", res.Details[1].Message)

	f := Describe(res.Details[1].Err)
	assert.Equal(t, KindSend, f.Kind)
	assert.Equal(t, "550 5.7.1 Relaying denied", f.Message)
	assert.Equal(t, "1 sent, 1 failed", res.Message)
}

func TestSendUnknownAccount(t *testing.T) {
	s, _ := newTestSender(&fakeTransport{})

	res := s.Send(context.Background(), 1, 42, &models.OutgoingMessage{To: []string{"x@example.net"}})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrAccountNotFound)
}

func TestSendRejectsBadRecipients(t *testing.T) {
	tr := &fakeTransport{}
	s, _ := newTestSender(tr)

	res := s.Send(context.Background(), 1, 1, &models.OutgoingMessage{})
	assert.False(t, res.Success)

	res = s.Send(context.Background(), 1, 1, &models.OutgoingMessage{To: []string{"not an address"}})
	assert.False(t, res.Success)
	assert.Empty(t, tr.sent)
}

func TestSendComposesMessage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o600))

	tr := &fakeTransport{}
	s, _ := newTestSender(tr)

	res := s.Send(context.Background(), 1, 1, &models.OutgoingMessage{
		To:       []string{"Carol <carol@example.net>"},
		Cc:       []string{"dave@example.net"},
		Bcc:      []string{"eve@example.net"},
		Subject:  "Отчёт",
		HTMLBody: "<p>see attached</p>",
		Attachments: []models.OutgoingAttachment{
			{Path: path},
			{Name: "gone.pdf", Path: filepath.Join(dir, "missing.pdf")},
		},
	})
	require.True(t, res.Success, res.Message)
	require.Len(t, tr.sent, 1)

	sent := tr.sent[0]
	assert.Equal(t, "alice@example.org", sent.from)
	assert.Equal(t, []string{"carol@example.net", "dave@example.net", "eve@example.net"}, sent.rcpt)

	mr, err := mail.CreateReader(bytes.NewReader(sent.raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Отчёт", subject)

	from, err := mr.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "Alice", from[0].Name)
	assert.Equal(t, "alice@example.org", from[0].Address)
	assert.Empty(t, mr.Header.Get("Bcc"))
	assert.NotEmpty(t, mr.Header.Get("Message-Id"))

	date, err := mr.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(baseDate))

	var (
		texts       = map[string]string{}
		attachments []string
	)
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(p.Body)
		require.NoError(t, err)

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, err := h.ContentType()
			require.NoError(t, err)
			texts[ct] = string(body)
		case *mail.AttachmentHeader:
			name, err := h.Filename()
			require.NoError(t, err)
			attachments = append(attachments, name)
			assert.Equal(t, "a,b\n1,2\n", string(body))
		}
	}
	assert.Equal(t, "<p>see attached</p>", texts["text/html"])
	assert.Equal(t, "SEE ATTACHED", texts["text/plain"])
	assert.Equal(t, []string{"report.csv"}, attachments)
}

func TestSendTransportErrorKeepsProviderText(t *testing.T) {
	tr := &fakeTransport{fail: map[int64]error{1: errors.New("dial to smtp.example.org:587: connection refused")}}
	s, _ := newTestSender(tr)

	res := s.Send(context.Background(), 1, 1, &models.OutgoingMessage{To: []string{"x@example.net"}})
	assert.False(t, res.Success)
	assert.True(t, IsSendError(res.Err))
	assert.Equal(t, "dial to smtp.example.org:587: connection refused", res.Message)
}
