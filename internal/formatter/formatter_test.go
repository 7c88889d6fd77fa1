package formatter

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/unimail/internal/email"
	"github.com/mixelka/unimail/internal/parser"
	"github.com/mixelka/unimail/pkg/models"
)

func sampleEmail() models.Email {
	return models.Email{
		UID:          42,
		AccountID:    3,
		AccountEmail: "me@example.org",
		Folder:       "INBOX",
		Subject:      "Invoice <#1>",
		From:         models.Address{Address: "billing@example.org", Name: "Billing & Co"},
		To:           []models.Address{{Address: "me@example.org", Name: "me"}},
		Cc:           []models.Address{},
		Date:         time.Date(2026, 3, 4, 10, 30, 0, 0, time.Local),
		Body:         "<p>Total: <b>10 EUR</b></p>",
		Attachments:  []models.Attachment{{Filename: "invoice.pdf", Part: "2", Size: 2048, MIMEType: "application/pdf"}},
	}
}

func TestFormatEmailList(t *testing.T) {
	f := NewTelegramFormatter(parser.NewHTMLParser(), parser.NewCodeFinder(3))

	text := f.FormatEmailList("Входящие", []models.Email{sampleEmail()})
	assert.Contains(t, text, "1. ✉️ <b>Invoice &lt;#1&gt;</b>")
	assert.Contains(t, text, "Billing &amp; Co · 04.03.2026 10:30")
	assert.Contains(t, text, "<i>me@example.org</i>")

	assert.Contains(t, f.FormatEmailList("Спам", nil), "Писем нет")
}

func TestFormatUnified(t *testing.T) {
	f := NewTelegramFormatter(parser.NewHTMLParser(), parser.NewCodeFinder(3))
	res := &email.UnifiedResult{
		Emails: []models.Email{sampleEmail()},
		Failures: []email.AccountFailure{
			{AccountID: 2, Email: "slow@example.org", Err: &email.ConnectionError{AccountID: 2, Err: errors.New("EOF")}},
		},
		Partial: true,
	}

	text := f.FormatUnified("Все входящие", res)
	assert.Contains(t, text, "Invoice")
	assert.Contains(t, text, "⏱")
	assert.Contains(t, text, "slow@example.org: нет подключения к серверу")
}

func TestFormatEmail(t *testing.T) {
	f := NewTelegramFormatter(parser.NewHTMLParser(), parser.NewCodeFinder(3))
	e := sampleEmail()

	text := f.FormatEmail(&e)
	assert.Contains(t, text, "<b>От:</b> Billing &amp; Co &lt;billing@example.org&gt;")
	assert.Contains(t, text, "📎 invoice.pdf (2.0 КБ)")
	assert.Contains(t, text, "Total: 10 EUR")
	assert.NotContains(t, text, "<p>")

	assert.NotContains(t, text, "Коды:")

	e.Body = "<div>Your login code: <b>904511</b></div>"
	text = f.FormatEmail(&e)
	assert.Contains(t, text, "<b>Коды:</b> <code>904511</code>")

	e.Body = strings.Repeat("long text ", 1000)
	text = f.FormatEmail(&e)
	assert.LessOrEqual(t, len([]rune(text)), 4000)
	assert.True(t, strings.HasSuffix(text, "…"))
}

func TestFormatUnread(t *testing.T) {
	f := NewTelegramFormatter(parser.NewHTMLParser(), parser.NewCodeFinder(3))
	text := f.FormatUnread(&email.UnreadCounts{
		Inbox: 3, Spam: 1, Total: 4,
		ByAccount: []email.AccountUnread{
			{AccountID: 1, Email: "a@example.org", Inbox: 3, Spam: 1},
			{AccountID: 2, Email: "b@example.org", Err: &email.FolderNotFoundError{Logical: "INBOX"}},
		},
	})
	assert.Contains(t, text, "4 (входящие 3, спам 1)")
	assert.Contains(t, text, "a@example.org: 3 / спам 1")
	assert.Contains(t, text, "b@example.org: папка не найдена")
}

func TestFailureText(t *testing.T) {
	assert.Equal(t, "сервер отклонил письмо: 550 no such user",
		FailureText(&email.SendError{Provider: "550 no such user"}))
	assert.Equal(t, "письмо или аккаунт не найдены", FailureText(email.ErrMessageNotFound))
	assert.Equal(t, "boom", FailureText(errors.New("boom")))
}

func TestCallbackRoundTrip(t *testing.T) {
	e := sampleEmail()
	kb := BuildListKeyboard([]models.Email{e, e}, email.FolderInbox)
	require.Len(t, kb.InlineKeyboard, 2)
	require.Len(t, kb.InlineKeyboard[0], 3)

	for _, b := range kb.InlineKeyboard[1] {
		assert.LessOrEqual(t, len(b.CallbackData), maxCallbackData)
	}
	data, err := DecodeCallback(kb.InlineKeyboard[0][1].CallbackData)
	require.NoError(t, err)
	assert.Equal(t, models.CallbackData{Action: models.CallbackSpam, AccountID: 3, UID: 42, Folder: "INBOX"}, data)

	_, err = DecodeCallback("not json")
	assert.Error(t, err)
}

func TestCallbackLongFolderFallsBack(t *testing.T) {
	e := sampleEmail()
	e.AccountID = 1234567890
	e.UID = 4294967295
	e.Folder = "[Gmail]/Gönderilmiş Postalar"

	kb := BuildEmailKeyboard(e, email.FolderSent)
	for _, b := range kb.InlineKeyboard[0] {
		assert.LessOrEqual(t, len(b.CallbackData), maxCallbackData)
		data, err := DecodeCallback(b.CallbackData)
		require.NoError(t, err)
		assert.Equal(t, email.FolderSent, data.Folder)
	}
}
