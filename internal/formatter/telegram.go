package formatter

import (
	"fmt"
	"strings"

	"github.com/mixelka/unimail/internal/email"
	"github.com/mixelka/unimail/internal/parser"
	"github.com/mixelka/unimail/pkg/models"
)

const dateLayout = "02.01.2006 15:04"

// TelegramFormatter formats emails for Telegram
type TelegramFormatter struct {
	maxLength    int
	previewRunes int
	parser       *parser.HTMLParser
	codes        *parser.CodeFinder
}

// NewTelegramFormatter creates a new Telegram formatter
func NewTelegramFormatter(p *parser.HTMLParser, codes *parser.CodeFinder) *TelegramFormatter {
	return &TelegramFormatter{
		maxLength:    4000, // Leave room for markup
		previewRunes: 60,
		parser:       p,
		codes:        codes,
	}
}

// FormatEmailList renders a numbered list of email headers. Numbers match
// the buttons of BuildListKeyboard.
func (f *TelegramFormatter) FormatEmailList(title string, emails []models.Email) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>%s</b>\n\n", escapeHTML(title)))

	if len(emails) == 0 {
		sb.WriteString("Писем нет")
		return sb.String()
	}

	for i, e := range emails {
		marker := "✉️"
		if e.Seen {
			marker = "📭"
		}
		sb.WriteString(fmt.Sprintf("%d. %s <b>%s</b>\n", i+1, marker, escapeHTML(parser.Truncate(e.Subject, f.previewRunes))))
		sb.WriteString(fmt.Sprintf("   %s · %s\n", escapeHTML(senderLabel(e.From)), e.Date.Local().Format(dateLayout)))
		if e.AccountEmail != "" {
			sb.WriteString(fmt.Sprintf("   <i>%s</i>\n", escapeHTML(e.AccountEmail)))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatUnified renders a cross-account list with a note about accounts
// that could not be read.
func (f *TelegramFormatter) FormatUnified(title string, res *email.UnifiedResult) string {
	text := f.FormatEmailList(title, res.Emails)
	if len(res.Failures) == 0 {
		return text
	}

	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n\n")
	if res.Partial {
		sb.WriteString("⏱ Не все ящики успели ответить\n")
	}
	for _, fl := range res.Failures {
		sb.WriteString(fmt.Sprintf("⚠️ %s: %s\n", escapeHTML(fl.Email), escapeHTML(FailureText(fl.Err))))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatEmail formats an opened email: headers, attachments, detected
// one-time codes and body.
func (f *TelegramFormatter) FormatEmail(e *models.Email) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("<b>От:</b> %s\n", escapeHTML(addressLabel(e.From))))
	if len(e.To) > 0 {
		sb.WriteString(fmt.Sprintf("<b>Кому:</b> %s\n", escapeHTML(addressList(e.To))))
	}
	if len(e.Cc) > 0 {
		sb.WriteString(fmt.Sprintf("<b>Копия:</b> %s\n", escapeHTML(addressList(e.Cc))))
	}
	sb.WriteString(fmt.Sprintf("<b>Тема:</b> %s\n", escapeHTML(e.Subject)))
	sb.WriteString(fmt.Sprintf("<b>Дата:</b> %s\n", e.Date.Local().Format(dateLayout)))
	sb.WriteString(fmt.Sprintf("<b>Ящик:</b> %s / %s\n", escapeHTML(e.AccountEmail), escapeHTML(e.Folder)))

	if len(e.Attachments) > 0 {
		sb.WriteString("\n<b>Вложения:</b>\n")
		for _, a := range e.Attachments {
			sb.WriteString(fmt.Sprintf("📎 %s (%s)\n", escapeHTML(a.Filename), humanSize(a.Size)))
		}
	}

	plain := f.parser.PlainText(e.Body)
	if f.codes != nil {
		if codes := f.codes.Find(plain); len(codes) > 0 {
			sb.WriteString("\n<b>Коды:</b> ")
			for i, c := range codes {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(fmt.Sprintf("<code>%s</code>", escapeHTML(c.Value)))
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	body := parser.Truncate(plain, f.maxLength-len([]rune(sb.String()))-50)
	if body == "" {
		body = "(пустое письмо)"
	}
	sb.WriteString(escapeHTML(body))
	return sb.String()
}

// FormatUnread renders per-account unread counters.
func (f *TelegramFormatter) FormatUnread(c *email.UnreadCounts) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>Непрочитанные:</b> %d (входящие %d, спам %d)\n\n", c.Total, c.Inbox, c.Spam))
	for _, a := range c.ByAccount {
		if a.Err != nil {
			sb.WriteString(fmt.Sprintf("⚠️ %s: %s\n", escapeHTML(a.Email), escapeHTML(FailureText(a.Err))))
			continue
		}
		sb.WriteString(fmt.Sprintf("• %s: %d / спам %d\n", escapeHTML(a.Email), a.Inbox, a.Spam))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatAccounts renders the user's connected accounts.
func (f *TelegramFormatter) FormatAccounts(accounts []*models.Account) string {
	if len(accounts) == 0 {
		return "Нет подключенных почтовых аккаунтов\nИспользуйте /connect"
	}

	var sb strings.Builder
	sb.WriteString("<b>Подключенные почтовые аккаунты:</b>\n\n")
	for _, acc := range accounts {
		status := "🟢"
		if !acc.IsActive {
			status = "🔴"
		}
		sb.WriteString(fmt.Sprintf("%s <b>%s</b> (id %d)\n", status, escapeHTML(acc.Email), acc.ID))
		sb.WriteString(fmt.Sprintf("   IMAP: %s, SMTP: %s\n", acc.IMAP().Addr(), acc.SMTP().Addr()))
		if acc.LastSync.Valid {
			sb.WriteString(fmt.Sprintf("   Синхронизация: %s\n", acc.LastSync.Time.Local().Format(dateLayout)))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FailureText turns an engine error into a short user-facing message.
func FailureText(err error) string {
	fl := email.Describe(err)
	switch fl.Kind {
	case email.KindConnection:
		return "нет подключения к серверу"
	case email.KindFolderNotFound:
		return "папка не найдена"
	case email.KindNotFound:
		return "письмо или аккаунт не найдены"
	case email.KindTimeout:
		return "сервер не ответил вовремя"
	case email.KindSend:
		return "сервер отклонил письмо: " + fl.Message
	default:
		return fl.Message
	}
}

func senderLabel(a models.Address) string {
	if a.Name != "" {
		return a.Name
	}
	return a.Address
}

func addressLabel(a models.Address) string {
	if a.Name != "" && a.Name != a.Address && a.Address != "" {
		return fmt.Sprintf("%s <%s>", a.Name, a.Address)
	}
	return senderLabel(a)
}

func addressList(list []models.Address) string {
	parts := make([]string, len(list))
	for i, a := range list {
		parts[i] = addressLabel(a)
	}
	return strings.Join(parts, ", ")
}

func humanSize(n uint32) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f МБ", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f КБ", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d Б", n)
	}
}

// escapeHTML escapes HTML special characters for Telegram
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
