package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/unimail/internal/database"
	"github.com/mixelka/unimail/internal/email"
	"github.com/mixelka/unimail/internal/formatter"
	appmodels "github.com/mixelka/unimail/pkg/models"
)

// handleConnect handles /connect command
// Usage: /connect email password [imap_host:port smtp_host:port]
func (b *Bot) handleConnect(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}
	chatID, topicID := msg.Chat.ID, msg.MessageThreadID

	args, err := parseConnectArgs(msg.Text)

	// Delete the message with password immediately
	if len(msg.Text) > len("/connect") {
		if err := b.deleteMessage(ctx, chatID, msg.ID); err != nil {
			b.logger.Warn("failed to delete connect message", "error", err)
		}
	}

	if err != nil {
		b.sendMessage(ctx, chatID, topicID,
			"Использование: <code>/connect email@example.com password</code>\nИли: <code>/connect email@example.com password imap.server.com:993 smtp.server.com:587</code>")
		return
	}

	account := &appmodels.Account{
		UserID:   msg.From.ID,
		Email:    args.Email,
		Password: args.Password,
		IsActive: true,
	}

	if args.IMAP != nil {
		account.IMAPHost, account.IMAPPort, account.IMAPEncryption = args.IMAP.Host, args.IMAP.Port, args.IMAP.Encryption
		account.SMTPHost, account.SMTPPort, account.SMTPEncryption = args.SMTP.Host, args.SMTP.Port, args.SMTP.Encryption
	} else {
		b.sendMessage(ctx, chatID, topicID, "Определяю серверы...")
		settings, err := email.DetectProvider(ctx, args.Email)
		if err != nil {
			b.logger.Error("failed to detect provider", "email", args.Email, "error", err)
			b.sendMessage(ctx, chatID, topicID,
				fmt.Sprintf("Не удалось определить серверы для %s\nУкажите их вручную: <code>/connect email password imap.server.com:993 smtp.server.com:587</code>", args.Email))
			return
		}
		account.IMAPHost, account.IMAPPort, account.IMAPEncryption = settings.IMAP.Host, settings.IMAP.Port, settings.IMAP.Encryption
		account.SMTPHost, account.SMTPPort, account.SMTPEncryption = settings.SMTP.Host, settings.SMTP.Port, settings.SMTP.Encryption
		b.logger.Info("resolved mail servers", "email", args.Email, "provider", settings.Name,
			"imap", settings.IMAP.Addr(), "smtp", settings.SMTP.Addr())
	}

	existing, err := b.db.GetAccountByEmail(ctx, account.UserID, account.Email)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		b.logger.Error("failed to check existing account", "error", err)
		b.sendMessage(ctx, chatID, topicID, "Ошибка проверки существующего подключения")
		return
	}
	if existing != nil {
		b.sendMessage(ctx, chatID, topicID,
			fmt.Sprintf("Почта %s уже подключена\nИспользуйте /disconnect для отключения", existing.Email))
		return
	}

	b.sendMessage(ctx, chatID, topicID, fmt.Sprintf("Проверяю подключение к %s...", account.IMAP().Addr()))

	if err := b.mail.TestConnection(ctx, account); err != nil {
		b.logger.Error("connection test failed", "email", account.Email, "error", err)
		b.sendMessage(ctx, chatID, topicID, fmt.Sprintf("Ошибка подключения: %s", formatter.FailureText(err)))
		return
	}

	encryptedPassword, err := b.box.Encrypt(account.Password)
	if err != nil {
		b.logger.Error("failed to encrypt password", "error", err)
		b.sendMessage(ctx, chatID, topicID, "Ошибка шифрования пароля")
		return
	}
	account.Password = encryptedPassword

	if err := b.db.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			b.sendMessage(ctx, chatID, topicID, fmt.Sprintf("Почта %s уже подключена", account.Email))
			return
		}
		b.logger.Error("failed to create account", "error", err)
		b.sendMessage(ctx, chatID, topicID, "Ошибка сохранения аккаунта в базу данных")
		return
	}

	b.logger.Info("email connected", "email", account.Email, "user_id", account.UserID, "account_id", account.ID)
	b.sendMessage(ctx, chatID, topicID,
		fmt.Sprintf("Почта <b>%s</b> подключена!\nIMAP: %s\nSMTP: %s", account.Email, account.IMAP().Addr(), account.SMTP().Addr()))
}

// handleDisconnect handles /disconnect command
// Usage: /disconnect email
func (b *Bot) handleDisconnect(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}
	chatID, topicID := msg.Chat.ID, msg.MessageThreadID

	addr := argument(msg.Text)
	if addr == "" {
		b.sendMessage(ctx, chatID, topicID, "Использование: <code>/disconnect email@example.com</code>")
		return
	}

	account, err := b.db.GetAccountByEmail(ctx, msg.From.ID, addr)
	if errors.Is(err, database.ErrNotFound) {
		b.sendMessage(ctx, chatID, topicID, fmt.Sprintf("Почта %s не подключена", addr))
		return
	}
	if err != nil {
		b.logger.Error("failed to get account", "error", err)
		b.sendMessage(ctx, chatID, topicID, "Ошибка получения информации об аккаунте")
		return
	}

	if err := b.db.DeleteAccount(ctx, msg.From.ID, account.ID); err != nil {
		b.logger.Error("failed to delete account", "error", err)
		b.sendMessage(ctx, chatID, topicID, "Ошибка удаления аккаунта")
		return
	}

	b.logger.Info("email disconnected", "email", account.Email, "user_id", msg.From.ID)
	b.sendMessage(ctx, chatID, topicID, fmt.Sprintf("Почта <b>%s</b> отключена", account.Email))
}

// handleAccounts handles /accounts command
func (b *Bot) handleAccounts(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	accounts, err := b.db.GetAccountsByUser(ctx, msg.From.ID, false)
	if err != nil {
		b.logger.Error("failed to get accounts", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Ошибка получения списка аккаунтов")
		return
	}

	b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, b.formatter.FormatAccounts(accounts))
}

// folderHandler builds the handler of a unified folder listing command.
func (b *Bot) folderHandler(logical, title string) bot.HandlerFunc {
	return func(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
		msg := update.Message
		if msg.From == nil {
			return
		}
		limit := parseLimit(msg.Text, b.config.DefaultPageSize, maxListSize)

		res, err := b.mail.FetchUnifiedFolder(ctx, msg.From.ID, logical, limit)
		if err != nil {
			b.logger.Error("failed to fetch folder", "folder", logical, "error", err)
			b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Ошибка получения писем: "+formatter.FailureText(err))
			return
		}

		text := b.formatter.FormatUnified(title, res)
		if len(res.Emails) == 0 {
			b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, text)
			return
		}
		b.sendMessageWithKeyboard(ctx, msg.Chat.ID, msg.MessageThreadID, text, formatter.BuildListKeyboard(res.Emails, logical))
	}
}

// handleUnread handles /unread command
func (b *Bot) handleUnread(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	counts, err := b.mail.GetUnreadCounts(ctx, msg.From.ID)
	if err != nil {
		b.logger.Error("failed to count unread", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Ошибка подсчета писем")
		return
	}

	b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, b.formatter.FormatUnread(counts))
}

// handleRead handles /read command
// Usage: /read account_id uid [folder]
func (b *Bot) handleRead(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	args, err := parseReadArgs(msg.Text)
	if err != nil {
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Использование: <code>/read account_id uid [папка]</code>")
		return
	}

	b.showEmail(ctx, msg.Chat.ID, msg.MessageThreadID, msg.From.ID, args.AccountID, args.UID, args.Folder)
}

func (b *Bot) showEmail(ctx context.Context, chatID int64, topicID int, userID, accountID int64, uid uint32, folder string) error {
	e, err := b.mail.ReadEmail(ctx, userID, accountID, uid, folder)
	if err != nil {
		b.logger.Warn("failed to read email", "account_id", accountID, "uid", uid, "folder", folder, "error", err)
		b.sendMessage(ctx, chatID, topicID, "Не удалось открыть письмо: "+formatter.FailureText(err))
		return err
	}

	logical := folder
	if logical == "" {
		logical = email.FolderInbox
	}
	_, err = b.sendMessageWithKeyboard(ctx, chatID, topicID, b.formatter.FormatEmail(e), formatter.BuildEmailKeyboard(*e, logical))
	return err
}

// handleMarkAllRead handles /markallread command
func (b *Bot) handleMarkAllRead(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	res, err := b.mail.MarkAllAsRead(ctx, msg.From.ID, nil, email.FolderInbox)
	if err != nil {
		b.logger.Error("failed to mark all as read", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Ошибка: "+formatter.FailureText(err))
		return
	}

	text := fmt.Sprintf("Отмечено прочитанными: %d", res.Count)
	if res.Errors > 0 {
		text += fmt.Sprintf("\nНе удалось обработать ящиков: %d", res.Errors)
	}
	b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, text)
}

// handleCallback handles inline button callbacks
func (b *Bot) handleCallback(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}

	data, err := formatter.DecodeCallback(callback.Data)
	if err != nil {
		b.logger.Error("failed to decode callback", "error", err, "data", callback.Data)
		b.answerCallback(ctx, callback.ID, "Ошибка", false)
		return
	}

	userID := callback.From.ID
	switch data.Action {
	case appmodels.CallbackRead:
		b.handleReadCallback(ctx, callback, userID, data)
	case appmodels.CallbackUnread:
		if err := b.mail.MarkAs(ctx, userID, data.AccountID, data.UID, false, data.Folder); err != nil {
			b.failCallback(ctx, callback, "mark unread", data, err)
			return
		}
		b.answerCallback(ctx, callback.ID, "Помечено как непрочитанное", false)
	case appmodels.CallbackSpam:
		b.handleMoveCallback(ctx, callback, data, "В спаме", func() (email.MoveOutcome, error) {
			return b.mail.MoveToSpam(ctx, userID, data.AccountID, data.UID, data.Folder)
		})
	case appmodels.CallbackTrash:
		b.handleMoveCallback(ctx, callback, data, "В корзине", func() (email.MoveOutcome, error) {
			return b.mail.MoveToTrash(ctx, userID, data.AccountID, data.UID, data.Folder)
		})
	default:
		b.answerCallback(ctx, callback.ID, "Неизвестное действие", false)
	}
}

func (b *Bot) handleReadCallback(ctx context.Context, callback *models.CallbackQuery, userID int64, data appmodels.CallbackData) {
	chatID, topicID, ok := callbackChat(callback)
	if !ok {
		b.answerCallback(ctx, callback.ID, "Сообщение недоступно", false)
		return
	}
	if err := b.showEmail(ctx, chatID, topicID, userID, data.AccountID, data.UID, data.Folder); err != nil {
		b.answerCallback(ctx, callback.ID, formatter.FailureText(err), false)
		return
	}
	b.answerCallback(ctx, callback.ID, "", false)
}

func (b *Bot) handleMoveCallback(ctx context.Context, callback *models.CallbackQuery, data appmodels.CallbackData, done string, move func() (email.MoveOutcome, error)) {
	out, err := move()
	if err != nil {
		if out.PartialErr != nil {
			// The copy landed but the source message stayed; the user sees it twice.
			b.answerCallback(ctx, callback.ID, fmt.Sprintf("Скопировано в %s, но не удалено из %s", out.UsedFolder, data.Folder), true)
			return
		}
		b.failCallback(ctx, callback, "move", data, err)
		return
	}
	b.answerCallback(ctx, callback.ID, fmt.Sprintf("%s: %s", done, out.UsedFolder), false)
}

func (b *Bot) failCallback(ctx context.Context, callback *models.CallbackQuery, op string, data appmodels.CallbackData, err error) {
	b.logger.Error("callback action failed", "op", op, "account_id", data.AccountID, "uid", data.UID, "folder", data.Folder, "error", err)
	b.answerCallback(ctx, callback.ID, "Ошибка: "+formatter.FailureText(err), true)
}
