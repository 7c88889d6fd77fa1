package telegram

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/unimail/internal/config"
	"github.com/mixelka/unimail/internal/database"
	"github.com/mixelka/unimail/internal/email"
	"github.com/mixelka/unimail/internal/formatter"
	"github.com/mixelka/unimail/internal/secret"
)

// maxListSize caps the count argument of list commands.
const maxListSize = 50

// Bot represents the Telegram bot. The Telegram user id is the owner of
// every account the user connects.
type Bot struct {
	bot       *bot.Bot
	db        *database.DB
	box       *secret.Box
	mail      *email.Client
	formatter *formatter.TelegramFormatter
	logger    *slog.Logger
	config    *config.Config
}

// BotDeps dependencies for creating a bot
type BotDeps struct {
	Config    *config.Config
	DB        *database.DB
	Box       *secret.Box
	Mail      *email.Client
	Formatter *formatter.TelegramFormatter
	Logger    *slog.Logger
}

// NewBot creates a new Telegram bot
func NewBot(deps BotDeps) (*Bot, error) {
	b := &Bot{
		db:        deps.DB,
		box:       deps.Box,
		mail:      deps.Mail,
		formatter: deps.Formatter,
		logger:    deps.Logger.With("component", "telegram_bot"),
		config:    deps.Config,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}

	tgBot, err := bot.New(deps.Config.TelegramToken, opts...)
	if err != nil {
		return nil, err
	}

	b.bot = tgBot
	b.registerHandlers()

	return b, nil
}

// registerHandlers registers command handlers
func (b *Bot) registerHandlers() {
	commands := map[string]bot.HandlerFunc{
		"/connect":     b.handleConnect,
		"/disconnect":  b.handleDisconnect,
		"/accounts":    b.handleAccounts,
		"/inbox":       b.folderHandler(email.FolderInbox, "Входящие"),
		"/sent":        b.folderHandler(email.FolderSent, "Отправленные"),
		"/spam":        b.folderHandler(email.FolderSpam, "Спам"),
		"/trash":       b.folderHandler(email.FolderTrash, "Корзина"),
		"/unread":      b.handleUnread,
		"/read":        b.handleRead,
		"/markallread": b.handleMarkAllRead,
		"/start":       b.handleHelp,
		"/help":        b.handleHelp,
	}
	for cmd, h := range commands {
		b.bot.RegisterHandler(bot.HandlerTypeMessageText, cmd, bot.MatchTypePrefix, h)
	}
	b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, b.handleCallback)
}

// Start starts the bot
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("starting telegram bot")
	b.bot.Start(ctx)
}

// defaultHandler handles unknown messages
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	if update.Message.Text != "" && update.Message.Text[0] == '/' {
		b.logger.Debug("unknown command", "text", update.Message.Text)
	}
}

// handleHelp handles /start and /help
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	text := `<b>Unimail</b>

Все ваши почтовые ящики в одном чате.

<b>Аккаунты:</b>
/connect email password - подключить почту
/disconnect email - отключить почту
/accounts - список подключенных ящиков

<b>Письма:</b>
/inbox [n] - входящие из всех ящиков
/sent [n] - отправленные
/spam [n] - спам
/trash [n] - корзина
/unread - непрочитанные по ящикам
/read account_id uid [папка] - открыть письмо
/markallread - отметить все входящие прочитанными

<b>Примеры:</b>
<code>/connect myemail@gmail.com apppassword</code>
<code>/connect me@corp.com password imap.corp.com:993 smtp.corp.com:587</code>

<b>Важно:</b>
- Сообщение с паролем удаляется сразу после получения
- Для Gmail используйте пароль приложения
- Серверы определяются автоматически`

	b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, text)
}
