package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// sendMessage sends a message to a chat, inside a topic when topicID is set
func (b *Bot) sendMessage(ctx context.Context, chatID int64, topicID int, text string) (*models.Message, error) {
	return b.sendMessageWithKeyboard(ctx, chatID, topicID, text, nil)
}

// sendMessageWithKeyboard sends a message with inline keyboard
func (b *Bot) sendMessageWithKeyboard(ctx context.Context, chatID int64, topicID int, text string, keyboard *models.InlineKeyboardMarkup) (*models.Message, error) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}
	if topicID != 0 {
		params.MessageThreadID = topicID
	}

	m, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		b.logger.Warn("failed to send message", "chat_id", chatID, "error", err)
	}
	return m, err
}

// deleteMessage deletes a message
func (b *Bot) deleteMessage(ctx context.Context, chatID int64, msgID int) error {
	_, err := b.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: msgID,
	})
	return err
}

// answerCallback answers a callback query
func (b *Bot) answerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	_, err := b.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       showAlert,
	})
	return err
}

// callbackChat returns where the message carrying the pressed button lives.
func callbackChat(cb *models.CallbackQuery) (chatID int64, topicID int, ok bool) {
	if m := cb.Message.Message; m != nil {
		return m.Chat.ID, m.MessageThreadID, true
	}
	if m := cb.Message.InaccessibleMessage; m != nil {
		return m.Chat.ID, 0, true
	}
	return 0, 0, false
}
