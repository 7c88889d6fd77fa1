package formatter

import (
	"encoding/json"
	"fmt"

	"github.com/go-telegram/bot/models"

	appmodels "github.com/mixelka/unimail/pkg/models"
)

// maxCallbackData is Telegram's limit for callback_data in bytes.
const maxCallbackData = 64

// BuildListKeyboard creates one row of Read/Spam/Trash buttons per listed email.
// logical is the role the list was fetched for and stands in for folder
// names too long for the callback payload.
func BuildListKeyboard(emails []appmodels.Email, logical string) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(emails))
	for i, e := range emails {
		rows = append(rows, []models.InlineKeyboardButton{
			button(fmt.Sprintf("📖 %d", i+1), appmodels.CallbackRead, e, logical),
			button("🚫", appmodels.CallbackSpam, e, logical),
			button("🗑", appmodels.CallbackTrash, e, logical),
		})
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// BuildEmailKeyboard creates the action row shown under an opened email.
func BuildEmailKeyboard(e appmodels.Email, logical string) *models.InlineKeyboardMarkup {
	row := []models.InlineKeyboardButton{
		button("Непрочитано", appmodels.CallbackUnread, e, logical),
		button("В спам", appmodels.CallbackSpam, e, logical),
		button("Удалить", appmodels.CallbackTrash, e, logical),
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{row}}
}

func button(text string, action appmodels.CallbackAction, e appmodels.Email, logical string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text: text,
		CallbackData: EncodeCallback(appmodels.CallbackData{
			Action:    action,
			AccountID: e.AccountID,
			UID:       e.UID,
			Folder:    e.Folder,
		}, logical),
	}
}

// EncodeCallback encodes callback data to string. A folder that does not fit
// is replaced by fallback.
func EncodeCallback(data appmodels.CallbackData, fallback string) string {
	b, _ := json.Marshal(data)
	if len(b) > maxCallbackData && data.Folder != fallback {
		data.Folder = fallback
		b, _ = json.Marshal(data)
	}
	return string(b)
}

// DecodeCallback decodes callback data from string
func DecodeCallback(data string) (appmodels.CallbackData, error) {
	var cb appmodels.CallbackData
	err := json.Unmarshal([]byte(data), &cb)
	return cb, err
}
