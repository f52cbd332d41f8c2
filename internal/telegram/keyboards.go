package telegram

import (
	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/premium-bot/internal/chat"
)

// ReplyKeyboard renders a reply's actions as an inline keyboard, one button
// per row. Returns nil when there is nothing to select.
func ReplyKeyboard(reply chat.Reply) *models.InlineKeyboardMarkup {
	if len(reply.Actions) == 0 {
		return nil
	}

	rows := make([][]models.InlineKeyboardButton, 0, len(reply.Actions))
	for _, a := range reply.Actions {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: a.Label, CallbackData: a.ActionID},
		})
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
