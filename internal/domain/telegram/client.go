package telegram

import "gopkg.in/telebot.v3"

// Client defines an interface for sending messages via a Telegram bot.
// Run reports go to the operator chat through it.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}
