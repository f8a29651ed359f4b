// Package keyboard renders reply markups for bot messages.
package keyboard

import (
	telebot "gopkg.in/telebot.v3"
)

// Builder constructs the inline keyboards the bot sends.
type Builder struct {
	frontendURL string
}

// NewBuilder creates a Builder. frontendURL is the web app opened from the
// welcome message; when empty, Welcome returns no markup.
func NewBuilder(frontendURL string) *Builder {
	return &Builder{frontendURL: frontendURL}
}

// Welcome returns the markup attached to the welcome message.
func (b *Builder) Welcome() *telebot.ReplyMarkup {
	if b == nil || b.frontendURL == "" {
		return nil
	}

	return &telebot.ReplyMarkup{
		InlineKeyboard: [][]telebot.InlineButton{
			{
				{Text: "Open the app", URL: b.frontendURL},
			},
		},
	}
}

// Invite returns the markup attached to the invite-link message: a share
// button pre-filling the user's personal link.
func (b *Builder) Invite(link string) *telebot.ReplyMarkup {
	if b == nil || link == "" {
		return nil
	}

	return &telebot.ReplyMarkup{
		InlineKeyboard: [][]telebot.InlineButton{
			{
				{Text: "Share your link", InlineQuery: link},
			},
		},
	}
}
