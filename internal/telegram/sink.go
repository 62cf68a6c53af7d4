package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// MessageRef identifies one sent message for later in-place edits
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Sink is the outbound render channel. Handlers talk to it instead of the
// bot API directly so the render pipeline can be exercised without a live
// Telegram connection.
type Sink interface {
	Send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) (MessageRef, error)
	SendHTML(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) (MessageRef, error)
	Reply(chatID int64, replyTo int, text string, markup *tgbotapi.InlineKeyboardMarkup) (MessageRef, error)
	Edit(ref MessageRef, text string, markup *tgbotapi.InlineKeyboardMarkup) error
	// EditHTML edits with HTML parse mode, falling back to plain text when
	// Telegram rejects the markup.
	EditHTML(ref MessageRef, html, plain string, markup *tgbotapi.InlineKeyboardMarkup) error
	EditMarkup(ref MessageRef, markup tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(callbackID, text string) error
}

// BotSink implements Sink over the Telegram bot API
type BotSink struct {
	bot    *tgbotapi.BotAPI
	logger *logrus.Logger
}

// NewBotSink creates a sink backed by a live bot connection
func NewBotSink(bot *tgbotapi.BotAPI, logger *logrus.Logger) *BotSink {
	return &BotSink{bot: bot, logger: logger}
}

func (s *BotSink) Send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) (MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}

	sent, err := s.bot.Send(msg)
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (s *BotSink) SendHTML(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) (MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	if markup != nil {
		msg.ReplyMarkup = *markup
	}

	sent, err := s.bot.Send(msg)
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (s *BotSink) Reply(chatID int64, replyTo int, text string, markup *tgbotapi.InlineKeyboardMarkup) (MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if markup != nil {
		msg.ReplyMarkup = *markup
	}

	sent, err := s.bot.Send(msg)
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (s *BotSink) Edit(ref MessageRef, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	edit.ReplyMarkup = markup

	_, err := s.bot.Send(edit)
	return err
}

func (s *BotSink) EditHTML(ref MessageRef, html, plain string, markup *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, html)
	edit.ParseMode = "HTML"
	edit.ReplyMarkup = markup

	if _, err := s.bot.Send(edit); err != nil {
		s.logger.WithError(err).Warn("HTML edit rejected, retrying as plain text")
		return s.Edit(ref, plain, markup)
	}
	return nil
}

func (s *BotSink) EditMarkup(ref MessageRef, markup tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageReplyMarkup(ref.ChatID, ref.MessageID, markup)
	_, err := s.bot.Send(edit)
	return err
}

func (s *BotSink) AnswerCallback(callbackID, text string) error {
	_, err := s.bot.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}
