package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/infra/metrics"
)

// BotAPI содержит методы tgbotapi.BotAPI, нужные для отправки сообщений.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Gateway реализует domain.Messenger поверх Bot API с ограничением частоты отправки.
type Gateway struct {
	bot     BotAPI
	limiter *rate.Limiter
	timeout time.Duration
}

// NewGateway создаёт шлюз. rps <= 0 отключает ограничение.
func NewGateway(bot BotAPI, rps int, timeout time.Duration) *Gateway {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = rps
	}
	return &Gateway{bot: bot, limiter: rate.NewLimiter(limit, burst), timeout: timeout}
}

// Send отправляет текст, разбивая его на части по лимиту Telegram.
// Клавиатура прикрепляется к первой части, ссылка указывает на неё же.
func (g *Gateway) Send(ctx context.Context, chatID int64, text string, keyboard domain.Keyboard) (domain.MessageRef, error) {
	parts := SplitMessage(text)
	if len(parts) == 0 {
		return domain.MessageRef{}, fmt.Errorf("telegram: empty message")
	}
	var ref domain.MessageRef
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && len(keyboard) > 0 {
			msg.ReplyMarkup = toMarkup(keyboard)
		}
		sent, err := g.do(ctx, "send_message", chatID, func() (tgbotapi.Message, error) {
			return g.bot.Send(msg)
		})
		if err != nil {
			return ref, err
		}
		if i == 0 {
			ref = domain.MessageRef{ChatID: chatID, MessageID: sent.MessageID}
		}
	}
	return ref, nil
}

// Edit заменяет текст и клавиатуру ранее отправленного сообщения.
func (g *Gateway) Edit(ctx context.Context, ref domain.MessageRef, text string, keyboard domain.Keyboard) error {
	if ref.IsZero() {
		return fmt.Errorf("telegram: empty message ref")
	}
	var edit tgbotapi.Chattable
	if len(keyboard) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(ref.ChatID, ref.MessageID, text, toMarkup(keyboard))
	} else {
		edit = tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	}
	_, err := g.do(ctx, "edit_message", ref.ChatID, func() (tgbotapi.Message, error) {
		_, err := g.bot.Request(edit)
		return tgbotapi.Message{}, err
	})
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

// AnswerCallback подтверждает нажатие inline-кнопки.
func (g *Gateway) AnswerCallback(ctx context.Context, callbackID, text string) error {
	_, err := g.do(ctx, "answer_callback", 0, func() (tgbotapi.Message, error) {
		_, err := g.bot.Request(tgbotapi.NewCallback(callbackID, text))
		return tgbotapi.Message{}, err
	})
	return err
}

func (g *Gateway) do(ctx context.Context, op string, chatID int64, call func() (tgbotapi.Message, error)) (tgbotapi.Message, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return tgbotapi.Message{}, fmt.Errorf("telegram: %s: %w", op, err)
	}
	start := time.Now()
	msg, err := callWithContext(ctx, call)
	metrics.ObserveNetworkRequest("telegram_bot", op, strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		return msg, fmt.Errorf("telegram: %s: %w", op, err)
	}
	return msg, nil
}

type callResult struct {
	msg tgbotapi.Message
	err error
}

// callWithContext ограничивает вызов Bot API контекстом. Методы tgbotapi не принимают контекст,
// поэтому по истечении ctx вызов продолжает выполняться в фоне до таймаута HTTP клиента.
func callWithContext(ctx context.Context, call func() (tgbotapi.Message, error)) (tgbotapi.Message, error) {
	done := make(chan callResult, 1)
	go func() {
		msg, err := call()
		done <- callResult{msg: msg, err: err}
	}()
	select {
	case res := <-done:
		return res.msg, res.err
	case <-ctx.Done():
		return tgbotapi.Message{}, ctx.Err()
	}
}

func toMarkup(keyboard domain.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
