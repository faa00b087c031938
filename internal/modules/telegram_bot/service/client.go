package service

import (
	"context"
	"fmt"

	"alpha_bot/internal/models"
	"alpha_bot/internal/modules/config"
	"alpha_bot/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram — нотифайер о жизни движка: входы, выходы, стопы, тревоги.
type Telegram struct {
	bot    *tgbot.BotAPI
	cfg    *config.Config
	chatID int64
}

func NewTelegram(cfg *config.Config) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    b,
		cfg:    cfg,
		chatID: cfg.Telegram.ChatID,
	}, nil
}

func (t *Telegram) Send(ctx context.Context, msg string) error {
	_, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg))
	if err != nil {
		logger.Warn("[telegram] send: %v", err)
	}
	return err
}

func (t *Telegram) SendF(ctx context.Context, format string, args ...any) error {
	return t.Send(ctx, fmt.Sprintf(format, args...))
}

// SendService — служебные сообщения (старт, стоп, тревоги).
func (t *Telegram) SendService(ctx context.Context, format string, args ...any) {
	_ = t.SendF(ctx, format, args...)
}

// --- готовые сообщения жизненного цикла сделки ---

func (t *Telegram) NotifyOpen(ctx context.Context, p *models.Position, contracts float64) {
	emoji := "🟢"
	if p.Side == models.PosSideShort {
		emoji = "🔴"
	}
	_ = t.SendF(ctx,
		"%s Открыта позиция %s\n"+
			"• Сторона: %s\n"+
			"• Объём: %.4f контрактов\n"+
			"• Вход: %.4f",
		emoji, p.Symbol, p.Side, contracts, p.EntryPrice)
}

func (t *Telegram) NotifyClose(ctx context.Context, symbol string, amount, price, pnl float64, reason string) {
	emoji := "✅"
	if pnl < 0 {
		emoji = "🛑"
	}
	_ = t.SendF(ctx,
		"%s Закрыта позиция %s\n"+
			"• Объём: %.4f\n"+
			"• Цена: %.4f\n"+
			"• PnL: %+.2f USDT\n"+
			"• Причина: %s",
		emoji, symbol, amount, price, pnl, reason)
}

func (t *Telegram) NotifyStopMoved(ctx context.Context, symbol string, from, to float64) {
	_ = t.SendF(ctx, "🔒 %s: стоп подтянут %.4f → %.4f", symbol, from, to)
}

func (t *Telegram) NotifyTPFill(ctx context.Context, symbol string, level int, amount, price float64) {
	_ = t.SendF(ctx, "🎯 %s: тейк уровня %d исполнен — %.4f по ~%.4f", symbol, level, amount, price)
}

func (t *Telegram) NotifyAlert(ctx context.Context, format string, args ...any) {
	_ = t.SendF(ctx, "⚠️ "+format, args...)
}
