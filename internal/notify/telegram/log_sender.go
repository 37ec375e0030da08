package telegram

import (
	"context"

	"github.com/BearBump/SellerFlow/internal/models"
	"go.uber.org/zap"
)

// LogSender пишет уведомления в лог. Используется, когда токен бота не задан.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendDocuments(ctx context.Context, chatID int64, orderList, stickers models.Document, lang string) error {
	s.logger.Info("documents ready",
		zap.Int64("chat_id", chatID),
		zap.String("order_list", orderList.FileName),
		zap.Int("order_list_bytes", len(orderList.Data)),
		zap.String("stickers", stickers.FileName),
		zap.Int("stickers_bytes", len(stickers.Data)),
	)
	return nil
}

func (s *LogSender) SendFailure(ctx context.Context, chatID int64, message, lang string) error {
	s.logger.Info("job failure notification", zap.Int64("chat_id", chatID), zap.String("message", message))
	return nil
}
