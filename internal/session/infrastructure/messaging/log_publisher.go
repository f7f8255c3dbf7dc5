package messaging

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/zksession/internal/session/domain"
)

// LogEventPublisher 仅写日志的事件发布者，memory 驱动下没有 outbox 表时使用
type LogEventPublisher struct {
	logger *slog.Logger
}

// NewLogEventPublisher 创建新的 LogEventPublisher 实例
func NewLogEventPublisher(logger *slog.Logger) *LogEventPublisher {
	return &LogEventPublisher{logger: logger}
}

func (p *LogEventPublisher) PublishSessionCreated(ctx context.Context, event domain.SessionCreatedEvent) error {
	p.logger.Info("event: session created", "user", event.User, "expiry", event.Expiry, "spend_limit", event.SpendLimit)
	return nil
}

func (p *LogEventPublisher) PublishTradeExecuted(ctx context.Context, event domain.TradeExecutedEvent) error {
	p.logger.Info("event: trade executed", "user", event.User, "caller", event.Caller, "amount", event.Amount, "remaining", event.Remaining)
	return nil
}

func (p *LogEventPublisher) PublishSessionExpired(ctx context.Context, event domain.SessionExpiredEvent) error {
	p.logger.Info("event: session expired", "user", event.User)
	return nil
}

func (p *LogEventPublisher) PublishTraderAuthorized(ctx context.Context, event domain.TraderAuthorizedEvent) error {
	p.logger.Info("event: trader authorized", "trader", event.Trader)
	return nil
}

func (p *LogEventPublisher) PublishTraderRevoked(ctx context.Context, event domain.TraderRevokedEvent) error {
	p.logger.Info("event: trader revoked", "trader", event.Trader)
	return nil
}
