package domain

import (
	"context"
)

// EventPublisher 事件发布者接口。ctx 可能携带进行中的事务，
// outbox 实现会把事件写进同一个事务，保证与状态变更一起提交
type EventPublisher interface {
	// PublishSessionCreated 发布会话创建事件
	PublishSessionCreated(ctx context.Context, event SessionCreatedEvent) error

	// PublishTradeExecuted 发布交易执行事件
	PublishTradeExecuted(ctx context.Context, event TradeExecutedEvent) error

	// PublishSessionExpired 发布会话强制过期事件
	PublishSessionExpired(ctx context.Context, event SessionExpiredEvent) error

	// PublishTraderAuthorized 发布交易员授权事件
	PublishTraderAuthorized(ctx context.Context, event TraderAuthorizedEvent) error

	// PublishTraderRevoked 发布交易员撤销事件
	PublishTraderRevoked(ctx context.Context, event TraderRevokedEvent) error
}
