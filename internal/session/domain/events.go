package domain

import (
	"time"
)

// SessionCreatedEvent 会话创建事件
type SessionCreatedEvent struct {
	User       string    `json:"user"`
	Expiry     int64     `json:"expiry"`
	SpendLimit string    `json:"spend_limit"`
	OccurredOn time.Time `json:"occurred_on"`
}

// TradeExecutedEvent 交易执行事件
type TradeExecutedEvent struct {
	User       string    `json:"user"`
	Caller     string    `json:"caller"`
	Amount     string    `json:"amount"`
	Remaining  string    `json:"remaining"`
	OccurredOn time.Time `json:"occurred_on"`
}

// SessionExpiredEvent 会话强制过期事件
type SessionExpiredEvent struct {
	User       string    `json:"user"`
	OccurredOn time.Time `json:"occurred_on"`
}

// TraderAuthorizedEvent 交易员授权事件
type TraderAuthorizedEvent struct {
	Trader     string    `json:"trader"`
	OccurredOn time.Time `json:"occurred_on"`
}

// TraderRevokedEvent 交易员撤销事件
type TraderRevokedEvent struct {
	Trader     string    `json:"trader"`
	OccurredOn time.Time `json:"occurred_on"`
}
