package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Session 一个地址一条记录，只覆盖不删除
type Session struct {
	ID         uint64          `json:"id"`
	User       string          `json:"user"`
	Expiry     time.Time       `json:"expiry"`
	SpendLimit decimal.Decimal `json:"spend_limit"`
	Spent      decimal.Decimal `json:"spent"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NormalizeAddress 地址统一小写去空白，账本内所有比较都基于规范形式
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func NewSession(user string, duration time.Duration, spendLimit decimal.Decimal, now time.Time) (*Session, error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if spendLimit.IsNegative() {
		return nil, ErrInvalidAmount
	}

	user = NormalizeAddress(user)
	if user == "" {
		return nil, ErrInvalidAddress
	}

	return &Session{
		User:       user,
		Expiry:     now.Add(duration),
		SpendLimit: spendLimit,
		Spent:      decimal.Zero,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ValidAt 有效性定义：isActive && now < expiry
func (s *Session) ValidAt(now time.Time) bool {
	return s != nil && s.IsActive && now.Before(s.Expiry)
}

// RemainingAt 剩余额度，会话无效时钳制为 0
func (s *Session) RemainingAt(now time.Time) decimal.Decimal {
	if !s.ValidAt(now) {
		return decimal.Zero
	}
	return s.SpendLimit.Sub(s.Spent)
}

// Spend 原子的 check-then-update：校验失败时不产生任何部分变更
func (s *Session) Spend(amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	if !s.ValidAt(now) {
		return decimal.Zero, ErrSessionInvalid
	}

	newSpent := s.Spent.Add(amount)
	if newSpent.GreaterThan(s.SpendLimit) {
		return decimal.Zero, ErrBudgetExceeded
	}

	s.Spent = newSpent
	s.UpdatedAt = now
	return s.SpendLimit.Sub(s.Spent), nil
}

// ForceExpire 特权恢复路径，无条件置为 inactive
func (s *Session) ForceExpire(now time.Time) {
	s.IsActive = false
	s.UpdatedAt = now
}

// AuthorizedTrader 允许代表会话所有者调用 executeTrade 的地址
type AuthorizedTrader struct {
	ID        uint64    `json:"id"`
	Trader    string    `json:"trader"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrSessionInvalid       = errors.New("session expired or inactive")
	ErrBudgetExceeded       = errors.New("spend limit exceeded")
	ErrUnauthorized         = errors.New("caller not authorized")
	ErrInvalidDuration      = errors.New("session duration must be positive")
	ErrInvalidAmount        = errors.New("amount must be non-negative")
	ErrInvalidAddress       = errors.New("invalid address")
)
