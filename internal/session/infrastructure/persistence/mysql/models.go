package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/zksession/internal/session/domain"
)

// SessionModel MySQL 会话表映射，user 上唯一索引保证一个地址一行
type SessionModel struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement;column:id"`
	User       string          `gorm:"column:user;type:varchar(64);uniqueIndex;not null"`
	Expiry     time.Time       `gorm:"column:expiry;not null"`
	SpendLimit decimal.Decimal `gorm:"column:spend_limit;type:decimal(36,18);not null"`
	Spent      decimal.Decimal `gorm:"column:spent;type:decimal(36,18);not null"`
	IsActive   bool            `gorm:"column:is_active;type:boolean;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
}

func (SessionModel) TableName() string { return "sessions" }

// AuthorizedTraderModel MySQL 授权交易员表映射
type AuthorizedTraderModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement;column:id"`
	Trader    string    `gorm:"column:trader;type:varchar(64);uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (AuthorizedTraderModel) TableName() string { return "authorized_traders" }

// --- mapping helpers ---

func toSessionModel(s *domain.Session) *SessionModel {
	if s == nil {
		return nil
	}
	return &SessionModel{
		ID:         s.ID,
		User:       s.User,
		Expiry:     s.Expiry,
		SpendLimit: s.SpendLimit,
		Spent:      s.Spent,
		IsActive:   s.IsActive,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func toSession(m *SessionModel) *domain.Session {
	if m == nil {
		return nil
	}
	return &domain.Session{
		ID:         m.ID,
		User:       m.User,
		Expiry:     m.Expiry,
		SpendLimit: m.SpendLimit,
		Spent:      m.Spent,
		IsActive:   m.IsActive,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
