package application

import (
	"time"

	"github.com/wyfcoding/zksession/internal/session/domain"
)

// SessionDTO 会话数据传输对象，金额字段一律用字符串避免精度丢失
type SessionDTO struct {
	User       string `json:"user"`
	Expiry     int64  `json:"expiry"`
	SpendLimit string `json:"spend_limit"`
	Spent      string `json:"spent"`
	Remaining  string `json:"remaining"`
	IsActive   bool   `json:"is_active"`
	Valid      bool   `json:"valid"`
}

func ToSessionDTO(session *domain.Session, now time.Time) *SessionDTO {
	if session == nil {
		return nil
	}
	return &SessionDTO{
		User:       session.User,
		Expiry:     session.Expiry.Unix(),
		SpendLimit: session.SpendLimit.String(),
		Spent:      session.Spent.String(),
		Remaining:  session.RemainingAt(now).String(),
		IsActive:   session.IsActive,
		Valid:      session.ValidAt(now),
	}
}
