// Package ledger 会话账本适配器，把会话应用服务接到报价模块的端口上
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	sessionapp "github.com/wyfcoding/zksession/internal/session/application"
)

// Adapter 实现 quote application 的 SessionLedger 端口
type Adapter struct {
	sessions *sessionapp.SessionApplicationService
}

// NewAdapter 创建账本适配器实例
func NewAdapter(sessions *sessionapp.SessionApplicationService) *Adapter {
	return &Adapter{sessions: sessions}
}

func (a *Adapter) IsSessionValid(ctx context.Context, user string) (bool, error) {
	return a.sessions.IsSessionValid(ctx, user)
}

func (a *Adapter) ExecuteTrade(ctx context.Context, caller, user string, amount decimal.Decimal) error {
	_, err := a.sessions.ExecuteTrade(ctx, &sessionapp.ExecuteTradeCommand{
		Caller: caller,
		User:   user,
		Amount: amount,
	})
	return err
}
