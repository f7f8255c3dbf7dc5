// Package contextx 提供通过 context 传递事务句柄的助手
package contextx

import (
	"context"
)

type txKey struct{}

// WithTx 把事务句柄绑定到 context
func WithTx(ctx context.Context, tx any) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTx 取出绑定的事务句柄，未绑定时返回 nil
func GetTx(ctx context.Context) any {
	return ctx.Value(txKey{})
}
