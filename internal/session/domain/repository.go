package domain

import (
	"context"
)

// SessionRepository 会话仓储。Get 未命中返回 (nil, nil)。
//
// Mutate 在针对单个用户的互斥临界区内执行 fn：fn 收到该用户当前的会话
// （不存在时为 nil），返回需要持久化的会话。这样 spent+amount<=limit 的
// check-then-update 对同一地址是串行且原子的；不同地址互不阻塞。
// fn 收到的 ctx 携带进行中的事务，fn 内通过 EventPublisher 写出的事件
// 与会话行一起提交或一起回滚。
type SessionRepository interface {
	Get(ctx context.Context, user string) (*Session, error)
	Mutate(ctx context.Context, user string, fn func(ctx context.Context, current *Session) (*Session, error)) (*Session, error)
	CountValid(ctx context.Context) (int64, error)
}

// TraderRepository 授权交易员允许列表，插入与删除都是幂等的。
// WithTx 在一个事务内执行 fn，fn 的 ctx 携带该事务。
type TraderRepository interface {
	Add(ctx context.Context, trader string) error
	Remove(ctx context.Context, trader string) error
	IsAuthorized(ctx context.Context, trader string) (bool, error)
	Count(ctx context.Context) (int64, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SessionCache 读侧会话快照缓存，未命中返回 (nil, nil)
type SessionCache interface {
	Get(ctx context.Context, user string) (*Session, error)
	Set(ctx context.Context, session *Session) error
	Invalidate(ctx context.Context, user string) error
}
