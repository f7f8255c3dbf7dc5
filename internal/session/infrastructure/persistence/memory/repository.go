// Package memory 提供进程内仓储实现，用于本地开发与测试
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wyfcoding/zksession/internal/session/domain"
)

type sessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	locks    map[string]*sync.Mutex
	nextID   uint64
}

// NewSessionRepository 创建并返回一个新的内存版 SessionRepository 实例。
func NewSessionRepository() domain.SessionRepository {
	return &sessionRepository{
		sessions: make(map[string]*domain.Session),
		locks:    make(map[string]*sync.Mutex),
		nextID:   1,
	}
}

func (r *sessionRepository) Get(ctx context.Context, user string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copySession(r.sessions[user]), nil
}

// Mutate 按地址取互斥锁，同一地址的变更串行执行，不同地址互不阻塞。
// fn 报错时不持久化任何内容，与 mysql 版的事务回滚语义一致。
func (r *sessionRepository) Mutate(ctx context.Context, user string, fn func(ctx context.Context, current *domain.Session) (*domain.Session, error)) (*domain.Session, error) {
	lock := r.userLock(user)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	current := copySession(r.sessions[user])
	r.mu.RUnlock()

	next, err := fn(ctx, current)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if next.ID == 0 {
		next.ID = r.nextID
		r.nextID++
	}
	r.sessions[user] = copySession(next)
	r.mu.Unlock()

	return next, nil
}

func (r *sessionRepository) CountValid(ctx context.Context) (int64, error) {
	now := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, s := range r.sessions {
		if s.ValidAt(now) {
			count++
		}
	}
	return count, nil
}

func (r *sessionRepository) userLock(user string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[user]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[user] = lock
	}
	return lock
}

func copySession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

type traderRepository struct {
	mu      sync.RWMutex
	traders map[string]time.Time
}

// NewTraderRepository 创建并返回一个新的内存版 TraderRepository 实例。
func NewTraderRepository() domain.TraderRepository {
	return &traderRepository{traders: make(map[string]time.Time)}
}

func (r *traderRepository) Add(ctx context.Context, trader string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.traders[trader]; !ok {
		r.traders[trader] = time.Now()
	}
	return nil
}

func (r *traderRepository) Remove(ctx context.Context, trader string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.traders, trader)
	return nil
}

func (r *traderRepository) IsAuthorized(ctx context.Context, trader string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.traders[trader]
	return ok, nil
}

func (r *traderRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.traders)), nil
}

// WithTx 内存实现没有事务，直接执行
func (r *traderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
