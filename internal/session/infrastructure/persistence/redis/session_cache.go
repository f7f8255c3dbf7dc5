package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/zksession/internal/session/domain"
)

const sessionKeyPrefix = "zksession:session:"

// SessionCache 基于 Redis 的会话快照缓存，写路径每次变更后整体覆盖
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache 创建会话缓存，ttl<=0 时使用 5 分钟默认值
func NewSessionCache(client *redis.Client, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SessionCache{client: client, ttl: ttl}
}

func sessionKey(user string) string {
	return sessionKeyPrefix + user
}

func (c *SessionCache) Get(ctx context.Context, user string) (*domain.Session, error) {
	data, err := c.client.Get(ctx, sessionKey(user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session cache: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		// 损坏的条目当作未命中，由回源路径覆盖
		return nil, nil
	}
	return &session, nil
}

func (c *SessionCache) Set(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return nil
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return c.client.Set(ctx, sessionKey(session.User), data, c.ttl).Err()
}

func (c *SessionCache) Invalidate(ctx context.Context, user string) error {
	return c.client.Del(ctx, sessionKey(user)).Err()
}
