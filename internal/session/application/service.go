package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/zksession/internal/session/domain"
	"github.com/wyfcoding/zksession/pkg/metrics"
)

type CreateSessionCommand struct {
	Caller     string
	Duration   int64 // seconds
	SpendLimit decimal.Decimal
}

type ExecuteTradeCommand struct {
	Caller string
	User   string
	Amount decimal.Decimal
}

type AuthorizeTraderCommand struct {
	Trader string
}

type RevokeTraderCommand struct {
	Trader string
}

type EmergencyExpireCommand struct {
	Caller string
	User   string
}

type TradeResult struct {
	User      string `json:"user"`
	Amount    string `json:"amount"`
	Spent     string `json:"spent"`
	Remaining string `json:"remaining"`
}

type SessionApplicationService struct {
	sessions    domain.SessionRepository
	traders     domain.TraderRepository
	cache       domain.SessionCache
	publisher   domain.EventPublisher
	admins      map[string]struct{}
	maxDuration time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewSessionApplicationService(
	sessions domain.SessionRepository,
	traders domain.TraderRepository,
	cache domain.SessionCache,
	publisher domain.EventPublisher,
	adminAddresses []string,
	maxDuration time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
) *SessionApplicationService {
	admins := make(map[string]struct{}, len(adminAddresses))
	for _, addr := range adminAddresses {
		admins[domain.NormalizeAddress(addr)] = struct{}{}
	}

	return &SessionApplicationService{
		sessions:    sessions,
		traders:     traders,
		cache:       cache,
		publisher:   publisher,
		admins:      admins,
		maxDuration: maxDuration,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
	}
}

// WithClock 替换时间源，过期场景的测试不需要真实等待
func (s *SessionApplicationService) WithClock(now func() time.Time) *SessionApplicationService {
	s.now = now
	return s
}

func (s *SessionApplicationService) CreateSession(ctx context.Context, cmd *CreateSessionCommand) (*SessionDTO, error) {
	caller := domain.NormalizeAddress(cmd.Caller)
	if caller == "" {
		return nil, domain.ErrInvalidAddress
	}
	duration := time.Duration(cmd.Duration) * time.Second
	if s.maxDuration > 0 && duration > s.maxDuration {
		return nil, fmt.Errorf("%w: exceeds configured maximum of %s", domain.ErrInvalidDuration, s.maxDuration)
	}

	now := s.now()
	session, err := s.sessions.Mutate(ctx, caller, func(txCtx context.Context, current *domain.Session) (*domain.Session, error) {
		if current.ValidAt(now) {
			return nil, domain.ErrSessionAlreadyExists
		}
		next, err := domain.NewSession(caller, duration, cmd.SpendLimit, now)
		if err != nil {
			return nil, err
		}
		// 过期/失效记录被覆盖而不是删除，保留行 ID
		if current != nil {
			next.ID = current.ID
			next.CreatedAt = current.CreatedAt
		}
		// 事件与会话行同事务提交
		if err := s.publisher.PublishSessionCreated(txCtx, domain.SessionCreatedEvent{
			User:       next.User,
			Expiry:     next.Expiry.Unix(),
			SpendLimit: next.SpendLimit.String(),
			OccurredOn: now,
		}); err != nil {
			return nil, fmt.Errorf("failed to persist session created event: %w", err)
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	s.refreshCache(ctx, session)
	if s.metrics != nil {
		s.metrics.SessionsCreatedTotal.Inc()
	}

	s.logger.Info("session created",
		"user", session.User,
		"expiry", session.Expiry,
		"spend_limit", session.SpendLimit.String(),
	)
	return ToSessionDTO(session, now), nil
}

func (s *SessionApplicationService) ExecuteTrade(ctx context.Context, cmd *ExecuteTradeCommand) (*TradeResult, error) {
	caller := domain.NormalizeAddress(cmd.Caller)
	user := domain.NormalizeAddress(cmd.User)
	if caller == "" || user == "" {
		return nil, domain.ErrInvalidAddress
	}

	if caller != user {
		authorized, err := s.traders.IsAuthorized(ctx, caller)
		if err != nil {
			return nil, err
		}
		if !authorized {
			s.rejectTrade("unauthorized")
			return nil, domain.ErrUnauthorized
		}
	}

	now := s.now()
	var remaining decimal.Decimal
	session, err := s.sessions.Mutate(ctx, user, func(txCtx context.Context, current *domain.Session) (*domain.Session, error) {
		if current == nil {
			return nil, domain.ErrSessionInvalid
		}
		r, err := current.Spend(cmd.Amount, now)
		if err != nil {
			return nil, err
		}
		remaining = r
		if err := s.publisher.PublishTradeExecuted(txCtx, domain.TradeExecutedEvent{
			User:       current.User,
			Caller:     caller,
			Amount:     cmd.Amount.String(),
			Remaining:  remaining.String(),
			OccurredOn: now,
		}); err != nil {
			return nil, fmt.Errorf("failed to persist trade executed event: %w", err)
		}
		return current, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionInvalid):
			s.rejectTrade("session_invalid")
		case errors.Is(err, domain.ErrBudgetExceeded):
			s.rejectTrade("budget_exceeded")
		case errors.Is(err, domain.ErrInvalidAmount):
			s.rejectTrade("invalid_amount")
		}
		return nil, err
	}

	s.refreshCache(ctx, session)
	if s.metrics != nil {
		s.metrics.TradesTotal.Inc()
	}

	s.logger.Info("trade executed",
		"user", session.User,
		"caller", caller,
		"amount", cmd.Amount.String(),
		"remaining", remaining.String(),
	)
	return &TradeResult{
		User:      session.User,
		Amount:    cmd.Amount.String(),
		Spent:     session.Spent.String(),
		Remaining: remaining.String(),
	}, nil
}

func (s *SessionApplicationService) AuthorizeTrader(ctx context.Context, cmd *AuthorizeTraderCommand) error {
	trader := domain.NormalizeAddress(cmd.Trader)
	if trader == "" {
		return domain.ErrInvalidAddress
	}

	// 允许列表写入与事件同事务
	err := s.traders.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.traders.Add(txCtx, trader); err != nil {
			return err
		}
		return s.publisher.PublishTraderAuthorized(txCtx, domain.TraderAuthorizedEvent{
			Trader:     trader,
			OccurredOn: s.now(),
		})
	})
	if err != nil {
		return err
	}
	s.refreshTraderGauge(ctx)

	s.logger.Info("trader authorized", "trader", trader)
	return nil
}

func (s *SessionApplicationService) RevokeTrader(ctx context.Context, cmd *RevokeTraderCommand) error {
	trader := domain.NormalizeAddress(cmd.Trader)
	if trader == "" {
		return domain.ErrInvalidAddress
	}

	err := s.traders.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.traders.Remove(txCtx, trader); err != nil {
			return err
		}
		return s.publisher.PublishTraderRevoked(txCtx, domain.TraderRevokedEvent{
			Trader:     trader,
			OccurredOn: s.now(),
		})
	})
	if err != nil {
		return err
	}
	s.refreshTraderGauge(ctx)

	s.logger.Info("trader revoked", "trader", trader)
	return nil
}

func (s *SessionApplicationService) EmergencyExpireSession(ctx context.Context, cmd *EmergencyExpireCommand) error {
	caller := domain.NormalizeAddress(cmd.Caller)
	user := domain.NormalizeAddress(cmd.User)
	if caller == "" || user == "" {
		return domain.ErrInvalidAddress
	}

	if caller != user {
		if _, ok := s.admins[caller]; !ok {
			return domain.ErrUnauthorized
		}
	}

	now := s.now()
	session, err := s.sessions.Mutate(ctx, user, func(txCtx context.Context, current *domain.Session) (*domain.Session, error) {
		if current == nil {
			return nil, domain.ErrSessionNotFound
		}
		current.ForceExpire(now)
		if err := s.publisher.PublishSessionExpired(txCtx, domain.SessionExpiredEvent{
			User:       current.User,
			OccurredOn: now,
		}); err != nil {
			return nil, fmt.Errorf("failed to persist session expired event: %w", err)
		}
		return current, nil
	})
	if err != nil {
		return err
	}

	// 紧急过期是恢复路径，直接作废快照而不是回写
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, session.User); err != nil {
			s.logger.Warn("session cache invalidate failed", "user", session.User, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.SessionsExpiredTotal.Inc()
	}

	s.logger.Info("session force-expired", "user", session.User, "caller", caller)
	return nil
}

func (s *SessionApplicationService) GetSession(ctx context.Context, user string) (*SessionDTO, error) {
	session, err := s.loadSession(ctx, user)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return ToSessionDTO(session, s.now()), nil
}

func (s *SessionApplicationService) IsSessionValid(ctx context.Context, user string) (bool, error) {
	session, err := s.loadSession(ctx, user)
	if err != nil {
		return false, err
	}
	return session.ValidAt(s.now()), nil
}

func (s *SessionApplicationService) GetRemainingLimit(ctx context.Context, user string) (decimal.Decimal, error) {
	session, err := s.loadSession(ctx, user)
	if err != nil {
		return decimal.Zero, err
	}
	if session == nil {
		return decimal.Zero, nil
	}
	return session.RemainingAt(s.now()), nil
}

// loadSession 读路径：先查快照缓存，未命中回源并回填
func (s *SessionApplicationService) loadSession(ctx context.Context, user string) (*domain.Session, error) {
	user = domain.NormalizeAddress(user)
	if user == "" {
		return nil, domain.ErrInvalidAddress
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, user)
		if err != nil {
			s.logger.Warn("session cache read failed", "user", user, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	session, err := s.sessions.Get(ctx, user)
	if err != nil {
		return nil, err
	}
	if session != nil {
		s.refreshCache(ctx, session)
	}
	return session, nil
}

func (s *SessionApplicationService) refreshCache(ctx context.Context, session *domain.Session) {
	if s.cache == nil || session == nil {
		return
	}
	if err := s.cache.Set(ctx, session); err != nil {
		s.logger.Warn("session cache write failed", "user", session.User, "error", err)
	}
}

func (s *SessionApplicationService) refreshTraderGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	count, err := s.traders.Count(ctx)
	if err != nil {
		return
	}
	s.metrics.AuthorizedTraders.Set(float64(count))
}

func (s *SessionApplicationService) rejectTrade(reason string) {
	if s.metrics != nil {
		s.metrics.TradesRejectedTotal.WithLabelValues(reason).Inc()
	}
}

// RefreshActiveSessions 刷新有效会话 gauge，由后台定时任务调用
func (s *SessionApplicationService) RefreshActiveSessions(ctx context.Context) error {
	count, err := s.sessions.CountValid(ctx)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.SessionsActive.Set(float64(count))
	}
	return nil
}
