package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/zksession/internal/session/domain"
	"github.com/wyfcoding/zksession/internal/session/infrastructure/persistence/memory"
)

type capturePublisher struct {
	mu       sync.Mutex
	failWith error
	created  []domain.SessionCreatedEvent
	traded   []domain.TradeExecutedEvent
	expired  []domain.SessionExpiredEvent
	granted  []domain.TraderAuthorizedEvent
	revoked  []domain.TraderRevokedEvent
}

func (p *capturePublisher) PublishSessionCreated(ctx context.Context, e domain.SessionCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.created = append(p.created, e)
	return nil
}

func (p *capturePublisher) PublishTradeExecuted(ctx context.Context, e domain.TradeExecutedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.traded = append(p.traded, e)
	return nil
}

func (p *capturePublisher) PublishSessionExpired(ctx context.Context, e domain.SessionExpiredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.expired = append(p.expired, e)
	return nil
}

func (p *capturePublisher) PublishTraderAuthorized(ctx context.Context, e domain.TraderAuthorizedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.granted = append(p.granted, e)
	return nil
}

func (p *capturePublisher) PublishTraderRevoked(ctx context.Context, e domain.TraderRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.revoked = append(p.revoked, e)
	return nil
}

func (p *capturePublisher) setFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

type fixture struct {
	service   *SessionApplicationService
	publisher *capturePublisher
	now       time.Time
	mu        sync.Mutex
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T, admins ...string) *fixture {
	t.Helper()
	f := &fixture{
		publisher: &capturePublisher{},
		now:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = NewSessionApplicationService(
		memory.NewSessionRepository(),
		memory.NewTraderRepository(),
		nil,
		f.publisher,
		admins,
		0,
		logger,
		nil,
	).WithClock(func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	})
	return f
}

const (
	alice = "0xAlice"
	bob   = "0xbob"
)

func mustCreate(t *testing.T, f *fixture, user string, seconds int64, limit string) *SessionDTO {
	t.Helper()
	dto, err := f.service.CreateSession(context.Background(), &CreateSessionCommand{
		Caller:     user,
		Duration:   seconds,
		SpendLimit: decimal.RequireFromString(limit),
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return dto
}

func TestCreateSessionRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dto := mustCreate(t, f, alice, 3600, "100")
	if dto.User != "0xalice" {
		t.Errorf("expected normalized user, got %q", dto.User)
	}
	if !dto.Valid {
		t.Error("fresh session should be valid")
	}
	if dto.Remaining != "100" {
		t.Errorf("expected remaining 100, got %s", dto.Remaining)
	}

	got, err := f.service.GetSession(ctx, "0xALICE")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.SpendLimit != "100" || got.Spent != "0" {
		t.Errorf("unexpected session state: %+v", got)
	}

	if len(f.publisher.created) != 1 {
		t.Fatalf("expected 1 created event, got %d", len(f.publisher.created))
	}
	if f.publisher.created[0].User != "0xalice" {
		t.Errorf("event user mismatch: %q", f.publisher.created[0].User)
	}
}

func TestCreateSessionConflict(t *testing.T) {
	f := newFixture(t)
	mustCreate(t, f, alice, 3600, "100")

	_, err := f.service.CreateSession(context.Background(), &CreateSessionCommand{
		Caller:     alice,
		Duration:   60,
		SpendLimit: decimal.NewFromInt(5),
	})
	if !errors.Is(err, domain.ErrSessionAlreadyExists) {
		t.Fatalf("expected ErrSessionAlreadyExists, got %v", err)
	}
}

func TestCreateSessionReplacesExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mustCreate(t, f, alice, 3600, "100")

	f.advance(2 * time.Hour)

	dto := mustCreate(t, f, alice, 3600, "50")
	if dto.SpendLimit != "50" || dto.Spent != "0" {
		t.Errorf("replacement session should start fresh: %+v", dto)
	}

	valid, err := f.service.IsSessionValid(ctx, alice)
	if err != nil || !valid {
		t.Errorf("replacement session should be valid, got valid=%v err=%v", valid, err)
	}
}

func TestExecuteTradeByOwner(t *testing.T) {
	f := newFixture(t)
	mustCreate(t, f, alice, 3600, "100")

	result, err := f.service.ExecuteTrade(context.Background(), &ExecuteTradeCommand{
		Caller: alice,
		User:   alice,
		Amount: decimal.NewFromInt(60),
	})
	if err != nil {
		t.Fatalf("ExecuteTrade failed: %v", err)
	}
	if result.Remaining != "40" || result.Spent != "60" {
		t.Errorf("unexpected trade result: %+v", result)
	}
	if len(f.publisher.traded) != 1 {
		t.Fatalf("expected 1 trade event, got %d", len(f.publisher.traded))
	}
}

func TestExecuteTradeBudgetBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mustCreate(t, f, alice, 3600, "100")

	// 刚好等于额度允许
	if _, err := f.service.ExecuteTrade(ctx, &ExecuteTradeCommand{
		Caller: alice, User: alice, Amount: decimal.NewFromInt(100),
	}); err != nil {
		t.Fatalf("exact-limit trade failed: %v", err)
	}

	_, err := f.service.ExecuteTrade(ctx, &ExecuteTradeCommand{
		Caller: alice, User: alice, Amount: decimal.RequireFromString("0.01"),
	})
	if !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}

	remaining, err := f.service.GetRemainingLimit(ctx, alice)
	if err != nil {
		t.Fatalf("GetRemainingLimit failed: %v", err)
	}
	if !remaining.IsZero() {
		t.Errorf("expected remaining 0, got %s", remaining)
	}
}

func TestExecuteTradeUnauthorizedCaller(t *testing.T) {
	f := newFixture(t)
	mustCreate(t, f, alice, 3600, "100")

	_, err := f.service.ExecuteTrade(context.Background(), &ExecuteTradeCommand{
		Caller: bob,
		User:   alice,
		Amount: decimal.NewFromInt(1),
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(f.publisher.traded) != 0 {
		t.Error("rejected trade must not publish an event")
	}
}

func TestExecuteTradeByAuthorizedTrader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mustCreate(t, f, alice, 3600, "100")

	if err := f.service.AuthorizeTrader(ctx, &AuthorizeTraderCommand{Trader: "0xBOB"}); err != nil {
		t.Fatalf("AuthorizeTrader failed: %v", err)
	}

	result, err := f.service.ExecuteTrade(ctx, &ExecuteTradeCommand{
		Caller: bob,
		User:   alice,
		Amount: decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("trade by authorized trader failed: %v", err)
	}
	if result.Remaining != "75" {
		t.Errorf("expected remaining 75, got %s", result.Remaining)
	}

	// 撤销后再次交易被拒绝
	if err := f.service.RevokeTrader(ctx, &RevokeTraderCommand{Trader: bob}); err != nil {
		t.Fatalf("RevokeTrader failed: %v", err)
	}
	if _, err := f.service.ExecuteTrade(ctx, &ExecuteTradeCommand{
		Caller: bob, User: alice, Amount: decimal.NewFromInt(1),
	}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after revoke, got %v", err)
	}
}

func TestRevokeTraderIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.service.RevokeTrader(ctx, &RevokeTraderCommand{Trader: bob}); err != nil {
		t.Fatalf("revoking unknown trader should be a no-op, got %v", err)
	}
	if err := f.service.AuthorizeTrader(ctx, &AuthorizeTraderCommand{Trader: bob}); err != nil {
		t.Fatalf("AuthorizeTrader failed: %v", err)
	}
	if err := f.service.AuthorizeTrader(ctx, &AuthorizeTraderCommand{Trader: bob}); err != nil {
		t.Fatalf("re-authorizing should be a no-op, got %v", err)
	}
}

func TestExecuteTradeAfterExpiry(t *testing.T) {
	f := newFixture(t)
	mustCreate(t, f, alice, 3600, "100")

	f.advance(time.Hour)

	_, err := f.service.ExecuteTrade(context.Background(), &ExecuteTradeCommand{
		Caller: alice, User: alice, Amount: decimal.NewFromInt(1),
	})
	if !errors.Is(err, domain.ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestEmergencyExpireByOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mustCreate(t, f, alice, 3600, "100")

	if err := f.service.EmergencyExpireSession(ctx, &EmergencyExpireCommand{Caller: alice, User: alice}); err != nil {
		t.Fatalf("EmergencyExpireSession failed: %v", err)
	}

	valid, err := f.service.IsSessionValid(ctx, alice)
	if err != nil {
		t.Fatalf("IsSessionValid failed: %v", err)
	}
	if valid {
		t.Error("force-expired session should be invalid")
	}
	if len(f.publisher.expired) != 1 {
		t.Fatalf("expected 1 expired event, got %d", len(f.publisher.expired))
	}

	// 强制过期后允许重新建会话
	mustCreate(t, f, alice, 3600, "10")
}

func TestEmergencyExpireByAdmin(t *testing.T) {
	f := newFixture(t, "0xAdmin")
	ctx := context.Background()
	mustCreate(t, f, alice, 3600, "100")

	if err := f.service.EmergencyExpireSession(ctx, &EmergencyExpireCommand{Caller: "0xADMIN", User: alice}); err != nil {
		t.Fatalf("admin expire failed: %v", err)
	}

	err := f.service.EmergencyExpireSession(ctx, &EmergencyExpireCommand{Caller: bob, User: alice})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-admin expire: expected ErrUnauthorized, got %v", err)
	}
}

func TestEmergencyExpireUnknownSession(t *testing.T) {
	f := newFixture(t)

	err := f.service.EmergencyExpireSession(context.Background(), &EmergencyExpireCommand{Caller: alice, User: alice})
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestQueriesForUnknownUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.GetSession(ctx, alice); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	valid, err := f.service.IsSessionValid(ctx, alice)
	if err != nil {
		t.Fatalf("IsSessionValid failed: %v", err)
	}
	if valid {
		t.Error("unknown user should not have a valid session")
	}

	remaining, err := f.service.GetRemainingLimit(ctx, alice)
	if err != nil {
		t.Fatalf("GetRemainingLimit failed: %v", err)
	}
	if !remaining.IsZero() {
		t.Errorf("unknown user remaining should be 0, got %s", remaining)
	}
}

func TestCreateSessionNotPersistedWhenEventWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publisher.setFailure(errors.New("event store unavailable"))

	_, err := f.service.CreateSession(ctx, &CreateSessionCommand{
		Caller:     alice,
		Duration:   3600,
		SpendLimit: decimal.NewFromInt(100),
	})
	if err == nil {
		t.Fatal("expected CreateSession to fail when the event cannot be recorded")
	}

	// 事件落库失败时会话行不得提交
	if _, err := f.service.GetSession(ctx, alice); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("session must not survive a failed event write, got %v", err)
	}

	f.publisher.setFailure(nil)
	mustCreate(t, f, alice, 3600, "100")
}

func TestTradeNotPersistedWhenEventWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mustCreate(t, f, alice, 3600, "100")
	f.publisher.setFailure(errors.New("event store unavailable"))

	_, err := f.service.ExecuteTrade(ctx, &ExecuteTradeCommand{
		Caller: alice,
		User:   alice,
		Amount: decimal.NewFromInt(30),
	})
	if err == nil {
		t.Fatal("expected ExecuteTrade to fail when the event cannot be recorded")
	}

	f.publisher.setFailure(nil)
	remaining, err := f.service.GetRemainingLimit(ctx, alice)
	if err != nil {
		t.Fatalf("GetRemainingLimit failed: %v", err)
	}
	if remaining.String() != "100" {
		t.Errorf("spend must roll back with the failed event, remaining = %s", remaining)
	}
}

func TestCreateSessionMaxDuration(t *testing.T) {
	f := newFixture(t)
	f.service.maxDuration = time.Hour

	_, err := f.service.CreateSession(context.Background(), &CreateSessionCommand{
		Caller:     alice,
		Duration:   7200,
		SpendLimit: decimal.NewFromInt(1),
	})
	if !errors.Is(err, domain.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}
