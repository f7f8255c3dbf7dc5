package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, limit string) *Session {
	t.Helper()
	s, err := NewSession("0xAbC123", time.Hour, decimal.RequireFromString(limit), testNow)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

func TestNewSessionNormalizesAddress(t *testing.T) {
	s := newTestSession(t, "100")
	if s.User != "0xabc123" {
		t.Errorf("expected normalized address, got %q", s.User)
	}
	if !s.IsActive {
		t.Error("new session should be active")
	}
	if !s.Expiry.Equal(testNow.Add(time.Hour)) {
		t.Errorf("unexpected expiry %v", s.Expiry)
	}
	if !s.Spent.IsZero() {
		t.Errorf("new session spent should be zero, got %s", s.Spent)
	}
}

func TestNewSessionValidation(t *testing.T) {
	if _, err := NewSession("0xabc", 0, decimal.NewFromInt(1), testNow); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("zero duration: expected ErrInvalidDuration, got %v", err)
	}
	if _, err := NewSession("0xabc", -time.Minute, decimal.NewFromInt(1), testNow); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("negative duration: expected ErrInvalidDuration, got %v", err)
	}
	if _, err := NewSession("0xabc", time.Hour, decimal.NewFromInt(-1), testNow); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative limit: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := NewSession("   ", time.Hour, decimal.NewFromInt(1), testNow); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("blank address: expected ErrInvalidAddress, got %v", err)
	}
}

func TestValidAt(t *testing.T) {
	s := newTestSession(t, "100")

	if !s.ValidAt(testNow) {
		t.Error("session should be valid at creation time")
	}
	if !s.ValidAt(s.Expiry.Add(-time.Nanosecond)) {
		t.Error("session should be valid just before expiry")
	}
	// 到期时刻本身已经无效
	if s.ValidAt(s.Expiry) {
		t.Error("session should be invalid exactly at expiry")
	}

	s.IsActive = false
	if s.ValidAt(testNow) {
		t.Error("inactive session should be invalid")
	}

	var nilSession *Session
	if nilSession.ValidAt(testNow) {
		t.Error("nil session should be invalid")
	}
}

func TestSpend(t *testing.T) {
	s := newTestSession(t, "100")

	remaining, err := s.Spend(decimal.NewFromInt(40), testNow)
	if err != nil {
		t.Fatalf("Spend failed: %v", err)
	}
	if remaining.String() != "60" {
		t.Errorf("expected remaining 60, got %s", remaining)
	}

	// 刚好花完是允许的
	remaining, err = s.Spend(decimal.NewFromInt(60), testNow)
	if err != nil {
		t.Fatalf("Spend to exact limit failed: %v", err)
	}
	if !remaining.IsZero() {
		t.Errorf("expected remaining 0, got %s", remaining)
	}

	if _, err := s.Spend(decimal.RequireFromString("0.000000000000000001"), testNow); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
	if s.Spent.String() != "100" {
		t.Errorf("failed spend must not change state, spent=%s", s.Spent)
	}
}

func TestSpendRejectsInvalidInput(t *testing.T) {
	s := newTestSession(t, "100")

	if _, err := s.Spend(decimal.NewFromInt(-1), testNow); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}

	if _, err := s.Spend(decimal.NewFromInt(1), s.Expiry); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("spend after expiry: expected ErrSessionInvalid, got %v", err)
	}

	s.IsActive = false
	if _, err := s.Spend(decimal.NewFromInt(1), testNow); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("spend on inactive session: expected ErrSessionInvalid, got %v", err)
	}
}

func TestSpendZeroAmount(t *testing.T) {
	s := newTestSession(t, "0")

	// 额度为 0 时金额为 0 的交易仍然允许
	remaining, err := s.Spend(decimal.Zero, testNow)
	if err != nil {
		t.Fatalf("zero spend on zero limit failed: %v", err)
	}
	if !remaining.IsZero() {
		t.Errorf("expected remaining 0, got %s", remaining)
	}
}

func TestRemainingAt(t *testing.T) {
	s := newTestSession(t, "100")
	if _, err := s.Spend(decimal.NewFromInt(30), testNow); err != nil {
		t.Fatalf("Spend failed: %v", err)
	}

	if got := s.RemainingAt(testNow); got.String() != "70" {
		t.Errorf("expected remaining 70, got %s", got)
	}
	// 无效会话剩余额度钳制为 0
	if got := s.RemainingAt(s.Expiry); !got.IsZero() {
		t.Errorf("expired session remaining should be 0, got %s", got)
	}

	s.ForceExpire(testNow)
	if got := s.RemainingAt(testNow); !got.IsZero() {
		t.Errorf("force-expired session remaining should be 0, got %s", got)
	}
}

func TestForceExpire(t *testing.T) {
	s := newTestSession(t, "100")
	s.ForceExpire(testNow.Add(time.Minute))

	if s.IsActive {
		t.Error("force-expired session should be inactive")
	}
	if s.ValidAt(testNow) {
		t.Error("force-expired session should be invalid even before expiry")
	}
}
