package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/zksession/internal/session/domain"
)

func TestSessionRepositoryGetMiss(t *testing.T) {
	repo := NewSessionRepository()
	s, err := repo.Get(context.Background(), "0xnobody")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if s != nil {
		t.Errorf("expected nil on miss, got %+v", s)
	}
}

func TestSessionRepositoryMutateCreatesAndUpdates(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()
	now := time.Now()

	created, err := repo.Mutate(ctx, "0xalice", func(ctx context.Context, current *domain.Session) (*domain.Session, error) {
		if current != nil {
			t.Fatal("expected nil current on first mutate")
		}
		return domain.NewSession("0xalice", time.Hour, decimal.NewFromInt(100), now)
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected assigned ID")
	}

	// 写入后的外部修改不能影响仓储内的副本
	created.Spent = decimal.NewFromInt(999)

	stored, err := repo.Get(ctx, "0xalice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !stored.Spent.IsZero() {
		t.Errorf("repository must store a copy, spent=%s", stored.Spent)
	}
}

func TestSessionRepositoryMutateError(t *testing.T) {
	repo := NewSessionRepository()
	wantErr := errors.New("boom")

	_, err := repo.Mutate(context.Background(), "0xalice", func(ctx context.Context, current *domain.Session) (*domain.Session, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}

	s, _ := repo.Get(context.Background(), "0xalice")
	if s != nil {
		t.Error("failed mutate must not persist anything")
	}
}

// 并发 Spend 总和不能超过额度
func TestSessionRepositoryConcurrentSpend(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()
	now := time.Now()

	_, err := repo.Mutate(ctx, "0xalice", func(ctx context.Context, current *domain.Session) (*domain.Session, error) {
		return domain.NewSession("0xalice", time.Hour, decimal.NewFromInt(100), now)
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Mutate(ctx, "0xalice", func(ctx context.Context, current *domain.Session) (*domain.Session, error) {
				if _, err := current.Spend(decimal.NewFromInt(10), now); err != nil {
					return nil, err
				}
				return current, nil
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrBudgetExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("expected exactly 10 successful spends, got %d", succeeded)
	}

	final, _ := repo.Get(ctx, "0xalice")
	if final.Spent.String() != "100" {
		t.Errorf("expected total spent 100, got %s", final.Spent)
	}
}

func TestSessionRepositoryCountValid(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()
	now := time.Now()

	for _, user := range []string{"0xa", "0xb"} {
		u := user
		if _, err := repo.Mutate(ctx, u, func(ctx context.Context, current *domain.Session) (*domain.Session, error) {
			return domain.NewSession(u, time.Hour, decimal.NewFromInt(1), now)
		}); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
	}
	if _, err := repo.Mutate(ctx, "0xc", func(ctx context.Context, current *domain.Session) (*domain.Session, error) {
		s, err := domain.NewSession("0xc", time.Hour, decimal.NewFromInt(1), now)
		if err != nil {
			return nil, err
		}
		s.ForceExpire(now)
		return s, nil
	}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	count, err := repo.CountValid(ctx)
	if err != nil {
		t.Fatalf("CountValid failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 valid sessions, got %d", count)
	}
}

func TestTraderRepository(t *testing.T) {
	repo := NewTraderRepository()
	ctx := context.Background()

	ok, err := repo.IsAuthorized(ctx, "0xbob")
	if err != nil || ok {
		t.Fatalf("unknown trader should not be authorized, ok=%v err=%v", ok, err)
	}

	if err := repo.Add(ctx, "0xbob"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := repo.Add(ctx, "0xbob"); err != nil {
		t.Fatalf("idempotent Add failed: %v", err)
	}

	ok, _ = repo.IsAuthorized(ctx, "0xbob")
	if !ok {
		t.Error("trader should be authorized after Add")
	}

	count, _ := repo.Count(ctx)
	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	if err := repo.Remove(ctx, "0xbob"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := repo.Remove(ctx, "0xbob"); err != nil {
		t.Fatalf("idempotent Remove failed: %v", err)
	}
	ok, _ = repo.IsAuthorized(ctx, "0xbob")
	if ok {
		t.Error("trader should not be authorized after Remove")
	}
}
