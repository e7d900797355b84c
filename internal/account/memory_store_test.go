package account

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Get(ctx, "u1"); err != ErrNotFound {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}

	acc := NewAccount("u1")
	if err := store.Create(ctx, acc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, acc); err != ErrExists {
		t.Errorf("duplicate Create = %v, want ErrExists", err)
	}

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TotalCoins != 0 || got.Banned || got.RiskLevel != "safe" {
		t.Errorf("fresh account has non-default state: %+v", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Create(ctx, NewAccount("u1"))

	got, _ := store.Get(ctx, "u1")
	got.TotalCoins = 999

	again, _ := store.Get(ctx, "u1")
	if again.TotalCoins != 0 {
		t.Error("mutating a Get result must not affect stored state")
	}
}

func TestUpdateAbortsOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Create(ctx, NewAccount("u1"))

	wantErr := errors.New("nope")
	_, err := store.Update(ctx, "u1", func(a *UserAccount) error {
		a.TotalCoins = 50
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("Update = %v, want closure error", err)
	}

	got, _ := store.Get(ctx, "u1")
	if got.TotalCoins != 0 {
		t.Error("failed Update must not leave partial state")
	}
}

func TestUpdateMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Update(context.Background(), "ghost", func(a *UserAccount) error { return nil })
	if err != ErrNotFound {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Create(ctx, NewAccount("u1"))

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, "u1", func(a *UserAccount) error {
				a.TotalCoins++
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := store.Get(ctx, "u1")
	if got.TotalCoins != n {
		t.Errorf("after %d concurrent increments balance = %v, want %d", n, got.TotalCoins, n)
	}
}

func TestCountByLastIP(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, uid := range []string{"a", "b", "c", "d"} {
		acc := NewAccount(uid)
		acc.LastIP = "10.0.0.1"
		store.Create(ctx, acc)
	}
	other := NewAccount("e")
	other.LastIP = "10.0.0.2"
	store.Create(ctx, other)

	count, err := store.CountByLastIP(ctx, "10.0.0.1", "a")
	if err != nil {
		t.Fatalf("CountByLastIP: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3 (excludes the caller)", count)
	}

	count, _ = store.CountByLastIP(ctx, "", "a")
	if count != 0 {
		t.Errorf("empty IP must count 0, got %d", count)
	}
}

func TestResetDailyCounts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i, uid := range []string{"a", "b", "c"} {
		acc := NewAccount(uid)
		acc.DailyAdCount = i // a stays at 0
		store.Create(ctx, acc)
	}

	n, err := store.ResetDailyCounts(ctx)
	if err != nil {
		t.Fatalf("ResetDailyCounts: %v", err)
	}
	if n != 2 {
		t.Errorf("reset touched %d accounts, want 2", n)
	}
	for _, uid := range []string{"a", "b", "c"} {
		got, _ := store.Get(ctx, uid)
		if got.DailyAdCount != 0 {
			t.Errorf("%s dailyAdCount = %d after reset", uid, got.DailyAdCount)
		}
	}
}
