package account

import (
	"context"
	"sync"
	"testing"

	"github.com/movieboxhq/coinback/internal/testutil"
)

func TestPostgresCreateGetUpdate(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	acc := NewAccount("pg-user-1")
	acc.LastIP = "192.0.2.1"
	if err := store.Create(ctx, acc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, acc); err != ErrExists {
		t.Errorf("duplicate Create = %v, want ErrExists", err)
	}

	got, err := store.Get(ctx, "pg-user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastIP != "192.0.2.1" || got.RiskLevel != "safe" {
		t.Errorf("unexpected stored account: %+v", got)
	}

	updated, err := store.Update(ctx, "pg-user-1", func(a *UserAccount) error {
		a.TotalCoins += 5
		a.DailyAdCount++
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.TotalCoins != 5 || updated.DailyAdCount != 1 {
		t.Errorf("Update result = %+v", updated)
	}

	if _, err := store.Get(ctx, "nobody"); err != ErrNotFound {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestPostgresConcurrentUpdates(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)
	if err := store.Create(ctx, NewAccount("pg-user-conc")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "pg-user-conc", func(a *UserAccount) error {
				a.TotalCoins++
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}

	got, _ := store.Get(ctx, "pg-user-conc")
	if got.TotalCoins != float64(succeeded) {
		t.Errorf("balance = %v after %d successful increments", got.TotalCoins, succeeded)
	}
}

func TestPostgresCountByLastIP(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)
	for _, uid := range []string{"ip-a", "ip-b", "ip-c"} {
		acc := NewAccount(uid)
		acc.LastIP = "198.51.100.7"
		if err := store.Create(ctx, acc); err != nil {
			t.Fatalf("Create %s: %v", uid, err)
		}
	}

	count, err := store.CountByLastIP(ctx, "198.51.100.7", "ip-a")
	if err != nil {
		t.Fatalf("CountByLastIP: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestPostgresResetDailyCounts(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)
	acc := NewAccount("reset-a")
	acc.DailyAdCount = 7
	if err := store.Create(ctx, acc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := store.ResetDailyCounts(ctx)
	if err != nil {
		t.Fatalf("ResetDailyCounts: %v", err)
	}
	if n != 1 {
		t.Errorf("reset touched %d rows, want 1", n)
	}
	got, _ := store.Get(ctx, "reset-a")
	if got.DailyAdCount != 0 {
		t.Errorf("dailyAdCount = %d after reset", got.DailyAdCount)
	}
}
