package redeem

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/movieboxhq/coinback/internal/account"
	"github.com/movieboxhq/coinback/internal/faults"
)

func newService(t *testing.T, coins float64) (*Service, *account.MemoryStore) {
	t.Helper()
	accounts := account.NewMemoryStore()
	acc := account.NewAccount("u1")
	acc.TotalCoins = coins
	if err := accounts.Create(context.Background(), acc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return NewService(accounts, NewMemoryStore(), nil), accounts
}

func balance(t *testing.T, accounts *account.MemoryStore, uid string) float64 {
	t.Helper()
	acc, err := accounts.Get(context.Background(), uid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return acc.TotalCoins
}

func TestRedeemDebitsAndFilesRequest(t *testing.T) {
	svc, accounts := newService(t, 10)

	req, err := svc.Redeem(context.Background(), "u1", 4)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if req.Status != StatusPending || req.Amount != 4 {
		t.Errorf("request = %+v", req)
	}
	if req.ID == "" {
		t.Error("request must get an id")
	}
	if got := balance(t, accounts, "u1"); got != 6 {
		t.Errorf("balance = %v, want 6", got)
	}
}

func TestRedeemExactBalanceZeroes(t *testing.T) {
	svc, accounts := newService(t, 7)

	if _, err := svc.Redeem(context.Background(), "u1", 7); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if got := balance(t, accounts, "u1"); got != 0 {
		t.Errorf("balance = %v, want 0", got)
	}
}

func TestRedeemOverBalanceLeavesBalanceUnchanged(t *testing.T) {
	svc, accounts := newService(t, 3)

	_, err := svc.Redeem(context.Background(), "u1", 5)
	if faults.KindOf(err) != faults.FailedPrecondition {
		t.Fatalf("err = %v, want failed-precondition", err)
	}
	if got := balance(t, accounts, "u1"); got != 3 {
		t.Errorf("balance = %v, want unchanged 3", got)
	}
}

func TestRedeemRejectsBadAmounts(t *testing.T) {
	svc, _ := newService(t, 10)

	for _, amount := range []int{0, -1, -100} {
		_, err := svc.Redeem(context.Background(), "u1", amount)
		if faults.KindOf(err) != faults.InvalidArgument {
			t.Errorf("Redeem(%d) err = %v, want invalid-argument", amount, err)
		}
	}
}

func TestRedeemBannedUserDenied(t *testing.T) {
	svc, accounts := newService(t, 10)
	accounts.Update(context.Background(), "u1", func(acc *account.UserAccount) error {
		acc.Banned = true
		return nil
	})

	_, err := svc.Redeem(context.Background(), "u1", 1)
	if faults.KindOf(err) != faults.PermissionDenied {
		t.Fatalf("err = %v, want permission-denied", err)
	}
	if got := balance(t, accounts, "u1"); got != 10 {
		t.Errorf("balance = %v, want unchanged", got)
	}
}

func TestRedeemConcurrentNeverOverdraws(t *testing.T) {
	svc, accounts := newService(t, 10)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(context.Background(), "u1", 4)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	if successes != 2 {
		t.Errorf("got %d successful redeems of 4 from balance 10, want 2", successes)
	}
	if got := balance(t, accounts, "u1"); got != 2 {
		t.Errorf("balance = %v, want 2", got)
	}
}

// failingStore simulates a request store outage after the debit committed.
type failingStore struct {
	Store
}

func (f *failingStore) Create(context.Context, *Request) error {
	return errors.New("request store unavailable")
}

func TestRedeemRefundsWhenRequestPersistFails(t *testing.T) {
	accounts := account.NewMemoryStore()
	acc := account.NewAccount("u1")
	acc.TotalCoins = 10
	accounts.Create(context.Background(), acc)
	svc := NewService(accounts, &failingStore{Store: NewMemoryStore()}, nil)

	if _, err := svc.Redeem(context.Background(), "u1", 4); err == nil {
		t.Fatal("expected error from failing request store")
	}
	if got := balance(t, accounts, "u1"); got != 10 {
		t.Errorf("balance = %v, want refunded 10", got)
	}
}

func TestSetStatusRejectRefunds(t *testing.T) {
	svc, accounts := newService(t, 10)
	req, err := svc.Redeem(context.Background(), "u1", 6)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	updated, err := svc.SetStatus(context.Background(), req.ID, StatusRejected)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if updated.Status != StatusRejected {
		t.Errorf("status = %q", updated.Status)
	}
	if got := balance(t, accounts, "u1"); got != 10 {
		t.Errorf("balance = %v, want refunded 10", got)
	}
}

func TestSetStatusApproveKeepsDebit(t *testing.T) {
	svc, accounts := newService(t, 10)
	req, _ := svc.Redeem(context.Background(), "u1", 6)

	if _, err := svc.SetStatus(context.Background(), req.ID, StatusApproved); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if got := balance(t, accounts, "u1"); got != 4 {
		t.Errorf("balance = %v, want 4", got)
	}

	// Resolved requests cannot transition again.
	_, err := svc.SetStatus(context.Background(), req.ID, StatusRejected)
	if faults.KindOf(err) != faults.FailedPrecondition {
		t.Fatalf("second transition err = %v, want failed-precondition", err)
	}
}

func TestSetStatusUnknown(t *testing.T) {
	svc, _ := newService(t, 10)

	if _, err := svc.SetStatus(context.Background(), "rdm_missing", StatusApproved); faults.KindOf(err) != faults.NotFound {
		t.Errorf("err = %v, want not-found", err)
	}
	if _, err := svc.SetStatus(context.Background(), "rdm_missing", "shipped"); faults.KindOf(err) != faults.InvalidArgument {
		t.Errorf("err = %v, want invalid-argument", err)
	}
}
