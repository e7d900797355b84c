package reward

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/movieboxhq/coinback/internal/abuse"
	"github.com/movieboxhq/coinback/internal/account"
	"github.com/movieboxhq/coinback/internal/faults"
	"github.com/movieboxhq/coinback/internal/risk"
	"github.com/movieboxhq/coinback/internal/settings"
)

type fakeDeviceCounter struct {
	owners int
}

func (f *fakeDeviceCounter) CountDistinctOwners(_ context.Context, _, _ string) (int, error) {
	return f.owners, nil
}

type fixture struct {
	svc      *Service
	accounts *account.MemoryStore
	abuse    *abuse.MemoryStore
	devices  *fakeDeviceCounter
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		accounts: account.NewMemoryStore(),
		abuse:    abuse.NewMemoryStore(),
		devices:  &fakeDeviceCounter{},
		clock:    time.UnixMilli(1_700_000_000_000),
	}
	f.svc = NewService(f.accounts, settings.NewMemoryStore(), f.devices, abuse.NewSink(f.abuse, nil, nil), nil)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) createUser(t *testing.T, uid string) {
	t.Helper()
	if err := f.accounts.Create(context.Background(), account.NewAccount(uid)); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func TestGrantCreditsCoins(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")

	res, err := f.svc.Grant(context.Background(), GrantRequest{
		UID:    "u1",
		Intent: "watch_ad_to_support_us",
	})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if res.Coins != 1 || res.Total != 1 {
		t.Errorf("result = %+v, want 1 coin", res)
	}
	if res.RiskLevel != risk.LevelSafe {
		t.Errorf("riskLevel = %q, want safe", res.RiskLevel)
	}

	acc, _ := f.accounts.Get(context.Background(), "u1")
	if acc.TotalCoins != 1 || acc.DailyAdCount != 1 {
		t.Errorf("account = %+v", acc)
	}
	if acc.LastRewardMillis != f.clock.UnixMilli() {
		t.Errorf("lastRewardMillis = %d, want %d", acc.LastRewardMillis, f.clock.UnixMilli())
	}
	if acc.LastRewardIntent != CanonicalIntent {
		t.Errorf("lastRewardIntent = %q, want %q", acc.LastRewardIntent, CanonicalIntent)
	}
}

func TestGrantRejectsUnknownIntent(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")

	_, err := f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: "gimme coins"})
	if faults.KindOf(err) != faults.InvalidArgument {
		t.Fatalf("err = %v, want invalid-argument", err)
	}

	acc, _ := f.accounts.Get(context.Background(), "u1")
	if acc.TotalCoins != 0 {
		t.Error("coins must not move on rejected intent")
	}
}

func TestGrantAcceptsIntentAliases(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")

	for i, raw := range []string{"watch_ad_to_support_us", "Watch Ad To Support Us", "  watch   ad to support us "} {
		if i > 0 {
			f.advance(time.Minute)
		}
		if _, err := f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: raw}); err != nil {
			t.Errorf("intent %q rejected: %v", raw, err)
		}
	}
}

func TestGrantRequiresAuthentication(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Grant(context.Background(), GrantRequest{Intent: "watch_ad_to_support_us"})
	if faults.KindOf(err) != faults.Unauthenticated {
		t.Fatalf("err = %v, want unauthenticated", err)
	}
}

func TestGrantUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Grant(context.Background(), GrantRequest{UID: "ghost", Intent: "watch_ad_to_support_us"})
	if faults.KindOf(err) != faults.NotFound {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestGrantFailsWithoutSettings(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")
	f.svc.settings = settings.NewEmptyMemoryStore()

	_, err := f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: "watch_ad_to_support_us"})
	if faults.KindOf(err) != faults.FailedPrecondition {
		t.Fatalf("err = %v, want failed-precondition", err)
	}
}

func TestGrantTooFastDoesNotDoubleCredit(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")

	if _, err := f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: "watch_ad_to_support_us"}); err != nil {
		t.Fatalf("first grant: %v", err)
	}

	f.advance(5 * time.Second)
	_, err := f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: "watch_ad_to_support_us"})
	if faults.KindOf(err) != faults.ResourceExhausted {
		t.Fatalf("second grant err = %v, want resource-exhausted", err)
	}

	acc, _ := f.accounts.Get(context.Background(), "u1")
	if acc.TotalCoins != 1 {
		t.Errorf("totalCoins = %v, want 1 (no double credit)", acc.TotalCoins)
	}
	if acc.SuspiciousCount != 1 {
		t.Errorf("suspiciousCount = %d, want 1", acc.SuspiciousCount)
	}
	if acc.RiskScore != risk.WeightTooFast {
		t.Errorf("riskScore = %v, want %d", acc.RiskScore, risk.WeightTooFast)
	}

	logs, _ := f.abuse.ListByUID(context.Background(), "u1", 10)
	if len(logs) != 1 {
		t.Fatalf("got %d abuse entries, want 1", len(logs))
	}
}

func TestGrantAfterIntervalSucceeds(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")

	if _, err := f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: "watch_ad_to_support_us"}); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	f.advance(risk.MinRewardIntervalMillis * time.Millisecond)
	if _, err := f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: "watch_ad_to_support_us"}); err != nil {
		t.Fatalf("second grant after interval: %v", err)
	}

	acc, _ := f.accounts.Get(context.Background(), "u1")
	if acc.TotalCoins != 2 {
		t.Errorf("totalCoins = %v, want 2", acc.TotalCoins)
	}
	if acc.SuspiciousCount != 0 {
		t.Errorf("suspiciousCount = %d, want 0 after clean grant", acc.SuspiciousCount)
	}
}

func TestGrantDailyLimitLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")
	f.accounts.Update(context.Background(), "u1", func(acc *account.UserAccount) error {
		acc.DailyAdCount = settings.MinDailyLimit
		acc.RiskScore = 15
		return nil
	})

	_, err := f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: "watch_ad_to_support_us"})
	if faults.KindOf(err) != faults.FailedPrecondition {
		t.Fatalf("err = %v, want failed-precondition", err)
	}

	acc, _ := f.accounts.Get(context.Background(), "u1")
	if acc.TotalCoins != 0 || acc.DailyAdCount != settings.MinDailyLimit {
		t.Errorf("account mutated on limit denial: %+v", acc)
	}
	if acc.RiskScore != 15 {
		t.Errorf("riskScore = %v, want untouched 15", acc.RiskScore)
	}
	if logs, _ := f.abuse.ListByUID(context.Background(), "u1", 10); len(logs) != 0 {
		t.Error("daily limit is not fraud; no abuse entry expected")
	}
}

func TestGrantDailyLimitBeatsTooFast(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")
	f.accounts.Update(context.Background(), "u1", func(acc *account.UserAccount) error {
		acc.DailyAdCount = settings.MinDailyLimit
		acc.LastRewardMillis = f.clock.UnixMilli()
		return nil
	})

	// Inside the minimum interval AND at the limit: the limit wins.
	f.advance(5 * time.Second)
	_, err := f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: "watch_ad_to_support_us"})
	if faults.KindOf(err) != faults.FailedPrecondition {
		t.Fatalf("err = %v, want failed-precondition", err)
	}

	acc, _ := f.accounts.Get(context.Background(), "u1")
	if acc.RiskScore != 0 || acc.SuspiciousCount != 0 {
		t.Errorf("risk = %v/%d, want untouched 0/0", acc.RiskScore, acc.SuspiciousCount)
	}
	if logs, _ := f.abuse.ListByUID(context.Background(), "u1", 10); len(logs) != 0 {
		t.Errorf("got %d abuse entries, want 0", len(logs))
	}
}

func TestGrantBannedUserAlwaysDenied(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")
	f.accounts.Update(context.Background(), "u1", func(acc *account.UserAccount) error {
		acc.Banned = true
		return nil
	})

	_, err := f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: "watch_ad_to_support_us"})
	if faults.KindOf(err) != faults.PermissionDenied {
		t.Fatalf("err = %v, want permission-denied", err)
	}

	acc, _ := f.accounts.Get(context.Background(), "u1")
	if acc.TotalCoins != 0 {
		t.Error("banned account must never accumulate coins")
	}
}

func TestGrantHighRiskDenied(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")
	f.accounts.Update(context.Background(), "u1", func(acc *account.UserAccount) error {
		acc.RiskScore = 80
		return nil
	})

	_, err := f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: "watch_ad_to_support_us"})
	if faults.KindOf(err) != faults.ResourceExhausted {
		t.Fatalf("err = %v, want resource-exhausted", err)
	}

	acc, _ := f.accounts.Get(context.Background(), "u1")
	if acc.RiskScore != 70 {
		t.Errorf("riskScore = %v, want decayed 70", acc.RiskScore)
	}
	if acc.RiskLevel != risk.LevelHigh {
		t.Errorf("riskLevel = %q, want high", acc.RiskLevel)
	}
	if acc.TotalCoins != 0 {
		t.Error("high risk grant must not credit")
	}
}

func TestGrantRiskDecaysBackToAllowed(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")
	f.accounts.Update(context.Background(), "u1", func(acc *account.UserAccount) error {
		acc.RiskScore = 75
		return nil
	})

	// 75 -> 65 (high, denied) -> 55 (suspicious, allowed)
	for attempt := 0; ; attempt++ {
		if attempt > 5 {
			t.Fatal("risk never decayed below the high threshold")
		}
		res, err := f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: "watch_ad_to_support_us"})
		if err == nil {
			if res.RiskLevel != risk.LevelSuspicious {
				t.Errorf("riskLevel = %q, want suspicious", res.RiskLevel)
			}
			break
		}
		if faults.KindOf(err) != faults.ResourceExhausted {
			t.Fatalf("unexpected err %v", err)
		}
		f.advance(time.Minute)
	}
}

func TestGrantSharedDeviceBans(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")
	f.accounts.Update(context.Background(), "u1", func(acc *account.UserAccount) error {
		acc.DeviceHash = "device-original"
		acc.RiskScore = 40
		return nil
	})
	f.devices.owners = 3

	// 40 - 10 + 40 (mismatch) + 50 (shared) = 120 -> clamp 100 -> banned
	_, err := f.svc.Grant(context.Background(), GrantRequest{
		UID:        "u1",
		Intent:     "watch_ad_to_support_us",
		DeviceHash: "device-farm",
	})
	if faults.KindOf(err) != faults.PermissionDenied {
		t.Fatalf("err = %v, want permission-denied", err)
	}

	acc, _ := f.accounts.Get(context.Background(), "u1")
	if !acc.Banned {
		t.Fatal("account must be banned at score 100")
	}
	if acc.RiskScore != 100 || acc.RiskLevel != risk.LevelBanned {
		t.Errorf("risk = %v/%q, want 100/banned", acc.RiskScore, acc.RiskLevel)
	}

	// Ban survives the next attempt even with clean signals.
	f.advance(time.Hour)
	f.devices.owners = 0
	_, err = f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: "watch_ad_to_support_us"})
	if faults.KindOf(err) != faults.PermissionDenied {
		t.Fatalf("post-ban err = %v, want permission-denied", err)
	}
}

func TestGrantCrowdedIPRaisesScore(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")
	for _, uid := range []string{"a", "b", "c", "d"} {
		f.createUser(t, uid)
		f.accounts.Update(context.Background(), uid, func(acc *account.UserAccount) error {
			acc.LastIP = "198.51.100.7"
			return nil
		})
	}

	res, err := f.svc.Grant(context.Background(), GrantRequest{
		UID:    "u1",
		Intent: "watch_ad_to_support_us",
		IP:     "198.51.100.7",
	})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if res.RiskLevel != risk.LevelSuspicious {
		t.Errorf("riskLevel = %q, want suspicious at score 30", res.RiskLevel)
	}

	acc, _ := f.accounts.Get(context.Background(), "u1")
	if acc.RiskScore != risk.WeightCrowdedIP {
		t.Errorf("riskScore = %v, want %d", acc.RiskScore, risk.WeightCrowdedIP)
	}
	if acc.LastIP != "198.51.100.7" {
		t.Errorf("lastIP = %q, want recorded", acc.LastIP)
	}
}

func TestGrantConcurrentSingleSlot(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1")
	f.accounts.Update(context.Background(), "u1", func(acc *account.UserAccount) error {
		acc.DailyAdCount = settings.MinDailyLimit - 1
		return nil
	})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Grant(context.Background(), GrantRequest{UID: "u1", Intent: "watch_ad_to_support_us"})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		if faults.KindOf(err) != faults.FailedPrecondition {
			t.Errorf("loser err = %v, want failed-precondition", err)
		}
	}
	if successes != 1 {
		t.Errorf("got %d successful grants, want exactly 1", successes)
	}

	acc, _ := f.accounts.Get(context.Background(), "u1")
	if acc.TotalCoins != 1 {
		t.Errorf("totalCoins = %v, want 1", acc.TotalCoins)
	}
	if acc.DailyAdCount != settings.MinDailyLimit {
		t.Errorf("dailyAdCount = %d, want %d", acc.DailyAdCount, settings.MinDailyLimit)
	}
}

func TestNormalizeIntent(t *testing.T) {
	cases := []struct {
		raw string
		ok  bool
	}{
		{"watch_ad_to_support_us", true},
		{"watch ad to support us", true},
		{"WATCH AD TO SUPPORT US", true},
		{"watch  ad\tto support us", true},
		{"", false},
		{"watch ads to support us", false},
		{"support us", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeIntent(tc.raw)
		if ok != tc.ok {
			t.Errorf("NormalizeIntent(%q) ok = %v, want %v", tc.raw, ok, tc.ok)
		}
		if ok && got != CanonicalIntent {
			t.Errorf("NormalizeIntent(%q) = %q", tc.raw, got)
		}
	}
}
