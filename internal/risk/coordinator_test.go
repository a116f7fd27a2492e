package risk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agenttrader/internal/models"
)

func testProposal(t *testing.T, notional string) Proposal {
	t.Helper()
	return Proposal{
		AccountID:  "acct-1",
		StrategyID: "strat-1",
		Symbol:     "SPY",
		Side:       "buy",
		Notional:   dec(t, notional),
	}
}

func TestTryAdmit_RejectsInvalidProposal(t *testing.T) {
	c := NewCoordinator(newStubRepo(), zap.NewNop(), time.Second)
	ctx := context.Background()

	cases := []struct {
		name string
		p    Proposal
	}{
		{"missing account", Proposal{Symbol: "SPY", Notional: decimal.NewFromInt(10)}},
		{"missing symbol", Proposal{AccountID: "a1", Notional: decimal.NewFromInt(10)}},
		{"zero notional", Proposal{AccountID: "a1", Symbol: "SPY"}},
		{"negative notional", Proposal{AccountID: "a1", Symbol: "SPY", Notional: decimal.NewFromInt(-5)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.TryAdmit(ctx, tc.p, Snapshot{}); !errors.Is(err, ErrInvalidProposal) {
				t.Fatalf("err = %v, want ErrInvalidProposal", err)
			}
		})
	}
}

func TestTryAdmit_ChargesBothScopeKeys(t *testing.T) {
	repo := newStubRepo()
	c := NewCoordinator(repo, zap.NewNop(), time.Second)
	ctx := context.Background()
	p := testProposal(t, "150.25")

	d, err := c.TryAdmit(ctx, p, Snapshot{})
	if err != nil {
		t.Fatalf("TryAdmit: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allow with no limits, got %+v", d)
	}
	now := time.Now().UTC()
	for _, key := range []string{ScopeKeyAccount("acct-1"), ScopeKeyStrategy("strat-1")} {
		state, err := repo.GetDailyState(ctx, key, now)
		if err != nil || state == nil {
			t.Fatalf("daily state for %s: %v %v", key, state, err)
		}
		if state.TradesPlaced != 1 {
			t.Fatalf("%s trades_placed = %d, want 1", key, state.TradesPlaced)
		}
		if !state.NotionalTraded.Equal(dec(t, "150.25")) {
			t.Fatalf("%s notional_traded = %s, want 150.25", key, state.NotionalTraded)
		}
		if state.LastTradeAt == nil {
			t.Fatalf("%s last_trade_at not set", key)
		}
	}
}

func TestTryAdmit_DeniedChargesNothing(t *testing.T) {
	repo := newStubRepo()
	repo.limits = []models.RiskLimit{{
		Scope: models.ScopeAccount, AccountID: "acct-1", Enabled: true,
		MaxNotionalPerTrade: dptr(t, "100"),
	}}
	c := NewCoordinator(repo, zap.NewNop(), time.Second)
	ctx := context.Background()

	d, err := c.TryAdmit(ctx, testProposal(t, "150"), Snapshot{})
	if err != nil {
		t.Fatalf("TryAdmit: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected denial")
	}
	state, err := repo.GetDailyState(ctx, ScopeKeyAccount("acct-1"), time.Now().UTC())
	if err != nil {
		t.Fatalf("GetDailyState: %v", err)
	}
	if state != nil && state.TradesPlaced != 0 {
		t.Fatalf("denied admission charged counters: %+v", state)
	}
}

func TestTryAdmit_AtMostOneUnderContention(t *testing.T) {
	repo := newStubRepo()
	repo.limits = []models.RiskLimit{{
		Scope: models.ScopeAccount, AccountID: "acct-1", Enabled: true,
		MaxTradesPerDay: iptr(1),
	}}
	c := NewCoordinator(repo, zap.NewNop(), 5*time.Second)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make([]Decision, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.TryAdmit(ctx, testProposal(t, "10"), Snapshot{})
		}(i)
	}
	wg.Wait()

	allowed := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if results[i].Allowed {
			allowed++
		}
	}
	if allowed != 1 {
		t.Fatalf("allowed = %d, want exactly 1", allowed)
	}
	state, _ := repo.GetDailyState(ctx, ScopeKeyAccount("acct-1"), time.Now().UTC())
	if state == nil || state.TradesPlaced != 1 {
		t.Fatalf("account counters = %+v, want trades_placed 1", state)
	}
}

func TestTryAdmit_CountersAreMonotonic(t *testing.T) {
	repo := newStubRepo()
	c := NewCoordinator(repo, zap.NewNop(), 5*time.Second)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.TryAdmit(ctx, testProposal(t, "2.5"), Snapshot{}); err != nil {
				t.Errorf("TryAdmit: %v", err)
			}
		}()
	}
	wg.Wait()

	state, _ := repo.GetDailyState(ctx, ScopeKeyStrategy("strat-1"), time.Now().UTC())
	if state == nil || state.TradesPlaced != n {
		t.Fatalf("trades_placed = %+v, want %d", state, n)
	}
	if !state.NotionalTraded.Equal(dec(t, "50")) {
		t.Fatalf("notional_traded = %s, want 50", state.NotionalTraded)
	}
}

func TestTryAdmit_FailsClosedOnStoreError(t *testing.T) {
	repo := newStubRepo()
	repo.txErr = errors.New("connection refused")
	c := NewCoordinator(repo, zap.NewNop(), time.Second)

	_, err := c.TryAdmit(context.Background(), testProposal(t, "10"), Snapshot{})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}

	repo2 := newStubRepo()
	repo2.limitErr = errors.New("connection refused")
	c2 := NewCoordinator(repo2, zap.NewNop(), time.Second)
	if _, err := c2.TryAdmit(context.Background(), testProposal(t, "10"), Snapshot{}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable on limit load", err)
	}
}

func TestTryAdmit_LockTimeout(t *testing.T) {
	c := NewCoordinator(newStubRepo(), zap.NewNop(), 50*time.Millisecond)
	p := testProposal(t, "10")

	// Hold one of the proposal's scope keys so admission cannot finish.
	sem := c.locks.sem(ScopeKeyAccount(p.AccountID))
	sem <- struct{}{}
	defer func() { <-sem }()

	start := time.Now()
	_, err := c.TryAdmit(context.Background(), p, Snapshot{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout took too long")
	}

	// The strategy key must have been released again.
	select {
	case c.locks.sem(ScopeKeyStrategy(p.StrategyID)) <- struct{}{}:
		<-c.locks.sem(ScopeKeyStrategy(p.StrategyID))
	default:
		t.Fatalf("strategy key still held after timeout")
	}
}

func TestCheck_DoesNotCharge(t *testing.T) {
	repo := newStubRepo()
	c := NewCoordinator(repo, zap.NewNop(), time.Second)
	ctx := context.Background()

	d, err := c.Check(ctx, testProposal(t, "10"), Snapshot{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allow, got %+v", d)
	}
	state, _ := repo.GetDailyState(ctx, ScopeKeyAccount("acct-1"), time.Now().UTC())
	if state != nil && state.TradesPlaced != 0 {
		t.Fatalf("Check charged counters: %+v", state)
	}
}

func TestCheck_UsesSnapshotDrawdown(t *testing.T) {
	repo := newStubRepo()
	repo.limits = []models.RiskLimit{{
		Scope: models.ScopeAccount, AccountID: "acct-1", Enabled: true,
		MaxDrawdownPerDay: dptr(t, "100"),
	}}
	c := NewCoordinator(repo, zap.NewNop(), time.Second)

	dd := dec(t, "150")
	d, err := c.Check(context.Background(), testProposal(t, "10"), Snapshot{DayDrawdown: &dd})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected drawdown denial, got %+v", d)
	}
}
