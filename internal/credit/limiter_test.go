package credit

import (
	"context"
	"errors"
	"testing"
	"time"

	"pixelcanvas/internal/domain"
)

type mockLedger struct {
	spendFn   func(ctx context.Context, userID int32) (bool, error)
	setNextFn func(ctx context.Context, userID int32, at time.Time) error

	spent   int
	nextSet []time.Time
}

func (m *mockLedger) SpendCredit(ctx context.Context, userID int32) (bool, error) {
	if m.spendFn != nil {
		return m.spendFn(ctx, userID)
	}
	m.spent++
	return true, nil
}

func (m *mockLedger) SetNextFreeCredit(ctx context.Context, userID int32, at time.Time) error {
	if m.setNextFn != nil {
		return m.setNextFn(ctx, userID, at)
	}
	m.nextSet = append(m.nextSet, at)
	return nil
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestCanConsume(t *testing.T) {
	tests := []struct {
		name string
		user domain.User
		want bool
	}{
		{"window open", domain.User{NextFreeCredit: now.Add(-time.Second)}, true},
		{"window opens now", domain.User{NextFreeCredit: now}, true},
		{"window closed with credits", domain.User{NextFreeCredit: now.Add(time.Hour), Credits: 2}, true},
		{"window closed no credits", domain.User{NextFreeCredit: now.Add(time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			if got := CanConsume(&u, now); got != tt.want {
				t.Fatalf("CanConsume = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConsumeNoCreditsInsideWindow(t *testing.T) {
	ledger := &mockLedger{}
	l := NewLimiter(ledger)
	next := now.Add(time.Hour)
	u := &domain.User{ID: 1, NextFreeCredit: next}

	if err := l.Consume(context.Background(), u, now); !errors.Is(err, ErrUnconsumable) {
		t.Fatalf("Consume error = %v, want ErrUnconsumable", err)
	}
	if u.Credits != 0 || !u.NextFreeCredit.Equal(next) {
		t.Fatalf("user mutated: %+v", u)
	}
	if ledger.spent != 0 || len(ledger.nextSet) != 0 {
		t.Fatalf("ledger touched: spent=%d next=%v", ledger.spent, ledger.nextSet)
	}
}

func TestConsumeSpendsCreditInsideWindow(t *testing.T) {
	ledger := &mockLedger{}
	l := NewLimiter(ledger)
	u := &domain.User{ID: 1, Credits: 3, NextFreeCredit: now.Add(time.Hour)}

	if err := l.Consume(context.Background(), u, now); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if u.Credits != 2 {
		t.Fatalf("credits = %d, want 2", u.Credits)
	}
	if ledger.spent != 1 {
		t.Fatalf("ledger spent = %d, want 1", ledger.spent)
	}
}

func TestConsumeFreeWindowResetsCooldown(t *testing.T) {
	ledger := &mockLedger{}
	l := NewLimiter(ledger)
	u := &domain.User{ID: 1, Credits: 5, NextFreeCredit: now.Add(-time.Minute)}

	if err := l.Consume(context.Background(), u, now); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	want := now.Add(12 * time.Hour)
	if !u.NextFreeCredit.Equal(want) {
		t.Fatalf("next free credit = %v, want %v", u.NextFreeCredit, want)
	}
	if u.Credits != 5 {
		t.Fatalf("credits = %d, want 5 (untouched)", u.Credits)
	}
	if len(ledger.nextSet) != 1 || !ledger.nextSet[0].Equal(want) {
		t.Fatalf("ledger next = %v", ledger.nextSet)
	}
	if ledger.spent != 0 {
		t.Fatal("free paint must not spend credits")
	}

	// The window is closed now, so the next paint is paid.
	if err := l.Consume(context.Background(), u, now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if u.Credits != 4 {
		t.Fatalf("credits = %d, want 4", u.Credits)
	}
}

func TestConsumeCustomCooldown(t *testing.T) {
	ledger := &mockLedger{}
	l := NewLimiter(ledger, WithCooldown(time.Minute))
	u := &domain.User{ID: 1}

	if err := l.Consume(context.Background(), u, now); err != nil {
		t.Fatal(err)
	}
	if !u.NextFreeCredit.Equal(now.Add(time.Minute)) {
		t.Fatalf("next free credit = %v", u.NextFreeCredit)
	}
}

func TestConsumePersistFailureLeavesUserUnchanged(t *testing.T) {
	boom := errors.New("db down")
	ledger := &mockLedger{
		spendFn:   func(context.Context, int32) (bool, error) { return false, boom },
		setNextFn: func(context.Context, int32, time.Time) error { return boom },
	}
	l := NewLimiter(ledger)

	paid := &domain.User{ID: 1, Credits: 1, NextFreeCredit: now.Add(time.Hour)}
	if err := l.Consume(context.Background(), paid, now); !errors.Is(err, boom) {
		t.Fatalf("paid error = %v", err)
	}
	if paid.Credits != 1 {
		t.Fatalf("credits = %d, want 1", paid.Credits)
	}

	free := &domain.User{ID: 2}
	if err := l.Consume(context.Background(), free, now); !errors.Is(err, boom) {
		t.Fatalf("free error = %v", err)
	}
	if !free.NextFreeCredit.IsZero() {
		t.Fatalf("next free credit changed to %v", free.NextFreeCredit)
	}
}

func TestConsumeBalanceDrainedElsewhere(t *testing.T) {
	ledger := &mockLedger{
		spendFn: func(context.Context, int32) (bool, error) { return false, nil },
	}
	l := NewLimiter(ledger)
	u := &domain.User{ID: 1, Credits: 2, NextFreeCredit: now.Add(time.Hour)}

	if err := l.Consume(context.Background(), u, now); !errors.Is(err, ErrUnconsumable) {
		t.Fatalf("Consume error = %v, want ErrUnconsumable", err)
	}
	if u.Credits != 0 {
		t.Fatalf("credits = %d, want 0 after stale balance", u.Credits)
	}
}

func TestLimiterClock(t *testing.T) {
	l := NewLimiter(&mockLedger{}, WithClock(func() time.Time { return now }))
	if !l.Now().Equal(now) {
		t.Fatalf("Now = %v", l.Now())
	}
}
