package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cppla/incentive/models"
)

func TestAdjustClampsAndKeepsRequestedChange(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	ctx := t.Context()

	steps := []struct {
		change int
		want   int
	}{
		{3, 3},
		{1000, 15},
		{1, 15},
		{-4, 11},
		{-1000, 0},
		{-1, 0},
	}
	for i, step := range steps {
		account, err := e.ledger.Adjust(ctx, u.ID, step.change, models.ReasonTaskOnTime, "", nil)
		if err != nil {
			t.Fatalf("step %d: adjust: %v", i, err)
		}
		if account.CurrentPoints != step.want {
			t.Fatalf("step %d: balance = %d, want %d", i, account.CurrentPoints, step.want)
		}
		if got := e.balance(t, u.ID); got != step.want {
			t.Fatalf("step %d: stored balance = %d, want %d", i, got, step.want)
		}
	}

	log := e.entries(t, u.ID, models.ReasonTaskOnTime)
	if len(log) != len(steps) {
		t.Fatalf("log entries = %d, want %d", len(log), len(steps))
	}
	for i, entry := range log {
		if entry.Change != steps[i].change {
			t.Fatalf("entry %d change = %d, want requested %d", i, entry.Change, steps[i].change)
		}
	}
}

func TestAdjustUnknownUser(t *testing.T) {
	e := newEngine(t)
	_, err := e.ledger.Adjust(t.Context(), 999, 1, models.ReasonQuizBonus, "", nil)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
	var accounts int64
	e.db.Model(&models.PointsAccount{}).Count(&accounts)
	if accounts != 0 {
		t.Fatalf("accounts = %d, want none created", accounts)
	}
}

func TestAdjustRejectsUnknownReason(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	_, err := e.ledger.Adjust(t.Context(), u.ID, 1, models.PointReason("GIFT"), "", nil)
	if !errors.Is(err, ErrUnknownReason) {
		t.Fatalf("err = %v, want ErrUnknownReason", err)
	}
}

func TestAdjustZeroEnsuresAccountWithoutLogging(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	account, err := e.ledger.Adjust(t.Context(), u.ID, 0, models.ReasonQuizBonus, "", nil)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if account.ID == 0 || account.CurrentPoints != 0 {
		t.Fatalf("account = %+v, want created with 0 points", account)
	}
	if n := len(e.entries(t, u.ID, models.ReasonQuizBonus)); n != 0 {
		t.Fatalf("entries = %d, want 0", n)
	}
}

func TestAdjustStoresMetadata(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	if _, err := e.ledger.Adjust(t.Context(), u.ID, 1, models.ReasonTaskOnTime, "note", map[string]interface{}{"task_id": 7}); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	log := e.entries(t, u.ID, models.ReasonTaskOnTime)
	if len(log) != 1 || log[0].Note != "note" {
		t.Fatalf("log = %+v", log)
	}
	if v, ok := log[0].Metadata["task_id"]; !ok || fmt.Sprint(v) != "7" {
		t.Fatalf("metadata = %v, want task_id 7", log[0].Metadata)
	}
}

func TestConcurrentAdjustmentsAreSerialized(t *testing.T) {
	rules := DefaultRules()
	rules.PointLimit = 100
	e := newEngineWithRules(t, rules)
	u := e.employee(t, "ann@example.com")

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.ledger.Adjust(t.Context(), u.ID, 1, models.ReasonTaskOnTime, "", nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("adjust: %v", err)
	}

	if got := e.balance(t, u.ID); got != workers {
		t.Fatalf("balance = %d, want %d", got, workers)
	}
	if n := len(e.entries(t, u.ID, models.ReasonTaskOnTime)); n != workers {
		t.Fatalf("entries = %d, want %d", n, workers)
	}
}

func TestResetAllZeroesNonzeroBalancesOnce(t *testing.T) {
	e := newEngine(t)
	a := e.employee(t, "a@example.com")
	b := e.employee(t, "b@example.com")
	c := e.employee(t, "c@example.com")
	ctx := t.Context()
	e.ledger.Adjust(ctx, a.ID, 3, models.ReasonTaskOnTime, "", nil)
	e.ledger.Adjust(ctx, b.ID, 0, models.ReasonTaskOnTime, "", nil)
	e.ledger.Adjust(ctx, c.ID, 7, models.ReasonTaskOnTime, "", nil)

	for run := 0; run < 2; run++ {
		if err := e.ledger.ResetAll(ctx); err != nil {
			t.Fatalf("run %d: reset: %v", run, err)
		}
	}

	for _, u := range []struct {
		id     uint
		change int
	}{{a.ID, -3}, {c.ID, -7}} {
		if got := e.balance(t, u.id); got != 0 {
			t.Fatalf("user %d balance = %d, want 0", u.id, got)
		}
		resets := e.entries(t, u.id, models.ReasonWeeklyReset)
		if len(resets) != 1 || resets[0].Change != u.change {
			t.Fatalf("user %d resets = %+v, want one %d", u.id, resets, u.change)
		}
	}
	if n := len(e.entries(t, b.ID, models.ReasonWeeklyReset)); n != 0 {
		t.Fatalf("zero balance got %d reset entries", n)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	ctx := t.Context()
	e.ledger.Adjust(ctx, u.ID, 1, models.ReasonTaskOnTime, "first", nil)
	e.ledger.Adjust(ctx, u.ID, 1, models.ReasonQuizBonus, "second", nil)

	history, err := e.ledger.History(ctx, u.ID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Note != "second" {
		t.Fatalf("history = %+v", history)
	}
}

func TestBalanceWithoutAccountIsZero(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	if got := e.balance(t, u.ID); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
}
