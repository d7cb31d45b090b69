package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/pocketkid/internal/database"
	"github.com/dukerupert/pocketkid/internal/model"
)

func setupRecurringTestDB(t *testing.T) (*sql.DB, *RecurringStore, *WalletStore, *UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, NewRecurringStore(db), NewWalletStore(db), NewUserStore(db)
}

func TestListDueRespectsWatermark(t *testing.T) {
	_, rs, _, us := setupRecurringTestDB(t)
	child := createTestChild(t, us, "kid")
	parent, _ := us.Create("mom", "hash", model.RoleParent, "en")

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if _, err := rs.Create(child.ID, model.DirectionDeposit, dec(t, "5.00"), model.FreqWeekly, "allowance", nil, past, parent.ID); err != nil {
		t.Fatalf("create due config: %v", err)
	}
	if _, err := rs.Create(child.ID, model.DirectionDeposit, dec(t, "1.00"), model.FreqDaily, "later", nil, future, parent.ID); err != nil {
		t.Fatalf("create future config: %v", err)
	}

	due, err := rs.ListDue(now, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due count = %d, want 1", len(due))
	}
	if due[0].Description != "allowance" {
		t.Errorf("due config = %q, want the past one", due[0].Description)
	}
}

func TestMaterializeAppliesAndAdvances(t *testing.T) {
	_, rs, ws, us := setupRecurringTestDB(t)
	child := createTestChild(t, us, "kid")
	parent, _ := us.Create("mom", "hash", model.RoleParent, "en")

	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	cfg, err := rs.Create(child.ID, model.DirectionDeposit, dec(t, "5.00"), model.FreqWeekly, "allowance", nil, start, parent.ID)
	if err != nil {
		t.Fatalf("create config: %v", err)
	}

	nextRun := start.AddDate(0, 0, 7)
	movement, outcome, err := rs.Materialize(cfg, nextRun)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("outcome = %q, want applied", outcome)
	}
	if !movement.Amount.Equal(dec(t, "5.00")) {
		t.Errorf("movement amount = %s, want 5.00", movement.Amount)
	}
	if movement.Kind != model.MovementRecurringDeposit {
		t.Errorf("movement kind = %q, want recurring_deposit", movement.Kind)
	}

	// Wallet was auto-created and credited.
	wallet, _ := ws.GetByChild(child.ID)
	if wallet == nil || !wallet.Balance.Equal(dec(t, "5.00")) {
		t.Error("wallet not credited")
	}

	got, _ := rs.GetByID(cfg.ID)
	if !got.NextRunAt.Equal(nextRun) {
		t.Errorf("watermark = %v, want %v", got.NextRunAt, nextRun)
	}
}

func TestMaterializeStaleWatermark(t *testing.T) {
	_, rs, _, us := setupRecurringTestDB(t)
	child := createTestChild(t, us, "kid")
	parent, _ := us.Create("mom", "hash", model.RoleParent, "en")

	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	cfg, _ := rs.Create(child.ID, model.DirectionDeposit, dec(t, "5.00"), model.FreqWeekly, "", nil, start, parent.ID)

	nextRun := start.AddDate(0, 0, 7)
	if _, _, err := rs.Materialize(cfg, nextRun); err != nil {
		t.Fatalf("first materialize: %v", err)
	}

	// Same stale snapshot again: the CAS must refuse.
	_, outcome, err := rs.Materialize(cfg, nextRun)
	if err != nil {
		t.Fatalf("second materialize: %v", err)
	}
	if outcome != OutcomeStale {
		t.Errorf("outcome = %q, want stale", outcome)
	}
}

func TestMaterializeUnfundedDebitSkipsButAdvances(t *testing.T) {
	_, rs, ws, us := setupRecurringTestDB(t)
	child := createTestChild(t, us, "kid")
	parent, _ := us.Create("mom", "hash", model.RoleParent, "en")
	wallet, _ := ws.CreateForChild(child.ID)

	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	cfg, _ := rs.Create(child.ID, model.DirectionWithdrawal, dec(t, "9.00"), model.FreqWeekly, "savings", nil, start, parent.ID)

	nextRun := start.AddDate(0, 0, 7)
	movement, outcome, err := rs.Materialize(cfg, nextRun)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("outcome = %q, want skipped", outcome)
	}
	if movement != nil {
		t.Error("skipped occurrence must not produce a movement")
	}

	// The occurrence is dropped, not retried: the watermark still advanced.
	got, _ := rs.GetByID(cfg.ID)
	if !got.NextRunAt.Equal(nextRun) {
		t.Errorf("watermark = %v, want %v", got.NextRunAt, nextRun)
	}

	history, _ := ws.History(wallet.ID, 10, 0)
	if len(history) != 0 {
		t.Errorf("history has %d movements, want 0", len(history))
	}
}

func TestMaterializeWithdrawalDebits(t *testing.T) {
	_, rs, ws, us := setupRecurringTestDB(t)
	child := createTestChild(t, us, "kid")
	parent, _ := us.Create("mom", "hash", model.RoleParent, "en")
	wallet, _ := ws.CreateForChild(child.ID)
	if _, err := ws.ApplyMovement(MovementParams{WalletID: wallet.ID, Amount: dec(t, "10.00"), Kind: model.MovementParentDeposit}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	cfg, _ := rs.Create(child.ID, model.DirectionWithdrawal, dec(t, "4.00"), model.FreqWeekly, "savings", nil, start, parent.ID)

	movement, outcome, err := rs.Materialize(cfg, start.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("outcome = %q, want applied", outcome)
	}
	if !movement.Amount.Equal(dec(t, "-4.00")) {
		t.Errorf("movement amount = %s, want -4.00", movement.Amount)
	}
	if movement.Kind != model.MovementRecurringWithdrawal {
		t.Errorf("movement kind = %q, want recurring_withdrawal", movement.Kind)
	}

	got, _ := ws.GetByID(wallet.ID)
	if !got.Balance.Equal(dec(t, "6.00")) {
		t.Errorf("balance = %s, want 6.00", got.Balance)
	}
}

func TestSetActiveAndDelete(t *testing.T) {
	_, rs, _, us := setupRecurringTestDB(t)
	child := createTestChild(t, us, "kid")
	parent, _ := us.Create("mom", "hash", model.RoleParent, "en")

	start := time.Now().UTC().Add(-time.Minute)
	cfg, _ := rs.Create(child.ID, model.DirectionDeposit, dec(t, "5.00"), model.FreqDaily, "", nil, start, parent.ID)

	if err := rs.SetActive(cfg.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	due, _ := rs.ListDue(time.Now().UTC(), 10)
	if len(due) != 0 {
		t.Errorf("inactive config still listed as due")
	}

	if err := rs.Delete(cfg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := rs.GetByID(cfg.ID)
	if got != nil {
		t.Error("config still present after delete")
	}
}
