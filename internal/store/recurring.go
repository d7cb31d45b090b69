package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/pocketkid/internal/model"

	"github.com/shopspring/decimal"
)

type RecurringStore struct {
	db *sql.DB
}

func NewRecurringStore(db *sql.DB) *RecurringStore {
	return &RecurringStore{db: db}
}

const recurringCols = `id, child_id, direction, amount, frequency, description, challenge_id, anchor_at, next_run_at, active, hidden, created_by, created_at`

func (s *RecurringStore) Create(childID int64, direction string, amount decimal.Decimal, frequency, description string, challengeID *int64, startAt time.Time, createdBy int64) (*model.RecurringConfig, error) {
	result, err := s.db.Exec(
		`INSERT INTO recurring_configs (child_id, direction, amount, frequency, description, challenge_id, anchor_at, next_run_at, active, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		childID, direction, amount.StringFixed(2), frequency, description, nullInt64(challengeID), startAt.UTC(), startAt.UTC(), createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert recurring config: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RecurringStore) GetByID(id int64) (*model.RecurringConfig, error) {
	row := s.db.QueryRow(`SELECT `+recurringCols+` FROM recurring_configs WHERE id = ?`, id)
	c, err := scanRecurring(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recurring config: %w", err)
	}
	return c, nil
}

func (s *RecurringStore) List(limit, offset int) ([]model.RecurringConfig, error) {
	rows, err := s.db.Query(
		`SELECT `+recurringCols+` FROM recurring_configs WHERE hidden = 0 ORDER BY next_run_at ASC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list recurring configs: %w", err)
	}
	defer rows.Close()
	return collectRecurring(rows)
}

// ListDue returns active configs whose watermark is at or before now,
// soonest first.
func (s *RecurringStore) ListDue(now time.Time, limit int) ([]model.RecurringConfig, error) {
	rows, err := s.db.Query(
		`SELECT `+recurringCols+` FROM recurring_configs
		 WHERE active = 1 AND hidden = 0 AND next_run_at <= ?
		 ORDER BY next_run_at ASC LIMIT ?`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due recurring configs: %w", err)
	}
	defer rows.Close()
	return collectRecurring(rows)
}

func (s *RecurringStore) SetActive(id int64, active bool) error {
	var a int
	if active {
		a = 1
	}
	_, err := s.db.Exec(`UPDATE recurring_configs SET active = ? WHERE id = ? AND hidden = 0`, a, id)
	if err != nil {
		return fmt.Errorf("toggle recurring config: %w", err)
	}
	return nil
}

func (s *RecurringStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM recurring_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recurring config: %w", err)
	}
	return nil
}

// Materialization outcomes.
const (
	OutcomeApplied = "applied"
	// OutcomeSkipped: a debit the wallet cannot fund. The occurrence is
	// dropped and the watermark still advances, so it is never retried.
	OutcomeSkipped = "skipped"
	// OutcomeStale: the watermark moved underneath us; nothing was done.
	OutcomeStale = "stale"
)

// Materialize applies one due occurrence of cfg and advances the watermark to
// nextRun, all in one transaction. The watermark update is a compare-and-set
// on the old next_run_at, so a crashed-and-rerun scheduler cannot
// double-materialize an occurrence.
func (s *RecurringStore) Materialize(cfg *model.RecurringConfig, nextRun time.Time) (*model.Movement, string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE recurring_configs SET next_run_at = ? WHERE id = ? AND next_run_at = ? AND active = 1`,
		nextRun.UTC(), cfg.ID, cfg.NextRunAt.UTC(),
	)
	if err != nil {
		return nil, "", fmt.Errorf("advance watermark: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, "", fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, OutcomeStale, nil
	}

	walletID, err := walletIDForChildTx(tx, cfg.ChildID)
	if err != nil {
		return nil, "", err
	}

	amount := cfg.Amount
	kind := model.MovementRecurringDeposit
	if cfg.Direction == model.DirectionWithdrawal {
		amount = amount.Neg()
		kind = model.MovementRecurringWithdrawal
	}

	m, err := applyMovementTx(tx, MovementParams{
		WalletID:    walletID,
		Amount:      amount,
		Kind:        kind,
		Description: cfg.Description,
		ChallengeID: cfg.ChallengeID,
		ActorID:     cfg.CreatedBy,
	})
	if errors.Is(err, ErrInsufficientFunds) {
		// Keep the watermark advance, drop the movement.
		if err := tx.Commit(); err != nil {
			return nil, "", fmt.Errorf("commit skipped occurrence: %w", err)
		}
		return nil, OutcomeSkipped, nil
	}
	if err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("commit occurrence: %w", err)
	}
	return m, OutcomeApplied, nil
}

func walletIDForChildTx(tx *sql.Tx, childID int64) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM wallets WHERE child_id = ?`, childID).Scan(&id)
	if err == sql.ErrNoRows {
		result, err := tx.Exec(`INSERT INTO wallets (child_id, balance) VALUES (?, '0.00')`, childID)
		if err != nil {
			return 0, fmt.Errorf("create wallet: %w", err)
		}
		return result.LastInsertId()
	}
	if err != nil {
		return 0, fmt.Errorf("get wallet for child: %w", err)
	}
	return id, nil
}

func collectRecurring(rows *sql.Rows) ([]model.RecurringConfig, error) {
	var configs []model.RecurringConfig
	for rows.Next() {
		c, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring config: %w", err)
		}
		configs = append(configs, *c)
	}
	return configs, rows.Err()
}

func scanRecurring(scanner interface{ Scan(...any) error }) (*model.RecurringConfig, error) {
	var c model.RecurringConfig
	var raw string
	var challengeID, createdBy sql.NullInt64
	var active, hidden int

	err := scanner.Scan(&c.ID, &c.ChildID, &c.Direction, &raw, &c.Frequency, &c.Description, &challengeID, &c.AnchorAt, &c.NextRunAt, &active, &hidden, &createdBy, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	c.Amount = amount
	if challengeID.Valid {
		c.ChallengeID = &challengeID.Int64
	}
	if createdBy.Valid {
		c.CreatedBy = &createdBy.Int64
	}
	c.Active = active != 0
	c.Hidden = hidden != 0
	return &c, nil
}
