package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/pocketkid/internal/model"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned when a debit would drive a wallet balance
// negative. The attempt leaves no trace: no movement row, no balance change.
var ErrInsufficientFunds = errors.New("insufficient funds")

type WalletStore struct {
	db *sql.DB
}

func NewWalletStore(db *sql.DB) *WalletStore {
	return &WalletStore{db: db}
}

// MovementParams describes one ledger mutation.
type MovementParams struct {
	WalletID    int64
	Amount      decimal.Decimal
	Kind        string
	Description string
	RequestID   *int64
	ChallengeID *int64
	ActorID     *int64
}

func (s *WalletStore) CreateForChild(childID int64) (*model.Wallet, error) {
	result, err := s.db.Exec(`INSERT INTO wallets (child_id, balance) VALUES (?, '0.00')`, childID)
	if err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &model.Wallet{ID: id, ChildID: childID, Balance: decimal.Zero}, nil
}

// GetOrCreateByChild returns the child's wallet, creating an empty one on
// first access the way the rest of the app expects.
func (s *WalletStore) GetOrCreateByChild(childID int64) (*model.Wallet, error) {
	w, err := s.GetByChild(childID)
	if err != nil {
		return nil, err
	}
	if w != nil {
		return w, nil
	}
	return s.CreateForChild(childID)
}

func (s *WalletStore) GetByChild(childID int64) (*model.Wallet, error) {
	row := s.db.QueryRow(`SELECT id, child_id, balance FROM wallets WHERE child_id = ?`, childID)
	w, err := scanWallet(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet by child: %w", err)
	}
	return w, nil
}

func (s *WalletStore) GetByID(id int64) (*model.Wallet, error) {
	row := s.db.QueryRow(`SELECT id, child_id, balance FROM wallets WHERE id = ?`, id)
	w, err := scanWallet(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// ApplyMovement checks funds, appends a movement row, and updates the cached
// balance in a single write transaction. Both succeed or neither does.
func (s *WalletStore) ApplyMovement(p MovementParams) (*model.Movement, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	m, err := applyMovementTx(tx, p)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit movement: %w", err)
	}
	return m, nil
}

// applyMovementTx is the shared atomic unit behind every balance mutation:
// manual parent movements, approved requests, and recurring materialization
// all go through it inside their own transactions.
func applyMovementTx(tx *sql.Tx, p MovementParams) (*model.Movement, error) {
	var raw string
	err := tx.QueryRow(`SELECT balance FROM wallets WHERE id = ?`, p.WalletID).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", raw, err)
	}

	newBalance := balance.Add(p.Amount)
	if newBalance.IsNegative() {
		return nil, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	result, err := tx.Exec(
		`INSERT INTO movements (wallet_id, amount, kind, description, request_id, challenge_id, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.WalletID, p.Amount.StringFixed(2), p.Kind, p.Description,
		nullInt64(p.RequestID), nullInt64(p.ChallengeID), nullInt64(p.ActorID), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert movement: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.Exec(`UPDATE wallets SET balance = ? WHERE id = ?`, newBalance.StringFixed(2), p.WalletID); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	return &model.Movement{
		ID:          id,
		WalletID:    p.WalletID,
		Amount:      p.Amount,
		Kind:        p.Kind,
		Description: p.Description,
		RequestID:   p.RequestID,
		ChallengeID: p.ChallengeID,
		CreatedBy:   p.ActorID,
		CreatedAt:   now,
	}, nil
}

const movementCols = `id, wallet_id, amount, kind, description, request_id, challenge_id, created_by, created_at`

// History returns the wallet's movements, newest first.
func (s *WalletStore) History(walletID int64, limit, offset int) ([]model.Movement, error) {
	rows, err := s.db.Query(
		`SELECT `+movementCols+` FROM movements WHERE wallet_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		walletID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var movements []model.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, *m)
	}
	return movements, rows.Err()
}

// ReconcileResult reports the cached balance against a full replay of the
// movement log.
type ReconcileResult struct {
	Balance    decimal.Decimal `json:"balance"`
	Replayed   decimal.Decimal `json:"replayed"`
	Consistent bool            `json:"consistent"`
}

// Reconcile replays the wallet's movement log and compares the sum with the
// cached balance. Recovery/consistency check only; it never mutates.
func (s *WalletStore) Reconcile(walletID int64) (*ReconcileResult, error) {
	w, err := s.GetByID(walletID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("wallet %d not found", walletID)
	}

	rows, err := s.db.Query(`SELECT amount FROM movements WHERE wallet_id = ? ORDER BY id ASC`, walletID)
	if err != nil {
		return nil, fmt.Errorf("replay movements: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan amount: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		sum = sum.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ReconcileResult{
		Balance:    w.Balance,
		Replayed:   sum,
		Consistent: w.Balance.Equal(sum),
	}, nil
}

func scanWallet(scanner interface{ Scan(...any) error }) (*model.Wallet, error) {
	var w model.Wallet
	var raw string
	if err := scanner.Scan(&w.ID, &w.ChildID, &raw); err != nil {
		return nil, err
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	w.Balance = balance
	return &w, nil
}

func scanMovement(scanner interface{ Scan(...any) error }) (*model.Movement, error) {
	var m model.Movement
	var raw string
	var requestID, challengeID, createdBy sql.NullInt64

	err := scanner.Scan(&m.ID, &m.WalletID, &raw, &m.Kind, &m.Description, &requestID, &challengeID, &createdBy, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	m.Amount = amount
	if requestID.Valid {
		m.RequestID = &requestID.Int64
	}
	if challengeID.Valid {
		m.ChallengeID = &challengeID.Int64
	}
	if createdBy.Valid {
		m.CreatedBy = &createdBy.Int64
	}
	return &m, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
