package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/pocketkid/internal/model"

	"github.com/shopspring/decimal"
)

// ErrNotPending is returned when a decision targets a request that has
// already been decided. Distinct from validation failures: it signals a
// lost race (or a retried decision), not bad input.
var ErrNotPending = errors.New("request is not pending")

type RequestStore struct {
	db *sql.DB
}

func NewRequestStore(db *sql.DB) *RequestStore {
	return &RequestStore{db: db}
}

const requestCols = `id, child_id, kind, amount, challenge_id, description, status, created_at, decided_at, decided_by`

func (s *RequestStore) Create(childID int64, kind string, amount decimal.Decimal, challengeID *int64, description string) (*model.Request, error) {
	result, err := s.db.Exec(
		`INSERT INTO requests (child_id, kind, amount, challenge_id, description, status)
		 VALUES (?, ?, ?, ?, ?, 'pending')`,
		childID, kind, amount.StringFixed(2), nullInt64(challengeID), description,
	)
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RequestStore) GetByID(id int64) (*model.Request, error) {
	row := s.db.QueryRow(`SELECT `+requestCols+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return r, nil
}

func (s *RequestStore) ListPending(limit, offset int) ([]model.Request, error) {
	return s.list(`WHERE status = 'pending' ORDER BY created_at DESC, id DESC`, limit, offset)
}

func (s *RequestStore) ListByChild(childID int64, limit, offset int) ([]model.Request, error) {
	rows, err := s.db.Query(
		`SELECT `+requestCols+` FROM requests WHERE child_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		childID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list requests by child: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *RequestStore) CountPendingByChild(childID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM requests WHERE child_id = ? AND status = 'pending'`, childID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending requests: %w", err)
	}
	return n, nil
}

// Decide moves a pending request to a terminal status and, when approving to
// movement != nil, applies the ledger mutation in the same transaction. The
// status flip is a compare-and-set on status = 'pending': of two concurrent
// decisions exactly one wins and the loser gets ErrNotPending. A failed debit
// rolls back everything, so the request stays pending.
func (s *RequestStore) Decide(id, parentID int64, status string, movement *MovementParams) (*model.Request, *model.Movement, error) {
	if status != model.StatusApproved && status != model.StatusRejected {
		return nil, nil, fmt.Errorf("invalid decision status %q", status)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.Exec(
		`UPDATE requests SET status = ?, decided_at = ?, decided_by = ? WHERE id = ? AND status = 'pending'`,
		status, now, parentID, id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("update request status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil, ErrNotPending
	}

	var m *model.Movement
	if movement != nil {
		m, err = applyMovementTx(tx, *movement)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit decision: %w", err)
	}

	r, err := s.GetByID(id)
	if err != nil {
		return nil, nil, err
	}
	return r, m, nil
}

func (s *RequestStore) list(clause string, limit, offset int) ([]model.Request, error) {
	rows, err := s.db.Query(`SELECT `+requestCols+` FROM requests `+clause+` LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

func collectRequests(rows *sql.Rows) ([]model.Request, error) {
	var requests []model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

func scanRequest(scanner interface{ Scan(...any) error }) (*model.Request, error) {
	var r model.Request
	var raw string
	var challengeID, decidedBy sql.NullInt64
	var decidedAt sql.NullTime

	err := scanner.Scan(&r.ID, &r.ChildID, &r.Kind, &raw, &challengeID, &r.Description, &r.Status, &r.CreatedAt, &decidedAt, &decidedBy)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	r.Amount = amount
	if challengeID.Valid {
		r.ChallengeID = &challengeID.Int64
	}
	if decidedAt.Valid {
		r.DecidedAt = &decidedAt.Time
	}
	if decidedBy.Valid {
		r.DecidedBy = &decidedBy.Int64
	}
	return &r, nil
}
