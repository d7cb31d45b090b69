package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/pocketkid/internal/model"

	"github.com/shopspring/decimal"
)

type ChallengeStore struct {
	db *sql.DB
}

func NewChallengeStore(db *sql.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

const challengeCols = `id, name, amount, active, hidden, created_at`

func (s *ChallengeStore) Create(name string, amount decimal.Decimal) (*model.Challenge, error) {
	result, err := s.db.Exec(
		`INSERT INTO challenges (name, amount, active) VALUES (?, ?, 1)`,
		name, amount.StringFixed(2),
	)
	if err != nil {
		return nil, fmt.Errorf("insert challenge: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ChallengeStore) GetByID(id int64) (*model.Challenge, error) {
	row := s.db.QueryRow(`SELECT `+challengeCols+` FROM challenges WHERE id = ?`, id)
	c, err := scanChallenge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return c, nil
}

func (s *ChallengeStore) List(limit, offset int) ([]model.Challenge, error) {
	rows, err := s.db.Query(
		`SELECT `+challengeCols+` FROM challenges WHERE hidden = 0 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()
	return collectChallenges(rows)
}

// ListActive returns active, visible challenges ordered by name; what a child
// sees when picking a reward to claim.
func (s *ChallengeStore) ListActive() ([]model.Challenge, error) {
	rows, err := s.db.Query(`SELECT ` + challengeCols + ` FROM challenges WHERE active = 1 AND hidden = 0 ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active challenges: %w", err)
	}
	defer rows.Close()
	return collectChallenges(rows)
}

func (s *ChallengeStore) SetActive(id int64, active bool) error {
	var a int
	if active {
		a = 1
	}
	_, err := s.db.Exec(`UPDATE challenges SET active = ? WHERE id = ? AND hidden = 0`, a, id)
	if err != nil {
		return fmt.Errorf("toggle challenge: %w", err)
	}
	return nil
}

// Delete removes a challenge. When movements or requests still reference it
// the delete fails on the foreign key, so the challenge is hidden and
// deactivated instead; history keeps its link either way.
func (s *ChallengeStore) Delete(id int64) (deleted bool, err error) {
	_, err = s.db.Exec(`DELETE FROM challenges WHERE id = ?`, id)
	if err == nil {
		return true, nil
	}

	if _, hideErr := s.db.Exec(`UPDATE challenges SET active = 0, hidden = 1 WHERE id = ?`, id); hideErr != nil {
		return false, fmt.Errorf("hide challenge: %w", hideErr)
	}
	return false, nil
}

func collectChallenges(rows *sql.Rows) ([]model.Challenge, error) {
	var challenges []model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		challenges = append(challenges, *c)
	}
	return challenges, rows.Err()
}

func scanChallenge(scanner interface{ Scan(...any) error }) (*model.Challenge, error) {
	var c model.Challenge
	var raw string
	var active, hidden int

	err := scanner.Scan(&c.ID, &c.Name, &raw, &active, &hidden, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	c.Amount = amount
	c.Active = active != 0
	c.Hidden = hidden != 0
	return &c, nil
}
