package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/pocketkid/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := scanner.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Language, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userCols = `id, username, password_hash, role, language, created_at`

func (s *UserStore) Create(username, passwordHash, role, language string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (username, password_hash, role, language) VALUES (?, ?, ?, ?)`,
		username, passwordHash, role, language,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByUsername(username string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

func (s *UserStore) ListByRole(role string) ([]model.User, error) {
	rows, err := s.db.Query(`SELECT `+userCols+` FROM users WHERE role = ? ORDER BY username ASC`, role)
	if err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *UserStore) CountByRole(role string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE role = ?`, role).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users by role: %w", err)
	}
	return n, nil
}

func (s *UserStore) UpdatePassword(id int64, passwordHash string) error {
	_, err := s.db.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *UserStore) UpdateLanguage(id int64, language string) error {
	_, err := s.db.Exec(`UPDATE users SET language = ? WHERE id = ?`, language, id)
	if err != nil {
		return fmt.Errorf("update language: %w", err)
	}
	return nil
}

// DeleteChild removes a child and everything hanging off them: wallet,
// movements, requests, notifications, recurring configs, push subscriptions
// and sessions, in one transaction.
func (s *UserStore) DeleteChild(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	steps := []string{
		`DELETE FROM movements WHERE wallet_id IN (SELECT id FROM wallets WHERE child_id = ?)`,
		`DELETE FROM notifications WHERE user_id = ?`,
		`UPDATE notifications SET request_id = NULL WHERE request_id IN (SELECT id FROM requests WHERE child_id = ?)`,
		`DELETE FROM requests WHERE child_id = ?`,
		`DELETE FROM wallets WHERE child_id = ?`,
		`DELETE FROM recurring_configs WHERE child_id = ?`,
		`DELETE FROM push_subscriptions WHERE user_id = ?`,
		`DELETE FROM sessions WHERE user_id = ?`,
		`DELETE FROM users WHERE id = ? AND role = 'child'`,
	}
	for _, q := range steps {
		if _, err := tx.Exec(q, id); err != nil {
			return fmt.Errorf("delete child: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete child: %w", err)
	}
	return nil
}

func (s *UserStore) DeleteParent(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	steps := []string{
		`DELETE FROM notifications WHERE user_id = ?`,
		`DELETE FROM push_subscriptions WHERE user_id = ?`,
		`DELETE FROM sessions WHERE user_id = ?`,
		`UPDATE requests SET decided_by = NULL WHERE decided_by = ?`,
		`UPDATE movements SET created_by = NULL WHERE created_by = ?`,
		`UPDATE recurring_configs SET created_by = NULL WHERE created_by = ?`,
		`DELETE FROM users WHERE id = ? AND role = 'parent'`,
	}
	for _, q := range steps {
		if _, err := tx.Exec(q, id); err != nil {
			return fmt.Errorf("delete parent: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete parent: %w", err)
	}
	return nil
}
