package store

import (
	"database/sql"
	"fmt"

	"github.com/hazelvane/arcana/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var birthDate, birthPlace sql.NullString
	err := scanner.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName,
		&birthDate, &birthPlace, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if birthDate.Valid {
		u.BirthDate = &birthDate.String
	}
	if birthPlace.Valid {
		u.BirthPlace = &birthPlace.String
	}
	return &u, nil
}

const userCols = `id, email, password_hash, full_name, birth_date, birth_place, created_at, updated_at`

func (s *UserStore) Create(email, passwordHash, fullName string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (email, password_hash, full_name) VALUES (?, ?, ?)`,
		email, passwordHash, fullName,
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

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// UpdateProfile sets the birth details used to personalize readings.
func (s *UserStore) UpdateProfile(id int64, fullName, birthDate, birthPlace string) error {
	_, err := s.db.Exec(
		`UPDATE users SET full_name = ?, birth_date = ?, birth_place = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		fullName, birthDate, birthPlace, id,
	)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	return nil
}
