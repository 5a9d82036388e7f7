package sqlq

import (
	"context"
)

const userColumns = `id, username, password_hash, email, name, bio, location, skill_level, is_court_owner, avatar_url, phone`

func scanUser(row interface{ Scan(...interface{}) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.PasswordHash,
		&i.Email,
		&i.Name,
		&i.Bio,
		&i.Location,
		&i.SkillLevel,
		&i.IsCourtOwner,
		&i.AvatarUrl,
		&i.Phone,
	)
	return i, err
}

const createUser = `INSERT INTO users (username, password_hash, email, name, bio, location, skill_level, is_court_owner, avatar_url, phone)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + userColumns

type CreateUserParams struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Bio          string `json:"bio"`
	Location     string `json:"location"`
	SkillLevel   string `json:"skill_level"`
	IsCourtOwner bool   `json:"is_court_owner"`
	AvatarUrl    string `json:"avatar_url"`
	Phone        string `json:"phone"`
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser,
		arg.Username,
		arg.PasswordHash,
		arg.Email,
		arg.Name,
		arg.Bio,
		arg.Location,
		arg.SkillLevel,
		arg.IsCourtOwner,
		arg.AvatarUrl,
		arg.Phone,
	)
	return scanUser(row)
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByUsername = `SELECT ` + userColumns + ` FROM users WHERE lower(username) = lower(?)`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByUsername, username))
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower(?)`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}
