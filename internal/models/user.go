package models

import "time"

// User represents an account stored in the users table. Email is the login
// identifier and is matched case-insensitively; Admin is the single role flag.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Company      string     `db:"company" json:"company"`
	Admin        bool       `db:"admin" json:"admin"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// RegisterRequest creates a new account. Registered accounts are never
// administrators; the flag is granted out of band.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Company  string `json:"company" validate:"required"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Admin     *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
