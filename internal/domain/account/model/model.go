package model

import "time"

// Account is the durable record of one user. PasswordHash and Salt are
// base64 strings and must never leave the service layer.
type Account struct {
	ID        string
	Email     string
	CreatedAt time.Time

	PasswordHash string
	Salt         string

	EmailValidated           bool
	EmailValidationCode      *string
	EmailValidationExpiresAt *time.Time

	ResetPasswordCode      *string
	ResetPasswordExpiresAt *time.Time
}

// UserView is the sanitized projection of an Account handed to callers.
type UserView struct {
	ID                     string     `json:"id"`
	Email                  string     `json:"email"`
	CreatedAt              time.Time  `json:"created"`
	EmailValidated         bool       `json:"emailValidated"`
	ResetPasswordExpiresAt *time.Time `json:"resetPasswordExpires,omitempty"`
}

func NewUserView(a Account) UserView {
	return UserView{
		ID:                     a.ID,
		Email:                  a.Email,
		CreatedAt:              a.CreatedAt,
		EmailValidated:         a.EmailValidated,
		ResetPasswordExpiresAt: a.ResetPasswordExpiresAt,
	}
}

// SessionPayload is what a session token asserts. It is never persisted.
type SessionPayload struct {
	IssuedAt  time.Time
	ExpiresAt time.Time
	UserID    string
}

// SessionResult is returned by Login and GetCurrentUser. Token and User are
// only set when Code is Ok.
type SessionResult struct {
	Code  Result
	Token string
	User  *UserView
}

// CodeResult carries a freshly generated single-use code for out-of-band
// delivery.
type CodeResult struct {
	Code      Result
	Secret    string
	ExpiresAt time.Time
}
