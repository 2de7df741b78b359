// Package models holds the persisted dlogr entities.
package models

import "time"

// Account is a tenant. Field tags drive the validation gate; PasswordHash is
// deliberately untagged so the full-entity pass never inspects it.
type Account struct {
	ID            string    `json:"id"`
	Email         string    `json:"email" validate:"notblank,max=255,email"`
	PasswordHash  string    `json:"-"`
	Name          string    `json:"name" validate:"notblank,max=255"`
	Timezone      string    `json:"timezone" validate:"notblank,timezone"`
	EmailVerified bool      `json:"email_verified"`
	IsStaff       bool      `json:"is_staff"`
	IsSuperuser   bool      `json:"is_superuser"`
	Created       time.Time `json:"created"`
	Modified      time.Time `json:"modified"`
}

// AuthToken is the persistent bearer credential of an account.
type AuthToken struct {
	Key       string
	AccountID string
	Created   time.Time
}
