// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is a principal known to the directory. Email is stored normalized.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}
