package models

import (
	"time"
)

type Tenant struct {
	ID               string
	Name             string
	ConnectionString string
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Session struct {
	Token       string
	UserID      string
	SessionData []byte
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
