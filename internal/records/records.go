// Package records persists theme history, user accounts and websites.
// Backends: MongoDB (production), SQLite (single node) and memory (tests).
package records

import (
	"context"
	"strings"
	"time"
)

// HistoryEntry is one past theme and when it was replaced.
type HistoryEntry struct {
	Theme   string    `json:"theme"`
	DateSet time.Time `json:"dateSet"`
}

// ThemeRecord tracks the live theme of one website (bucket). History is
// append-only and chronological.
type ThemeRecord struct {
	Website      string         `json:"website"`
	CurrentTheme string         `json:"currentTheme"`
	History      []HistoryEntry `json:"history"`
	Version      int64          `json:"version"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

const (
	RoleSuperAdmin = "super admin"
	RoleAdmin      = "admin"
	RoleUser       = "user"

	StatusActive   = "active"
	StatusInactive = "inactive"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Active reports whether the account may log in.
func (u User) Active() bool { return u.Status != StatusInactive }

// UserUpdate changes profile fields; empty fields are left alone.
type UserUpdate struct {
	Name  string
	Email string
	Phone string
}

type Website struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Bucket    string    `json:"bucket"`
	Domain    string    `json:"domain,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ThemeStore records theme swaps. RecordSwap is a single atomic step: the
// first swap of a website creates {current: theme, history: [theme]}, every
// later one appends the previous current theme and sets current to theme.
type ThemeStore interface {
	RecordSwap(ctx context.Context, website, theme string, at time.Time) (ThemeRecord, error)
	GetTheme(ctx context.Context, website string) (ThemeRecord, error)
}

// UserStore keeps accounts. Emails are unique, compared case-insensitively.
type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate, at time.Time) (User, error)
	SetPassword(ctx context.Context, id, hash string, at time.Time) error
	CountUsersByRole(ctx context.Context, role string) (int, error)
}

// WebsiteStore keeps website records. Buckets are unique.
type WebsiteStore interface {
	CreateWebsite(ctx context.Context, w Website) (Website, error)
	WebsiteByID(ctx context.Context, id string) (Website, error)
	ListWebsites(ctx context.Context) ([]Website, error)
	DeleteWebsite(ctx context.Context, id string) error
}

type Store interface {
	ThemeStore
	UserStore
	WebsiteStore
	// Ping reports whether the backend can serve requests; readiness uses it.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
