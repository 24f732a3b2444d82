package types

import "time"

// Link represents a shortened URL owned by a user.
type Link struct {
	// ID is the unique identifier of the link.
	ID int64 `json:"id" db:"id"`

	// UserID identifies the owner of the link.
	UserID int64 `json:"user_id" db:"user_id"`

	// Slug is the public path segment that redirects to URL.
	Slug string `json:"slug" db:"slug"`

	// URL is the redirect destination.
	URL string `json:"url" db:"url"`

	// Title is an optional human-readable label.
	Title *string `json:"title" db:"title"`

	// CreatedAt is the timestamp when the link was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// DeletedAt marks a soft-deleted link. Deleted links no longer resolve.
	DeletedAt *time.Time `json:"-" db:"deleted_at"`

	// Visits is the total number of recorded visits. Only populated by
	// list queries.
	Visits int `json:"total" db:"-"`
}

// Visit is a single recorded redirect through a link.
type Visit struct {
	ID        int64     `json:"id" db:"id"`
	LinkID    int64     `json:"link_id" db:"link_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	IP        string    `json:"ip" db:"ip"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	Language  string    `json:"language" db:"language"`
	Referer   string    `json:"referer" db:"referer"`
	Browser   string    `json:"browser" db:"browser"`
	OS        string    `json:"os" db:"os"`
	Device    string    `json:"device" db:"device"`
	Country   string    `json:"country" db:"country"`
}

// DailyCount is one point of a per-day visit series.
type DailyCount struct {
	Date  string `json:"date"`
	Value int    `json:"value"`
}

// KeyCount is one bucket of a categorical breakdown.
type KeyCount struct {
	Key   string `json:"key"`
	Value int    `json:"value"`
}

// LinkStats summarizes the recent traffic of a link.
type LinkStats struct {
	Link      Link         `json:"link"`
	Series    []DailyCount `json:"series"`
	ByBrowser []KeyCount   `json:"byBrowser"`
	ByOS      []KeyCount   `json:"byOS"`
	ByRef     []KeyCount   `json:"byRef"`
}
