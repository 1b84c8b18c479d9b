package domain

import (
	"time"
)

// WatchEntry is a watched address with an optional human label.
type WatchEntry struct {
	Address   Address
	Label     string
	CreatedAt time.Time
}
