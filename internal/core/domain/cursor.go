package domain

import "time"

// CursorSnapshot is the persisted form of a scan cursor.
type CursorSnapshot struct {
	Name      string
	Watermark Position
	// TieIDs are the processed transaction ids whose position equals Watermark.
	TieIDs    []string
	UpdatedAt time.Time
}
