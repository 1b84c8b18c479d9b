package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPosition is returned for a malformed consensus timestamp.
var ErrInvalidPosition = errors.New("invalid position")

// Position is the consensus order key of a transaction: nanoseconds since epoch.
type Position int64

// ParsePosition parses the "seconds.nanoseconds" form used by the mirror REST API.
func ParsePosition(s string) (Position, error) {
	secPart, nanoPart, hasFrac := strings.Cut(strings.TrimSpace(s), ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil || sec < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPosition, s)
	}

	var nanos int64
	if hasFrac {
		if len(nanoPart) == 0 || len(nanoPart) > 9 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidPosition, s)
		}
		nanoPart += strings.Repeat("0", 9-len(nanoPart))
		nanos, err = strconv.ParseInt(nanoPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidPosition, s)
		}
	}
	return Position(sec*int64(time.Second) + nanos), nil
}

// String returns the "seconds.nanoseconds" form.
func (p Position) String() string {
	sec := int64(p) / int64(time.Second)
	nanos := int64(p) % int64(time.Second)
	return fmt.Sprintf("%d.%09d", sec, nanos)
}

// Time converts the position to wall-clock time.
func (p Position) Time() time.Time {
	return time.Unix(0, int64(p)).UTC()
}

// PositionFromTime converts a wall-clock time to a position.
func PositionFromTime(t time.Time) Position {
	return Position(t.UnixNano())
}
