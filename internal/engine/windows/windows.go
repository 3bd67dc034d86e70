// Package windows models the time windows accepted by windowed aggregations
// and renders them to their canonical statement text.
package windows

import (
	"fmt"
	"time"

	errspkg "github.com/drblury/ksqlflow/internal/engine/errors"
)

// Window is a validated window specification. Implementations are immutable
// values; Render returns the canonical statement fragment for the WINDOW
// clause, identical for identical specifications.
type Window interface {
	Render() string
}

// TumblingWindow groups records into fixed, non-overlapping intervals.
type TumblingWindow struct {
	Size time.Duration
}

// HoppingWindow groups records into fixed intervals that advance by a step
// smaller than or equal to the interval, so windows may overlap.
type HoppingWindow struct {
	Size      time.Duration
	AdvanceBy time.Duration
}

// SessionWindow groups records separated by less than the inactivity gap.
type SessionWindow struct {
	InactivityGap time.Duration
}

// Tumbling validates and constructs a tumbling window.
func Tumbling(size time.Duration) (TumblingWindow, error) {
	if err := validateDuration("size", size); err != nil {
		return TumblingWindow{}, err
	}
	return TumblingWindow{Size: size}, nil
}

// Hopping validates and constructs a hopping window. The advance must not
// exceed the window size.
func Hopping(size, advanceBy time.Duration) (HoppingWindow, error) {
	if err := validateDuration("size", size); err != nil {
		return HoppingWindow{}, err
	}
	if err := validateDuration("advance by", advanceBy); err != nil {
		return HoppingWindow{}, err
	}
	if advanceBy > size {
		return HoppingWindow{}, fmt.Errorf("%w: advance by %s exceeds size %s", errspkg.ErrInvalidDuration, advanceBy, size)
	}
	return HoppingWindow{Size: size, AdvanceBy: advanceBy}, nil
}

// Session validates and constructs a session window.
func Session(inactivityGap time.Duration) (SessionWindow, error) {
	if err := validateDuration("inactivity gap", inactivityGap); err != nil {
		return SessionWindow{}, err
	}
	return SessionWindow{InactivityGap: inactivityGap}, nil
}

func (w TumblingWindow) Render() string {
	return fmt.Sprintf("TUMBLING (SIZE %s)", FormatDuration(w.Size))
}

func (w HoppingWindow) Render() string {
	return fmt.Sprintf("HOPPING (SIZE %s, ADVANCE BY %s)", FormatDuration(w.Size), FormatDuration(w.AdvanceBy))
}

func (w SessionWindow) Render() string {
	return fmt.Sprintf("SESSION (%s)", FormatDuration(w.InactivityGap))
}

type unit struct {
	name string
	span time.Duration
}

// Ordered smallest to largest; FormatDuration walks the list and keeps the
// largest unit that still fits.
var units = []unit{
	{"MILLISECONDS", time.Millisecond},
	{"SECONDS", time.Second},
	{"MINUTES", time.Minute},
	{"HOURS", time.Hour},
	{"DAYS", 24 * time.Hour},
}

// FormatDuration renders a duration as "<n> <UNIT>S", trying milliseconds,
// seconds, minutes, hours, and days in order and keeping the largest unit
// whose span does not exceed the duration. The count is the integer quotient,
// so 1500ms renders as "1 SECONDS" while 500ms stays "500 MILLISECONDS". The
// rendering is exact whenever the duration is a whole multiple of the chosen
// unit.
func FormatDuration(d time.Duration) string {
	chosen := units[0]
	for _, u := range units {
		if d >= u.span {
			chosen = u
		}
	}
	return fmt.Sprintf("%d %s", d/chosen.span, chosen.name)
}

func validateDuration(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %s", errspkg.ErrInvalidDuration, name, d)
	}
	if d%time.Millisecond != 0 {
		return fmt.Errorf("%w: %s must be a whole number of milliseconds, got %s", errspkg.ErrInvalidDuration, name, d)
	}
	return nil
}
