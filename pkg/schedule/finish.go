// Package schedule turns broadcaster schedule data into timer delays and
// tracks the program airing on the active stream.
package schedule

import (
	"fmt"
	"strconv"
	"time"
	_ "time/tzdata" // Asia/Seoul must resolve on hosts without zoneinfo
)

// Program is one entry of a provider's broadcast schedule.
type Program struct {
	Code  string `json:"code"`
	Title string `json:"title"`
	Start string `json:"start"` // HHMM, broadcaster clock
	End   string `json:"end"`   // HHMM, broadcaster clock
	Image string `json:"image,omitempty"`
}

// ParseError reports a malformed HHMM value.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("schedule time %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Clock splits an HHMM value. Hours 24-29 are the broadcaster's way of
// writing 00-05 of the following day and are returned as-is.
func Clock(hhmm string) (hour, minute int, err error) {
	if len(hhmm) < 4 {
		return 0, 0, &ParseError{Value: hhmm, Err: fmt.Errorf("too short")}
	}

	hour, err = strconv.Atoi(hhmm[0:2])
	if err != nil {
		return 0, 0, &ParseError{Value: hhmm, Err: err}
	}
	minute, err = strconv.Atoi(hhmm[2:4])
	if err != nil {
		return 0, 0, &ParseError{Value: hhmm, Err: err}
	}

	if hour < 0 || hour > 29 || minute < 0 || minute > 59 {
		return 0, 0, &ParseError{Value: hhmm, Err: fmt.Errorf("out of range")}
	}

	return hour, minute, nil
}

// FinishTime resolves endHHMM against now in loc. An hour of 24 or more
// rolls to the next day, but only when local time is already past noon;
// early in the morning the "next day" is today.
func FinishTime(endHHMM string, now time.Time, loc *time.Location) (time.Time, error) {
	hour, minute, err := Clock(endHHMM)
	if err != nil {
		return time.Time{}, err
	}

	zoned := now.In(loc)
	y, m, d := zoned.Date()

	if hour >= 24 {
		hour -= 24
		if zoned.Hour() > 12 {
			d++
		}
	}

	return time.Date(y, m, d, hour, minute, 0, 0, loc), nil
}

// Remaining is the whole seconds from now until endHHMM, plus margin.
func Remaining(endHHMM string, now time.Time, loc *time.Location, margin time.Duration) (time.Duration, error) {
	end, err := FinishTime(endHHMM, now, loc)
	if err != nil {
		return 0, err
	}

	secs := end.Sub(now) / time.Second
	return secs*time.Second + margin, nil
}

// Range formats a program's slot as "HH:MM~HH:MM".
func (p Program) Range() string {
	return clockLabel(p.Start) + "~" + clockLabel(p.End)
}

func clockLabel(hhmm string) string {
	if len(hhmm) < 4 {
		return hhmm
	}
	return hhmm[0:2] + ":" + hhmm[2:4]
}
