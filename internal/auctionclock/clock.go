// Package auctionclock derives auction end times and remaining time from listing
// attributes. Nothing here is stored; every value is recomputed from "now".
package auctionclock

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bidtobuy/internal/models"
)

const Day = 24 * time.Hour

// MaxDurationDays caps auction length; time.Duration overflows a little past 106751 days.
const MaxDurationDays = 100000

var (
	daysPattern    = regexp.MustCompile(`(?i)(\d+)\s*days?`)
	bareIntPattern = regexp.MustCompile(`^\d+$`)
)

// ParseDurationDays reads the day count out of strings like "7 days", "1 Day" or "3Days".
// A bare integer is taken as days. Anything else yields 0. Counts above MaxDurationDays are capped.
func ParseDurationDays(duration string) int {
	s := strings.TrimSpace(duration)
	if s == "" {
		return 0
	}
	m := daysPattern.FindStringSubmatch(s)
	if m == nil {
		if !bareIntPattern.MatchString(s) {
			return 0
		}
		m = []string{s, s}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// only digits reach Atoi, so this is a count too large for int
		return MaxDurationDays
	}
	return min(n, MaxDurationDays)
}

// EndTime is createdAt plus whole days, at most MaxDurationDays.
func EndTime(createdAt time.Time, durationDays int) time.Time {
	durationDays = max(0, min(durationDays, MaxDurationDays))
	return createdAt.Add(time.Duration(durationDays) * Day)
}

// ListingEnd returns the auction end time of a listing. ok is false when the end time is
// indeterminate (missing creation time or duration); callers should skip such listings.
func ListingEnd(l *models.Listing) (end time.Time, ok bool) {
	if l == nil || l.CreatedAt.IsZero() || strings.TrimSpace(l.AuctionDuration) == "" {
		return time.Time{}, false
	}
	return EndTime(l.CreatedAt, ParseDurationDays(l.AuctionDuration)), true
}

func IsOpen(end, now time.Time) bool { return now.Before(end) }

// Remaining is a floor-truncated breakdown of the time left before an auction ends.
type Remaining struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
	Ended   bool  `json:"ended"`
}

func TimeRemaining(end, now time.Time) Remaining {
	if !now.Before(end) {
		return Remaining{Ended: true}
	}
	left := end.Sub(now)
	return Remaining{
		Days:    int64(left / Day),
		Hours:   int64(left % Day / time.Hour),
		Minutes: int64(left % time.Hour / time.Minute),
		Seconds: int64(left % time.Minute / time.Second),
	}
}

// String renders "DD:HH:MM:SS", or "Auction ended".
func (r Remaining) String() string {
	if r.Ended {
		return models.TimeRemainingEnd
	}
	return fmt.Sprintf("%02d:%02d:%02d:%02d", r.Days, r.Hours, r.Minutes, r.Seconds)
}
