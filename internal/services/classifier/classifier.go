// Package classifier derives SLA (TAT) and movement-staleness labels for a consignment.
// Labels are computed on read and never stored.
package classifier

import (
	"strings"
	"time"

	"github.com/BearBump/CourierHub/internal/models"
)

const (
	TATOnTime       = "On Time"
	TATWarning      = "Warning"
	TATCritical     = "Critical"
	TATVeryCritical = "Very Critical"
)

const (
	MovementOnTime  = "On Time"
	MovementSlow24  = "Slow (24 hrs)"
	MovementSlow48  = "Slow (48 hrs)"
	MovementStuck72 = "Stuck (72+ hrs)"
)

// DefaultAllowedDays используется, если первая буква AWB не из таблицы.
const DefaultAllowedDays = 5

var allowedDaysByPrefix = map[byte]int{
	'D': 3,
	'M': 5,
	'N': 7,
	'I': 10,
}

// AllowedDays returns the delivery allowance for an AWB by its first letter.
func AllowedDays(awb string) int {
	awb = strings.TrimSpace(awb)
	if awb == "" {
		return DefaultAllowedDays
	}
	if d, ok := allowedDaysByPrefix[strings.ToUpper(awb[:1])[0]]; ok {
		return d
	}
	return DefaultAllowedDays
}

// TATStatus classifies the age of a consignment against its allowance.
// bookedOn is a YYYY-MM-DD date in carrier local time.
func TATStatus(awb string, bookedOn *string, now time.Time) string {
	if bookedOn == nil {
		return TATOnTime
	}
	booked, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(*bookedOn), models.CarrierLocation)
	if err != nil {
		return TATOnTime
	}

	allowed := AllowedDays(awb)
	age := int(now.Sub(booked) / (24 * time.Hour))

	switch {
	case age > allowed+3:
		return TATVeryCritical
	case age > allowed:
		return TATCritical
	case age >= allowed-1:
		return TATWarning
	default:
		return TATOnTime
	}
}

// LatestEventTime returns the timestamp of the most recent event with a parsable date.
// A missing time means midnight.
func LatestEventTime(timeline []*models.TrackingEvent) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)
	for _, ev := range timeline {
		ts, ok := eventTime(ev)
		if !ok {
			continue
		}
		if !found || ts.After(latest) {
			latest, found = ts, true
		}
	}
	return latest, found
}

// MovementStatus classifies how long the shipment has gone without a new event.
func MovementStatus(timeline []*models.TrackingEvent, now time.Time) string {
	last, ok := LatestEventTime(timeline)
	if !ok {
		return MovementOnTime
	}

	hours := int(now.Sub(last) / time.Hour)
	switch {
	case hours >= 72:
		return MovementStuck72
	case hours >= 48:
		return MovementSlow48
	case hours >= 24:
		return MovementSlow24
	default:
		return MovementOnTime
	}
}

func eventTime(ev *models.TrackingEvent) (time.Time, bool) {
	if ev == nil || ev.ActionDate == nil {
		return time.Time{}, false
	}
	date := strings.TrimSpace(*ev.ActionDate)
	if ev.ActionTime != nil {
		if ts, err := time.ParseInLocation(time.DateTime, date+" "+strings.TrimSpace(*ev.ActionTime), models.CarrierLocation); err == nil {
			return ts, true
		}
	}
	ts, err := time.ParseInLocation(time.DateOnly, date, models.CarrierLocation)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
