package dtdc

import (
	"strings"
	"time"

	"github.com/BearBump/CourierHub/internal/models"
)

// ParseDate: "DDMMYYYY" -> "YYYY-MM-DD". Всё остальное (пусто, другая длина, не дата) -> nil.
func ParseDate(raw string) *string {
	raw = strings.TrimSpace(raw)
	if len(raw) != 8 {
		return nil
	}
	d, err := time.Parse("02012006", raw)
	if err != nil {
		return nil
	}
	s := d.Format(time.DateOnly)
	return &s
}

// ParseTime: "HHMM" -> "HH:MM:00".
func ParseTime(raw string) *string {
	raw = strings.TrimSpace(raw)
	if len(raw) != 4 {
		return nil
	}
	t, err := time.Parse("1504", raw)
	if err != nil {
		return nil
	}
	s := t.Format(time.TimeOnly)
	return &s
}

// ParseDateTime combines a DDMMYYYY date with an optional HHMM time in carrier local time.
// A missing or malformed time yields midnight of that date.
func ParseDateTime(dateRaw, timeRaw string) *time.Time {
	d := ParseDate(dateRaw)
	if d == nil {
		return nil
	}
	layout, value := time.DateOnly, *d
	if t := ParseTime(timeRaw); t != nil {
		layout, value = time.DateTime, *d+" "+*t
	}
	ts, err := time.ParseInLocation(layout, value, models.CarrierLocation)
	if err != nil {
		return nil
	}
	return &ts
}
