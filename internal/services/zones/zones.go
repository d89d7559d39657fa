// Package zones estimates shipping distance between two Indian pincodes from their states.
// The estimate is a coarse band, not a routing distance.
package zones

import (
	"context"
	"log/slog"
	"strings"
)

type Zone string

const (
	ZoneNorth     Zone = "north"
	ZoneWest      Zone = "west"
	ZoneEast      Zone = "east"
	ZoneSouth     Zone = "south"
	ZoneCentral   Zone = "central"
	ZoneNortheast Zone = "northeast"
	ZoneOther     Zone = "other"
)

const (
	SameStateKm  = 150
	SameZoneKm   = 450
	CrossZoneKm  = 1200
	UnresolvedKm = 500
)

// Порядок проверки важен: первая зона, в таблице которой нашлась подстрока, побеждает.
var zoneTable = []struct {
	zone   Zone
	states []string
}{
	{ZoneNorth, []string{"Delhi", "Punjab", "Haryana", "UP", "Uttarakhand", "Himachal", "J&K"}},
	{ZoneWest, []string{"Maharashtra", "Gujarat", "Rajasthan"}},
	{ZoneEast, []string{"West Bengal", "Odisha", "Jharkhand", "Bihar"}},
	{ZoneSouth, []string{"Karnataka", "Kerala", "Tamil Nadu", "Andhra Pradesh", "Telangana"}},
	{ZoneCentral, []string{"MP", "Chhattisgarh"}},
	{ZoneNortheast, []string{"Assam", "Meghalaya", "Nagaland", "Manipur", "Tripura"}},
}

// ZoneOf maps a state name to its zone using case-insensitive substring matching.
func ZoneOf(state string) Zone {
	low := strings.ToLower(state)
	for _, z := range zoneTable {
		for _, s := range z.states {
			if strings.Contains(low, strings.ToLower(s)) {
				return z.zone
			}
		}
	}
	return ZoneOther
}

// StateLookup resolves a pincode to its state name. ok=false means the pincode is unknown.
type StateLookup interface {
	StateOf(ctx context.Context, pincode string) (state string, ok bool, err error)
}

type Estimator struct {
	lookup StateLookup
}

func NewEstimator(lookup StateLookup) *Estimator {
	return &Estimator{lookup: lookup}
}

// Estimate returns approximate kilometres between two pincodes. It never fails: an unknown
// pincode or a lookup error yields UnresolvedKm.
func (e *Estimator) Estimate(ctx context.Context, originPincode, destPincode string) int {
	o, ok := e.state(ctx, originPincode)
	if !ok {
		return UnresolvedKm
	}
	d, ok := e.state(ctx, destPincode)
	if !ok {
		return UnresolvedKm
	}
	return DistanceBetweenStates(o, d)
}

// DistanceBetweenStates is the pure part of the estimate; it is symmetric in its arguments.
func DistanceBetweenStates(a, b string) int {
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return SameStateKm
	}
	if ZoneOf(a) == ZoneOf(b) {
		return SameZoneKm
	}
	return CrossZoneKm
}

func (e *Estimator) state(ctx context.Context, pincode string) (string, bool) {
	pincode = strings.TrimSpace(pincode)
	if pincode == "" || e.lookup == nil {
		return "", false
	}
	st, ok, err := e.lookup.StateOf(ctx, pincode)
	if err != nil {
		slog.Warn("pincode lookup failed, using fallback distance", "pincode", pincode, "error", err.Error())
		return "", false
	}
	if !ok || strings.TrimSpace(st) == "" {
		return "", false
	}
	return st, true
}
