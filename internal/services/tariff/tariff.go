// Package tariff prices a shipment from tiered per-client configuration with global defaults.
package tariff

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/BearBump/CourierHub/internal/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Значения по умолчанию, если подходящей строки тарифа нет ни у клиента, ни в глобальных.
var (
	FallbackBasePrice       = decimal.NewFromInt(30)
	FallbackPerKg           = decimal.NewFromInt(20)
	FallbackPerKm           = decimal.RequireFromString("0.5")
	FallbackNonDocSurcharge = decimal.NewFromInt(15)
)

// RateStore reads tariff rows. Missing rows are reported as nil / empty results or as
// models.ErrNotFound; any other error is a storage failure.
type RateStore interface {
	GetServicePrice(ctx context.Context, clientID int64, code string) (*models.ServicePrice, error)
	// MatchingWeightSlabs returns every slab of the client whose [min,max] contains weight.
	MatchingWeightSlabs(ctx context.Context, clientID int64, weight decimal.Decimal) ([]models.Slab, error)
	MatchingDistanceSlabs(ctx context.Context, clientID int64, km decimal.Decimal) ([]models.Slab, error)
	GetSurcharge(ctx context.Context, clientID int64, loadType string) (*models.Surcharge, error)
}

type DistanceEstimator interface {
	Estimate(ctx context.Context, originPincode, destPincode string) int
}

type Quote struct {
	ClientID      int64   `json:"clientId"`
	ServiceType   string  `json:"serviceType"`
	LoadType      string  `json:"loadType"`
	WeightKg      float64 `json:"weight"`
	OriginPincode string  `json:"originPincode"`
	DestPincode   string  `json:"destPincode"`
}

type Breakdown struct {
	BasePrice      decimal.Decimal `json:"basePrice"`
	WeightCharge   decimal.Decimal `json:"weightCharge"`
	DistanceCharge decimal.Decimal `json:"distanceCharge"`
	Surcharge      decimal.Decimal `json:"nonDocSurcharge"`
	EstimatedKm    int             `json:"kmEstimated"`
	Total          decimal.Decimal `json:"total"`
}

type Calculator struct {
	rates     RateStore
	estimator DistanceEstimator
}

func NewCalculator(rates RateStore, estimator DistanceEstimator) *Calculator {
	return &Calculator{rates: rates, estimator: estimator}
}

func (q Quote) Validate() error {
	if q.ClientID <= 0 {
		return errors.Wrap(models.ErrValidation, "clientId must be positive")
	}
	if strings.TrimSpace(q.ServiceType) == "" {
		return errors.Wrap(models.ErrValidation, "serviceType is required")
	}
	if math.IsNaN(q.WeightKg) || math.IsInf(q.WeightKg, 0) || q.WeightKg <= 0 {
		return errors.Wrap(models.ErrValidation, "weight must be a positive number")
	}
	if strings.TrimSpace(q.OriginPincode) == "" || strings.TrimSpace(q.DestPincode) == "" {
		return errors.Wrap(models.ErrValidation, "originPincode and destPincode are required")
	}
	return nil
}

// Calculate prices one shipment. The total is rounded to whole units, half away from zero.
func (c *Calculator) Calculate(ctx context.Context, q Quote) (Breakdown, error) {
	if err := q.Validate(); err != nil {
		return Breakdown{}, err
	}
	service := strings.TrimSpace(q.ServiceType)
	weight := decimal.NewFromFloat(q.WeightKg)

	base, err := c.basePrice(ctx, q.ClientID, service)
	if err != nil {
		return Breakdown{}, err
	}

	weightCharge := weight.Mul(FallbackPerKg)
	slab, err := c.matchSlab(ctx, q.ClientID, weight, c.rates.MatchingWeightSlabs)
	if err != nil {
		return Breakdown{}, errors.Wrap(err, "weight slabs")
	}
	if slab != nil {
		weightCharge = slab.Price
	}

	km := c.estimator.Estimate(ctx, strings.TrimSpace(q.OriginPincode), strings.TrimSpace(q.DestPincode))
	kmDec := decimal.NewFromInt(int64(km))

	distanceCharge := kmDec.Mul(FallbackPerKm)
	slab, err = c.matchSlab(ctx, q.ClientID, kmDec, c.rates.MatchingDistanceSlabs)
	if err != nil {
		return Breakdown{}, errors.Wrap(err, "distance slabs")
	}
	if slab != nil {
		distanceCharge = slab.Price
	}

	surcharge := decimal.Zero
	if strings.EqualFold(strings.TrimSpace(q.LoadType), models.LoadTypeNonDocument) {
		surcharge, err = c.surcharge(ctx, q.ClientID)
		if err != nil {
			return Breakdown{}, err
		}
	}

	total := base.Add(weightCharge).Add(distanceCharge).Add(surcharge)

	return Breakdown{
		BasePrice:      base,
		WeightCharge:   weightCharge,
		DistanceCharge: distanceCharge,
		Surcharge:      surcharge,
		EstimatedKm:    km,
		Total:          total.Round(0),
	}, nil
}

func (c *Calculator) basePrice(ctx context.Context, clientID int64, service string) (decimal.Decimal, error) {
	for _, id := range lookupOrder(clientID) {
		sp, err := c.rates.GetServicePrice(ctx, id, service)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return decimal.Zero, errors.Wrap(err, "service price")
		}
		if err == nil && sp != nil {
			return sp.BasePrice, nil
		}
	}
	return FallbackBasePrice, nil
}

func (c *Calculator) surcharge(ctx context.Context, clientID int64) (decimal.Decimal, error) {
	for _, id := range lookupOrder(clientID) {
		s, err := c.rates.GetSurcharge(ctx, id, models.LoadTypeNonDocument)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return decimal.Zero, errors.Wrap(err, "surcharge")
		}
		if err == nil && s != nil {
			return s.Price, nil
		}
	}
	return FallbackNonDocSurcharge, nil
}

type slabQuery func(ctx context.Context, clientID int64, v decimal.Decimal) ([]models.Slab, error)

func (c *Calculator) matchSlab(ctx context.Context, clientID int64, v decimal.Decimal, query slabQuery) (*models.Slab, error) {
	for _, id := range lookupOrder(clientID) {
		slabs, err := query(ctx, id, v)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		if s, ok := PickSlab(slabs, v); ok {
			return &s, nil
		}
	}
	return nil, nil
}

// PickSlab chooses among slabs containing v: narrowest range, then lower min, then lower id.
func PickSlab(slabs []models.Slab, v decimal.Decimal) (models.Slab, bool) {
	var (
		best  models.Slab
		found bool
	)
	for _, s := range slabs {
		if !s.Contains(v) {
			continue
		}
		if !found || slabLess(s, best) {
			best, found = s, true
		}
	}
	return best, found
}

func slabLess(a, b models.Slab) bool {
	if c := a.Width().Cmp(b.Width()); c != 0 {
		return c < 0
	}
	if c := a.Min.Cmp(b.Min); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

func lookupOrder(clientID int64) []int64 {
	if clientID == models.DefaultClientID {
		return []int64{models.DefaultClientID}
	}
	return []int64{clientID, models.DefaultClientID}
}

// ValidateSlabs reports inverted or negative ranges and overlaps between slabs of the same client.
// Overlaps are legal at pricing time (PickSlab resolves them) but usually mean a typo.
func ValidateSlabs(kind string, slabs []models.Slab) error {
	return problemsError(slabProblems(kind, slabs))
}

// ValidateRateConfig checks every section of an offline rate file.
func ValidateRateConfig(cfg models.RateConfig) error {
	problems := slabProblems("weight", cfg.WeightSlabs)
	problems = append(problems, slabProblems("distance", cfg.DistanceSlabs)...)

	seen := map[string]bool{}
	for _, s := range cfg.Services {
		client := strconv.FormatInt(s.ClientID, 10)
		if strings.TrimSpace(s.Code) == "" {
			problems = append(problems, "service with empty code for client "+client)
			continue
		}
		key := strings.ToLower(strings.TrimSpace(s.Code)) + "#" + client
		if seen[key] {
			problems = append(problems, "duplicate service "+s.Code+" for client "+client)
		}
		seen[key] = true
		if s.BasePrice.IsNegative() {
			problems = append(problems, "service "+s.Code+": negative base price")
		}
	}
	for _, s := range cfg.Surcharges {
		if s.Price.IsNegative() {
			problems = append(problems, "surcharge "+s.LoadType+": negative price")
		}
	}

	return problemsError(problems)
}

func slabProblems(kind string, slabs []models.Slab) []string {
	var problems []string

	byClient := map[int64][]models.Slab{}
	for _, s := range slabs {
		if s.Min.IsNegative() || s.Price.IsNegative() {
			problems = append(problems, kind+" slab "+slabName(s)+": negative values")
		}
		if s.Min.GreaterThan(s.Max) {
			problems = append(problems, kind+" slab "+slabName(s)+": min greater than max")
			continue
		}
		byClient[s.ClientID] = append(byClient[s.ClientID], s)
	}

	clients := make([]int64, 0, len(byClient))
	for id := range byClient {
		clients = append(clients, id)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i] < clients[j] })

	for _, id := range clients {
		group := byClient[id]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Min.LessThan(group[j].Min) })
		// slab with the highest max so far
		reach := group[0]
		for _, cur := range group[1:] {
			if cur.Min.LessThanOrEqual(reach.Max) {
				problems = append(problems, kind+" slabs "+slabName(reach)+" and "+slabName(cur)+" overlap")
			}
			if cur.Max.GreaterThan(reach.Max) {
				reach = cur
			}
		}
	}
	return problems
}

func problemsError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return errors.Wrap(models.ErrValidation, strings.Join(problems, "; "))
}

func slabName(s models.Slab) string {
	return "[" + s.Min.String() + ", " + s.Max.String() + "]"
}
