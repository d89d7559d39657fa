package models

import "github.com/shopspring/decimal"

// DefaultClientID: строки тарифов с этим client_id действуют для всех клиентов.
const DefaultClientID int64 = 0

const (
	LoadTypeDocument    = "DOCUMENT"
	LoadTypeNonDocument = "NON-DOCUMENT"
)

type ServicePrice struct {
	ID        int64           `json:"id" yaml:"id"`
	ClientID  int64           `json:"clientId" yaml:"client_id"`
	Code      string          `json:"code" yaml:"code"`
	BasePrice decimal.Decimal `json:"basePrice" yaml:"base_price"`
}

// Slab — ценовой диапазон [Min, Max] (обе границы включительно).
type Slab struct {
	ID       int64           `json:"id" yaml:"id"`
	ClientID int64           `json:"clientId" yaml:"client_id"`
	Min      decimal.Decimal `json:"min" yaml:"min"`
	Max      decimal.Decimal `json:"max" yaml:"max"`
	Price    decimal.Decimal `json:"price" yaml:"price"`
}

func (s Slab) Contains(v decimal.Decimal) bool {
	return s.Min.LessThanOrEqual(v) && s.Max.GreaterThanOrEqual(v)
}

func (s Slab) Width() decimal.Decimal {
	return s.Max.Sub(s.Min)
}

type Surcharge struct {
	ID       int64           `json:"id" yaml:"id"`
	ClientID int64           `json:"clientId" yaml:"client_id"`
	LoadType string          `json:"loadType" yaml:"load_type"`
	Price    decimal.Decimal `json:"price" yaml:"price"`
}

// RateConfig: полный набор тарифов (используется офлайн-калькулятором и валидацией).
type RateConfig struct {
	Services      []ServicePrice `json:"services" yaml:"services"`
	WeightSlabs   []Slab         `json:"weightSlabs" yaml:"weight_slabs"`
	DistanceSlabs []Slab         `json:"distanceSlabs" yaml:"distance_slabs"`
	Surcharges    []Surcharge    `json:"surcharges" yaml:"surcharges"`
}

type Pincode struct {
	Pincode  string `json:"pincode" yaml:"pincode"`
	Office   string `json:"office" yaml:"office"`
	District string `json:"district" yaml:"district"`
	State    string `json:"state" yaml:"state"`
}
