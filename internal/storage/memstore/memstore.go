// Package memstore is an in-memory implementation of the storage contracts.
// It backs service tests and the offline mode of courierctl.
package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/CourierHub/internal/integrations/carrier"
	"github.com/BearBump/CourierHub/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type credKey struct {
	clientID int64
	provider string
}

type Store struct {
	mu sync.RWMutex

	consignments map[string]*models.Consignment
	events       map[uuid.UUID][]*models.TrackingEvent
	eventKeys    map[uuid.UUID]map[string]struct{}
	history      []*models.StatusHistory

	rates    models.RateConfig
	pincodes map[string]models.Pincode
	creds    map[credKey]carrier.Credentials

	now func() time.Time
}

func New() *Store {
	return &Store{
		consignments: map[string]*models.Consignment{},
		events:       map[uuid.UUID][]*models.TrackingEvent{},
		eventKeys:    map[uuid.UUID]map[string]struct{}{},
		pincodes:     map[string]models.Pincode{},
		creds:        map[credKey]carrier.Credentials{},
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет источник времени (для тестов).
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// --- consignments ---

func (s *Store) GetConsignmentStatus(ctx context.Context, awb string) (*string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.consignments[awb]
	if !ok {
		return nil, false, nil
	}
	return copyStr(c.LastStatus), true, nil
}

func (s *Store) UpsertConsignment(ctx context.Context, in models.ConsignmentUpsert) (*models.Consignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.consignments[in.AWB]
	if !ok {
		c = &models.Consignment{
			ID:          uuid.New(),
			AWB:         in.AWB,
			NextCheckAt: now,
			CreatedAt:   now,
		}
		s.consignments[in.AWB] = c
	}

	c.ClientID = in.ClientID
	c.LastStatus = coalesce(in.Status, c.LastStatus)
	c.Origin = coalesce(in.Origin, c.Origin)
	c.Destination = coalesce(in.Destination, c.Destination)
	c.BookedOn = coalesce(in.BookedOn, c.BookedOn)
	if in.LastUpdatedOn != nil {
		t := *in.LastUpdatedOn
		c.LastUpdatedOn = &t
	}
	if in.Provider != "" && !slices.Contains(c.Providers, in.Provider) {
		c.Providers = append(c.Providers, in.Provider)
	}
	c.UpdatedAt = now

	out := *c
	out.Providers = slices.Clone(c.Providers)
	return &out, nil
}

func (s *Store) GetConsignment(ctx context.Context, awb string) (*models.Consignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.consignments[awb]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "consignment %s", awb)
	}
	out := *c
	out.Providers = slices.Clone(c.Providers)
	return &out, nil
}

func (s *Store) InsertEventIfAbsent(ctx context.Context, ev *models.TrackingEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.eventKeys[ev.ConsignmentID]
	if !ok {
		keys = map[string]struct{}{}
		s.eventKeys[ev.ConsignmentID] = keys
	}
	k := ev.DedupKey()
	if _, dup := keys[k]; dup {
		return false, nil
	}
	keys[k] = struct{}{}

	stored := *ev
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.CreatedAt = s.now()
	s.events[ev.ConsignmentID] = append(s.events[ev.ConsignmentID], &stored)
	return true, nil
}

func (s *Store) AppendStatusHistory(ctx context.Context, h *models.StatusHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *h
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.ChangedAt.IsZero() {
		stored.ChangedAt = s.now()
	}
	s.history = append(s.history, &stored)
	return nil
}

// ListEvents returns the stored events of a consignment in insertion order.
func (s *Store) ListEvents(ctx context.Context, consignmentID uuid.UUID) ([]*models.TrackingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events[consignmentID]), nil
}

func (s *Store) ListStatusHistory(ctx context.Context, awb string) ([]*models.StatusHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.StatusHistory
	for _, h := range s.history {
		if h.AWB == awb {
			out = append(out, h)
		}
	}
	return out, nil
}

// --- rates ---

// LoadRates replaces the whole tariff configuration.
func (s *Store) LoadRates(cfg models.RateConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = cfg
}

func (s *Store) GetServicePrice(ctx context.Context, clientID int64, code string) (*models.ServicePrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sp := range s.rates.Services {
		if sp.ClientID == clientID && strings.EqualFold(sp.Code, code) {
			out := sp
			return &out, nil
		}
	}
	return nil, errors.Wrapf(models.ErrNotFound, "service %s for client %d", code, clientID)
}

func (s *Store) MatchingWeightSlabs(ctx context.Context, clientID int64, weight decimal.Decimal) ([]models.Slab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return matching(s.rates.WeightSlabs, clientID, weight), nil
}

func (s *Store) MatchingDistanceSlabs(ctx context.Context, clientID int64, km decimal.Decimal) ([]models.Slab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return matching(s.rates.DistanceSlabs, clientID, km), nil
}

func (s *Store) GetSurcharge(ctx context.Context, clientID int64, loadType string) (*models.Surcharge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sc := range s.rates.Surcharges {
		if sc.ClientID == clientID && strings.EqualFold(sc.LoadType, loadType) {
			out := sc
			return &out, nil
		}
	}
	return nil, errors.Wrapf(models.ErrNotFound, "surcharge %s for client %d", loadType, clientID)
}

func matching(slabs []models.Slab, clientID int64, v decimal.Decimal) []models.Slab {
	var out []models.Slab
	for _, sl := range slabs {
		if sl.ClientID == clientID && sl.Contains(v) {
			out = append(out, sl)
		}
	}
	return out
}

// --- pincodes ---

func (s *Store) PutPincodes(items ...models.Pincode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range items {
		s.pincodes[p.Pincode] = p
	}
}

func (s *Store) GetPincode(ctx context.Context, pincode string) (*models.Pincode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pincodes[pincode]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "pincode %s", pincode)
	}
	return &p, nil
}

func (s *Store) SearchPincodes(ctx context.Context, prefix string, limit int) ([]models.Pincode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Pincode
	for pin, p := range s.pincodes {
		if strings.HasPrefix(pin, prefix) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pincode < out[j].Pincode })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// StateOf lets the store serve directly as a zones.StateLookup.
func (s *Store) StateOf(ctx context.Context, pincode string) (string, bool, error) {
	p, err := s.GetPincode(ctx, pincode)
	if err != nil {
		return "", false, nil
	}
	return p.State, true, nil
}

// --- credentials ---

func (s *Store) PutCredentials(clientID int64, provider string, creds carrier.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[credKey{clientID, strings.ToLower(provider)}] = creds
}

func (s *Store) GetProviderCredentials(ctx context.Context, clientID int64, provider string) (carrier.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.creds[credKey{clientID, strings.ToLower(provider)}]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "credentials for client %d provider %s", clientID, provider)
	}
	out := make(carrier.Credentials, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out, nil
}

func coalesce(in, cur *string) *string {
	if in != nil {
		return copyStr(in)
	}
	return cur
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
