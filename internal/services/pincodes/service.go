// Package pincodes resolves Indian postal codes. Reads go through a Redis cache and
// concurrent lookups of the same pincode are collapsed into one.
package pincodes

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/BearBump/CourierHub/internal/cache"
	"github.com/BearBump/CourierHub/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const (
	PincodeLength = 6
	MaxPrefixRows = 20

	// общий запрос живёт отдельно от контекстов вызывающих
	sharedLookupTimeout = 5 * time.Second
)

type Repository interface {
	GetPincode(ctx context.Context, pincode string) (*models.Pincode, error)
	SearchPincodes(ctx context.Context, prefix string, limit int) ([]models.Pincode, error)
}

type Service struct {
	repo  Repository
	cache cache.BytesCache
	ttl   time.Duration

	sf singleflight.Group
}

func New(repo Repository, c cache.BytesCache, ttl time.Duration) *Service {
	return &Service{repo: repo, cache: c, ttl: ttl}
}

// Get returns one pincode; models.ErrNotFound if it does not exist.
func (s *Service) Get(ctx context.Context, pincode string) (*models.Pincode, error) {
	pincode = strings.TrimSpace(pincode)
	if pincode == "" {
		return nil, errors.Wrap(models.ErrValidation, "pincode is required")
	}

	if p, ok := s.fromCache(ctx, pincode); ok {
		return p, nil
	}

	ch := s.sf.DoChan(pincode, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLookupTimeout)
		defer cancel()

		p, err := s.repo.GetPincode(lookupCtx, pincode)
		if err != nil {
			return nil, err
		}
		s.toCache(lookupCtx, p)
		return p, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		p := *res.Val.(*models.Pincode)
		return &p, nil
	}
}

// StateOf implements zones.StateLookup.
func (s *Service) StateOf(ctx context.Context, pincode string) (string, bool, error) {
	p, err := s.Get(ctx, pincode)
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrValidation) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p.State, true, nil
}

// Lookup: полный 6-значный код -> точное совпадение, короче -> поиск по префиксу (до 20 строк).
func (s *Service) Lookup(ctx context.Context, query string) ([]models.Pincode, error) {
	query = strings.TrimSpace(query)
	if query == "" || len(query) > PincodeLength || strings.IndexFunc(query, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return nil, errors.Wrap(models.ErrValidation, "pincode must be 1-6 digits")
	}

	if len(query) == PincodeLength {
		p, err := s.Get(ctx, query)
		if errors.Is(err, models.ErrNotFound) {
			return []models.Pincode{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []models.Pincode{*p}, nil
	}

	out, err := s.repo.SearchPincodes(ctx, query, MaxPrefixRows)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Pincode{}
	}
	return out, nil
}

func (s *Service) fromCache(ctx context.Context, pincode string) (*models.Pincode, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, cacheKey(pincode))
	if err != nil || !ok {
		return nil, false
	}
	var p models.Pincode
	if json.Unmarshal(b, &p) != nil {
		return nil, false
	}
	return &p, true
}

func (s *Service) toCache(ctx context.Context, p *models.Pincode) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	b, _ := json.Marshal(p)
	_ = s.cache.Set(ctx, cacheKey(p.Pincode), b, s.ttl)
}

func cacheKey(pincode string) string {
	return "pincode:" + pincode
}
