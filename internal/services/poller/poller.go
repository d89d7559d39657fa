package poller

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/CourierHub/internal/cache/rediscache"
	"github.com/BearBump/CourierHub/internal/metrics"
	"github.com/BearBump/CourierHub/internal/models"
	"github.com/BearBump/CourierHub/internal/services/reconciler"
	"github.com/BearBump/CourierHub/internal/storage/pgstore"
)

type Repository interface {
	ClaimDueConsignments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Consignment, error)
	ApplySchedule(ctx context.Context, upd pgstore.ScheduleUpdate) error
}

type Reconciler interface {
	ReconcileBatch(ctx context.Context, req reconciler.BatchRequest) ([]reconciler.BatchItem, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Poller struct {
	repo       Repository
	reconciler Reconciler
	rl         RateLimiter

	planner *Planner

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64
	providerLimits     map[string]int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	totalDeferred       atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string

	now func() time.Time
}

func New(repo Repository, rec Reconciler, rl RateLimiter) *Poller {
	return &Poller{
		repo:               repo,
		reconciler:         rec,
		rl:                 rl,
		planner:            DefaultPlanner(),
		pollInterval:       2 * time.Second,
		batchSize:          100,
		concurrency:        4,
		lease:              120 * time.Second,
		rateLimitPerMinute: 120,
		providerLimits:     map[string]int64{},
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
		now:                func() time.Time { return time.Now().UTC() },
	}
}

func DefaultPlanner() *Planner {
	return NewPlanner(DefaultPlannerConfig(), nil)
}

func (p *Poller) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	if lease > 0 {
		p.lease = lease
	}
	if rlPerMin > 0 {
		p.rateLimitPerMinute = rlPerMin
	}
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.planner = NewPlanner(cfg, nil)
	return p
}

// WithProviderRateLimits переопределяет лимит запросов в минуту для отдельных перевозчиков.
func (p *Poller) WithProviderRateLimits(limits map[string]int64) *Poller {
	for k, v := range limits {
		if v > 0 {
			p.providerLimits[strings.ToLower(k)] = v
		}
	}
	return p
}

func (p *Poller) WithClock(now func() time.Time) *Poller {
	p.now = now
	return p
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	TotalDeferred  int64      `json:"totalDeferred"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalClaimed:   p.totalClaimed.Load(),
		TotalProcessed: p.totalProcessed.Load(),
		TotalErrors:    p.totalErrors.Load(),
		TotalDeferred:  p.totalDeferred.Load(),
		InFlight:       p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

// group: накладные одного клиента у одного перевозчика, один вызов ReconcileBatch.
type group struct {
	clientID int64
	provider string
	items    []*models.Consignment
}

func (p *Poller) runOnce(ctx context.Context) {
	now := p.now()
	p.lastCycleUnixNano.Store(now.UnixNano())

	items, err := p.repo.ClaimDueConsignments(ctx, now, p.batchSize, p.lease)
	if err != nil {
		slog.Error("claim due consignments", "error", err.Error())
		p.setLastError(err.Error())
		return
	}
	p.totalClaimed.Add(int64(len(items)))
	metrics.PollerClaimedTotal.Add(float64(len(items)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, g := range groupByProvider(items) {
		g := g
		sem <- struct{}{}
		wg.Add(1)
		p.inFlight.Add(int64(len(g.items)))
		go func() {
			defer func() {
				p.inFlight.Add(-int64(len(g.items)))
				<-sem
				wg.Done()
			}()
			p.processGroup(ctx, g)
		}()
	}
	wg.Wait()
}

func groupByProvider(items []*models.Consignment) []*group {
	type key struct {
		clientID int64
		provider string
	}
	var out []*group
	idx := map[key]*group{}
	for _, c := range items {
		k := key{clientID: c.ClientID, provider: c.PrimaryProvider()}
		g, ok := idx[k]
		if !ok {
			g = &group{clientID: k.clientID, provider: k.provider}
			idx[k] = g
			out = append(out, g)
		}
		g.items = append(g.items, c)
	}
	return out
}

func (p *Poller) processGroup(ctx context.Context, g *group) {
	allowed := p.admit(ctx, g)
	if len(allowed) == 0 {
		return
	}

	byAWB := make(map[string]*models.Consignment, len(allowed))
	awbs := make([]string, 0, len(allowed))
	for _, c := range allowed {
		byAWB[c.AWB] = c
		awbs = append(awbs, c.AWB)
	}

	results, err := p.reconciler.ReconcileBatch(ctx, reconciler.BatchRequest{
		ClientID: g.clientID,
		Provider: g.provider,
		AWBs:     awbs,
	})
	if err != nil {
		// Ошибка всего батча (нет учётных данных, неизвестный перевозчик): откладываем всех с backoff.
		slog.Error("reconcile batch", "client_id", g.clientID, "provider", g.provider, "error", err.Error())
		for _, c := range allowed {
			p.schedule(ctx, c, nil, err)
		}
		return
	}

	for _, it := range results {
		c, ok := byAWB[it.AWB]
		if !ok {
			continue
		}
		var status *string
		if it.Consignment != nil {
			status = it.Consignment.LastStatus
		} else if it.Snapshot != nil {
			status = it.Snapshot.Status
		}
		p.schedule(ctx, c, status, it.Err)
	}
}

// admit отсекает накладные сверх минутного лимита перевозчика. Отсечённые остаются
// "забронированными" и вернутся в выборку после истечения lease.
func (p *Poller) admit(ctx context.Context, g *group) []*models.Consignment {
	if p.rl == nil || p.rateLimitPerMinute <= 0 {
		return g.items
	}
	limit := p.rateLimitPerMinute
	if l, ok := p.providerLimits[strings.ToLower(g.provider)]; ok {
		limit = l
	}

	key := rediscache.ProviderMinuteKey(g.provider, p.now())
	out := make([]*models.Consignment, 0, len(g.items))
	for i, c := range g.items {
		ok, n, err := p.rl.Allow(ctx, key, limit, 70*time.Second)
		if err != nil {
			// Redis недоступен: не блокируем работу воркера.
			slog.Warn("rate limiter unavailable", "provider", g.provider, "error", err.Error())
			return append(out, g.items[i:]...)
		}
		if !ok {
			deferred := len(g.items) - i
			p.totalDeferred.Add(int64(deferred))
			metrics.RateLimitHits.WithLabelValues(g.provider).Inc()
			slog.Warn("rate limit exceeded", "provider", g.provider, "count", n, "deferred", deferred)
			return out
		}
		out = append(out, c)
	}
	return out
}

func (p *Poller) schedule(ctx context.Context, c *models.Consignment, status *string, checkErr error) {
	now := p.now()
	upd := pgstore.ScheduleUpdate{AWB: c.AWB, CheckedAt: now}

	if checkErr != nil {
		e := checkErr.Error()
		upd.Error = &e
		upd.NextCheckAt = now.Add(p.planner.BackoffDelay(c.CheckFailCount + 1))
		p.totalErrors.Add(1)
		p.setLastError(e)
		slog.Error("refresh consignment", "awb", c.AWB, "kind", models.ErrorKind(checkErr), "error", e)
	} else {
		upd.NextCheckAt = now.Add(p.planner.NextCheckDelay(status))
	}

	if err := p.repo.ApplySchedule(ctx, upd); err != nil {
		p.setLastError(err.Error())
		slog.Error("apply schedule", "awb", c.AWB, "error", err.Error())
	}
	p.totalProcessed.Add(1)
}

func (p *Poller) setLastError(e string) {
	p.lastErrorMu.Lock()
	p.lastError = e
	p.lastErrorMu.Unlock()
}
