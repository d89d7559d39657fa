// Package reconciler turns carrier responses into persisted consignment state:
// a coalesced snapshot, deduplicated tracking events and a status transition log.
package reconciler

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/CourierHub/internal/broker/messages"
	"github.com/BearBump/CourierHub/internal/integrations/carrier"
	"github.com/BearBump/CourierHub/internal/metrics"
	"github.com/BearBump/CourierHub/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultFetchTimeout = 15 * time.Second
	DefaultConcurrency  = 8
	DefaultMaxBatch     = 500
)

type Store interface {
	// GetConsignmentStatus returns the stored status; found=false if the AWB is unknown.
	GetConsignmentStatus(ctx context.Context, awb string) (status *string, found bool, err error)
	UpsertConsignment(ctx context.Context, in models.ConsignmentUpsert) (*models.Consignment, error)
	// InsertEventIfAbsent stores ev unless an event with the same dedup key exists.
	InsertEventIfAbsent(ctx context.Context, ev *models.TrackingEvent) (inserted bool, err error)
	AppendStatusHistory(ctx context.Context, h *models.StatusHistory) error
}

type CredentialStore interface {
	GetProviderCredentials(ctx context.Context, clientID int64, provider string) (carrier.Credentials, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// SnapshotInvalidator сбрасывает закэшированный снимок накладной после записи.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, awb string) error
}

type BatchRequest struct {
	ClientID int64    `json:"clientId"`
	Provider string   `json:"provider"`
	AWBs     []string `json:"awbs"`
}

type BatchItem struct {
	AWB      string           `json:"awb"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
	Error    string           `json:"error,omitempty"`
	Kind     string           `json:"kind,omitempty"`

	Err            error               `json:"-"`
	Consignment    *models.Consignment `json:"-"`
	EventsInserted int                 `json:"-"`
	StatusChanged  bool                `json:"-"`
}

// Result: итог обработки одной накладной.
type Result struct {
	Snapshot       models.Snapshot
	Consignment    *models.Consignment
	EventsInserted int
	StatusChanged  bool
}

type Reconciler struct {
	providers *carrier.Registry
	store     Store
	creds     CredentialStore

	publisher   Publisher
	topic       string
	invalidator SnapshotInvalidator

	locks *KeyedMutex

	fetchTimeout time.Duration
	concurrency  int
	maxBatch     int

	now func() time.Time
}

func New(providers *carrier.Registry, store Store, creds CredentialStore) *Reconciler {
	return &Reconciler{
		providers:    providers,
		store:        store,
		creds:        creds,
		topic:        messages.TopicStatusChanged,
		locks:        NewKeyedMutex(),
		fetchTimeout: DefaultFetchTimeout,
		concurrency:  DefaultConcurrency,
		maxBatch:     DefaultMaxBatch,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reconciler) WithSettings(fetchTimeout time.Duration, concurrency, maxBatch int) *Reconciler {
	if fetchTimeout > 0 {
		r.fetchTimeout = fetchTimeout
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if maxBatch > 0 {
		r.maxBatch = maxBatch
	}
	return r
}

// WithPublisher включает уведомления о смене статуса. Пустой topic означает топик по умолчанию.
func (r *Reconciler) WithPublisher(p Publisher, topic string) *Reconciler {
	r.publisher = p
	if topic != "" {
		r.topic = topic
	}
	return r
}

// WithInvalidator: снимок сбрасывается после каждого успешного upsert, даже без смены статуса.
func (r *Reconciler) WithInvalidator(inv SnapshotInvalidator) *Reconciler {
	r.invalidator = inv
	return r
}

func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Reconcile refreshes a single AWB. Errors carry the same kinds as batch items.
func (r *Reconciler) Reconcile(ctx context.Context, clientID int64, providerKey, awb string) (models.Snapshot, error) {
	items, err := r.ReconcileBatch(ctx, BatchRequest{ClientID: clientID, Provider: providerKey, AWBs: []string{awb}})
	if err != nil {
		return models.Snapshot{}, err
	}
	if items[0].Err != nil {
		return models.Snapshot{}, items[0].Err
	}
	return *items[0].Snapshot, nil
}

// ReconcileBatch refreshes every AWB of the request. Validation and configuration problems abort
// the whole batch; anything else is reported per item. Items keep the input order (after
// trimming and dropping duplicates).
func (r *Reconciler) ReconcileBatch(ctx context.Context, req BatchRequest) ([]BatchItem, error) {
	if req.ClientID <= 0 {
		return nil, errors.Wrap(models.ErrValidation, "clientId must be positive")
	}
	if strings.TrimSpace(req.Provider) == "" {
		return nil, errors.Wrap(models.ErrValidation, "provider is required")
	}
	provider, ok := r.providers.Get(req.Provider)
	if !ok {
		return nil, errors.Wrapf(models.ErrValidation, "unknown provider %q", req.Provider)
	}

	awbs := cleanAWBs(req.AWBs)
	if len(awbs) == 0 {
		return nil, errors.Wrap(models.ErrValidation, "awbs is empty")
	}
	if len(awbs) > r.maxBatch {
		return nil, errors.Wrapf(models.ErrValidation, "too many awbs (max %d)", r.maxBatch)
	}

	creds, err := r.loadCredentials(ctx, req.ClientID, provider)
	if err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(awbs))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, awb := range awbs {
		i, awb := i, awb
		g.Go(func() error {
			res, err := r.reconcileOne(ctx, req.ClientID, provider, creds, awb)
			items[i] = toItem(awb, res, err)
			return nil
		})
	}
	_ = g.Wait()

	return items, nil
}

func (r *Reconciler) loadCredentials(ctx context.Context, clientID int64, p carrier.Provider) (carrier.Credentials, error) {
	var creds carrier.Credentials
	if r.creds != nil {
		c, err := r.creds.GetProviderCredentials(ctx, clientID, p.Key)
		switch {
		case errors.Is(err, models.ErrNotFound):
		case errors.Is(err, models.ErrConfiguration):
			return nil, err
		case err != nil:
			return nil, storageErr(err, "load credentials")
		default:
			creds = c
		}
	}
	if missing := p.MissingCredentials(creds); len(missing) > 0 {
		return nil, errors.Wrapf(models.ErrConfiguration, "client %d has no %s credentials: %s",
			clientID, p.Key, strings.Join(missing, ", "))
	}
	return creds, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, clientID int64, p carrier.Provider, creds carrier.Credentials, awb string) (res Result, err error) {
	started := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = models.ErrorKind(err)
		}
		metrics.ReconcileItemsTotal.WithLabelValues(p.Key, outcome).Inc()
		metrics.ReconcileDuration.WithLabelValues(p.Key).Observe(time.Since(started).Seconds())
	}()

	raw, err := r.fetch(ctx, p, creds, awb)
	if err != nil {
		return res, err
	}
	normalized, err := p.Adapter.Normalize(raw)
	if err != nil {
		if !errors.Is(err, models.ErrProvider) {
			err = errors.Wrap(models.ErrProvider, err.Error())
		}
		return res, err
	}
	if normalized.Snapshot.AWB == "" {
		normalized.Snapshot.AWB = awb
	}
	res.Snapshot = normalized.Snapshot

	unlock := r.locks.Lock(awb)
	history, err := r.persist(ctx, clientID, p.Key, awb, normalized, &res)
	unlock()
	if err != nil {
		return res, err
	}

	r.invalidate(ctx, res.Consignment.AWB)
	if history != nil {
		r.notify(ctx, p.Key, res.Consignment, history)
	}
	return res, nil
}

func (r *Reconciler) fetch(ctx context.Context, p carrier.Provider, creds carrier.Credentials, awb string) ([]byte, error) {
	fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	raw, err := p.Client.Fetch(fctx, creds, awb)
	if err == nil {
		return raw, nil
	}
	if errors.Is(err, models.ErrProvider) || errors.Is(err, models.ErrConfiguration) {
		return nil, err
	}
	return nil, errors.Wrap(models.ErrProvider, err.Error())
}

// persist выполняет шаги под блокировкой AWB: чтение прежнего статуса строго до upsert,
// upsert, вставка новых событий, запись в историю при смене статуса.
func (r *Reconciler) persist(ctx context.Context, clientID int64, provider, awb string, n models.NormalizedTracking, res *Result) (*models.StatusHistory, error) {
	prev, _, err := r.store.GetConsignmentStatus(ctx, awb)
	if err != nil {
		return nil, storageErr(err, "read previous status")
	}

	c, err := r.store.UpsertConsignment(ctx, models.UpsertFromSnapshot(clientID, provider, awb, n.Snapshot))
	if err != nil {
		return nil, storageErr(err, "upsert consignment")
	}
	res.Consignment = c

	for _, ev := range n.Timeline {
		ev.ConsignmentID = c.ID
		inserted, err := r.store.InsertEventIfAbsent(ctx, ev)
		if err != nil {
			return nil, storageErr(err, "insert event")
		}
		if inserted {
			res.EventsInserted++
		}
	}
	if res.EventsInserted > 0 {
		metrics.EventsInsertedTotal.WithLabelValues(provider).Add(float64(res.EventsInserted))
	}

	if models.SameStatus(prev, c.LastStatus) {
		return nil, nil
	}
	h := &models.StatusHistory{
		ConsignmentID: c.ID,
		AWB:           awb,
		OldStatus:     prev,
		NewStatus:     c.LastStatus,
		ChangedAt:     r.now(),
	}
	if err := r.store.AppendStatusHistory(ctx, h); err != nil {
		return nil, storageErr(err, "append status history")
	}
	res.StatusChanged = true
	metrics.StatusChangesTotal.WithLabelValues(provider).Inc()
	return h, nil
}

func (r *Reconciler) invalidate(ctx context.Context, awb string) {
	if r.invalidator == nil {
		return
	}
	if err := r.invalidator.Invalidate(ctx, awb); err != nil {
		slog.Warn("invalidate consignment snapshot", "awb", awb, "error", err.Error())
	}
}

func (r *Reconciler) notify(ctx context.Context, provider string, c *models.Consignment, h *models.StatusHistory) {
	if r.publisher == nil {
		return
	}
	b, err := json.Marshal(messages.StatusChanged{
		ConsignmentID: c.ID,
		AWB:           c.AWB,
		ClientID:      c.ClientID,
		Provider:      provider,
		OldStatus:     h.OldStatus,
		NewStatus:     h.NewStatus,
		ChangedAt:     h.ChangedAt,
	})
	if err != nil {
		slog.Error("marshal status changed", "awb", c.AWB, "error", err.Error())
		return
	}
	if err := r.publisher.Publish(ctx, r.topic, []byte(c.AWB), b); err != nil {
		metrics.NotifyErrorsTotal.Inc()
		slog.Warn("publish status changed", "awb", c.AWB, "topic", r.topic, "error", err.Error())
	}
}

func toItem(awb string, res Result, err error) BatchItem {
	if err != nil {
		return BatchItem{AWB: awb, Error: err.Error(), Kind: models.ErrorKind(err), Err: err}
	}
	snap := res.Snapshot
	return BatchItem{
		AWB:            awb,
		Snapshot:       &snap,
		Consignment:    res.Consignment,
		EventsInserted: res.EventsInserted,
		StatusChanged:  res.StatusChanged,
	}
}

func storageErr(err error, op string) error {
	if errors.Is(err, models.ErrStorage) {
		return errors.Wrap(err, op)
	}
	return errors.Wrapf(models.ErrStorage, "%s: %v", op, err)
}

func cleanAWBs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
