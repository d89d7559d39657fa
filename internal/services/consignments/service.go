package consignments

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BearBump/CourierHub/internal/broker/messages"
	"github.com/BearBump/CourierHub/internal/cache"
	"github.com/BearBump/CourierHub/internal/models"
	"github.com/BearBump/CourierHub/internal/services/classifier"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500

	// tatScanLimit: сколько строк максимум классифицируем в памяти при фильтре по TAT.
	tatScanLimit = 5000
)

type Repository interface {
	GetConsignment(ctx context.Context, awb string) (*models.Consignment, error)
	ListConsignments(ctx context.Context, f models.ConsignmentFilter) ([]*models.Consignment, int, error)
	ListEvents(ctx context.Context, consignmentID uuid.UUID) ([]*models.TrackingEvent, error)
	ListEventsFor(ctx context.Context, consignmentIDs []uuid.UUID) (map[uuid.UUID][]*models.TrackingEvent, error)
	ListStatusHistory(ctx context.Context, awb string) ([]*models.StatusHistory, error)
	RefreshConsignment(ctx context.Context, awb string) error
}

// Item: накладная в том виде, в каком её видит клиент (снимок, таймлайн и вычисленные метки).
type Item struct {
	*models.Consignment
	Timeline       []*models.TrackingEvent `json:"timeline"`
	TATStatus      string                  `json:"tatStatus"`
	MovementStatus string                  `json:"movementStatus"`
}

type ListQuery struct {
	ClientID int64
	Page     int
	PageSize int
	Search   string
	Status   string
	From     string
	To       string
	TAT      string
}

type Page struct {
	Items      []*Item `json:"items"`
	Page       int     `json:"page"`
	PageSize   int     `json:"pageSize"`
	Total      int     `json:"total"`
	TotalPages int     `json:"totalPages"`
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration
	now        func() time.Time
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, currentTTL: currentTTL, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Get возвращает текущий снимок накладной; кэшируется до сообщения о смене статуса или TTL.
func (s *Service) Get(ctx context.Context, awb string) (*models.Consignment, error) {
	awb = strings.TrimSpace(awb)
	if awb == "" {
		return nil, errors.Wrap(models.ErrValidation, "awb is required")
	}

	if s.cacheEnabled() {
		if b, ok, err := s.cache.Get(ctx, currentKey(awb)); err == nil && ok {
			var c models.Consignment
			if json.Unmarshal(b, &c) == nil {
				return &c, nil
			}
		}
	}

	c, err := s.repo.GetConsignment(ctx, awb)
	if err != nil {
		return nil, err
	}
	if s.cacheEnabled() {
		b, _ := json.Marshal(c)
		_ = s.cache.Set(ctx, currentKey(awb), b, s.currentTTL)
	}
	return c, nil
}

// Detail: снимок + таймлайн (новые события сверху) + TAT/movement метки.
func (s *Service) Detail(ctx context.Context, awb string) (*Item, error) {
	c, err := s.Get(ctx, awb)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return s.item(c, events, s.now()), nil
}

func (s *Service) History(ctx context.Context, awb string) ([]*models.StatusHistory, error) {
	awb = strings.TrimSpace(awb)
	if awb == "" {
		return nil, errors.Wrap(models.ErrValidation, "awb is required")
	}
	out, err := s.repo.ListStatusHistory(ctx, awb)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*models.StatusHistory{}
	}
	return out, nil
}

// Refresh ставит накладную в начало очереди воркера.
func (s *Service) Refresh(ctx context.Context, awb string) error {
	awb = strings.TrimSpace(awb)
	if awb == "" {
		return errors.Wrap(models.ErrValidation, "awb is required")
	}
	return s.repo.RefreshConsignment(ctx, awb)
}

func (s *Service) List(ctx context.Context, q ListQuery) (*Page, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}

	f := models.ConsignmentFilter{
		ClientID:    q.ClientID,
		Search:      q.Search,
		StatusGroup: q.Status,
		From:        q.From,
		To:          q.To,
	}
	// TAT вычисляется на чтении, поэтому с этим фильтром страница режется уже в памяти.
	if q.TAT == "" {
		f.Limit = q.PageSize
		f.Offset = (q.Page - 1) * q.PageSize
	} else {
		f.Limit = tatScanLimit
	}

	rows, total, err := s.repo.ListConsignments(ctx, f)
	if err != nil {
		return nil, err
	}
	if q.TAT != "" && total > tatScanLimit {
		slog.Warn("tat filter truncated", "client_id", q.ClientID, "total", total, "limit", tatScanLimit)
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.ID)
	}
	events, err := s.repo.ListEventsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.now()
	items := make([]*Item, 0, len(rows))
	for _, c := range rows {
		it := s.item(c, events[c.ID], now)
		if q.TAT != "" && !strings.EqualFold(it.TATStatus, q.TAT) {
			continue
		}
		items = append(items, it)
	}

	if q.TAT != "" {
		total = len(items)
		from := (q.Page - 1) * q.PageSize
		if from > len(items) {
			from = len(items)
		}
		to := from + q.PageSize
		if to > len(items) {
			to = len(items)
		}
		items = items[from:to]
	}

	return &Page{
		Items:      items,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Total:      total,
		TotalPages: (total + q.PageSize - 1) / q.PageSize,
	}, nil
}

// InvalidateFromMessage обрабатывает consignment.status_changed и сбрасывает кэш текущего снимка.
// Нечитаемые сообщения пропускаются, иначе consumer застрянет на них.
func (s *Service) InvalidateFromMessage(ctx context.Context, key, value []byte) error {
	var m messages.StatusChanged
	if err := json.Unmarshal(value, &m); err != nil {
		slog.Warn("skip malformed status change", "key", string(key), "err", err)
		return nil
	}
	awb := m.AWB
	if awb == "" {
		awb = string(key)
	}
	return s.Invalidate(ctx, awb)
}

// Invalidate сбрасывает закэшированный снимок накладной.
func (s *Service) Invalidate(ctx context.Context, awb string) error {
	awb = strings.TrimSpace(awb)
	if awb == "" || !s.cacheEnabled() {
		return nil
	}
	return errors.Wrap(s.cache.Delete(ctx, currentKey(awb)), "invalidate consignment cache")
}

func (s *Service) item(c *models.Consignment, events []*models.TrackingEvent, now time.Time) *Item {
	timeline := sortNewestFirst(events)
	return &Item{
		Consignment:    c,
		Timeline:       timeline,
		TATStatus:      classifier.TATStatus(c.AWB, c.BookedOn, now),
		MovementStatus: classifier.MovementStatus(timeline, now),
	}
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.currentTTL > 0
}

func (q *ListQuery) normalize() error {
	if q.ClientID <= 0 {
		return errors.Wrap(models.ErrValidation, "clientId must be positive")
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	q.Search = strings.TrimSpace(q.Search)
	q.Status = strings.ToLower(strings.TrimSpace(q.Status))
	if q.Status != "" && !knownStatusGroup(q.Status) {
		return errors.Wrapf(models.ErrValidation, "unknown status group %q", q.Status)
	}
	for _, d := range []string{q.From, q.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return errors.Wrapf(models.ErrValidation, "bad date %q, want YYYY-MM-DD", d)
		}
	}
	q.TAT = strings.TrimSpace(q.TAT)
	if q.TAT != "" && !knownTAT(q.TAT) {
		return errors.Wrapf(models.ErrValidation, "unknown tat status %q", q.TAT)
	}
	return nil
}

func knownStatusGroup(g string) bool {
	for _, sg := range models.StatusGroups {
		if sg == g {
			return true
		}
	}
	return false
}

func knownTAT(t string) bool {
	for _, l := range []string{classifier.TATOnTime, classifier.TATWarning, classifier.TATCritical, classifier.TATVeryCritical} {
		if strings.EqualFold(l, t) {
			return true
		}
	}
	return false
}

// sortNewestFirst: по дате+времени события, события без даты в конце, исходный порядок сохраняется.
func sortNewestFirst(events []*models.TrackingEvent) []*models.TrackingEvent {
	out := make([]*models.TrackingEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := eventSortKey(out[i]), eventSortKey(out[j])
		return ki > kj
	})
	return out
}

func eventSortKey(ev *models.TrackingEvent) string {
	if ev.ActionDate == nil {
		return ""
	}
	k := *ev.ActionDate
	if ev.ActionTime != nil {
		k += "T" + *ev.ActionTime
	}
	return k
}

func currentKey(awb string) string {
	return "consignment:" + awb + ":current"
}
