package reconciler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/CourierHub/internal/broker/messages"
	"github.com/BearBump/CourierHub/internal/cache/rediscache"
	"github.com/BearBump/CourierHub/internal/integrations/carrier"
	"github.com/BearBump/CourierHub/internal/integrations/carrier/dtdc"
	"github.com/BearBump/CourierHub/internal/models"
	"github.com/BearBump/CourierHub/internal/services/consignments"
	"github.com/BearBump/CourierHub/internal/storage/memstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type detail struct {
	action, date, time, remarks string
}

// payload собирает ответ в формате DTDC. Пустые значения в заголовке не отправляются.
func payload(awb, status, origin string, details ...detail) []byte {
	header := map[string]string{"strShipmentNo": awb, "strBookedDate": "01032025"}
	if status != "" {
		header["strStatus"] = status
	}
	if origin != "" {
		header["strOrigin"] = origin
	}
	var rows []map[string]string
	for _, d := range details {
		rows = append(rows, map[string]string{
			"strAction":     d.action,
			"strActionDate": d.date,
			"strActionTime": d.time,
			"sTrRemarks":    d.remarks,
		})
	}
	b, _ := json.Marshal(map[string]any{"trackHeader": header, "trackDetails": rows})
	return b
}

type response struct {
	body []byte
	err  error
}

// scriptedClient отдаёт заранее заданные ответы по AWB; последний ответ повторяется.
type scriptedClient struct {
	mu        sync.Mutex
	responses map[string][]response
	calls     map[string]int
	block     bool
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{responses: map[string][]response{}, calls: map[string]int{}}
}

func (c *scriptedClient) add(awb string, body []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[awb] = append(c.responses[awb], response{body: body, err: err})
}

func (c *scriptedClient) Fetch(ctx context.Context, _ carrier.Credentials, awb string) ([]byte, error) {
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rs := c.responses[awb]
	if len(rs) == 0 {
		return nil, errors.Wrap(models.ErrProvider, "no such shipment")
	}
	i := c.calls[awb]
	c.calls[awb]++
	if i >= len(rs) {
		i = len(rs) - 1
	}
	return rs[i].body, rs[i].err
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, topic string, key, value []byte) error {
	return m.Called(ctx, topic, key, value).Error(0)
}

type ReconcilerSuite struct {
	suite.Suite

	store  *memstore.Store
	client *scriptedClient
	rec    *Reconciler
}

func (s *ReconcilerSuite) SetupTest() {
	s.store = memstore.New()
	s.client = newScriptedClient()
	reg := carrier.NewRegistry(
		carrier.Provider{Key: "test", Client: s.client, Adapter: dtdc.NewAdapter()},
		carrier.Provider{Key: "secure", Client: s.client, Adapter: dtdc.NewAdapter(), RequiredCredentials: []string{"tracking_token"}},
	)
	s.rec = New(reg, s.store, s.store).WithSettings(time.Second, 4, 10)
}

func (s *ReconcilerSuite) history(awb string) [][2]string {
	rows, err := s.store.ListStatusHistory(context.Background(), awb)
	s.Require().NoError(err)
	out := make([][2]string, 0, len(rows))
	for _, h := range rows {
		var o, n string
		if h.OldStatus != nil {
			o = *h.OldStatus
		}
		if h.NewStatus != nil {
			n = *h.NewStatus
		}
		out = append(out, [2]string{o, n})
	}
	return out
}

func (s *ReconcilerSuite) events(awb string) []*models.TrackingEvent {
	c, err := s.store.GetConsignment(context.Background(), awb)
	s.Require().NoError(err)
	evs, err := s.store.ListEvents(context.Background(), c.ID)
	s.Require().NoError(err)
	return evs
}

func (s *ReconcilerSuite) TestIdempotentReconcile() {
	body := payload("D100", "In Transit", "DELHI",
		detail{"Booked", "01032025", "1000", "booked"},
		detail{"In Transit", "02032025", "0830", ""},
	)
	s.client.add("D100", body, nil)

	ctx := context.Background()
	snap, err := s.rec.Reconcile(ctx, 7, "test", "D100")
	s.Require().NoError(err)
	s.Equal("In Transit", *snap.Status)
	s.Equal("2025-03-01", *snap.BookedOn)

	_, err = s.rec.Reconcile(ctx, 7, "test", "D100")
	s.Require().NoError(err)

	s.Len(s.events("D100"), 2)
	s.Equal([][2]string{{"", "In Transit"}}, s.history("D100"))

	c, err := s.store.GetConsignment(ctx, "D100")
	s.Require().NoError(err)
	s.Equal(int64(7), c.ClientID)
	s.Equal([]string{"test"}, c.Providers)
}

func (s *ReconcilerSuite) TestHistorySequence() {
	for _, st := range []string{"A", "A", "B", "B", "C"} {
		s.client.add("D200", payload("D200", st, ""), nil)
	}
	for i := 0; i < 5; i++ {
		_, err := s.rec.Reconcile(context.Background(), 1, "test", "D200")
		s.Require().NoError(err)
	}
	s.Equal([][2]string{{"", "A"}, {"A", "B"}, {"B", "C"}}, s.history("D200"))
}

func (s *ReconcilerSuite) TestCoalescingUpsertKeepsKnownFields() {
	s.client.add("D300", payload("D300", "Booked", "MUMBAI"), nil)
	s.client.add("D300", payload("D300", "", ""), nil)

	ctx := context.Background()
	_, err := s.rec.Reconcile(ctx, 1, "test", "D300")
	s.Require().NoError(err)
	_, err = s.rec.Reconcile(ctx, 1, "test", "D300")
	s.Require().NoError(err)

	c, err := s.store.GetConsignment(ctx, "D300")
	s.Require().NoError(err)
	s.Equal("Booked", *c.LastStatus)
	s.Equal("MUMBAI", *c.Origin)
	// статус не изменился -> одна запись истории
	s.Len(s.history("D300"), 1)
}

func (s *ReconcilerSuite) TestNoHistoryWhenStatusNeverKnown() {
	s.client.add("D400", payload("D400", "", "PUNE"), nil)
	_, err := s.rec.Reconcile(context.Background(), 1, "test", "D400")
	s.Require().NoError(err)
	s.Empty(s.history("D400"))
}

func (s *ReconcilerSuite) TestBatch_ItemIsolationAndOrder() {
	s.client.add("B", payload("B", "Delivered", ""), nil)
	s.client.add("A", nil, errors.Wrap(models.ErrProvider, "dtdc returned 502"))
	s.client.add("C", []byte("<html>"), nil)

	items, err := s.rec.ReconcileBatch(context.Background(), BatchRequest{
		ClientID: 3, Provider: "TEST", AWBs: []string{" B ", "A", "", "B", "C"},
	})
	s.Require().NoError(err)
	s.Require().Len(items, 3)

	s.Equal("B", items[0].AWB)
	s.Empty(items[0].Error)
	s.Equal("Delivered", *items[0].Snapshot.Status)
	s.True(items[0].StatusChanged)

	s.Equal("A", items[1].AWB)
	s.Equal("provider", items[1].Kind)
	s.Contains(items[1].Error, "502")
	s.Nil(items[1].Snapshot)

	s.Equal("C", items[2].AWB)
	s.Equal("provider", items[2].Kind)
}

func (s *ReconcilerSuite) TestBatch_Validation() {
	ctx := context.Background()
	cases := []BatchRequest{
		{ClientID: 0, Provider: "test", AWBs: []string{"A"}},
		{ClientID: 1, Provider: " ", AWBs: []string{"A"}},
		{ClientID: 1, Provider: "delhivery", AWBs: []string{"A"}},
		{ClientID: 1, Provider: "test", AWBs: []string{" ", ""}},
		{ClientID: 1, Provider: "test", AWBs: []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}},
	}
	for i, req := range cases {
		_, err := s.rec.ReconcileBatch(ctx, req)
		s.Require().Error(err, "case %d", i)
		s.True(errors.Is(err, models.ErrValidation), "case %d", i)
	}
	s.Zero(s.client.callCount())
}

func (s *ReconcilerSuite) TestBatch_MissingCredentialsAbortsBatch() {
	s.client.add("A", payload("A", "Booked", ""), nil)

	_, err := s.rec.ReconcileBatch(context.Background(), BatchRequest{ClientID: 5, Provider: "secure", AWBs: []string{"A", "B"}})
	s.Require().Error(err)
	s.True(errors.Is(err, models.ErrConfiguration))
	s.Zero(s.client.callCount())

	s.store.PutCredentials(5, "secure", carrier.Credentials{"tracking_token": "t"})
	items, err := s.rec.ReconcileBatch(context.Background(), BatchRequest{ClientID: 5, Provider: "secure", AWBs: []string{"A"}})
	s.Require().NoError(err)
	s.Empty(items[0].Error)
}

func (s *ReconcilerSuite) TestFetchTimeoutIsProviderError() {
	s.client.block = true
	rec := s.rec.WithSettings(20*time.Millisecond, 0, 0)

	_, err := rec.Reconcile(context.Background(), 1, "test", "SLOW")
	s.Require().Error(err)
	s.True(errors.Is(err, models.ErrProvider))
}

func (s *ReconcilerSuite) TestStorageFailureIsItemLevel() {
	s.client.add("OK", payload("OK", "Booked", "", detail{"Booked", "01032025", "1000", ""}), nil)
	s.client.add("BAD", payload("BAD", "Booked", "", detail{"Booked", "01032025", "1000", ""}), nil)

	reg := carrier.NewRegistry(carrier.Provider{Key: "test", Client: s.client, Adapter: dtdc.NewAdapter()})
	rec := New(reg, failingEvents{Store: s.store, awbFails: "BAD"}, s.store)

	items, err := rec.ReconcileBatch(context.Background(), BatchRequest{ClientID: 1, Provider: "test", AWBs: []string{"OK", "BAD"}})
	s.Require().NoError(err)
	s.Empty(items[0].Error)
	s.Equal("storage", items[1].Kind)
}

func (s *ReconcilerSuite) TestConcurrentSameAWB() {
	s.client.add("D500", payload("D500", "In Transit", "",
		detail{"Booked", "01032025", "1000", ""},
		detail{"In Transit", "02032025", "0830", ""},
	), nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.rec.Reconcile(context.Background(), 1, "test", "D500")
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Len(s.events("D500"), 2)
	s.Len(s.history("D500"), 1)
}

func (s *ReconcilerSuite) TestPublishesStatusChange() {
	pub := &publisherMock{}
	s.rec.WithPublisher(pub, "")

	s.client.add("D600", payload("D600", "Booked", ""), nil)
	s.client.add("D600", payload("D600", "Booked", ""), nil)
	s.client.add("D600", payload("D600", "Delivered", ""), nil)

	var got []messages.StatusChanged
	pub.On("Publish", mock.Anything, messages.TopicStatusChanged, []byte("D600"), mock.Anything).
		Run(func(args mock.Arguments) {
			var m messages.StatusChanged
			s.Require().NoError(json.Unmarshal(args.Get(3).([]byte), &m))
			got = append(got, m)
		}).
		Return(nil).
		Twice()

	for i := 0; i < 3; i++ {
		_, err := s.rec.Reconcile(context.Background(), 9, "test", "D600")
		s.Require().NoError(err)
	}

	pub.AssertExpectations(s.T())
	s.Require().Len(got, 2)
	s.Nil(got[0].OldStatus)
	s.Equal("Booked", *got[1].OldStatus)
	s.Equal("Delivered", *got[1].NewStatus)
	s.Equal(int64(9), got[1].ClientID)
}

func (s *ReconcilerSuite) TestPublishFailureDoesNotFailItem() {
	pub := &publisherMock{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("kafka down"))
	s.rec.WithPublisher(pub, "custom.topic")

	s.client.add("D700", payload("D700", "Booked", ""), nil)
	_, err := s.rec.Reconcile(context.Background(), 1, "test", "D700")
	s.Require().NoError(err)
	pub.AssertCalled(s.T(), "Publish", mock.Anything, "custom.topic", []byte("D700"), mock.Anything)
}

// snapshotRepo: чтение снимков из memstore, списки здесь не нужны.
type snapshotRepo struct {
	*memstore.Store
}

func (snapshotRepo) ListConsignments(context.Context, models.ConsignmentFilter) ([]*models.Consignment, int, error) {
	return nil, 0, nil
}

func (snapshotRepo) ListEventsFor(context.Context, []uuid.UUID) (map[uuid.UUID][]*models.TrackingEvent, error) {
	return nil, nil
}

func (snapshotRepo) RefreshConsignment(context.Context, string) error { return nil }

func (s *ReconcilerSuite) TestSameStatusRefreshInvalidatesSnapshot() {
	mr := miniredis.RunT(s.T())
	svc := consignments.New(snapshotRepo{s.store}, rediscache.New(mr.Addr()), time.Hour)
	s.rec.WithInvalidator(svc)

	noBooking, _ := json.Marshal(map[string]any{
		"trackHeader": map[string]string{"strShipmentNo": "D800", "strStatus": "In Transit"},
	})
	s.client.add("D800", noBooking, nil)
	s.client.add("D800", payload("D800", "In Transit", ""), nil)

	ctx := context.Background()
	_, err := s.rec.Reconcile(ctx, 1, "test", "D800")
	s.Require().NoError(err)

	item, err := svc.Detail(ctx, "D800")
	s.Require().NoError(err)
	s.Nil(item.BookedOn)
	s.True(mr.Exists("consignment:D800:current"))

	_, err = s.rec.Reconcile(ctx, 1, "test", "D800")
	s.Require().NoError(err)
	s.Len(s.history("D800"), 1)
	s.False(mr.Exists("consignment:D800:current"))

	item, err = svc.Detail(ctx, "D800")
	s.Require().NoError(err)
	s.Require().NotNil(item.BookedOn)
	s.Equal("2025-03-01", *item.BookedOn)
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

type failingEvents struct {
	*memstore.Store
	awbFails string
}

func (f failingEvents) InsertEventIfAbsent(ctx context.Context, ev *models.TrackingEvent) (bool, error) {
	c, err := f.Store.GetConsignment(ctx, f.awbFails)
	if err == nil && c.ID == ev.ConsignmentID {
		return false, errors.New("deadlock detected")
	}
	return f.Store.InsertEventIfAbsent(ctx, ev)
}

func TestCleanAWBs(t *testing.T) {
	require.Equal(t, []string{"B", "A"}, cleanAWBs([]string{" B ", "A", "", "B", " "}))
	require.Empty(t, cleanAWBs(nil))
}
