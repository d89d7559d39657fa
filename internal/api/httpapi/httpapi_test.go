package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/CourierHub/internal/integrations/carrier"
	"github.com/BearBump/CourierHub/internal/integrations/carrier/dtdc"
	"github.com/BearBump/CourierHub/internal/integrations/carrier/fake"
	"github.com/BearBump/CourierHub/internal/models"
	"github.com/BearBump/CourierHub/internal/services/consignments"
	"github.com/BearBump/CourierHub/internal/services/pincodes"
	"github.com/BearBump/CourierHub/internal/services/reconciler"
	"github.com/BearBump/CourierHub/internal/services/tariff"
	"github.com/BearBump/CourierHub/internal/services/zones"
	"github.com/BearBump/CourierHub/internal/storage/memstore"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	consignmentsmocks "github.com/BearBump/CourierHub/internal/services/consignments/mocks"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type APISuite struct {
	suite.Suite

	store *memstore.Store
	repo  *consignmentsmocks.MockRepository
	srv   *httptest.Server
}

func (s *APISuite) SetupTest() {
	d := decimal.RequireFromString

	s.store = memstore.New()
	s.store.PutPincodes(
		models.Pincode{Pincode: "110001", Office: "Connaught Place", State: "Delhi"},
		models.Pincode{Pincode: "110002", Office: "Darya Ganj", State: "Delhi"},
	)
	s.store.LoadRates(models.RateConfig{
		Services:      []models.ServicePrice{{ID: 1, ClientID: 7, Code: "EXPRESS", BasePrice: d("40")}},
		WeightSlabs:   []models.Slab{{ID: 1, ClientID: 7, Min: d("0"), Max: d("1"), Price: d("50")}},
		DistanceSlabs: []models.Slab{{ID: 1, ClientID: 7, Min: d("0"), Max: d("200"), Price: d("100")}},
	})

	reg := carrier.NewRegistry(fake.NewProvider(), dtdc.NewProvider("http://127.0.0.1:1", time.Second))
	rec := reconciler.New(reg, s.store, s.store)
	pins := pincodes.New(s.store, nil, 0)
	calc := tariff.NewCalculator(s.store, zones.NewEstimator(pins))

	s.repo = &consignmentsmocks.MockRepository{}
	cons := consignments.New(s.repo, nil, 0)

	api := New(rec, calc, cons, pins)
	s.srv = httptest.NewServer(api.Routes())
	s.T().Cleanup(s.srv.Close)
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) do(method, path string, body any) (int, map[string]any) {
	var rdr *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rdr)
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (s *APISuite) TestHealthz() {
	code, body := s.do(http.MethodGet, "/healthz", nil)
	s.Equal(http.StatusOK, code)
	s.Equal("ok", body["status"])
}

func (s *APISuite) TestRefresh_OK() {
	code, body := s.do(http.MethodPost, "/v1/trackings/refresh", map[string]any{
		"clientId": 7, "provider": "fake", "awbs": []string{"D100", " D100 ", "D200"},
	})
	s.Require().Equal(http.StatusOK, code)
	results := body["results"].([]any)
	s.Require().Len(results, 2)
	first := results[0].(map[string]any)
	s.Equal("D100", first["awb"])
	s.NotNil(first["snapshot"])
	s.Nil(first["error"])

	c, err := s.store.GetConsignment(context.Background(), "D100")
	s.Require().NoError(err)
	s.Equal([]string{"fake"}, c.Providers)
}

func (s *APISuite) TestRefresh_Validation400() {
	code, body := s.do(http.MethodPost, "/v1/trackings/refresh", map[string]any{"clientId": 7, "provider": "fake", "awbs": []string{}})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("validation", body["kind"])

	code, _ = s.do(http.MethodPost, "/v1/trackings/refresh", "not an object")
	s.Equal(http.StatusBadRequest, code)
}

func (s *APISuite) TestRefresh_MissingCredentials422() {
	code, body := s.do(http.MethodPost, "/v1/trackings/refresh", map[string]any{
		"clientId": 7, "provider": "dtdc", "awbs": []string{"D1"},
	})
	s.Equal(http.StatusUnprocessableEntity, code)
	s.Equal("configuration", body["kind"])
	s.Contains(body["error"], "tracking_token")
}

func (s *APISuite) TestQuote() {
	code, body := s.do(http.MethodPost, "/v1/pricing/quote", map[string]any{
		"clientId": 7, "serviceType": "EXPRESS", "loadType": "DOCUMENT", "weight": 0.5,
		"originPincode": "110001", "destPincode": "110002",
	})
	s.Require().Equal(http.StatusOK, code)
	s.Equal("190", body["total"])
	s.Equal(float64(zones.SameStateKm), body["kmEstimated"])

	code, body = s.do(http.MethodPost, "/v1/pricing/quote", map[string]any{"clientId": 7, "serviceType": "EXPRESS", "weight": -1})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("validation", body["kind"])
}

func (s *APISuite) TestConsignmentsList() {
	c := &models.Consignment{ID: uuid.New(), AWB: "D1", ClientID: 7}
	s.repo.On("ListConsignments", mock.Anything, models.ConsignmentFilter{
		ClientID: 7, Search: "D", StatusGroup: models.StatusGroupDelivered, Limit: 20, Offset: 20,
	}).Return([]*models.Consignment{c}, 21, nil).Once()
	s.repo.On("ListEventsFor", mock.Anything, []uuid.UUID{c.ID}).
		Return(map[uuid.UUID][]*models.TrackingEvent{}, nil).Once()

	code, body := s.do(http.MethodGet, "/v1/consignments?clientId=7&page=2&pageSize=20&search=D&status=delivered", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal(float64(21), body["total"])
	s.Equal(float64(2), body["totalPages"])
	items := body["items"].([]any)
	s.Require().Len(items, 1)
	s.Equal("D1", items[0].(map[string]any)["awb"])
	s.Equal("On Time", items[0].(map[string]any)["tatStatus"])

	code, _ = s.do(http.MethodGet, "/v1/consignments?clientId=abc", nil)
	s.Equal(http.StatusBadRequest, code)
	code, _ = s.do(http.MethodGet, "/v1/consignments", nil)
	s.Equal(http.StatusBadRequest, code)
}

func (s *APISuite) TestConsignmentDetailAndHistory() {
	c := &models.Consignment{ID: uuid.New(), AWB: "D1", ClientID: 7}
	s.repo.On("GetConsignment", mock.Anything, "D1").Return(c, nil).Once()
	s.repo.On("ListEvents", mock.Anything, c.ID).Return([]*models.TrackingEvent{}, nil).Once()

	code, body := s.do(http.MethodGet, "/v1/consignments/D1", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal("D1", body["awb"])
	s.NotNil(body["timeline"])

	s.repo.On("GetConsignment", mock.Anything, "NOPE").
		Return(nil, errors.Wrap(models.ErrNotFound, "consignment NOPE")).Once()
	code, body = s.do(http.MethodGet, "/v1/consignments/NOPE", nil)
	s.Equal(http.StatusNotFound, code)
	s.Equal("not_found", body["kind"])

	old := "Booked"
	s.repo.On("ListStatusHistory", mock.Anything, "D1").
		Return([]*models.StatusHistory{{AWB: "D1", OldStatus: &old}}, nil).Once()
	code, body = s.do(http.MethodGet, "/v1/consignments/D1/history", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Len(body["history"], 1)
}

func (s *APISuite) TestScheduleRefresh() {
	s.repo.On("RefreshConsignment", mock.Anything, "D1").Return(nil).Once()
	code, body := s.do(http.MethodPost, "/v1/consignments/D1/refresh", nil)
	s.Equal(http.StatusAccepted, code)
	s.Equal(true, body["scheduled"])

	s.repo.On("RefreshConsignment", mock.Anything, "D2").Return(errors.New("db down")).Once()
	code, body = s.do(http.MethodPost, "/v1/consignments/D2/refresh", nil)
	s.Equal(http.StatusInternalServerError, code)
	s.Equal("internal", body["kind"])
}

func (s *APISuite) TestPincodes() {
	code, body := s.do(http.MethodGet, "/v1/pincodes/1100", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Len(body["items"], 2)

	code, body = s.do(http.MethodGet, "/v1/pincodes/110001", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Len(body["items"], 1)

	code, _ = s.do(http.MethodGet, "/v1/pincodes/11A", nil)
	s.Equal(http.StatusBadRequest, code)
}

func (s *APISuite) TestHealthz_DBDown() {
	api := New(nil, nil, nil, nil).WithHealthCheck(pingerFunc(func(context.Context) error { return errors.New("db down") }))
	rr := httptest.NewRecorder()
	api.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusServiceUnavailable, rr.Code)
}

func (s *APISuite) TestStatusFor() {
	s.Equal(http.StatusBadGateway, statusFor(errors.Wrap(models.ErrProvider, "x")))
	s.Equal(http.StatusInternalServerError, statusFor(errors.Wrap(models.ErrStorage, "x")))
}
