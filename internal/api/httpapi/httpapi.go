// Package httpapi exposes reconciliation, pricing and the consignment read model over HTTP (chi).
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/CourierHub/internal/metrics"
	"github.com/BearBump/CourierHub/internal/models"
	"github.com/BearBump/CourierHub/internal/services/consignments"
	"github.com/BearBump/CourierHub/internal/services/reconciler"
	"github.com/BearBump/CourierHub/internal/services/tariff"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
)

type Reconciler interface {
	ReconcileBatch(ctx context.Context, req reconciler.BatchRequest) ([]reconciler.BatchItem, error)
}

type Pricing interface {
	Calculate(ctx context.Context, q tariff.Quote) (tariff.Breakdown, error)
}

type Consignments interface {
	List(ctx context.Context, q consignments.ListQuery) (*consignments.Page, error)
	Detail(ctx context.Context, awb string) (*consignments.Item, error)
	History(ctx context.Context, awb string) ([]*models.StatusHistory, error)
	Refresh(ctx context.Context, awb string) error
}

type Pincodes interface {
	Lookup(ctx context.Context, query string) ([]models.Pincode, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type API struct {
	reconciler   Reconciler
	pricing      Pricing
	consignments Consignments
	pincodes     Pincodes
	db           Pinger
}

func New(rec Reconciler, pricing Pricing, cons Consignments, pins Pincodes) *API {
	return &API{reconciler: rec, pricing: pricing, consignments: cons, pincodes: pins}
}

// WithHealthCheck подключает проверку БД к /healthz.
func (a *API) WithHealthCheck(db Pinger) *API {
	a.db = db
	return a
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/trackings/refresh", a.refreshTrackings)
		r.Post("/pricing/quote", a.quote)

		r.Get("/consignments", a.listConsignments)
		r.Get("/consignments/{awb}", a.getConsignment)
		r.Get("/consignments/{awb}/history", a.consignmentHistory)
		r.Post("/consignments/{awb}/refresh", a.scheduleRefresh)

		r.Get("/pincodes/{pin}", a.lookupPincode)
	})
	return r
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type refreshResponse struct {
	Results []reconciler.BatchItem `json:"results"`
}

func (a *API) refreshTrackings(w http.ResponseWriter, r *http.Request) {
	var req reconciler.BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	items, err := a.reconciler.ReconcileBatch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Results: items})
}

func (a *API) quote(w http.ResponseWriter, r *http.Request) {
	var q tariff.Quote
	if err := decodeJSON(w, r, &q); err != nil {
		metrics.QuotesTotal.WithLabelValues(models.ErrorKind(err)).Inc()
		writeError(w, err)
		return
	}
	b, err := a.pricing.Calculate(r.Context(), q)
	if err != nil {
		metrics.QuotesTotal.WithLabelValues(models.ErrorKind(err)).Inc()
		writeError(w, err)
		return
	}
	metrics.QuotesTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, b)
}

func (a *API) listConsignments(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	clientID, err := intParam(qs.Get("clientId"), "clientId")
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := intParam(qs.Get("page"), "page")
	if err != nil {
		writeError(w, err)
		return
	}
	pageSize, err := intParam(qs.Get("pageSize"), "pageSize")
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := a.consignments.List(r.Context(), consignments.ListQuery{
		ClientID: clientID,
		Page:     int(page),
		PageSize: int(pageSize),
		Search:   qs.Get("search"),
		Status:   qs.Get("status"),
		From:     qs.Get("from"),
		To:       qs.Get("to"),
		TAT:      qs.Get("tat"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getConsignment(w http.ResponseWriter, r *http.Request) {
	it, err := a.consignments.Detail(r.Context(), chi.URLParam(r, "awb"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (a *API) consignmentHistory(w http.ResponseWriter, r *http.Request) {
	h, err := a.consignments.History(r.Context(), chi.URLParam(r, "awb"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": h})
}

func (a *API) scheduleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := a.consignments.Refresh(r.Context(), chi.URLParam(r, "awb")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"scheduled": true})
}

func (a *API) lookupPincode(w http.ResponseWriter, r *http.Request) {
	items, err := a.pincodes.Lookup(r.Context(), chi.URLParam(r, "pin"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(models.ErrValidation, "invalid json body: %v", err)
	}
	return nil
}

func intParam(raw, name string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(models.ErrValidation, "%s must be an integer", name)
	}
	return v, nil
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func statusFor(err error) int {
	switch models.ErrorKind(err) {
	case "validation":
		return http.StatusBadRequest
	case "configuration":
		return http.StatusUnprocessableEntity
	case "not_found":
		return http.StatusNotFound
	case "provider":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Error("http request failed", "error", err.Error())
	}
	writeJSON(w, code, errorResponse{Error: err.Error(), Kind: models.ErrorKind(err)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
