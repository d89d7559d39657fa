package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/CourierHub/internal/api/httpapi"
	"github.com/BearBump/CourierHub/internal/broker/kafka"
	"github.com/BearBump/CourierHub/internal/cache/rediscache"
	"github.com/BearBump/CourierHub/internal/integrations/carrier"
	"github.com/BearBump/CourierHub/internal/integrations/carrier/fake"
	"github.com/BearBump/CourierHub/internal/services/consignments"
	"github.com/BearBump/CourierHub/internal/services/pincodes"
	"github.com/BearBump/CourierHub/internal/services/reconciler"
	"github.com/BearBump/CourierHub/internal/services/tariff"
	"github.com/BearBump/CourierHub/internal/services/zones"
	"github.com/BearBump/CourierHub/internal/storage/memstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	consignmentsmocks "github.com/BearBump/CourierHub/internal/services/consignments/mocks"
)

func newTestAPI(t *testing.T, svc *consignments.Service) *httpapi.API {
	t.Helper()
	store := memstore.New()
	rec := reconciler.New(carrier.NewRegistry(fake.NewProvider()), store, store)
	pins := pincodes.New(store, nil, 0)
	calc := tariff.NewCalculator(store, zones.NewEstimator(pins))
	return httpapi.New(rec, calc, svc, pins)
}

func writeSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func TestRunHTTPServer_Routes(t *testing.T) {
	sw := writeSwagger(t)
	api := newTestAPI(t, consignments.New(&consignmentsmocks.MockRepository{}, nil, 0))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- runHTTPServer(ctx, lis, api, sw) }()

	base := "http://" + lis.Addr().String()
	for path, want := range map[string]string{
		"/swagger.json": `"swagger"`,
		"/healthz":      `"ok"`,
		"/metrics":      "courierhub_",
	} {
		resp, err := http.Get(base + path)
		require.NoError(t, err, path)
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.Contains(t, string(body), want, path)
	}

	cancel()
	select {
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting server to stop")
	case err := <-errCh:
		require.ErrorIs(t, err, http.ErrServerClosed)
	}
}

func TestRunTrackAPI_SwaggerRequired(t *testing.T) {
	api := newTestAPI(t, consignments.New(&consignmentsmocks.MockRepository{}, nil, 0))

	err := runTrackAPI(context.Background(), trackAPIOpts{httpAddr: "127.0.0.1:0"}, api, nil, &fakeConsumer{})
	require.Error(t, err)

	err = runTrackAPI(context.Background(), trackAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: filepath.Join(t.TempDir(), "missing.json"),
	}, api, nil, &fakeConsumer{})
	require.ErrorContains(t, err, "swagger file not found")
}

func TestRunTrackAPI_InvalidatesCacheFromKafka(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := rediscache.New(mr.Addr())
	t.Cleanup(func() { _ = rc.Close() })

	svc := consignments.New(&consignmentsmocks.MockRepository{}, rc, time.Minute)
	api := newTestAPI(t, svc)

	require.NoError(t, mr.Set("consignment:D100:current", `{"awb":"D100"}`))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := trackAPIOpts{
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   writeSwagger(t),
		topic:         "consignment.status_changed",
		consumerGroup: "g",
		consumerRetry: 10 * time.Millisecond,
		onListen:      func(httpAddr string) { addrCh <- httpAddr },
	}

	// первый Consume падает, второй доставляет сообщение
	cons := &fakeConsumer{
		failFirst: true,
		messages: [][2]string{
			{"D100", `{"awb":"D100","provider":"dtdc","new_status":"DELIVERED"}`},
		},
	}

	errCh := make(chan error, 1)
	go func() { errCh <- runTrackAPI(ctx, opts, api, svc.InvalidateFromMessage, cons) }()

	httpAddr := <-addrCh
	resp, err := http.Get("http://" + httpAddr + "/swagger.json")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return !mr.Exists("consignment:D100:current") }, 2*time.Second, 10*time.Millisecond)
	require.GreaterOrEqual(t, cons.calls.Load(), int32(2))

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

type fakeConsumer struct {
	failFirst bool
	messages  [][2]string
	calls     atomic.Int32
}

func (c *fakeConsumer) Consume(ctx context.Context, handler kafka.Handler) error {
	if c.calls.Add(1) == 1 && c.failFirst {
		return errors.New("broker unavailable")
	}
	for _, m := range c.messages {
		if err := handler(ctx, []byte(m[0]), []byte(m[1])); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}
