package dtdc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/CourierHub/internal/integrations/carrier"
	"github.com/BearBump/CourierHub/internal/models"
	"github.com/pkg/errors"
)

const (
	ProviderKey = "dtdc"

	DefaultBaseURL = "https://blktracksvc.dtdc.com"
	trackPath      = "/dtdc-api/rest/JSONCnTrk/getTrackDetails"

	CredToken        = "tracking_token"
	CredCustomerCode = "customer_code"
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewProvider собирает DTDC-провайдер для реестра. про remarksFields см. NewAdapter.
func NewProvider(baseURL string, timeout time.Duration, remarksFields ...string) carrier.Provider {
	return carrier.Provider{
		Key:                 ProviderKey,
		Client:              New(baseURL, timeout),
		Adapter:             NewAdapter(remarksFields...),
		RequiredCredentials: []string{CredToken},
	}
}

type trackRequest struct {
	TrkType      string `json:"trkType"`
	StrCnNo      string `json:"strcnno"`
	AddtnlDtl    string `json:"addtnlDtl"`
	CustomerCode string `json:"customerCode"`
}

func (c *Client) Fetch(ctx context.Context, creds carrier.Credentials, awb string) ([]byte, error) {
	token := creds[CredToken]
	if token == "" {
		return nil, errors.Wrap(models.ErrConfiguration, "dtdc: missing "+CredToken)
	}

	body, err := json.Marshal(trackRequest{
		TrkType:      "cnno",
		StrCnNo:      awb,
		AddtnlDtl:    "Y",
		CustomerCode: creds[CredCustomerCode],
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+trackPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Access-Token", token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(models.ErrProvider, "dtdc: do request: "+err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrap(models.ErrProvider, "dtdc: read body: "+err.Error())
	}

	if resp.StatusCode/100 != 2 {
		var e struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Message != "" {
			return nil, errors.Wrap(models.ErrProvider, "dtdc: "+e.Message)
		}
		return nil, errors.Wrap(models.ErrProvider, fmt.Sprintf("dtdc returned %d", resp.StatusCode))
	}
	return raw, nil
}
