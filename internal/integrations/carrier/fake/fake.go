package fake

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strings"
	"time"

	"github.com/BearBump/CourierHub/internal/integrations/carrier"
	"github.com/BearBump/CourierHub/internal/integrations/carrier/dtdc"
	"github.com/BearBump/CourierHub/internal/models"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/pkg/errors"
)

const ProviderKey = "fake"

// FakeClient — заглушка перевозчика для демо: отдаёт ответ в формате DTDC.
// Содержимое детерминировано по AWB (в пределах одних суток), часть накладных доставлена.
type FakeClient struct {
	now func() time.Time
}

func New() *FakeClient { return &FakeClient{now: time.Now} }

// NewProvider: fake-перевозчик переиспользует DTDC-адаптер.
func NewProvider() carrier.Provider {
	return carrier.Provider{Key: ProviderKey, Client: New(), Adapter: dtdc.NewAdapter()}
}

func (f *FakeClient) Fetch(ctx context.Context, _ carrier.Credentials, awb string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(models.ErrProvider, err.Error())
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToUpper(awb)))
	v := h.Sum32()

	faker := gofakeit.New(int64(v))
	origin := strings.ToUpper(faker.City())
	dest := strings.ToUpper(faker.City())

	today := f.now().In(models.CarrierLocation)
	booked := today.AddDate(0, 0, -int(v%6)-1)
	moved := booked.AddDate(0, 0, 1)

	details := []map[string]string{
		{
			"strAction":     "Booked",
			"strActionDate": booked.Format("02012006"),
			"strActionTime": "1000",
			"strOrigin":     origin,
			"sTrRemarks":    "Shipment booked",
		},
		{
			"strAction":      "In Transit",
			"strActionDate":  moved.Format("02012006"),
			"strActionTime":  faker.RandomString([]string{"0830", "1345", "2110"}),
			"strOrigin":      origin,
			"strDestination": dest,
			"strRemarks":     faker.Sentence(4),
		},
	}
	status := "In Transit"
	// 20% накладных считаем доставленными
	if v%5 == 0 {
		status = "Delivered"
		details = append(details, map[string]string{
			"strAction":      "Delivered",
			"strActionDate":  today.Format("02012006"),
			"strActionTime":  "0900",
			"strDestination": dest,
			"sTrRemarks":     "Delivered to " + faker.FirstName(),
		})
	}
	last := details[len(details)-1]

	return json.Marshal(map[string]any{
		"trackHeader": map[string]string{
			"strShipmentNo":      awb,
			"strOrigin":          origin,
			"strDestination":     dest,
			"strBookedDate":      booked.Format("02012006"),
			"strStatus":          status,
			"strStatusTransOn":   last["strActionDate"],
			"strStatusTransTime": last["strActionTime"],
		},
		"trackDetails": details,
	})
}
