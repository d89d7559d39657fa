package dtdc

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/BearBump/CourierHub/internal/models"
	"github.com/pkg/errors"
)

// DefaultRemarksFields: DTDC отдаёт примечания то в sTrRemarks, то в strRemarks.
var DefaultRemarksFields = []string{"sTrRemarks", "strRemarks"}

type Adapter struct {
	remarksFields []string
}

// NewAdapter builds a DTDC adapter. remarksFields is the priority list used to find the
// remarks of a timeline entry; the first non-blank candidate wins.
func NewAdapter(remarksFields ...string) *Adapter {
	if len(remarksFields) == 0 {
		remarksFields = DefaultRemarksFields
	}
	fields := make([]string, len(remarksFields))
	copy(fields, remarksFields)
	return &Adapter{remarksFields: fields}
}

type object map[string]json.RawMessage

type trackResponse struct {
	TrackHeader  object          `json:"trackHeader"`
	TrackDetails json.RawMessage `json:"trackDetails"`
}

func (a *Adapter) Normalize(raw []byte) (models.NormalizedTracking, error) {
	var r trackResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.NormalizedTracking{}, errors.Wrap(models.ErrProvider, "dtdc: invalid json: "+err.Error())
	}

	h := r.TrackHeader
	out := models.NormalizedTracking{
		Snapshot: models.Snapshot{
			AWB:           h.str("strShipmentNo"),
			Origin:        h.strPtr("strOrigin"),
			Destination:   h.strPtr("strDestination"),
			BookedOn:      ParseDate(h.str("strBookedDate")),
			Status:        h.strPtr("strStatus"),
			LastUpdatedOn: ParseDateTime(h.str("strStatusTransOn"), h.str("strStatusTransTime")),
		},
		Timeline: []*models.TrackingEvent{},
	}

	details := bytes.TrimSpace(r.TrackDetails)
	if len(details) == 0 || bytes.Equal(details, []byte("null")) {
		return out, nil
	}
	var entries []object
	if err := json.Unmarshal(details, &entries); err != nil {
		return models.NormalizedTracking{}, errors.Wrap(models.ErrProvider, "dtdc: trackDetails is not an array")
	}

	for _, e := range entries {
		if e == nil {
			continue
		}
		out.Timeline = append(out.Timeline, &models.TrackingEvent{
			Action:      e.str("strAction"),
			ActionDate:  ParseDate(e.str("strActionDate")),
			ActionTime:  ParseTime(e.str("strActionTime")),
			Origin:      e.strPtr("strOrigin"),
			Destination: e.strPtr("strDestination"),
			Remarks:     a.remarks(e),
		})
	}
	return out, nil
}

func (a *Adapter) remarks(e object) *string {
	for _, f := range a.remarksFields {
		if v := e.strPtr(f); v != nil {
			return v
		}
	}
	return nil
}

// str достаёт строковое поле; числа тоже принимаются (DTDC иногда шлёт даты числом).
func (o object) str(key string) string {
	v, ok := o[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String()
		}
	}
	return ""
}

func (o object) strPtr(key string) *string {
	s := o.str(key)
	if s == "" {
		return nil
	}
	return &s
}
