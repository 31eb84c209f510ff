package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/clusterwatch/pkg/models"
)

const statusSuccess = "success"

// envelope is the outer shape shared by the APIs.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (e *envelope) ok(required bool) error {
	if e.Status == "" && !required {
		return nil
	}

	if !strings.EqualFold(e.Status, statusSuccess) {
		return fmt.Errorf("%w: status=%q", ErrUnsuccessfulStatus, e.Status)
	}

	return nil
}

type wireSample struct {
	Timestamp flexTime          `json:"timestamp"`
	Field     string            `json:"field"`
	Value     flexFloat         `json:"value"`
	Tags      map[string]string `json:"tags"`
}

type wireSeries struct {
	AllData *[]wireSample   `json:"all_data"`
	Summary json.RawMessage `json:"summary"`
}

type wireAlarms struct {
	Alarms []wireAlarm `json:"alarms"`
}

type wireAlarm struct {
	ID        flexString `json:"id"`
	Severity  string     `json:"severity"`
	Message   string     `json:"message"`
	Timestamp flexTime   `json:"timestamp"`
}

type wireJob struct {
	ID     flexString `json:"id"`
	Name   string     `json:"name"`
	Status string     `json:"status"`
}

type wireProcessLog struct {
	Status   string   `json:"status"`
	Logs     []string `json:"logs"`
	Metadata struct {
		FinalStatus string `json:"final_status"`
	} `json:"metadata"`
	ProcessStatus string `json:"process_status"`
}

// decodeSamples accepts either a bare sample array or an object carrying
// all_data. Samples without a field, timestamp or numeric value are
// dropped.
func decodeSamples(data json.RawMessage) ([]models.Sample, error) {
	data = bytes.TrimSpace(data)

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []models.Sample{}, nil
	}

	var raw []wireSample

	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &raw); err != nil {
			return []models.Sample{}, fmt.Errorf("%w: %w", ErrUnexpectedShape, err)
		}
	case '{':
		var s wireSeries
		if err := json.Unmarshal(data, &s); err != nil {
			return []models.Sample{}, fmt.Errorf("%w: %w", ErrUnexpectedShape, err)
		}

		if s.AllData == nil {
			return []models.Sample{}, fmt.Errorf("%w: object without all_data", ErrUnexpectedShape)
		}

		raw = *s.AllData
	default:
		return []models.Sample{}, fmt.Errorf("%w: data is neither array nor object", ErrUnexpectedShape)
	}

	out := make([]models.Sample, 0, len(raw))

	for _, w := range raw {
		if w.Field == "" || !w.Timestamp.valid || !w.Value.valid {
			continue
		}

		out = append(out, models.Sample{
			Timestamp: w.Timestamp.t,
			Field:     w.Field,
			Value:     w.Value.v,
			Tags:      w.Tags,
		})
	}

	return out, nil
}

// flexTime accepts RFC3339 strings or unix timestamps in seconds or
// milliseconds.
type flexTime struct {
	t     time.Time
	valid bool
}

const unixMillisThreshold = 1e12

func (f *flexTime) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			n, nerr := strconv.ParseFloat(value, 64)
			if nerr != nil {
				return nil
			}

			t = unixTime(n)
		}

		f.t, f.valid = t.UTC(), true
	case float64:
		f.t, f.valid = unixTime(value), true
	}

	return nil
}

func unixTime(n float64) time.Time {
	if math.Abs(n) >= unixMillisThreshold {
		return time.UnixMilli(int64(n)).UTC()
	}

	sec, frac := math.Modf(n)

	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// flexFloat accepts numbers or numeric strings.
type flexFloat struct {
	v     float64
	valid bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		f.v, f.valid = value, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
			f.v, f.valid = n, true
		}
	}

	return nil
}

// flexString accepts strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case string:
		*f = flexString(value)
	case float64:
		*f = flexString(strconv.FormatFloat(value, 'f', -1, 64))
	}

	return nil
}
