package canary

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/domain"
)

const statusGood = "Good"

// Status is the envelope every Views API response carries.
type Status struct {
	StatusCode string   `json:"statusCode"`
	Errors     []string `json:"errors"`
}

func (s Status) err(op string) error {
	if s.StatusCode == "" || s.StatusCode == statusGood {
		return nil
	}
	return &APIError{Op: op, StatusCode: s.StatusCode, Errors: s.Errors}
}

// APIError is a non-Good status returned by the Views API.
type APIError struct {
	Op         string
	StatusCode string
	Errors     []string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("canary %s: %s", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("canary %s: %s: %v", e.Op, e.StatusCode, e.Errors)
}

type browseTagsRequest struct {
	Path         string `json:"path"`
	Deep         bool   `json:"deep"`
	Continuation string `json:"continuation,omitempty"`
}

type browseTagsResponse struct {
	Status `json:",inline"`
	Tags         []string `json:"tags"`
	Continuation *string  `json:"continuation"`
}

type liveDataTokenRequest struct {
	Tags           []string `json:"tags"`
	Mode           string   `json:"mode"`
	IncludeQuality bool     `json:"includeQuality"`
}

type liveDataTokenResponse struct {
	Status `json:",inline"`
	LiveDataToken string `json:"liveDataToken"`
}

type liveDataRequest struct {
	LiveDataToken  string `json:"liveDataToken"`
	IncludeQuality bool   `json:"includeQuality"`
}

type liveDataResponse struct {
	Status `json:",inline"`
	Data map[string][]wireTVQ `json:"data"`
}

type revokeRequest struct {
	LiveDataToken string `json:"liveDataToken"`
}

type wireTVQ struct {
	T string `json:"t"`
	V any    `json:"v"`
	Q any    `json:"q"`
}

func (w wireTVQ) toDomain() (domain.TVQ, error) {
	rec := domain.TVQ{Value: w.V}
	if w.T != "" {
		ts, err := time.Parse(time.RFC3339Nano, w.T)
		if err != nil {
			return domain.TVQ{}, fmt.Errorf("timestamp %q: %w", w.T, err)
		}
		rec.Timestamp = &ts
	}
	if w.Q != nil {
		q, err := parseQuality(w.Q)
		if err != nil {
			return domain.TVQ{}, err
		}
		rec.Quality = &q
	}
	return rec, nil
}

func parseQuality(v any) (domain.Quality, error) {
	switch q := v.(type) {
	case float64:
		if q != math.Trunc(q) {
			return 0, fmt.Errorf("quality %v is not an integer code", q)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which is already out of range
		if q < math.MinInt64 || q >= math.MaxInt64 {
			return 0, fmt.Errorf("quality %v is out of range", q)
		}
		return domain.Quality(q), nil
	case string:
		n, err := strconv.ParseInt(q, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("quality %q: %w", q, err)
		}
		return domain.Quality(n), nil
	default:
		return 0, fmt.Errorf("quality has unsupported type %T", v)
	}
}

func decodeEntry(records []wireTVQ) domain.Entry {
	out := make([]domain.TVQ, 0, len(records))
	for i, w := range records {
		rec, err := w.toDomain()
		if err != nil {
			return domain.Entry{Records: out, Err: fmt.Errorf("record %d: %w", i, err)}
		}
		out = append(out, rec)
	}
	return domain.Entry{Records: out}
}
