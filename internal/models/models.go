// Package models defines the shared data types passed between YearReel components.
package models

import (
	"encoding/json"
	"time"
)

// Platform identifies a publishing target.
type Platform string

// Supported publishing platforms.
const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformYouTube   Platform = "youtube"
)

// StateFileName is the well-known filename of the state record inside the
// remote state document.
const StateFileName = "yearreel-state.json"

// ResetContentType is the sentinel content type written by a reset, forcing
// the next run to post unconditionally.
const ResetContentType = "none"

// StateRecord is the durable cross-invocation record stored remotely. It is
// the single source of truth for duplicate suppression.
//
// LastValue is a string or a number depending on the generator that produced
// it; JSON numbers unmarshal as float64. Extra carries any additional fields
// present in the stored document; they are preserved on write but never
// interpreted by the duplicate check.
type StateRecord struct {
	LastValue   any    `json:"lastValue"`
	LastDate    string `json:"lastDate"`
	ContentType string `json:"contentType"`
	Year        *int   `json:"year,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// knownStateFields are the field names owned by StateRecord itself.
var knownStateFields = map[string]bool{
	"lastValue":   true,
	"lastDate":    true,
	"contentType": true,
	"year":        true,
}

// MarshalJSON emits the four known fields plus any preserved extra fields.
func (r StateRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+4)
	for k, v := range r.Extra {
		if !knownStateFields[k] {
			out[k] = v
		}
	}
	out["lastValue"] = r.LastValue
	out["lastDate"] = r.LastDate
	out["contentType"] = r.ContentType
	if r.Year != nil {
		out["year"] = *r.Year
	}
	return json.Marshal(out)
}

// UnmarshalJSON fills the known fields and stashes everything else in Extra.
func (r *StateRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["lastValue"]; ok {
		if err := json.Unmarshal(v, &r.LastValue); err != nil {
			return err
		}
	}
	if v, ok := raw["lastDate"]; ok {
		if err := json.Unmarshal(v, &r.LastDate); err != nil {
			return err
		}
	}
	if v, ok := raw["contentType"]; ok {
		if err := json.Unmarshal(v, &r.ContentType); err != nil {
			return err
		}
	}
	if v, ok := raw["year"]; ok {
		var year int
		if err := json.Unmarshal(v, &year); err != nil {
			return err
		}
		r.Year = &year
	}
	for k, v := range raw {
		if knownStateFields[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[k] = v
	}
	return nil
}

// SameValue reports whether two content identifiers are equal for duplicate
// suppression. Numeric values compare by value regardless of Go representation
// (a stored JSON 42 comes back as float64 while generators produce int);
// strings compare exactly; a string never equals a number.
func SameValue(a, b any) bool {
	if af, ok := asFloat(a); ok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	if as, ok := a.(string); ok {
		bs, bok := b.(string)
		return bok && as == bs
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// UploadOptions tunes a single upload call.
type UploadOptions struct {
	// DryRun skips the network entirely and returns a marker success result.
	DryRun bool
	// MaxRetries overrides the default attempt ceiling (total attempts).
	MaxRetries int
	// BaseDelay overrides the exponential-backoff base.
	BaseDelay time.Duration
}

// UploadResult is the outcome of one platform's publish attempt. It is never
// persisted; only the orchestrator's aggregation and logging consume it.
type UploadResult struct {
	Success  bool           `json:"success"`
	Platform Platform       `json:"platform"`
	Result   map[string]any `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// MultiUploadResult aggregates the per-platform outcomes of one fan-out.
// Success is true iff at least one platform succeeded.
type MultiUploadResult struct {
	Success bool               `json:"success"`
	Results PartitionedUploads `json:"results"`
}

// PartitionedUploads splits upload results by outcome.
type PartitionedUploads struct {
	Successful []UploadResult `json:"successful"`
	Failed     []UploadResult `json:"failed"`
}
