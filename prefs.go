package parley

import (
	"fmt"
	"time"

	"github.com/casualjim/parley/provider"
	"github.com/casualjim/parley/session"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// StreamMode selects the throttling policy for incremental delivery.
type StreamMode string

const (
	// StreamFrameSync flushes at most once per frame tick.
	StreamFrameSync StreamMode = "frame"
	// StreamInterval batches deltas on a fixed interval, flushing
	// immediately when the interval is below the instant threshold.
	StreamInterval StreamMode = "interval"
)

// Preferences is the one value object holding every user-tunable knob the
// engine consumes. Hosts load it once at startup, pass it to New, and save
// it back when the user changes something.
type Preferences struct {
	Provider        string        `json:"provider"`
	Model           string        `json:"model"`
	StreamMode      StreamMode    `json:"stream_mode"`
	StreamInterval  time.Duration `json:"stream_interval"`
	Temperature     float64       `json:"temperature"`
	MaxOutputTokens int64         `json:"max_output_tokens"`
}

// DefaultPreferences returns the engine defaults applied when nothing is
// persisted yet.
func DefaultPreferences() Preferences {
	return Preferences{
		Provider:       provider.TagOpenAI,
		Model:          "gpt-4o-mini",
		StreamMode:     StreamInterval,
		StreamInterval: 30 * time.Millisecond,
		Temperature:    1,
	}
}

// GenerationParams converts the tunable knobs into per-request parameters.
func (p Preferences) GenerationParams() provider.GenerationParams {
	return provider.GenerationParams{
		Temperature:     p.Temperature,
		MaxOutputTokens: p.MaxOutputTokens,
	}
}

const preferencesKey = "parley.preferences"

// LoadPreferences reads preferences from the KV, falling back to defaults
// field by field so records from older versions still load.
func LoadPreferences(kv session.KV) Preferences {
	p := DefaultPreferences()
	raw, ok := kv.Get(preferencesKey)
	if !ok || !gjson.Valid(raw) {
		return p
	}

	doc := gjson.Parse(raw)
	if v := doc.Get("provider"); v.Exists() {
		p.Provider = v.String()
	}
	if v := doc.Get("model"); v.Exists() {
		p.Model = v.String()
	}
	if v := doc.Get("stream_mode"); v.Exists() {
		switch StreamMode(v.String()) {
		case StreamFrameSync, StreamInterval:
			p.StreamMode = StreamMode(v.String())
		}
	}
	if v := doc.Get("stream_interval"); v.Exists() {
		if d := time.Duration(v.Int()); d >= 0 {
			p.StreamInterval = d
		}
	}
	if v := doc.Get("temperature"); v.Exists() {
		p.Temperature = v.Float()
	}
	if v := doc.Get("max_output_tokens"); v.Exists() {
		p.MaxOutputTokens = v.Int()
	}
	return p
}

// Save writes the preferences under their single key.
func (p Preferences) Save(kv session.KV) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	return kv.Set(preferencesKey, string(raw))
}
