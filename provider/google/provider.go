package google

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/casualjim/parley/provider"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	probePrompt = "ping"
)

var knownModels = map[string]struct{}{
	"gemini-2.5-pro":        {},
	"gemini-2.5-flash":      {},
	"gemini-2.0-flash":      {},
	"gemini-2.0-flash-lite": {},
	"gemini-1.5-pro":        {},
	"gemini-1.5-flash":      {},
}

// Provider adapts the Gemini API to the provider contract.
type Provider struct {
	creds   provider.Credentials
	baseURL string
	client  *http.Client
}

// Option configures the adapter.
type Option func(*Provider)

// WithBaseURL points the adapter at a different endpoint. Tests use this
// to target a local server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient installs a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.client = client }
}

// New returns the Gemini adapter.
func New(creds provider.Credentials, opts ...Option) *Provider {
	p := &Provider{
		creds:   creds,
		baseURL: defaultBaseURL,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Tag() string { return provider.TagGoogle }

// Models returns the model names this adapter recognizes.
func (p *Provider) Models() []string {
	names := make([]string, 0, len(knownModels))
	for name := range knownModels {
		names = append(names, name)
	}
	return names
}

func (p *Provider) ChatCompletion(ctx context.Context, params provider.CompletionParams) (<-chan provider.StreamEvent, error) {
	if _, known := knownModels[params.Model]; !known {
		return nil, provider.ConfigurationFault(provider.TagGoogle, "unknown model %q", params.Model)
	}

	key, ok := p.creds.Lookup(provider.TagGoogle)
	if !ok || key == "" {
		return nil, provider.ConfigurationFault(provider.TagGoogle, "missing credential")
	}

	req := buildRequest(&params)

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		if params.Stream {
			p.runStream(ctx, key, req, &params, events)
		} else {
			p.runOnce(ctx, key, req, &params, events)
		}
	}()
	return events, nil
}

func (p *Provider) post(ctx context.Context, url, key string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	return p.client.Do(req)
}

// drainError turns a non-2xx response into a fault, reading the error
// payload when one is present.
func drainError(res *http.Response) error {
	defer res.Body.Close() //nolint: errcheck

	body, readErr := io.ReadAll(io.LimitReader(res.Body, maxSSELineSize))
	if readErr != nil {
		return provider.TransportFault(provider.TagGoogle, readErr)
	}

	var decoded generateContentResponse
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != nil {
		message = decoded.Error.Message
	}

	switch res.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return provider.ConfigurationFault(provider.TagGoogle, "authentication failed: %s", message)
	case http.StatusNotFound:
		return provider.ConfigurationFault(provider.TagGoogle, "model unavailable: %s", message)
	default:
		return provider.RefusalFault(provider.TagGoogle, message)
	}
}

func (p *Provider) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.TimeoutFault(provider.TagGoogle, err.Error())
	}
	if f, ok := provider.AsFault(err); ok {
		return f
	}
	return provider.TransportFault(provider.TagGoogle, err)
}

func (p *Provider) runStream(ctx context.Context, key string, req generateContentRequest, params *provider.CompletionParams, events chan<- provider.StreamEvent) {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.baseURL, params.Model)

	res, err := p.post(ctx, url, key, req)
	if err != nil {
		events <- provider.Error{RunID: params.RunID, Err: p.classify(err), Timestamp: strfmt.DateTime(time.Now())}
		return
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		events <- provider.Error{RunID: params.RunID, Err: drainError(res), Timestamp: strfmt.DateTime(time.Now())}
		return
	}
	defer res.Body.Close() //nolint: errcheck

	var (
		notFirst     bool
		seen         snapshot
		mainAcc      strings.Builder
		auxAcc       strings.Builder
		finishReason string
	)

	scanner := newSSEScanner(res.Body)
	for {
		if err := ctx.Err(); err != nil {
			events <- provider.Error{RunID: params.RunID, Err: err, Timestamp: strfmt.DateTime(time.Now())}
			return
		}

		payload, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			events <- provider.Error{RunID: params.RunID, Err: p.classify(err), Timestamp: strfmt.DateTime(time.Now())}
			return
		}

		var resp generateContentResponse
		if err := json.Unmarshal([]byte(payload), &resp); err != nil {
			events <- provider.Error{
				RunID:     params.RunID,
				Err:       provider.RefusalFault(provider.TagGoogle, fmt.Sprintf("malformed stream payload: %v", err)),
				Timestamp: strfmt.DateTime(time.Now()),
			}
			return
		}
		if resp.Error != nil {
			events <- provider.Error{
				RunID:     params.RunID,
				Err:       provider.RefusalFault(provider.TagGoogle, resp.Error.Message),
				Timestamp: strfmt.DateTime(time.Now()),
			}
			return
		}

		if !notFirst {
			notFirst = true
			events <- provider.Delim{RunID: params.RunID, Delim: "start"}
		}

		aux, main := seen.deltas(&resp)
		if aux != "" {
			auxAcc.WriteString(aux)
			events <- provider.Chunk{
				RunID:     params.RunID,
				Channel:   provider.ChannelAuxiliary,
				Text:      aux,
				Timestamp: strfmt.DateTime(time.Now()),
			}
		}
		if main != "" {
			mainAcc.WriteString(main)
			events <- provider.Chunk{
				RunID:     params.RunID,
				Channel:   provider.ChannelMain,
				Text:      main,
				Timestamp: strfmt.DateTime(time.Now()),
			}
		}

		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
			finishReason = mapFinishReason(resp.Candidates[0].FinishReason)
		}
	}

	if notFirst && ctx.Err() == nil {
		events <- provider.Delim{RunID: params.RunID, Delim: "end"}
		events <- provider.Response{
			RunID:        params.RunID,
			Content:      mainAcc.String(),
			Auxiliary:    auxAcc.String(),
			FinishReason: finishReason,
			Timestamp:    strfmt.DateTime(time.Now()),
		}
	}
}

func (p *Provider) runOnce(ctx context.Context, key string, req generateContentRequest, params *provider.CompletionParams, events chan<- provider.StreamEvent) {
	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, params.Model)

	res, err := p.post(ctx, url, key, req)
	if err != nil {
		events <- provider.Error{RunID: params.RunID, Err: p.classify(err), Timestamp: strfmt.DateTime(time.Now())}
		return
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		events <- provider.Error{RunID: params.RunID, Err: drainError(res), Timestamp: strfmt.DateTime(time.Now())}
		return
	}
	defer res.Body.Close() //nolint: errcheck

	var resp generateContentResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		events <- provider.Error{
			RunID:     params.RunID,
			Err:       provider.RefusalFault(provider.TagGoogle, fmt.Sprintf("malformed response: %v", err)),
			Timestamp: strfmt.DateTime(time.Now()),
		}
		return
	}

	if len(resp.Candidates) == 0 {
		events <- provider.Delim{RunID: params.RunID, Delim: "empty"}
		return
	}

	var seen snapshot
	aux, main := seen.deltas(&resp)
	events <- provider.Response{
		RunID:        params.RunID,
		Content:      main,
		Auxiliary:    aux,
		FinishReason: mapFinishReason(resp.Candidates[0].FinishReason),
		Timestamp:    strfmt.DateTime(time.Now()),
	}
}

// Probe makes a minimal one-token round trip. Missing credential or an
// unknown model reports unavailability rather than an error.
func (p *Provider) Probe(ctx context.Context, model string) (provider.Availability, error) {
	if _, known := knownModels[model]; !known {
		return provider.Availability{}, nil
	}

	key, ok := p.creds.Lookup(provider.TagGoogle)
	if !ok || key == "" {
		return provider.Availability{}, nil
	}

	one := int64(1)
	req := generateContentRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: probePrompt}}}},
		GenerationConfig: &generationConfig{MaxOutputTokens: &one},
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)
	res, err := p.post(ctx, url, key, req)
	if err != nil {
		return provider.Availability{}, p.classify(err)
	}
	defer res.Body.Close() //nolint: errcheck

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		fault := drainError(res)
		if provider.IsKind(fault, provider.FaultConfiguration) {
			return provider.Availability{}, nil
		}
		return provider.Availability{}, fault
	}

	return provider.Availability{Available: true, SupportsStreaming: true}, nil
}

var _ provider.Provider = (*Provider)(nil)
