package google

import (
	"strings"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/provider"
)

// Wire types for the generateContent surface. Only the fields the engine
// uses are declared; unknown response fields are ignored by the decoder.

type generateContentRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
	// Thought marks reasoning-trace parts on thinking-capable models.
	Thought bool `json:"thought,omitempty"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int64   `json:"maxOutputTokens,omitempty"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
	Error      *apiError   `json:"error,omitempty"`
}

type candidate struct {
	Content      *content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// buildRequest converts engine history to the Gemini shape. The system
// prompt travels as systemInstruction; role mapping is user -> user,
// assistant -> model. Assistant placeholders with no content yet are
// skipped.
func buildRequest(params *provider.CompletionParams) generateContentRequest {
	req := generateContentRequest{}

	if params.Instructions != "" {
		req.SystemInstruction = &content{
			Parts: []part{{Text: params.Instructions}},
		}
	}

	for _, msg := range params.History {
		switch msg.Role {
		case messages.RoleUser:
			req.Contents = append(req.Contents, content{
				Role:  "user",
				Parts: []part{{Text: msg.Content}},
			})
		case messages.RoleAssistant:
			if msg.Content == "" {
				continue
			}
			req.Contents = append(req.Contents, content{
				Role:  "model",
				Parts: []part{{Text: msg.Content}},
			})
		}
	}

	cfg := &generationConfig{}
	if params.Params.Temperature > 0 {
		t := params.Params.Temperature
		cfg.Temperature = &t
	}
	if params.Params.MaxOutputTokens > 0 {
		n := params.Params.MaxOutputTokens
		cfg.MaxOutputTokens = &n
	}
	if cfg.Temperature != nil || cfg.MaxOutputTokens != nil {
		req.GenerationConfig = cfg
	}

	return req
}

// snapshot holds the cumulative text seen so far on each channel. Gemini
// SSE events carry full response snapshots; deltas are computed against
// these lengths.
type snapshot struct {
	mainLen int
	auxLen  int
}

// deltas extracts what is new in this event relative to the snapshot and
// advances it. Returned in (auxiliary, main) order because thinking models
// emit the trace ahead of the answer.
func (s *snapshot) deltas(resp *generateContentResponse) (aux, main string) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ""
	}

	var mainParts, auxParts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text == "" {
			continue
		}
		if p.Thought {
			auxParts = append(auxParts, p.Text)
		} else {
			mainParts = append(mainParts, p.Text)
		}
	}

	fullMain := strings.Join(mainParts, "\n")
	if len(fullMain) > s.mainLen {
		main = fullMain[s.mainLen:]
		s.mainLen = len(fullMain)
	}

	fullAux := strings.Join(auxParts, "\n")
	if len(fullAux) > s.auxLen {
		aux = fullAux[s.auxLen:]
		s.auxLen = len(fullAux)
	}

	return aux, main
}

func mapFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "PROHIBITED_CONTENT", "BLOCKLIST":
		return "content_filter"
	default:
		return strings.ToLower(reason)
	}
}
