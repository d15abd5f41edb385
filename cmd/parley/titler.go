package main

import (
	"context"
	"fmt"
	"time"

	"github.com/casualjim/parley"
	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/casualjim/parley/provider"
	"github.com/casualjim/parley/session"
)

const titleInstructions = "Summarize the conversation in at most five words. " +
	"Reply with the title only, no quotes, no punctuation at the end."

// newTitler builds the background title generator: a short, low-creativity
// completion against the preferred provider.
func newTitler(prefs parley.Preferences) session.Titler {
	return session.TitlerFunc(func(ctx context.Context, userText, assistantText string) (string, error) {
		prov, ok := provider.Get(prefs.Provider)
		if !ok {
			return "", fmt.Errorf("no adapter for %q", prefs.Provider)
		}

		tctx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()

		exchange := fmt.Sprintf("User: %s\n\nAssistant: %s", userText, assistantText)
		ch, err := prov.ChatCompletion(tctx, provider.CompletionParams{
			RunID:        uuidx.New(),
			Instructions: titleInstructions,
			History:      []messages.Message{messages.User(exchange)},
			Model:        prefs.Model,
			Params: provider.GenerationParams{
				Temperature:     0.2,
				MaxOutputTokens: 24,
			},
		})
		if err != nil {
			return "", err
		}

		for ev := range ch {
			switch event := ev.(type) {
			case provider.Response:
				return event.Content, nil
			case provider.Error:
				return "", event.Err
			}
		}
		return "", fmt.Errorf("stream ended without a title")
	})
}
