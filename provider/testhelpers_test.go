package provider

import "context"

type fakeProvider struct {
	tag    string
	events []StreamEvent
}

func (f *fakeProvider) Tag() string { return f.tag }

func (f *fakeProvider) ChatCompletion(ctx context.Context, params CompletionParams) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Probe(ctx context.Context, model string) (Availability, error) {
	return Availability{Available: true, SupportsStreaming: true}, nil
}
