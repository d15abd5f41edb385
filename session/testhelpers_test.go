package session

import (
	"sync"
	"time"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/go-openapi/strfmt"
)

func assistantMessage(content string) messages.Message {
	return messages.Message{
		ID:        uuidx.New(),
		Role:      messages.RoleAssistant,
		Content:   content,
		CreatedAt: strfmt.DateTime(time.Now()),
	}
}

// memKV is an in-memory persistence collaborator for tests.
type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}}
}

func (kv *memKV) Get(key string) (string, bool) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.data[key]
	return v, ok
}

func (kv *memKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = value
	return nil
}
