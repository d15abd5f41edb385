package session

import (
	"fmt"
	"time"

	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// KV is the persistence collaborator. The store serializes itself to a
// single value; the host decides where that value lives.
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

const collectionKey = "parley.sessions"

// Save writes the whole collection, active pointer included, under a
// single key.
func (st *Store) Save(kv KV) error {
	st.mu.RLock()
	col := Collection{
		Sessions: make([]Session, len(st.sessions)),
		ActiveID: st.activeID,
	}
	for i := range st.sessions {
		col.Sessions[i] = st.sessions[i].clone()
	}
	st.mu.RUnlock()

	raw, err := json.Marshal(col)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	return kv.Set(collectionKey, string(raw))
}

// Load replaces the store's contents with whatever the KV holds. A
// missing key leaves the store as-is and reports false. Records written
// by older versions may lack newer fields; those get defaults instead of
// failing the load.
func (st *Store) Load(kv KV) (bool, error) {
	raw, ok := kv.Get(collectionKey)
	if !ok || raw == "" {
		return false, nil
	}
	if !gjson.Valid(raw) {
		return false, fmt.Errorf("decode sessions: invalid stored record")
	}

	doc := gjson.Parse(raw)
	// The earliest records stored a bare session array with no active
	// pointer wrapper.
	list := doc.Get("sessions")
	if !list.Exists() && doc.IsArray() {
		list = doc
	}

	var sessions []Session
	var loadErr error
	list.ForEach(func(_, item gjson.Result) bool {
		var s Session
		if err := json.Unmarshal([]byte(item.Raw), &s); err != nil {
			loadErr = fmt.Errorf("decode session: %w", err)
			return false
		}
		normalize(&s)
		sessions = append(sessions, s)
		return true
	})
	if loadErr != nil {
		return false, loadErr
	}

	activeID := uuid.Nil
	if v := doc.Get("active_id"); v.Exists() {
		if id, err := uuid.Parse(v.String()); err == nil {
			activeID = id
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions = sessions
	st.activeID = activeID
	if st.indexLocked(st.activeID) < 0 && len(st.sessions) > 0 {
		st.activeID = st.sessions[0].ID
	}
	return true, nil
}

// normalize fills in the fields legacy records predate.
func normalize(s *Session) {
	if s.ID == uuid.Nil {
		s.ID = uuidx.New()
	}
	if s.Title == "" {
		s.Title = DefaultTitle
	}
	now := strfmt.DateTime(time.Now())
	if time.Time(s.CreatedAt).IsZero() {
		s.CreatedAt = now
	}
	if time.Time(s.UpdatedAt).IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	for i := range s.Messages {
		m := &s.Messages[i]
		if m.ID == uuid.Nil {
			m.ID = uuidx.New()
		}
		if time.Time(m.CreatedAt).IsZero() {
			m.CreatedAt = s.CreatedAt
		}
		// A record saved mid-stream must not resurrect as still streaming.
		m.Streaming = false
	}
}
