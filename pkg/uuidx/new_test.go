package uuidx

import (
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsV7(t *testing.T) {
	id := New()
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, uuid.RFC4122, id.Variant())
	assert.NotEqual(t, id, New())
}

func TestNewStringParses(t *testing.T) {
	id, err := uuid.Parse(New().String())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

// Message ids double as creation-order keys, so fresh ids must sort after
// earlier ones.
func TestNewSortsByCreationTime(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = New().String()
	}
	assert.True(t, sort.StringsAreSorted(ids))
}
