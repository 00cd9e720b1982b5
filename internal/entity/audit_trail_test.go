package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, version int, e Event) EventStoreRecord {
	t.Helper()
	payload, err := json.Marshal(e)
	require.NoError(t, err)
	return EventStoreRecord{
		StreamID:   "li-1",
		StreamType: StreamLineItem,
		Version:    version,
		EventType:  e.EventType(),
		Payload:    payload,
		CreatedAt:  t0.Add(time.Duration(version) * time.Minute),
	}
}

func TestAuditTrail_Rehydrate(t *testing.T) {
	created := newItem(t)
	edited := created
	require.NoError(t, edited.Edit(water, 1, false, t0.Add(time.Minute)))
	deleted := edited
	require.NoError(t, deleted.Delete(t0.Add(2*time.Minute)))

	records := []EventStoreRecord{
		record(t, 1, LineItemCreated{Item: created}),
		record(t, 2, LineItemEdited{Before: created, After: edited}),
		record(t, 3, LineItemDeleted{Item: deleted}),
	}

	trail := NewAuditTrail("li-1")
	require.NoError(t, trail.Rehydrate(records))

	require.Len(t, trail.Entries, 3)
	assert.Equal(t, "LineItemEdited", trail.Entries[1].EventType)
	require.NotNil(t, trail.Current)
	assert.True(t, trail.Current.IsDeleted())
	assert.Equal(t, "p-espresso", trail.Current.OriginalProductID)
}

func TestAuditTrail_UnknownEvent(t *testing.T) {
	trail := NewAuditTrail("li-1")
	err := trail.Rehydrate([]EventStoreRecord{{EventType: "Bogus", Payload: []byte(`{}`)}})
	assert.Error(t, err)
}
