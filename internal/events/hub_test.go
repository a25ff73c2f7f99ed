package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(WorkerStarted, map[string]any{"pid": 42})

	select {
	case ev := <-ch:
		assert.Equal(t, int64(1), ev.ID)
		assert.Equal(t, WorkerStarted, ev.Type)
		assert.JSONEq(t, `{"pid":42}`, string(ev.Data))
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestNilDataIsEmptyObject(t *testing.T) {
	h := NewHub(1)
	h.Publish(FoldersChanged, nil)
	evs := h.SnapshotSince(0)
	require.Len(t, evs, 1)
	assert.Equal(t, "{}", string(evs[0].Data))
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(WorkerStderr, map[string]int{"n": i})
	}

	evs := h.SnapshotSince(0)
	require.Len(t, evs, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{evs[0].ID, evs[1].ID, evs[2].ID})

	since := h.SnapshotSince(4)
	require.Len(t, since, 1)
	assert.Equal(t, int64(5), since[0].ID)
	assert.Equal(t, int64(5), h.LastID())
}

func TestCancelClosesChannel(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)

	// Double cancel and publish after cancel are safe.
	cancel()
	h.Publish(WorkerExited, nil)
}

func TestEventJSONEmbedsData(t *testing.T) {
	h := NewHub(1)
	h.Publish(WorkerExited, map[string]int{"exit_code": 1})
	b, err := json.Marshal(h.SnapshotSince(0)[0])
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, map[string]any{"exit_code": float64(1)}, decoded["data"])
}
