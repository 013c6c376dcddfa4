package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	msg, err := NewMessage(TypePhase, map[string]string{"phase": "session-selected"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, TypePhase, got.Type)
		var body map[string]string
		require.NoError(t, json.Unmarshal(got.Body, &body))
		assert.Equal(t, "session-selected", body["phase"])
	case <-time.After(time.Second):
		t.Fatal("no message consumed")
	}
}

func TestInMemoryTryPublishFull(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.TryPublish(Message{Type: TypePhase}))
	assert.ErrorIs(t, q.TryPublish(Message{Type: TypePhase}), ErrFull)
}

func TestConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewInMemory(1).Consume(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
