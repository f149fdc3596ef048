package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_AppendAssignsSequentialIDs(t *testing.T) {
	b := NewBuffer("run-1")
	e1 := b.Append("data_loading", nil)
	e2 := b.Append("feature_compute", nil)
	assert.Equal(t, int64(1), e1.ID)
	assert.Equal(t, int64(2), e2.ID)
}

func TestBuffer_SnapshotReturnsOnlyNewerEvents(t *testing.T) {
	b := NewBuffer("run-1")
	b.Append("a", nil)
	second := b.Append("b", nil)
	b.Append("c", nil)

	out, etag := b.Snapshot(second.ID)
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].Type)
	assert.Equal(t, "run-1:3", etag)
}

func TestBuffer_SnapshotETagStableWhenNothingNew(t *testing.T) {
	b := NewBuffer("run-1")
	last := b.Append("a", nil)
	_, etag1 := b.Snapshot(last.ID)
	_, etag2 := b.Snapshot(last.ID)
	assert.Equal(t, etag1, etag2)
}

func TestBuffer_MatchesETagForConditionalGet(t *testing.T) {
	b := NewBuffer("run-1")
	b.Append("a", nil)
	assert.True(t, b.MatchesETag(b.ETag()))
	assert.False(t, b.MatchesETag("run-1:999"))
}

func TestBuffer_StreamReplaysBacklogThenClosesOnTerminal(t *testing.T) {
	b := NewBuffer("run-1")
	b.Append("data_loading", nil)
	b.Append("completed", nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var received []StreamItem
	for item := range b.Stream(ctx, 0, 15*time.Second) {
		received = append(received, item)
	}
	require.Len(t, received, 2)
	assert.Equal(t, "data_loading", received[0].Event.Type)
	assert.Equal(t, "completed", received[1].Event.Type)
}

func TestBuffer_StreamEmitsHeartbeatOnIdle(t *testing.T) {
	b := NewBuffer("run-1")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var sawHeartbeat bool
	for item := range b.Stream(ctx, 0, 20*time.Millisecond) {
		if item.Heartbeat {
			sawHeartbeat = true
			break
		}
	}
	assert.True(t, sawHeartbeat)
}

func TestBuffer_StreamWakesOnNewAppend(t *testing.T) {
	b := NewBuffer("run-1")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stream := b.Stream(ctx, 0, 5*time.Second)
	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Append("risk_sizing", nil)
		time.Sleep(10 * time.Millisecond)
		b.Append("completed", nil)
	}()

	var types []string
	for item := range stream {
		if item.Event != nil {
			types = append(types, item.Event.Type)
		}
	}
	assert.Equal(t, []string{"risk_sizing", "completed"}, types)
}
