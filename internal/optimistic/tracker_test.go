// ABOUTME: Tests for optimistic edits against a real projector
// ABOUTME: Covers rollback exactness, exactly-once settlement and entity isolation

package optimistic

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/event"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/projector"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func msgEvent(id, entity string, typ event.Type, offset time.Duration, content string) event.Event {
	data, _ := json.Marshal(map[string]string{"content": content})
	return event.Event{
		ID:        id,
		Type:      typ,
		EntityID:  entity,
		Timestamp: base.Add(offset),
		Data:      data,
	}
}

func TestDo_FailedInvokeRollsBack(t *testing.T) {
	p := projector.New(nil)
	p.Apply(msgEvent("m1", "a1", event.TypeAssistantMessage, 0, "how can I help?"))
	before := p.Messages("a1")

	tr := New(p, nil)
	invokeErr := errors.New("hub unavailable")

	var during []projector.Message
	err := tr.Do(t.Context(), "a1", AppendUserMessage("hello"), func(ctx context.Context) error {
		during = p.Messages("a1")
		return invokeErr
	})

	require.ErrorIs(t, err, invokeErr)
	require.Len(t, during, 2)
	assert.Equal(t, "hello", during[1].Content)
	assert.True(t, during[1].Pending)

	after := p.Messages("a1")
	assert.Equal(t, before, after)
	assert.Zero(t, tr.Pending())
}

func TestDo_SuccessKeepsEditUntilAuthoritativeEvent(t *testing.T) {
	p := projector.New(nil)
	tr := New(p, nil)

	err := tr.Do(t.Context(), "a1", AppendUserMessage("hello"), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, tr.Pending())

	msgs := p.Messages("a1")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Pending)

	p.Apply(msgEvent("u1", "a1", event.TypeUserMessage, time.Second, "hello"))
	msgs = p.Messages("a1")
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Pending)
}

func TestRollback_PreservesOtherEntities(t *testing.T) {
	p := projector.New(nil)
	p.Apply(msgEvent("a-1", "a1", event.TypeAssistantMessage, 0, "a1 first"))
	before := p.Messages("a1")

	tr := New(p, nil)
	token := tr.Apply("a1", AppendUserMessage("hello"))

	p.Apply(msgEvent("b-1", "b1", event.TypeAssistantMessage, time.Second, "b1 unrelated"))
	p.Apply(msgEvent("b-2", "b1", event.TypeToolResult, 2*time.Second, "b1 output"))
	otherBefore := p.Messages("b1")

	require.NoError(t, tr.Rollback(token))

	assert.Equal(t, before, p.Messages("a1"))
	assert.Equal(t, otherBefore, p.Messages("b1"))
}

func TestRollback_KeepsSameEntityEventsThatLandedInBetween(t *testing.T) {
	p := projector.New(nil)
	tr := New(p, nil)

	token := tr.Apply("a1", AppendUserMessage("hello"))
	interim := msgEvent("m1", "a1", event.TypeAssistantMessage, time.Hour, "interim")
	p.Apply(interim)

	require.NoError(t, tr.Rollback(token))
	msgs := p.Messages("a1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "interim", msgs[0].Content)
	assert.False(t, p.Apply(interim), "the kept event is still known")
}

func TestSettleExactlyOnce(t *testing.T) {
	p := projector.New(nil)
	tr := New(p, nil)

	token := tr.Apply("a1", AppendUserMessage("hello"))
	require.NoError(t, tr.Commit(token))

	assert.ErrorIs(t, tr.Commit(token), ErrUnknownToken)
	assert.ErrorIs(t, tr.Rollback(token), ErrUnknownToken)
	assert.ErrorIs(t, tr.Rollback("never-issued"), ErrUnknownToken)

	token = tr.Apply("a1", AppendUserMessage("again"))
	require.NoError(t, tr.Rollback(token))
	assert.ErrorIs(t, tr.Commit(token), ErrUnknownToken)
}

func TestIndependentEditsOnOneEntity(t *testing.T) {
	tests := []struct {
		name  string
		order []int
	}{
		{"last applied first undone", []int{1, 0}},
		{"undone in applied order", []int{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := projector.New(nil)
			tr := New(p, nil)

			tokens := []string{
				tr.Apply("a1", AppendUserMessage("one")),
				tr.Apply("a1", AppendUserMessage("two")),
			}
			assert.Equal(t, 2, tr.Pending())

			require.NoError(t, tr.Rollback(tokens[tt.order[0]]))
			msgs := p.Messages("a1")
			require.Len(t, msgs, 1)
			assert.Equal(t, []string{"one", "two"}[tt.order[1]], msgs[0].Content)

			require.NoError(t, tr.Rollback(tokens[tt.order[1]]))
			assert.Empty(t, p.Messages("a1"))
			assert.Zero(t, tr.Pending())
		})
	}
}

func TestRollback_AfterSiblingCommitted(t *testing.T) {
	p := projector.New(nil)
	tr := New(p, nil)

	first := tr.Apply("a1", AppendUserMessage("one"))
	second := tr.Apply("a1", AppendUserMessage("two"))
	require.NoError(t, tr.Commit(second))

	p.Apply(msgEvent("u1", "a1", event.TypeUserMessage, time.Hour, "two"))
	p.Apply(msgEvent("m1", "a1", event.TypeAssistantMessage, time.Hour+time.Second, "got two"))
	require.Len(t, p.Messages("a1"), 3)

	require.NoError(t, tr.Rollback(first))

	msgs := p.Messages("a1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.False(t, msgs[0].Pending)
	assert.Equal(t, "got two", msgs[1].Content)
	assert.False(t, p.Apply(msgEvent("m1", "a1", event.TypeAssistantMessage, time.Hour+time.Second, "got two")))
}

func TestRollback_SupersededEditRemovesNothing(t *testing.T) {
	p := projector.New(nil)
	tr := New(p, nil)

	token := tr.Apply("a1", AppendUserMessage("hello"))
	p.Apply(msgEvent("u1", "a1", event.TypeUserMessage, time.Hour, "hello"))

	require.NoError(t, tr.Rollback(token))
	msgs := p.Messages("a1")
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Pending)
}
