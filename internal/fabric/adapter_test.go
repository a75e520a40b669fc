package fabric

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryAdapterSubmitAndActiveSlots(t *testing.T) {
	a := NewInMemoryAdapter()
	ctx := context.Background()

	sid, err := a.CreateSession(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Submit(ctx, sid, SubmitRequest{AgentGroup: "online", Zone: "online", NumAgents: 2, NumSlots: 4}))

	active, err := a.WaitForActiveSlots(ctx, sid, 8, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 8, active)

	info, err := a.AgentInfo(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, info, 2)
}

func TestInMemoryAdapterWaitForActiveSlotsDeadline(t *testing.T) {
	a := &InMemoryAdapter{sessions: map[string]*simSession{}, PlacementDelay: time.Hour}
	ctx := context.Background()
	sid, err := a.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Submit(ctx, sid, SubmitRequest{NumAgents: 1, NumSlots: 1}))

	_, err = a.WaitForActiveSlots(ctx, sid, 1, time.Now().Add(50*time.Millisecond))
	assert.Error(t, err)
}

func TestInMemoryAdapterTaskDoneSubscription(t *testing.T) {
	a := NewInMemoryAdapter()
	ctx := context.Background()
	sid, _ := a.CreateSession(ctx)

	received := make(chan TaskDoneEvent, 1)
	sub, err := a.SubscribeTaskDone(ctx, sid, func(ev TaskDoneEvent) { received <- ev })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	a.EmitTaskDone(sid, TaskDoneEvent{TaskID: "t1", ExitCode: 1})
	select {
	case ev := <-received:
		assert.Equal(t, "t1", ev.TaskID)
	case <-time.After(time.Second):
		t.Fatal("did not receive task-done event")
	}
}

func TestInMemoryAdapterAttachUnknownSession(t *testing.T) {
	a := NewInMemoryAdapter()
	err := a.AttachSession(context.Background(), "nope")
	assert.Error(t, err)
}
