package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odcproject/odc/internal/devicechannel"
)

func newTestEngine(taskIDs ...string) (*Engine, *devicechannel.InMemoryChannel) {
	ch := devicechannel.NewInMemoryChannel(TransitionTargets())
	devices := make([]DeviceStatus, 0, len(taskIDs))
	for _, id := range taskIDs {
		ch.SetState(id, Idle)
		devices = append(devices, DeviceStatus{TaskID: id, State: Idle, LastState: Idle})
	}
	return New(ch, devices, nil), ch
}

func TestChangeStateAllSucceed(t *testing.T) {
	e, _ := newTestEngine("t1", "t2", "t3")
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	outcome, err := e.ChangeState(ctx, TransInitDevice, []string{"t1", "t2", "t3"}, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, outcome.FailedTasks)

	for _, id := range []string{"t1", "t2", "t3"} {
		d, ok := e.Device(id)
		require.True(t, ok)
		assert.Equal(t, InitializingDevice, d.State)
	}
}

func TestChangeStateAlreadyAtTargetSkipped(t *testing.T) {
	e, ch := newTestEngine("t1")
	defer e.Close()
	ch.SetState("t1", InitializingDevice)
	e.ReplaceDevices([]DeviceStatus{{TaskID: "t1", State: InitializingDevice, LastState: Idle}})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	outcome, err := e.ChangeState(ctx, TransInitDevice, []string{"t1"}, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, outcome.FailedTasks)
}

func TestChangeStateErrorDeviceFailsOperation(t *testing.T) {
	e, ch := newTestEngine("t1", "t2")
	defer e.Close()
	ch.Arm("t1", Error)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	outcome, err := e.ChangeState(ctx, TransInitDevice, []string{"t1", "t2"}, 500*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, []string{"t1"}, outcome.FailedTasks)
}

func TestChangeStateExpendableErrorAbsorbed(t *testing.T) {
	e, ch := newTestEngine("t1", "t2")
	defer e.Close()
	e.MarkExpendable("t1")
	ch.Arm("t1", Error)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	outcome, err := e.ChangeState(ctx, TransInitDevice, []string{"t1", "t2"}, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, outcome.FailedTasks)
}

func TestChangeStateTimeout(t *testing.T) {
	e, ch := newTestEngine("t1")
	defer e.Close()
	// InMemoryChannel answers every ChangeState synchronously, so to
	// exercise the timeout path t1 is armed to report Bound, which is
	// neither terminal nor the InitDevice target; t1 therefore stays in the
	// operation's remaining set until the timer fires.
	ch.Arm("t1", Bound)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	outcome, err := e.ChangeState(ctx, TransInitDevice, []string{"t1"}, 30*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, []string{"t1"}, outcome.FailedTasks)
	// The operation's own timer (30ms) fires well before ctx's (500ms), so
	// this is the per-operation timeout path, not ctx cancellation.
	assert.False(t, outcome.TimedOut)
}

func TestIgnoreRemovesFromInFlightOperation(t *testing.T) {
	e, ch := newTestEngine("t1", "t2")
	defer e.Close()
	ch.Arm("t1", Bound) // t1 never reaches target, so it stays in-flight

	done := make(chan struct{})
	var outcome Outcome
	var err error
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		outcome, err = e.ChangeState(ctx, TransInitDevice, []string{"t1", "t2"}, 500*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	e.Ignore("t1")

	<-done
	require.NoError(t, err)
	assert.Empty(t, outcome.FailedTasks)
}

func TestWaitForState(t *testing.T) {
	e, ch := newTestEngine("t1")
	defer e.Close()

	done := make(chan struct{})
	var outcome Outcome
	var err error
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		outcome, err = e.WaitForState(ctx, "", Running, []string{"t1"}, 500*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	ch.ChangeState(context.Background(), "t1", TransRun)

	<-done
	require.NoError(t, err)
	assert.Empty(t, outcome.FailedTasks)
}

func TestSetAndGetProperties(t *testing.T) {
	e, _ := newTestEngine("t1", "t2")
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	outcome, err := e.SetProperties(ctx, []string{"t1", "t2"}, map[string]string{"k": "v"}, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, outcome.FailedTasks)

	results, outcome, err := e.GetProperties(ctx, []string{"t1", "t2"}, []string{"k"}, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, outcome.FailedTasks)
	assert.Equal(t, "v", results["t1"]["k"])
	assert.Equal(t, "v", results["t2"]["k"])
}

func TestAggregatedState(t *testing.T) {
	assert.Equal(t, Undefined, AggregatedState(nil))
	assert.Equal(t, Running, AggregatedState([]string{Running, Running}))
	assert.Equal(t, Mixed, AggregatedState([]string{Running, Idle}))
}
