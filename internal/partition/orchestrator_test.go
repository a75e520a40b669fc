package partition

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odcproject/odc/internal/devicechannel"
	"github.com/odcproject/odc/internal/engine"
	"github.com/odcproject/odc/internal/fabric"
	"github.com/odcproject/odc/internal/plugin"
	"github.com/odcproject/odc/internal/requestapi"
	"github.com/odcproject/odc/internal/submit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePluginScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func sixTaskTopology() string {
	return `<topology>
		<group name="G" n="1">
			<collection name="Coll">
				<requirement zone="" ncores="0" agentGroup=""/>
				<task name="d0"/>
				<task name="d1"/>
				<task name="d2"/>
				<task name="d3"/>
				<task name="d4"/>
				<task name="d5"/>
			</collection>
		</group>
	</topology>`
}

func newChannelFactory() func() devicechannel.Channel {
	return func() devicechannel.Channel {
		return devicechannel.NewInMemoryChannel(engine.TransitionTargets())
	}
}

func commonParams(partitionID string) requestapi.CommonParams {
	return requestapi.CommonParams{PartitionID: partitionID, RunNr: 1, Timeout: 5 * time.Second}
}

// TestHappyPathRunConfigureStart reproduces scenario S1: Run with plugin
// "same" and a 6-task topology, then Configure+Start should reach Running
// across all 6 devices with exactly one host.
func TestHappyPathRunConfigureStart(t *testing.T) {
	script := writePluginScript(t, "echo '<submit><rms>localhost</rms><agents>1</agents><slots>36</slots></submit>'\n")
	registry := plugin.NewRegistry(plugin.NewRunner())
	require.NoError(t, registry.Register("same", script))

	adapter := fabric.NewInMemoryAdapter()
	o := NewOrchestrator("p1", adapter, newChannelFactory(), registry,
		map[string]submit.Zone{}, map[string]submit.NMinInfo{},
		5*time.Second, time.Second, testLogger())

	ctx := context.Background()
	p := commonParams("p1")

	runReply := o.ExecRun(ctx, p, "", "same", map[string]any{}, sixTaskTopology(), true)
	require.Equal(t, requestapi.StatusOK, runReply.Status, runReply.Msg)
	require.Len(t, runReply.Hosts, 1)

	cfgReply := o.ExecConfigure(ctx, p, "*", true)
	require.Equal(t, requestapi.StatusOK, cfgReply.Status, cfgReply.Msg)

	startReply := o.ExecStart(ctx, p, "*", true)
	require.Equal(t, requestapi.StatusOK, startReply.Status, startReply.Msg)
	assert.Equal(t, "Running", startReply.AggregatedState)
	assert.Len(t, startReply.Detailed, 6)
	for _, d := range startReply.Detailed {
		assert.Equal(t, "Running", d.State)
	}
}

func TestInvalidTransitionLeavesStateUntouched(t *testing.T) {
	adapter := fabric.NewInMemoryAdapter()
	o := NewOrchestrator("p1", adapter, newChannelFactory(), plugin.NewRegistry(plugin.NewRunner()),
		nil, nil, 5*time.Second, time.Second, testLogger())

	ctx := context.Background()
	p := commonParams("p1")

	reply := o.ExecActivate(ctx, p, sixTaskTopology(), false)
	require.Equal(t, requestapi.StatusError, reply.Status)
	assert.Equal(t, StateNone, o.State())
}

// TestExpendableLossThenStop reproduces scenario S3: once Active, marking
// a task expendable and simulating its exit, a subsequent Stop should
// still report ok with the task ignored.
func TestExpendableLossThenStop(t *testing.T) {
	script := writePluginScript(t, "echo '<submit><rms>localhost</rms><agents>1</agents><slots>36</slots></submit>'\n")
	registry := plugin.NewRegistry(plugin.NewRunner())
	require.NoError(t, registry.Register("same", script))

	adapter := fabric.NewInMemoryAdapter()
	o := NewOrchestrator("p1", adapter, newChannelFactory(), registry,
		map[string]submit.Zone{}, map[string]submit.NMinInfo{},
		5*time.Second, time.Second, testLogger())

	ctx := context.Background()
	p := commonParams("p1")
	require.Equal(t, requestapi.StatusOK, o.ExecRun(ctx, p, "", "same", map[string]any{}, sixTaskTopology(), false).Status)
	require.Equal(t, requestapi.StatusOK, o.ExecConfigure(ctx, p, "*", false).Status)
	require.Equal(t, requestapi.StatusOK, o.ExecStart(ctx, p, "*", false).Status)

	o.mu.Lock()
	o.session.Engine.MarkExpendable("d3")
	ch := o.session.Channel.(*devicechannel.InMemoryChannel)
	o.mu.Unlock()

	ch.EmitExit("d3")
	// Fabric-level task-done notification drives the orchestrator's own
	// ignore propagation independent of the device channel.
	o.handleTaskDone(fabric.TaskDoneEvent{TaskID: "d3", ExitCode: 0})

	stopReply := o.ExecStop(ctx, p, "*", true)
	require.Equal(t, requestapi.StatusOK, stopReply.Status, stopReply.Msg)
	assert.Equal(t, "Ready", stopReply.AggregatedState)

	d3, ok := o.session.Engine.Device("d3")
	require.True(t, ok)
	assert.True(t, d3.Ignored)
}

// TestSubmitRecoveryFailsNMin reproduces scenario S4: a collection needs
// nMin=2 on its agent group but only a fraction of requested agents ever
// become active, so Submit returns RequestTimeout and the Session stays
// Submitted for another attempt.
func TestSubmitRecoveryFailsNMin(t *testing.T) {
	script := writePluginScript(t, `echo '<submit><rms>slurm</rms><zone>online</zone><agents>4</agents><slots>1</slots></submit>'`+"\n")
	registry := plugin.NewRegistry(plugin.NewRunner())
	require.NoError(t, registry.Register("epn", script))

	adapter := fabric.NewInMemoryAdapter()
	adapter.PlacementDelay = time.Hour
	o := NewOrchestrator("p1", adapter, newChannelFactory(), registry,
		map[string]submit.Zone{"online": {Name: "online"}},
		map[string]submit.NMinInfo{"Processors": {N: 4, NMin: 2, Zone: "online"}},
		5*time.Second, 30*time.Millisecond, testLogger())

	ctx := context.Background()
	p := commonParams("p1")
	require.Equal(t, requestapi.StatusOK, o.ExecInitialize(ctx, p, "").Status)

	reply := o.ExecSubmit(ctx, p, "epn", map[string]any{"zone": "online", "n": 4})
	assert.Equal(t, requestapi.StatusError, reply.Status)
	assert.Equal(t, StateSubmitted, o.State())
}
