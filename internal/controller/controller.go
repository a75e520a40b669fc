// Package controller owns the partition table (spec.md §4.9): one
// Orchestrator per live partitionID, lazily created on Initialize/Run,
// plus restore-on-startup and Stats. Grounded on the teacher's
// DatabaseManager/Server construction style — a struct built once at
// startup holding its dependencies, no package-level state.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/odcproject/odc/internal/config"
	"github.com/odcproject/odc/internal/devicechannel"
	"github.com/odcproject/odc/internal/engine"
	"github.com/odcproject/odc/internal/fabric"
	"github.com/odcproject/odc/internal/odcerr"
	"github.com/odcproject/odc/internal/partition"
	"github.com/odcproject/odc/internal/persistence"
	"github.com/odcproject/odc/internal/plugin"
	"github.com/odcproject/odc/internal/requestapi"
	"github.com/odcproject/odc/internal/submit"
)

// Controller dispatches requests to the Orchestrator for their
// partitionID, creating it lazily, and keeps the restore file and history
// log current.
type Controller struct {
	mu     sync.Mutex
	byID   map[string]*partition.Orchestrator
	logger *slog.Logger

	cfg     *config.Config
	adapter fabric.Adapter
	plugins *plugin.Registry

	zones    map[string]submit.Zone
	nMinInfo map[string]submit.NMinInfo

	restore RestoreStore
	history HistoryLog
	stats   *Stats
}

// RestoreStore and HistoryLog are narrowed views of persistence's store
// interfaces so the Controller doesn't depend on which backend is wired.
type RestoreStore interface {
	Load() ([]persistence.RestoreEntry, error)
	Save(entries []persistence.RestoreEntry) error
}

type HistoryLog interface {
	Append(partitionID, sessionID, event string) error
}

// New builds a Controller. adapter and plugins are shared across every
// partition; restore/history may be nil, in which case restore-on-startup
// and history logging are both skipped.
func New(cfg *config.Config, adapter fabric.Adapter, plugins *plugin.Registry, restore RestoreStore, history HistoryLog, logger *slog.Logger) *Controller {
	zones := make(map[string]submit.Zone, len(cfg.Zones))
	for name, z := range cfg.Zones {
		groups := make([]submit.ZoneGroup, 0, len(z.Groups))
		for _, g := range z.Groups {
			groups = append(groups, submit.ZoneGroup{Count: g.Count, NCores: g.NCores, AgentGroupName: g.AgentGroupName})
		}
		zones[name] = submit.Zone{Name: z.Name, ConfigFile: z.ConfigFile, EnvFile: z.EnvFile, Groups: groups}
	}
	nMinInfo := make(map[string]submit.NMinInfo, len(cfg.NMin))
	for name, r := range cfg.NMin {
		nMinInfo[name] = submit.NMinInfo{N: r.N, NMin: r.NMin, NCores: r.NCores, Zone: r.Zone}
	}

	return &Controller{
		byID:     map[string]*partition.Orchestrator{},
		logger:   logger,
		cfg:      cfg,
		adapter:  adapter,
		plugins:  plugins,
		zones:    zones,
		nMinInfo: nMinInfo,
		restore:  restore,
		history:  history,
		stats:    NewStats(),
	}
}

// Stats exposes the running counters for the status surface.
func (c *Controller) Stats() *Stats {
	return c.stats
}

func (c *Controller) newChannel() devicechannel.Channel {
	return devicechannel.NewInMemoryChannel(engine.TransitionTargets())
}

// orchestratorFor returns the Orchestrator for partitionID, creating one if
// this is the first request seen for it.
func (c *Controller) orchestratorFor(partitionID string) *partition.Orchestrator {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.byID[partitionID]
	if !ok {
		o = partition.NewOrchestrator(partitionID, c.adapter, c.newChannel, c.plugins,
			c.zones, c.nMinInfo, c.cfg.DefaultTimeout, c.cfg.AgentWaitTimeout,
			slog.New(c.logger.Handler()).With("partition", partitionID))
		c.byID[partitionID] = o
	}
	return o
}

// Initialize dispatches to the partition's Orchestrator, creating it if
// needed, and persists the resulting restore entry on success.
func (c *Controller) Initialize(ctx context.Context, p requestapi.CommonParams, adoptSessionID string) requestapi.Reply {
	c.stats.IncRequests()
	o := c.orchestratorFor(p.PartitionID)
	reply := o.ExecInitialize(ctx, p, adoptSessionID)
	c.afterRequest(p, reply, "Initialize")
	return reply
}

// Run dispatches the fused Initialize+Submit+Activate request.
func (c *Controller) Run(ctx context.Context, p requestapi.CommonParams, adoptSessionID, pluginName string, resources any, topoContent string, detailed bool) requestapi.Reply {
	c.stats.IncRequests()
	o := c.orchestratorFor(p.PartitionID)
	reply := o.ExecRun(ctx, p, adoptSessionID, pluginName, resources, topoContent, detailed)
	c.afterRequest(p, reply, "Run")
	return reply
}

// Submit dispatches to the partition's Orchestrator.
func (c *Controller) Submit(ctx context.Context, p requestapi.CommonParams, pluginName string, resources any) requestapi.Reply {
	c.stats.IncRequests()
	o := c.orchestratorFor(p.PartitionID)
	reply := o.ExecSubmit(ctx, p, pluginName, resources)
	if reply.Status != requestapi.StatusOK {
		c.stats.IncTimeouts()
	}
	return reply
}

// Activate dispatches to the partition's Orchestrator.
func (c *Controller) Activate(ctx context.Context, p requestapi.CommonParams, topoContent string, detailed bool) requestapi.Reply {
	c.stats.IncRequests()
	return c.orchestratorFor(p.PartitionID).ExecActivate(ctx, p, topoContent, detailed)
}

// Update dispatches to the partition's Orchestrator.
func (c *Controller) Update(ctx context.Context, p requestapi.CommonParams, topoContent string, detailed bool) requestapi.Reply {
	c.stats.IncRequests()
	return c.orchestratorFor(p.PartitionID).ExecUpdate(ctx, p, topoContent, detailed)
}

// Configure, Start, Stop, Reset, Terminate, GetState, SetProperties all
// require a live partition; requests for an unknown partitionID still
// create an Orchestrator (which will reply RequestNotSupported from
// StateNone) rather than being special-cased here.

func (c *Controller) Configure(ctx context.Context, p requestapi.CommonParams, pathSelector string, detailed bool) requestapi.Reply {
	c.stats.IncRequests()
	return c.orchestratorFor(p.PartitionID).ExecConfigure(ctx, p, pathSelector, detailed)
}

func (c *Controller) Start(ctx context.Context, p requestapi.CommonParams, pathSelector string, detailed bool) requestapi.Reply {
	c.stats.IncRequests()
	return c.orchestratorFor(p.PartitionID).ExecStart(ctx, p, pathSelector, detailed)
}

func (c *Controller) Stop(ctx context.Context, p requestapi.CommonParams, pathSelector string, detailed bool) requestapi.Reply {
	c.stats.IncRequests()
	return c.orchestratorFor(p.PartitionID).ExecStop(ctx, p, pathSelector, detailed)
}

func (c *Controller) Reset(ctx context.Context, p requestapi.CommonParams, pathSelector string, detailed bool) requestapi.Reply {
	c.stats.IncRequests()
	return c.orchestratorFor(p.PartitionID).ExecReset(ctx, p, pathSelector, detailed)
}

func (c *Controller) Terminate(ctx context.Context, p requestapi.CommonParams, pathSelector string, detailed bool) requestapi.Reply {
	c.stats.IncRequests()
	return c.orchestratorFor(p.PartitionID).ExecTerminate(ctx, p, pathSelector, detailed)
}

func (c *Controller) GetState(ctx context.Context, p requestapi.CommonParams, pathSelector string, detailed bool) requestapi.Reply {
	c.stats.IncRequests()
	return c.orchestratorFor(p.PartitionID).ExecGetState(ctx, p, pathSelector, detailed)
}

func (c *Controller) SetProperties(ctx context.Context, p requestapi.CommonParams, pathSelector string, props map[string]string) requestapi.Reply {
	c.stats.IncRequests()
	return c.orchestratorFor(p.PartitionID).ExecSetProperties(ctx, p, pathSelector, props)
}

// Shutdown tears down a partition's Session and evicts it from the
// partition table entirely so a later Initialize starts clean.
func (c *Controller) Shutdown(ctx context.Context, p requestapi.CommonParams) requestapi.Reply {
	c.stats.IncRequests()
	c.mu.Lock()
	o, ok := c.byID[p.PartitionID]
	c.mu.Unlock()
	if !ok {
		r := requestapi.NewReply(p, "", requestapi.NewTimer())
		return requestapi.Fail(r, odcerr.Newf(odcerr.RequestNotSupported, "Shutdown not valid: partition %q has no session", p.PartitionID))
	}
	reply := o.ExecShutdown(ctx, p)
	c.mu.Lock()
	delete(c.byID, p.PartitionID)
	c.mu.Unlock()
	c.saveRestoreEntries()
	if c.history != nil {
		_ = c.history.Append(p.PartitionID, reply.SessionID, "Shutdown")
	}
	return reply
}

// Status reports every partition's Session lifecycle state (none,
// Initialized, Submitted or Active); it does not report the devices'
// aggregated state. The partition table lock is held only to copy the
// table; each state is then read through Orchestrator.State, which waits
// for that partition's in-flight request, if any, to finish.
func (c *Controller) Status(ctx context.Context) map[string]string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.byID))
	orchestrators := make([]*partition.Orchestrator, 0, len(c.byID))
	for id, o := range c.byID {
		ids = append(ids, id)
		orchestrators = append(orchestrators, o)
	}
	c.mu.Unlock()

	out := make(map[string]string, len(ids))
	for i, id := range ids {
		out[id] = string(orchestrators[i].State())
	}
	return out
}

func (c *Controller) afterRequest(p requestapi.CommonParams, reply requestapi.Reply, event string) {
	if reply.Status == requestapi.StatusOK {
		c.saveRestoreEntries()
		if c.history != nil {
			_ = c.history.Append(p.PartitionID, reply.SessionID, event)
		}
	} else {
		c.stats.IncTimeouts()
	}
}

func (c *Controller) saveRestoreEntries() {
	if c.restore == nil {
		return
	}
	c.mu.Lock()
	ids := make([]string, 0, len(c.byID))
	orchestrators := make([]*partition.Orchestrator, 0, len(c.byID))
	for id, o := range c.byID {
		ids = append(ids, id)
		orchestrators = append(orchestrators, o)
	}
	c.mu.Unlock()

	entries := make([]persistence.RestoreEntry, 0, len(ids))
	for i, o := range orchestrators {
		if o.State() == partition.StateNone {
			continue
		}
		entries = append(entries, persistence.RestoreEntry{PartitionID: ids[i], SessionID: o.SessionID()})
	}
	if err := c.restore.Save(entries); err != nil {
		c.logger.Warn("saving restore file failed", "err", err)
	}
}

// RestoreOnStartup reads the restore store and attempts to re-attach each
// entry's session via Initialize with an adopted sessionID (spec.md
// §4.10); entries the fabric no longer recognizes are dropped and logged,
// never retried.
func (c *Controller) RestoreOnStartup(ctx context.Context) {
	if c.restore == nil {
		return
	}
	entries, err := c.restore.Load()
	if err != nil {
		c.logger.Warn("loading restore file failed", "err", err)
		return
	}
	for _, e := range entries {
		p := requestapi.CommonParams{PartitionID: e.PartitionID, RunNr: 0, Timeout: 10 * time.Second}
		reply := c.Initialize(ctx, p, e.SessionID)
		if reply.Status != requestapi.StatusOK {
			c.logger.Warn("dropping unrestorable session", "partition", e.PartitionID, "session", e.SessionID, "err", reply.Error)
			c.mu.Lock()
			delete(c.byID, e.PartitionID)
			c.mu.Unlock()
			continue
		}
		c.stats.IncRecoveries()
		c.logger.Info("restored session", "partition", e.PartitionID, "session", e.SessionID)
	}
}
