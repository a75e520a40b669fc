package fabric

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/odcproject/odc/internal/odcerr"
)

// Adapter is the Agent Fabric Adapter's surface. The orchestrator calls it
// while holding its per-partition mutex (that mutex spans the whole
// request); implementations never take that lock themselves and must be
// safe to call concurrently from distinct partitions.
type Adapter interface {
	CreateSession(ctx context.Context) (sessionID string, err error)
	AttachSession(ctx context.Context, sessionID string) error
	Submit(ctx context.Context, sessionID string, req SubmitRequest) error
	WaitForActiveSlots(ctx context.Context, sessionID string, required int, deadline time.Time) (active int, err error)
	ActivateTopology(ctx context.Context, sessionID, topoFile string, updateType UpdateType) error
	ShutdownAgent(ctx context.Context, sessionID, agentID string)
	ShutdownSession(ctx context.Context, sessionID string) error
	SubscribeTaskDone(ctx context.Context, sessionID string, callback func(TaskDoneEvent)) (Subscription, error)
	AgentInfo(ctx context.Context, sessionID string) ([]AgentInfo, error)
}

// InMemoryAdapter is a reference Adapter implementation that simulates an
// agent fabric in-process: submissions become active agents after a short
// simulated placement delay. It is the default Adapter until a real
// cluster agent-manager client is wired in, and is what the orchestrator's
// own tests run against.
type InMemoryAdapter struct {
	mu       sync.Mutex
	sessions map[string]*simSession
	// PlacementDelay is how long a submitted agent takes to become active.
	// Zero means agents activate immediately.
	PlacementDelay time.Duration
}

type simSession struct {
	agents      []AgentInfo
	subscribers []func(TaskDoneEvent)
	shutdown    bool
}

// NewInMemoryAdapter returns an InMemoryAdapter with no simulated
// placement delay.
func NewInMemoryAdapter() *InMemoryAdapter {
	return &InMemoryAdapter{sessions: make(map[string]*simSession)}
}

func (a *InMemoryAdapter) CreateSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	a.mu.Lock()
	a.sessions[id] = &simSession{}
	a.mu.Unlock()
	return id, nil
}

func (a *InMemoryAdapter) AttachSession(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[sessionID]; !ok {
		return odcerr.Newf(odcerr.DDSAttachToSessionFailed, "session %q not found", sessionID)
	}
	return nil
}

func (a *InMemoryAdapter) Submit(ctx context.Context, sessionID string, req SubmitRequest) error {
	a.mu.Lock()
	sess, ok := a.sessions[sessionID]
	if !ok {
		a.mu.Unlock()
		return odcerr.Newf(odcerr.DDSSubmitAgentsFailed, "session %q not found", sessionID)
	}
	n := req.NumAgents
	newAgents := make([]AgentInfo, 0, n)
	for i := 0; i < n; i++ {
		newAgents = append(newAgents, AgentInfo{
			AgentID: uuid.NewString(),
			Host:    "sim-host-" + uuid.NewString()[:8],
			Group:   req.AgentGroup,
			Zone:    req.Zone,
			Slots:   req.NumSlots,
			Active:  a.PlacementDelay == 0,
		})
	}
	sess.agents = append(sess.agents, newAgents...)
	a.mu.Unlock()

	if a.PlacementDelay > 0 {
		go func() {
			timer := time.NewTimer(a.PlacementDelay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return
			}
			a.mu.Lock()
			defer a.mu.Unlock()
			sess, ok := a.sessions[sessionID]
			if !ok {
				return
			}
			for i := range sess.agents {
				for _, na := range newAgents {
					if sess.agents[i].AgentID == na.AgentID {
						sess.agents[i].Active = true
					}
				}
			}
		}()
	}
	return nil
}

func (a *InMemoryAdapter) WaitForActiveSlots(ctx context.Context, sessionID string, required int, deadline time.Time) (int, error) {
	limiter := rate.NewLimiter(rate.Every(pollInterval), 1)
	for {
		active := a.activeSlots(sessionID)
		if active >= required {
			return active, nil
		}
		if time.Now().After(deadline) {
			return active, odcerr.Newf(odcerr.DDSSubmitAgentsFailed, "only %d/%d slots active by deadline", active, required)
		}
		if err := limiter.Wait(ctx); err != nil {
			return active, odcerr.Newf(odcerr.RequestTimeout, "waiting for active slots: %v", err)
		}
	}
}

func (a *InMemoryAdapter) activeSlots(sessionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[sessionID]
	if !ok {
		return 0
	}
	total := 0
	for _, ag := range sess.agents {
		if ag.Active {
			total += ag.Slots
		}
	}
	return total
}

func (a *InMemoryAdapter) ActivateTopology(ctx context.Context, sessionID, topoFile string, updateType UpdateType) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[sessionID]; !ok {
		return odcerr.Newf(odcerr.DDSActivateTopologyFailed, "session %q not found", sessionID)
	}
	return nil
}

func (a *InMemoryAdapter) ShutdownAgent(ctx context.Context, sessionID, agentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[sessionID]
	if !ok {
		return
	}
	for i := range sess.agents {
		if sess.agents[i].AgentID == agentID {
			sess.agents[i].Active = false
		}
	}
}

func (a *InMemoryAdapter) ShutdownSession(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
	return nil
}

func (a *InMemoryAdapter) SubscribeTaskDone(ctx context.Context, sessionID string, callback func(TaskDoneEvent)) (Subscription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[sessionID]
	if !ok {
		return nil, odcerr.Newf(odcerr.DDSSubscribeFailed, "session %q not found", sessionID)
	}
	sess.subscribers = append(sess.subscribers, callback)
	idx := len(sess.subscribers) - 1
	return unsubscribeFunc(func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if s, ok := a.sessions[sessionID]; ok && idx < len(s.subscribers) {
			s.subscribers[idx] = nil
		}
	}), nil
}

// EmitTaskDone delivers ev to every live subscriber of sessionID. It is
// exported so tests (and a real fabric's event-stream reader) can drive
// the same fan-out path.
func (a *InMemoryAdapter) EmitTaskDone(sessionID string, ev TaskDoneEvent) {
	a.mu.Lock()
	sess, ok := a.sessions[sessionID]
	var cbs []func(TaskDoneEvent)
	if ok {
		cbs = append(cbs, sess.subscribers...)
	}
	a.mu.Unlock()
	for _, cb := range cbs {
		if cb != nil {
			cb(ev)
		}
	}
}

func (a *InMemoryAdapter) AgentInfo(ctx context.Context, sessionID string) ([]AgentInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[sessionID]
	if !ok {
		return nil, odcerr.Newf(odcerr.DDSCommanderInfoFailed, "session %q not found", sessionID)
	}
	out := make([]AgentInfo, len(sess.agents))
	copy(out, sess.agents)
	return out, nil
}
