// Package devicechannel implements the Device Channel (spec.md §4.6): the
// per-device request/reply and unsolicited state-notification transport
// between the controller and a device process. The real channel is an
// external collaborator (spec.md §1); this package defines the Go
// interface it exposes to the Topology Engine, plus an in-memory reference
// implementation used by tests and by the default runtime configuration.
package devicechannel

import (
	"context"
	"sync"
)

// Notification is one unsolicited state update for a single device.
// Notifications are delivered to the Topology Engine under its own lock;
// ordering is guaranteed per device, not across devices (spec.md §4.6).
type Notification struct {
	TaskID    string
	LastState string
	State     string
}

// Subscription is a handle to a live notification stream.
type Subscription interface {
	Unsubscribe()
}

type unsubscribeFunc func()

func (f unsubscribeFunc) Unsubscribe() { f() }

// Channel is the Device Channel's surface.
type Channel interface {
	// ChangeState requests transition on taskID. It does not block for
	// the device to reach its target state — that arrives later as a
	// Notification.
	ChangeState(ctx context.Context, taskID, transition string) error
	GetProperties(ctx context.Context, taskID string, keys []string) (map[string]string, error)
	SetProperties(ctx context.Context, taskID string, props map[string]string) error
	Subscribe(callback func(Notification)) Subscription
}

// InMemoryChannel is a reference Channel that simulates devices
// in-process: a ChangeState request is immediately honored by moving the
// device to the transition's target state and emitting a Notification,
// unless the test harness has pre-armed a different outcome via Arm.
type InMemoryChannel struct {
	mu            sync.Mutex
	subscribers   []func(Notification)
	states        map[string]string // taskID -> current state
	targetOf      map[string]string // transition -> target current-state
	armedOutcomes map[string]string // taskID -> forced outcome state, consumed once
	props         map[string]map[string]string
}

// NewInMemoryChannel returns a channel whose transition targets follow
// targetMap (engine.TransitionTargets(), to keep the simulation consistent
// with the Topology Engine's own state-machine target map without an
// import cycle).
func NewInMemoryChannel(targetMap map[string]string) *InMemoryChannel {
	return &InMemoryChannel{
		states:        map[string]string{},
		targetOf:      targetMap,
		armedOutcomes: map[string]string{},
		props:         map[string]map[string]string{},
	}
}

// SetState seeds a device's current state without emitting a notification,
// used to set up test fixtures.
func (c *InMemoryChannel) SetState(taskID, state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[taskID] = state
}

// State returns a device's last known state.
func (c *InMemoryChannel) State(taskID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[taskID]
}

// Arm forces the next ChangeState on taskID to report outcome instead of
// the transition's normal target — used to simulate device failures
// ("Error", "Exiting") in tests.
func (c *InMemoryChannel) Arm(taskID, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armedOutcomes[taskID] = outcome
}

func (c *InMemoryChannel) ChangeState(ctx context.Context, taskID, transition string) error {
	c.mu.Lock()
	last := c.states[taskID]
	next, forced := c.armedOutcomes[taskID]
	if forced {
		delete(c.armedOutcomes, taskID)
	} else {
		next = c.targetOf[transition]
	}
	c.states[taskID] = next
	cbs := append([]func(Notification){}, c.subscribers...)
	c.mu.Unlock()

	notif := Notification{TaskID: taskID, LastState: last, State: next}
	for _, cb := range cbs {
		if cb != nil {
			cb(notif)
		}
	}
	return nil
}

func (c *InMemoryChannel) GetProperties(ctx context.Context, taskID string, keys []string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]string{}
	for _, k := range keys {
		if v, ok := c.props[taskID][k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (c *InMemoryChannel) SetProperties(ctx context.Context, taskID string, props map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.props[taskID] == nil {
		c.props[taskID] = map[string]string{}
	}
	for k, v := range props {
		c.props[taskID][k] = v
	}
	return nil
}

func (c *InMemoryChannel) Subscribe(callback func(Notification)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, callback)
	idx := len(c.subscribers) - 1
	return unsubscribeFunc(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.subscribers) {
			c.subscribers[idx] = nil
		}
	})
}

// EmitExit forces taskID straight to the terminal Exiting notification, the
// guarantee spec.md §4.6 makes for device exit regardless of what transition
// was last requested.
func (c *InMemoryChannel) EmitExit(taskID string) {
	c.mu.Lock()
	last := c.states[taskID]
	c.states[taskID] = "Exiting"
	cbs := append([]func(Notification){}, c.subscribers...)
	c.mu.Unlock()

	notif := Notification{TaskID: taskID, LastState: last, State: "Exiting"}
	for _, cb := range cbs {
		if cb != nil {
			cb(notif)
		}
	}
}
