package devicechannel

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/odcproject/odc/internal/odcerr"
)

// wireMessage is the JSON frame exchanged over the simulator's websocket
// connection in both directions: a command from hub to device, or a
// Notification from device to hub.
type wireMessage struct {
	Kind      string `json:"kind"` // "command" | "notification" | "getProperties" | "setProperties" | "properties"
	TaskID    string            `json:"taskId"`
	Transition string           `json:"transition,omitempty"`
	LastState string            `json:"lastState,omitempty"`
	State     string            `json:"state,omitempty"`
	Keys      []string          `json:"keys,omitempty"`
	Props     map[string]string `json:"props,omitempty"`
}

// WSHub is a reference Device Channel that talks to real devices over
// websocket connections, one per device, standing in for the external
// device control channel in integration tests (SPEC_FULL.md §3). It
// implements the same Channel interface as InMemoryChannel so the
// Topology Engine never needs to know which one it is wired to.
type WSHub struct {
	upgrader    websocket.Upgrader
	mu          sync.Mutex
	conns       map[string]*websocket.Conn // taskID -> connection
	subscribers []func(Notification)
	pending     map[string]chan map[string]string // taskID -> inflight getProperties reply
}

// NewWSHub returns an empty hub ready to accept device connections via
// ServeHTTP.
func NewWSHub() *WSHub {
	return &WSHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns:   map[string]*websocket.Conn{},
		pending: map[string]chan map[string]string{},
	}
}

// ServeHTTP upgrades an incoming connection and registers it under the
// "taskId" query parameter as that device's channel.
func (h *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("taskId")
	if taskID == "" {
		http.Error(w, "missing taskId", http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.conns[taskID] = conn
	h.mu.Unlock()

	go h.readLoop(taskID, conn)
}

func (h *WSHub) readLoop(taskID string, conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		if h.conns[taskID] == conn {
			delete(h.conns, taskID)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Kind {
		case "notification":
			h.dispatch(Notification{TaskID: msg.TaskID, LastState: msg.LastState, State: msg.State})
		case "properties":
			h.mu.Lock()
			ch, ok := h.pending[msg.TaskID]
			h.mu.Unlock()
			if ok {
				ch <- msg.Props
			}
		}
	}
}

func (h *WSHub) dispatch(n Notification) {
	h.mu.Lock()
	cbs := append([]func(Notification){}, h.subscribers...)
	h.mu.Unlock()
	for _, cb := range cbs {
		if cb != nil {
			cb(n)
		}
	}
}

func (h *WSHub) connFor(taskID string) (*websocket.Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[taskID]
	if !ok {
		return nil, odcerr.Newf(odcerr.ChannelChangeStateFailed, "device %q not connected", taskID)
	}
	return conn, nil
}

func (h *WSHub) ChangeState(ctx context.Context, taskID, transition string) error {
	conn, err := h.connFor(taskID)
	if err != nil {
		return odcerr.Newf(odcerr.ChannelChangeStateFailed, "%v", err)
	}
	if err := conn.WriteJSON(wireMessage{Kind: "command", TaskID: taskID, Transition: transition}); err != nil {
		return odcerr.Newf(odcerr.ChannelChangeStateFailed, "sending command to %q: %v", taskID, err)
	}
	return nil
}

func (h *WSHub) GetProperties(ctx context.Context, taskID string, keys []string) (map[string]string, error) {
	conn, err := h.connFor(taskID)
	if err != nil {
		return nil, odcerr.Newf(odcerr.ChannelGetStateFailed, "%v", err)
	}
	reply := make(chan map[string]string, 1)
	h.mu.Lock()
	h.pending[taskID] = reply
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, taskID)
		h.mu.Unlock()
	}()

	if err := conn.WriteJSON(wireMessage{Kind: "getProperties", TaskID: taskID, Keys: keys}); err != nil {
		return nil, odcerr.Newf(odcerr.ChannelGetStateFailed, "requesting properties from %q: %v", taskID, err)
	}
	select {
	case props := <-reply:
		return props, nil
	case <-ctx.Done():
		return nil, odcerr.Newf(odcerr.ChannelGetStateFailed, "get properties timed out for %q", taskID)
	}
}

func (h *WSHub) SetProperties(ctx context.Context, taskID string, props map[string]string) error {
	conn, err := h.connFor(taskID)
	if err != nil {
		return odcerr.Newf(odcerr.ChannelSetPropertiesFailed, "%v", err)
	}
	if err := conn.WriteJSON(wireMessage{Kind: "setProperties", TaskID: taskID, Props: props}); err != nil {
		return odcerr.Newf(odcerr.ChannelSetPropertiesFailed, "setting properties on %q: %v", taskID, err)
	}
	return nil
}

func (h *WSHub) Subscribe(callback func(Notification)) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, callback)
	idx := len(h.subscribers) - 1
	return unsubscribeFunc(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if idx < len(h.subscribers) {
			h.subscribers[idx] = nil
		}
	})
}

// DeviceClient is the small library a reference device process embeds to
// speak the simulator's wire protocol: dial the hub, answer ChangeState
// commands by reporting back a notification.
type DeviceClient struct {
	conn   *websocket.Conn
	taskID string
}

// DialDevice connects to a WSHub as the named device.
func DialDevice(url, taskID string) (*DeviceClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url+"?taskId="+taskID, nil)
	if err != nil {
		return nil, err
	}
	return &DeviceClient{conn: conn, taskID: taskID}, nil
}

// ReportState sends an unsolicited notification for this device.
func (d *DeviceClient) ReportState(lastState, state string) error {
	return d.conn.WriteJSON(wireMessage{Kind: "notification", TaskID: d.taskID, LastState: lastState, State: state})
}

// Next blocks for the hub's next command or properties request to this
// device, returning the decoded message.
func (d *DeviceClient) Next() (kind, transition string, keys []string, props map[string]string, err error) {
	var msg wireMessage
	if err = d.conn.ReadJSON(&msg); err != nil {
		return
	}
	return msg.Kind, msg.Transition, msg.Keys, msg.Props, nil
}

// ReplyProperties answers a getProperties request.
func (d *DeviceClient) ReplyProperties(props map[string]string) error {
	return d.conn.WriteJSON(wireMessage{Kind: "properties", TaskID: d.taskID, Props: props})
}

// Close closes the underlying connection.
func (d *DeviceClient) Close() error { return d.conn.Close() }
