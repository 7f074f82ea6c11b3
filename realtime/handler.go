package realtime

// Handler is an interface that defines the callback methods for observers of a Manager.
// Callbacks run one at a time, in the order the events happened, on a goroutine owned
// by the Manager. They may call any Manager method except Stop.
type Handler interface {
	// OnStateChange is called for every state machine transition
	OnStateChange(m *Manager, from ConnectionState, to ConnectionState)

	// OnConnect is called when the socket is open
	OnConnect(m *Manager)

	// OnDisconnect is called when an open socket is closed, locally or remotely
	OnDisconnect(m *Manager)

	// OnMessage is called for each message received on the current socket
	OnMessage(m *Manager, msg Message)

	// OnError is called when a connect attempt or an open socket fails
	OnError(m *Manager, err error)
}

// HandlerCallback is a struct that implements the Handler interface
type HandlerCallback struct {
	OnStateChangeFunc func(m *Manager, from ConnectionState, to ConnectionState)
	OnConnectFunc     func(m *Manager)
	OnDisconnectFunc  func(m *Manager)
	OnMessageFunc     func(m *Manager, msg Message)
	OnErrorFunc       func(m *Manager, err error)
}

var _ Handler = (*HandlerCallback)(nil)

func (h *HandlerCallback) OnStateChange(m *Manager, from ConnectionState, to ConnectionState) {
	if h.OnStateChangeFunc != nil {
		h.OnStateChangeFunc(m, from, to)
	}
}

func (h *HandlerCallback) OnConnect(m *Manager) {
	if h.OnConnectFunc != nil {
		h.OnConnectFunc(m)
	}
}

func (h *HandlerCallback) OnDisconnect(m *Manager) {
	if h.OnDisconnectFunc != nil {
		h.OnDisconnectFunc(m)
	}
}

func (h *HandlerCallback) OnMessage(m *Manager, msg Message) {
	if h.OnMessageFunc != nil {
		h.OnMessageFunc(m, msg)
	}
}

func (h *HandlerCallback) OnError(m *Manager, err error) {
	if h.OnErrorFunc != nil {
		h.OnErrorFunc(m, err)
	}
}
