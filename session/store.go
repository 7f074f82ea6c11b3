package session

import (
	"sync"
)

// Observer receives every Change synchronously, before the transition that
// caused it returns. Observers may call Store.State but must not dispatch
// another transition from inside the callback.
type Observer func(change Change)

type subscription struct {
	id  uint64
	obs Observer
}

// Store holds the session state and applies the named transitions. It is
// created by the application's composition root and handed to consumers;
// there is no package-level instance.
type Store struct {
	dispatchMu sync.Mutex // serializes transition + notification
	mu         sync.RWMutex
	state      State
	nextID     uint64
	observers  []subscription
}

// NewStore returns a store holding the initial state.
func NewStore() *Store {
	return &Store{state: InitialState()}
}

// State returns a snapshot of the current state. The snapshot is a deep copy
// and may be retained or modified by the caller.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers an observer and returns a func that removes it.
// Calling the returned func more than once is a no-op.
func (s *Store) Subscribe(obs Observer) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, subscription{id, obs})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.observers {
				if sub.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// SetCredentials sets the user and token. A nil token leaves the session
// unauthenticated; use Logout to also drop the checkout payload.
func (s *Store) SetCredentials(user *User, token *string) {
	s.dispatch(ActionSetCredentials, func(st State) State {
		st.User = user.clone()
		st.Token = cloneToken(token)
		return st
	})
}

// Logout resets the session to its initial state, including the checkout
// payload. Calling it repeatedly yields the same state.
func (s *Store) Logout() {
	s.dispatch(ActionLogout, func(State) State {
		return State{}
	})
}

// SetCheckoutPayload replaces the pending checkout. A nil items slice is
// treated as empty. The total is stored as given, without validation.
func (s *Store) SetCheckoutPayload(items []LineItem, total float64) {
	s.dispatch(ActionSetCheckoutPayload, func(st State) State {
		st.CheckoutItems = make([]LineItem, len(items))
		copy(st.CheckoutItems, items)
		st.CheckoutTotal = &total
		return st
	})
}

// RestoreSession hydrates the credentials read from durable storage at
// startup. The checkout payload is left untouched.
func (s *Store) RestoreSession(token *string, user *User) {
	s.dispatch(ActionRestoreSession, func(st State) State {
		st.Token = cloneToken(token)
		st.User = user.clone()
		return st
	})
}

func (s *Store) dispatch(action Action, reduce func(State) State) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	prev := s.state
	s.state = derive(reduce(prev.clone()))
	change := Change{Action: action, Previous: prev.clone(), Current: s.state.clone()}
	observers := make([]Observer, len(s.observers))
	for i, sub := range s.observers {
		observers[i] = sub.obs
	}
	s.mu.Unlock()

	for _, obs := range observers {
		obs(change)
	}
}

func cloneToken(token *string) *string {
	if token == nil {
		return nil
	}
	tok := *token
	return &tok
}
