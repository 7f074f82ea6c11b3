package session

import "maps"

// User is the opaque identity record of the signed-in shopper.
type User struct {
	ID         string         `json:"id" msgpack:"id"`
	Email      string         `json:"email,omitempty" msgpack:"email,omitempty"`
	Name       string         `json:"name,omitempty" msgpack:"name,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty" msgpack:"attributes,omitempty"`
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Attributes = maps.Clone(u.Attributes)
	return &c
}

// LineItem references one line of the cart being checked out.
type LineItem struct {
	ID        string  `json:"id" msgpack:"id"`
	ProductID string  `json:"productId" msgpack:"productId"`
	Name      string  `json:"name,omitempty" msgpack:"name,omitempty"`
	Price     float64 `json:"price" msgpack:"price"`
	Quantity  int     `json:"quantity" msgpack:"quantity"`
	Size      string  `json:"size,omitempty" msgpack:"size,omitempty"`
	Color     string  `json:"color,omitempty" msgpack:"color,omitempty"`
	Image     string  `json:"image,omitempty" msgpack:"image,omitempty"`
}

// State is a snapshot of the session. Token and User are authoritative;
// IsAuthenticated and CheckoutQuantity are derived from them on every
// transition and are never set on their own.
type State struct {
	User            *User   `json:"user"`
	Token           *string `json:"token"`
	IsAuthenticated bool    `json:"isAuthenticated"`

	CheckoutItems    []LineItem `json:"checkoutItems"`
	CheckoutTotal    *float64   `json:"checkoutTotal"`
	CheckoutQuantity int        `json:"checkoutQuantity"`
}

// InitialState returns the empty, unauthenticated session.
func InitialState() State {
	return derive(State{})
}

// TokenValue returns the token, or "" when unauthenticated.
func (s State) TokenValue() string {
	if s.Token == nil {
		return ""
	}
	return *s.Token
}

// clone returns a copy that shares no mutable memory with s.
func (s State) clone() State {
	c := s
	c.User = s.User.clone()
	if s.Token != nil {
		tok := *s.Token
		c.Token = &tok
	}
	if s.CheckoutTotal != nil {
		total := *s.CheckoutTotal
		c.CheckoutTotal = &total
	}
	c.CheckoutItems = make([]LineItem, len(s.CheckoutItems))
	copy(c.CheckoutItems, s.CheckoutItems)
	return c
}

// derive recomputes every derived field from the authoritative ones.
func derive(s State) State {
	if s.CheckoutItems == nil {
		s.CheckoutItems = []LineItem{}
	}
	s.IsAuthenticated = s.Token != nil
	s.CheckoutQuantity = len(s.CheckoutItems)
	return s
}

// Action names the transition that produced a state.
type Action int

const (
	ActionInit Action = iota
	ActionSetCredentials
	ActionLogout
	ActionSetCheckoutPayload
	ActionRestoreSession
)

func (a Action) String() string {
	switch a {
	case ActionInit:
		return "init"
	case ActionSetCredentials:
		return "setCredentials"
	case ActionLogout:
		return "logout"
	case ActionSetCheckoutPayload:
		return "setCheckoutPayload"
	case ActionRestoreSession:
		return "restoreSession"
	}
	return "unknown"
}

// Change is delivered to observers after each transition.
type Change struct {
	Action   Action
	Previous State
	Current  State
}

// TokenChanged reports whether the transition changed the credential.
func (c Change) TokenChanged() bool {
	return !EqualToken(c.Previous.Token, c.Current.Token)
}

// EqualToken compares two optional tokens by value.
func EqualToken(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
