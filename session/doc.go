// Package session holds the storefront's client-side session: who is signed
// in and which cart lines are pending checkout.
//
// A Store applies four transitions (SetCredentials, Logout,
// SetCheckoutPayload, RestoreSession). Each one is applied atomically and
// cannot fail. Derived fields (IsAuthenticated, CheckoutQuantity) are
// recomputed inside the same transition, and every observer registered with
// Subscribe sees the new state before the transition returns.
//
//	store := session.NewStore()
//	unsubscribe := store.Subscribe(func(c session.Change) {
//	        if c.TokenChanged() {
//	                // react to login / logout
//	        }
//	})
//	defer unsubscribe()
//	store.SetCredentials(&session.User{ID: "1"}, &token)
//
// An unset checkout payload has a quantity of 0 and a nil total.
package session
