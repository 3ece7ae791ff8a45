package flow

import "github.com/tdtu-ibank/payflow/internal/store"

// ==============================================
// NAVIGATION DISCRIMINATOR
// ==============================================

// The navigation flag lives in the session-scoped store, which does not
// survive a process restart. Its presence at mount means the user is coming
// back from another screen; its absence means a hard reload or first load.
// The restoration policy differs between the two.

// MarkNavigating is called immediately before leaving the flow screen for a
// sibling screen.
func MarkNavigating(session store.Store) {
	_ = session.Set(store.KeyNavigationFlag, "1")
}

// ClearNavigation removes the marker without consuming it, for screens that
// abandon the flow entirely.
func ClearNavigation(session store.Store) {
	session.Remove(store.KeyNavigationFlag)
}

// ConsumeNavigationReturn reads and clears the marker in one step, so a later
// genuine reload is not mistaken for a navigation return.
func ConsumeNavigationReturn(session store.Store) bool {
	_, ok := session.Get(store.KeyNavigationFlag)
	if ok {
		session.Remove(store.KeyNavigationFlag)
	}
	return ok
}
