// Package middleware wraps a ports.TreeStore with behaviour applied to
// every snapshot on its way in and out.
package middleware

import "github.com/aretw0/thicket/pkg/ports"

// Middleware allows wrapping a TreeStore to add behavior.
type Middleware func(ports.TreeStore) ports.TreeStore

// Chain wraps store so that the first middleware sees calls first.
func Chain(store ports.TreeStore, mws ...Middleware) ports.TreeStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
