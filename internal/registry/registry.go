// Package registry tracks which listeners are interested in which document.
//
// Each document maps to an immutable snapshot set. Mutations clone the
// current snapshot, change the clone and swap it in with compare-and-swap,
// retrying if another goroutine swapped first. Readers always iterate a
// snapshot that is never modified afterwards.
package registry

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

type snapshot[L comparable] struct {
	set mapset.Set[L]
}

// Registry is safe for concurrent use. The zero value is not usable, use New.
type Registry[L comparable] struct {
	docs sync.Map // document id -> *snapshot[L]
}

func New[L comparable]() *Registry[L] {
	return &Registry[L]{}
}

// AddListener registers listener for documentID. Adding a listener twice is
// a no-op.
func (r *Registry[L]) AddListener(documentID string, listener L) {
	for {
		current, loaded := r.docs.Load(documentID)
		if !loaded {
			next := &snapshot[L]{set: mapset.NewThreadUnsafeSet(listener)}
			if _, loaded := r.docs.LoadOrStore(documentID, next); !loaded {
				return
			}
			continue
		}

		snap := current.(*snapshot[L])
		if snap.set.Contains(listener) {
			return
		}
		set := snap.set.Clone()
		set.Add(listener)
		if r.docs.CompareAndSwap(documentID, snap, &snapshot[L]{set: set}) {
			return
		}
	}
}

// RemoveListener unregisters listener from documentID. The entry of a
// document is dropped once its last listener is gone.
func (r *Registry[L]) RemoveListener(documentID string, listener L) {
	for {
		current, ok := r.docs.Load(documentID)
		if !ok {
			return
		}

		snap := current.(*snapshot[L])
		if !snap.set.Contains(listener) {
			return
		}
		if snap.set.Cardinality() == 1 {
			if r.docs.CompareAndDelete(documentID, snap) {
				return
			}
			continue
		}

		set := snap.set.Clone()
		set.Remove(listener)
		if r.docs.CompareAndSwap(documentID, snap, &snapshot[L]{set: set}) {
			return
		}
	}
}

// ListenersFor returns the listeners of documentID at the time of the call.
func (r *Registry[L]) ListenersFor(documentID string) []L {
	current, ok := r.docs.Load(documentID)
	if !ok {
		return nil
	}
	return current.(*snapshot[L]).set.ToSlice()
}

// IsListening reports whether listener is registered for documentID.
func (r *Registry[L]) IsListening(documentID string, listener L) bool {
	current, ok := r.docs.Load(documentID)
	if !ok {
		return false
	}
	return current.(*snapshot[L]).set.Contains(listener)
}

// RemoveMatching removes every listener for which match returns true from
// every document, and returns the ids of the documents it touched.
func (r *Registry[L]) RemoveMatching(match func(L) bool) []string {
	var touched []string
	r.docs.Range(func(key, value interface{}) bool {
		documentID := key.(string)
		removed := false
		for _, l := range value.(*snapshot[L]).set.ToSlice() {
			if match(l) {
				r.RemoveListener(documentID, l)
				removed = true
			}
		}
		if removed {
			touched = append(touched, documentID)
		}
		return true
	})
	return touched
}

// Documents returns the ids of all documents with at least one listener.
func (r *Registry[L]) Documents() []string {
	var ids []string
	r.docs.Range(func(key, _ interface{}) bool {
		ids = append(ids, key.(string))
		return true
	})
	return ids
}

// Clear drops every registration.
func (r *Registry[L]) Clear() {
	r.docs.Range(func(key, _ interface{}) bool {
		r.docs.Delete(key)
		return true
	})
}
