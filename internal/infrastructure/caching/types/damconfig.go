// Package types defines the state held by the DAM configuration cache.
package types

import (
	"time"

	"github.com/dnastack/ddap-admin/internal/domain/entities"
)

// EntryStatus is the lifecycle of one damId in the cache.
type EntryStatus int

const (
	StatusNotRequested EntryStatus = iota
	StatusLoading
	StatusLoaded
	StatusFailed
)

func (s EntryStatus) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	default:
		return "not_requested"
	}
}

// MarshalText renders the status by name in JSON responses.
func (s EntryStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EntryState describes a cache entry at one point in time.
type EntryState struct {
	DamID      string      `json:"damId"`
	Status     EntryStatus `json:"status"`
	Generation uint64      `json:"generation"`
	LoadID     string      `json:"loadId,omitempty"`
	LoadedAt   time.Time   `json:"loadedAt,omitempty"`
	Err        error       `json:"-"`
	Error      string      `json:"error,omitempty"`
}

// Settled reports whether the entry is Loaded or Failed.
func (e EntryState) Settled() bool {
	return e.Status == StatusLoaded || e.Status == StatusFailed
}

// DamConfigState is one immutable snapshot of the cache: damId to its last
// committed document. Snapshots are never mutated after publication.
type DamConfigState map[string]entities.DamConfig

// With returns a copy of s where damID maps to cfg.
func (s DamConfigState) With(damID string, cfg entities.DamConfig) DamConfigState {
	next := make(DamConfigState, len(s)+1)
	for k, v := range s {
		next[k] = v
	}
	next[damID] = cfg
	return next
}

// Collection returns collection of damID, empty when either is absent.
func (s DamConfigState) Collection(damID, collection string) entities.Collection {
	return s[damID].Collection(collection)
}
