// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import (
	"sync"
	"sync/atomic"
)

// ObjectPool is a generic object pool.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

// SyncPool is a typed sync.Pool. Reset, when set, runs on every Put; an
// object it rejects is dropped instead of pooled.
type SyncPool[T any] struct {
	pool  sync.Pool
	Reset func(T) bool

	allocs atomic.Int64
}

// NewSyncPool creates a pool that builds new objects with creator.
func NewSyncPool[T any](creator func() T) *SyncPool[T] {
	sp := &SyncPool[T]{}
	sp.pool.New = func() any {
		sp.allocs.Add(1)
		return creator()
	}
	return sp
}

func (sp *SyncPool[T]) Get() T {
	return sp.pool.Get().(T)
}

func (sp *SyncPool[T]) Put(obj T) {
	if sp.Reset != nil && !sp.Reset(obj) {
		return
	}
	sp.pool.Put(obj)
}

// Allocs counts objects built because the pool was empty.
func (sp *SyncPool[T]) Allocs() int64 { return sp.allocs.Load() }
