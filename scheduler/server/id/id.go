// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package id

import "sync"

// Allocator is the allocator to generate unique ID.
type Allocator interface {
	// Alloc returns a new id, one greater than the previous one.
	Alloc() uint64
	// Current returns the last allocated id, or 0 if none was allocated.
	Current() uint64
}

// AllocatorImpl hands out ids starting at 1. Ids live in memory only and
// restart after the process does.
type AllocatorImpl struct {
	mu    sync.Mutex
	last  uint64
	label string
}

// NewAllocatorImpl creates a new allocator. label names it in metrics.
func NewAllocatorImpl(label string) *AllocatorImpl {
	return &AllocatorImpl{label: label}
}

// Alloc returns a new id.
func (alloc *AllocatorImpl) Alloc() uint64 {
	alloc.mu.Lock()
	defer alloc.mu.Unlock()
	alloc.last++
	idGauge.WithLabelValues(alloc.label).Set(float64(alloc.last))
	return alloc.last
}

// Current returns the last allocated id.
func (alloc *AllocatorImpl) Current() uint64 {
	alloc.mu.Lock()
	defer alloc.mu.Unlock()
	return alloc.last
}
