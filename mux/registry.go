// SPDX-License-Identifier: EPL-2.0

package mux

import (
	"fmt"
	"io"
	"sync"
)

// WriterFactory constructs a Writer that muxes into dst.
type WriterFactory func(dst io.WriteSeeker) (Writer, error)

// Registry maps container names to writer factories. Each export
// pipeline owns its own instance; nothing in this package is process
// global.
type Registry struct {
	factories map[string]WriterFactory

	mtx *sync.Mutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]WriterFactory),
		mtx:       &sync.Mutex{},
	}
}

// NewDefaultRegistry returns a registry with the built-in containers
// registered under the names "webm", "fmp4" and "wav".
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("webm", func(dst io.WriteSeeker) (Writer, error) { return NewWebMWriter(dst) })
	r.Register("fmp4", func(dst io.WriteSeeker) (Writer, error) { return NewFMP4Writer(dst) })
	r.Register("wav", func(dst io.WriteSeeker) (Writer, error) { return NewWAVWriter(dst) })
	return r
}

// Register adds or replaces the factory for a container name.
func (r *Registry) Register(container string, f WriterFactory) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.factories[container] = f
}

// Get returns the factory registered for a container name.
func (r *Registry) Get(container string) (WriterFactory, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	f, ok := r.factories[container]
	return f, ok
}

// NewWriter constructs a writer for the named container, muxing into
// dst. Unknown names fail with ErrWriterNotFound.
func (r *Registry) NewWriter(container string, dst io.WriteSeeker) (Writer, error) {
	f, ok := r.Get(container)
	if !ok {
		return nil, fmt.Errorf("%w: container %q", ErrWriterNotFound, container)
	}
	return f(dst)
}
