package daide

import "github.com/pkg/errors"

// DefaultRegistryCapacity bounds a Registry when no capacity is given.
// It matches the usual FD_SETSIZE.
const DefaultRegistryCapacity = 1024

// Panic values for Registry invariant violations.
var (
	// ErrDuplicateHandle means a Conn was inserted twice or two Conns share a handle.
	ErrDuplicateHandle = errors.New("duplicate handle in registry")
	// ErrRegistryFull means the registry is at capacity.
	ErrRegistryFull = errors.New("registry full")
)

// Registry is the set of live Conns, keyed by native handle. The reactor
// routes readiness notifications through it.
//
// Iteration order is unspecified: Remove moves the last entry into the hole.
// A Registry is not safe for concurrent use.
type Registry struct {
	conns    []*Conn
	capacity int
}

// NewRegistry returns an empty Registry holding at most capacity Conns.
// A capacity <= 0 selects DefaultRegistryCapacity.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultRegistryCapacity
	}
	return &Registry{capacity: capacity}
}

// Insert adds c. It panics if c's handle is already present or the registry
// is full; the platform refuses new sockets long before that is legitimate.
func (r *Registry) Insert(c *Conn) {
	if _, ok := r.Find(c.handle); ok {
		panic(errors.Wrapf(ErrDuplicateHandle, "handle %d", c.handle))
	}
	if len(r.conns) >= r.capacity {
		panic(errors.Wrapf(ErrRegistryFull, "capacity %d", r.capacity))
	}
	r.conns = append(r.conns, c)
}

// Remove deletes c if present.
func (r *Registry) Remove(c *Conn) {
	for i, rc := range r.conns {
		if rc != c {
			continue
		}
		last := len(r.conns) - 1
		r.conns[i] = r.conns[last]
		r.conns[last] = nil
		r.conns = r.conns[:last]
		return
	}
}

// Find returns the Conn owning h. A miss is normal: events may still arrive
// for a handle whose Conn was already removed.
func (r *Registry) Find(h Handle) (*Conn, bool) {
	for _, c := range r.conns {
		if c.handle == h {
			return c, true
		}
	}
	return nil, false
}

// Len returns the number of registered Conns.
func (r *Registry) Len() int {
	return len(r.conns)
}

// Each calls fn for every registered Conn. fn must not insert or remove.
func (r *Registry) Each(fn func(c *Conn)) {
	for _, c := range r.conns {
		fn(c)
	}
}

// NotifyConnect routes a connect result to the Conn owning h.
func (r *Registry) NotifyConnect(h Handle, err error) {
	if c, ok := r.Find(h); ok {
		c.OnConnect(err)
	}
}

// NotifyClose routes a close notification to the Conn owning h.
func (r *Registry) NotifyClose(h Handle, err error) {
	if c, ok := r.Find(h); ok {
		c.OnClose(err)
	}
}

// NotifyReadable routes a readable notification to the Conn owning h.
func (r *Registry) NotifyReadable(h Handle, err error) {
	if c, ok := r.Find(h); ok {
		c.OnReadable(err)
	}
}

// NotifyWritable routes a writable notification to the Conn owning h.
func (r *Registry) NotifyWritable(h Handle, err error) {
	if c, ok := r.Find(h); ok {
		c.OnWritable(err)
	}
}
