package rbridge

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Error kinds. On the data path every one of these is terminal for the
// buffer that triggered it: the frame is dropped, a counter is bumped, and
// a rate-limited warning is emitted; none reaches the caller of Receive.
// The control-plane methods (NeighborTable.Install/Evict,
// RbrState.SetLocalNickname/SetTreeRoot) return ErrInvalidNickname or
// ErrNotFound to their callers.
var (
	ErrInvalidNickname   = errors.New("rbridge: invalid nickname")
	ErrUnknownNeighbor   = errors.New("rbridge: unknown neighbor")
	ErrHopCountExhausted = errors.New("rbridge: hop count exhausted")
	ErrLoopDetected      = errors.New("rbridge: loop detected")
	ErrFailedRPF         = errors.New("rbridge: reverse path forwarding check failed")
	ErrWrongAdjacency    = errors.New("rbridge: frame did not arrive from an expected adjacency")
	ErrMalformedHeader   = errors.New("rbridge: malformed TRILL header")
	ErrAllocationFailure = errors.New("rbridge: buffer clone or headroom allocation failed")
	ErrVlanIngressDenied = errors.New("rbridge: VLAN ingress policy denied frame")
	ErrInvalidSourceMAC  = errors.New("rbridge: invalid source MAC address")
	ErrNotFound          = errors.New("rbridge: not found")
	ErrNoMemory          = errors.New("rbridge: no memory")
	ErrDisabled          = errors.New("rbridge: TRILL is not enabled on this bridge")
)

// Stats holds the per-bridge drop/forward counters. spec.md §7 requires
// every failure path to bump "the corresponding rx/tx-dropped counter" on
// the bridge device; this is the shape that takes. No metrics/counters
// library appears in any example repository's go.mod, so these are plain
// mutex-guarded counters rather than a client library's instrument type.
//
// Only RxDropped and TxDropped are bumped by this package. Encapsulated,
// Decapsulated, Forwarded, Replicated and LocallyDelivered are not
// incremented anywhere and always read zero.
type Stats struct {
	RxDropped        CounterSet
	TxDropped        CounterSet
	Encapsulated     counter
	Decapsulated     counter
	Forwarded        counter
	Replicated       counter
	LocallyDelivered counter
}

// counter is a monotonic, concurrency-safe counter.
type counter struct {
	mu sync.Mutex
	n  uint64
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

// Value returns the current count.
func (c *counter) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// CounterSet buckets drops by error kind so an operator can tell a storm of
// UnknownNeighbor apart from a storm of FailedRPF.
type CounterSet struct {
	mu   sync.Mutex
	byNo map[error]uint64
}

func (c *CounterSet) bump(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byNo == nil {
		c.byNo = make(map[error]uint64)
	}
	c.byNo[err]++
}

// Value returns the count recorded for a given error kind.
func (c *CounterSet) Value(err error) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byNo[err]
}

// Total returns the sum across all error kinds.
func (c *CounterSet) Total() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	for _, v := range c.byNo {
		total += v
	}
	return total
}

// ratelimitedLogger emits at most one warning per error site per window,
// regardless of how many packets hit that site in the meantime. A bridge
// under a TRILL loop or RPF-failure storm must not be allowed to log at
// line rate.
type ratelimitedLogger struct {
	log *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRatelimitedLogger(log *zap.Logger) *ratelimitedLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &ratelimitedLogger{log: log, limiters: make(map[string]*rate.Limiter)}
}

// warn logs at most once per second per site, identified by a short static
// string (e.g. "forward.unknown-neighbor").
func (r *ratelimitedLogger) warn(site string, err error, fields ...zap.Field) {
	r.mu.Lock()
	lim, ok := r.limiters[site]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Second), 1)
		r.limiters[site] = lim
	}
	r.mu.Unlock()

	if !lim.Allow() {
		return
	}
	r.log.Warn(site, append(fields, zap.Error(err))...)
}
