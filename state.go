package rbridge

import (
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Bridge is the per-device context the RBridge core operates against: its
// own MAC address, the external collaborators of spec.md §6, the
// statistics counters, and the lock that serializes control-plane
// mutations (enable/disable, neighbor upserts, tree-root changes).
//
// Bridge itself never touches the wire; it is the seam between this
// package's protocol logic and a host bridge implementation such as the
// linuxbridge package.
type Bridge struct {
	MAC net.HardwareAddr

	FDB            FDB
	Forwarding     Forwarding
	Port           BridgePort
	STP            STP
	NickResolution NickResolution
	VNI            VNI // nil if VNT is not in use on this bridge

	Stats Stats

	log *ratelimitedLogger

	// mu is "the bridge lock" of spec.md §5: it serializes enable/
	// disable, neighbor install/evict, and tree-root changes. It is
	// never taken on the per-packet read path.
	mu  sync.Mutex
	rbr *RbrState
}

// NewBridge constructs a Bridge. log may be nil, in which case warnings
// are discarded.
func NewBridge(mac net.HardwareAddr, log *zap.Logger) *Bridge {
	return &Bridge{MAC: mac, log: newRatelimitedLogger(log)}
}

// State returns the bridge's current RbrState, or nil if TRILL is not
// enabled.
func (b *Bridge) State() *RbrState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rbr
}

// Features toggles optional protocol behavior per bridge.
type Features struct {
	// VNT enables the virtual-network-tagging extension. With VNT
	// disabled, spec.md §4.9 step 5 requires opt_len == 0 on every
	// received frame.
	VNT bool
}

// RbrState is the per-bridge TRILL state of spec.md §3: the local
// nickname, the distribution-tree root, the neighbor table, and the
// enabled flag. It is created by Enable and destroyed by Disable.
type RbrState struct {
	bridge *Bridge

	neighbors *NeighborTable

	// localNick, treeRoot and enabled are read by the data plane without
	// locks (spec.md §5); writers go through the methods below, which
	// take bridge.mu.
	localNick atomic.Uint32
	treeRoot  atomic.Uint32
	enabled   atomic.Bool

	hopCount uint8
	features Features
}

// Enable activates TRILL processing on bridge, per spec.md §4.2. If STP is
// currently running it is stopped first (spec.md §3 invariant 1: the two
// are mutually exclusive). Calling Enable on a bridge that is already
// enabled is idempotent and returns the existing state.
func Enable(bridge *Bridge, hopCount uint8, features Features) (*RbrState, error) {
	bridge.mu.Lock()
	defer bridge.mu.Unlock()

	if bridge.rbr != nil {
		return bridge.rbr, nil
	}

	if bridge.STP != nil && bridge.STP.Running() {
		bridge.STP.Stop()
	}

	if hopCount == 0 {
		hopCount = DefaultHopCount
	}

	state := &RbrState{
		bridge:    bridge,
		neighbors: NewNeighborTable(),
		hopCount:  hopCount,
		features:  features,
	}
	state.localNick.Store(uint32(NickNone))
	state.treeRoot.Store(uint32(NickNone))
	state.enabled.Store(true)

	bridge.rbr = state
	return state, nil
}

// Disable deactivates TRILL processing on bridge: it detaches RbrState
// under the bridge lock, then evicts every neighbor and lets the state be
// garbage collected (spec.md §3 invariant 4, §4.2). It is a no-op if
// TRILL is not currently enabled.
func Disable(bridge *Bridge) {
	bridge.mu.Lock()
	state := bridge.rbr
	if state == nil {
		bridge.mu.Unlock()
		return
	}
	state.enabled.Store(false)
	bridge.rbr = nil
	bridge.mu.Unlock()

	state.neighbors.EvictAll()
}

// Enabled reports whether TRILL processing is currently active.
func (s *RbrState) Enabled() bool {
	return s.enabled.Load()
}

// LocalNick returns the nickname assigned to this RBridge, or NickNone if
// none has been installed yet.
func (s *RbrState) LocalNick() Nickname {
	return Nickname(s.localNick.Load())
}

// TreeRoot returns the nominated distribution-tree root nickname, or
// NickNone if none has been set.
func (s *RbrState) TreeRoot() Nickname {
	return Nickname(s.treeRoot.Load())
}

// Neighbors returns the neighbor table.
func (s *RbrState) Neighbors() *NeighborTable {
	return s.neighbors
}

// HopCount returns the default hop count fresh encapsulations are seeded
// with.
func (s *RbrState) HopCount() uint8 {
	return s.hopCount
}

// Features returns the feature toggles in effect for this bridge.
func (s *RbrState) Features() Features {
	return s.features
}

// SetLocalNickname installs the nickname this RBridge identifies itself
// as. It fails with ErrNotFound if nick is not a valid nickname, and is a
// no-op if nick already matches the current value.
func (s *RbrState) SetLocalNickname(nick Nickname) error {
	if !nick.Valid() {
		return ErrNotFound
	}
	s.bridge.mu.Lock()
	defer s.bridge.mu.Unlock()

	if Nickname(s.localNick.Load()) == nick {
		return nil
	}
	s.localNick.Store(uint32(nick))
	return nil
}

// SetTreeRoot updates the nominated distribution-tree root nickname. It
// fails with ErrNotFound if nick is not a valid nickname (spec.md §4.2),
// and is a no-op if nick already matches the current value.
func (s *RbrState) SetTreeRoot(nick Nickname) error {
	if !nick.Valid() {
		return ErrNotFound
	}
	s.bridge.mu.Lock()
	defer s.bridge.mu.Unlock()

	if Nickname(s.treeRoot.Load()) == nick {
		return nil
	}
	s.treeRoot.Store(uint32(nick))
	return nil
}

// InstallNeighbor installs or replaces the neighbor descriptor for nick.
func (s *RbrState) InstallNeighbor(nick Nickname, info NeighborInfo) error {
	s.bridge.mu.Lock()
	defer s.bridge.mu.Unlock()
	return s.neighbors.Install(nick, info)
}

// EvictNeighbor removes the neighbor descriptor for nick, if any.
func (s *RbrState) EvictNeighbor(nick Nickname) error {
	s.bridge.mu.Lock()
	defer s.bridge.mu.Unlock()
	return s.neighbors.Evict(nick)
}
