package linuxbridge

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-trill/rbridge"
)

// fdbKey is a (MAC, VLAN) pair, the key space of the software forwarding
// database.
type fdbKey struct {
	mac string
	vid rbridge.VID
}

type fdbEntry struct {
	entry rbridge.FDBEntry
	// used is a unix-nano timestamp behind a pointer so Get can refresh it
	// on every lookup with an atomic store instead of taking the bridge's
	// write lock on the per-packet read path.
	used *atomic.Int64
}

func newFDBEntry(e rbridge.FDBEntry) fdbEntry {
	used := new(atomic.Int64)
	used.Store(time.Now().UnixNano())
	return fdbEntry{entry: e, used: used}
}

// Bridge is a software bridge built from a fixed set of Port raw sockets,
// implementing every external collaborator interface rbridge.Bridge
// needs. It is deliberately simple — a single mutex-protected map — since
// the hard forwarding logic lives in the rbridge package itself; this is
// only the seam to real interfaces.
type Bridge struct {
	MAC net.HardwareAddr

	mu    sync.RWMutex
	ports map[string]*Port // keyed by PortConfig.Name
	fdb   map[fdbKey]fdbEntry

	stpRunning bool

	vlanAllow func(*rbridge.Frame) (rbridge.VID, bool)
}

// NewBridge creates a Bridge with no ports attached. vlanAllow implements
// the bridge's VLAN ingress policy (AllowedIngress); pass nil to accept
// every frame on VLAN 0.
func NewBridge(mac net.HardwareAddr, vlanAllow func(*rbridge.Frame) (rbridge.VID, bool)) *Bridge {
	if vlanAllow == nil {
		vlanAllow = func(*rbridge.Frame) (rbridge.VID, bool) { return 0, true }
	}
	return &Bridge{
		MAC:       mac,
		ports:     make(map[string]*Port),
		fdb:       make(map[fdbKey]fdbEntry),
		vlanAllow: vlanAllow,
	}
}

// AddPort attaches an already-opened Port to the bridge.
func (b *Bridge) AddPort(p *Port) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ports[p.cfg.Name] = p
}

// --- rbridge.FDB ---

func (b *Bridge) Get(mac net.HardwareAddr, vid rbridge.VID) (rbridge.FDBEntry, bool) {
	key := fdbKey{string(mac), vid}

	b.mu.RLock()
	e, ok := b.fdb[key]
	b.mu.RUnlock()
	if !ok {
		return rbridge.FDBEntry{}, false
	}

	e.used.Store(time.Now().UnixNano())
	return e.entry, true
}

func (b *Bridge) Update(port rbridge.Port, mac net.HardwareAddr, vid rbridge.VID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fdb[fdbKey{string(mac), vid}] = newFDBEntry(rbridge.FDBEntry{Port: port, VID: vid})
}

func (b *Bridge) UpdateWithNick(port rbridge.Port, mac net.HardwareAddr, vid rbridge.VID, ingress rbridge.Nickname) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fdb[fdbKey{string(mac), vid}] = newFDBEntry(rbridge.FDBEntry{Port: port, VID: vid, IngressNickname: ingress})
}

// --- rbridge.Forwarding ---

func (b *Bridge) Forward(port rbridge.Port, frame *rbridge.Frame) {
	if p, ok := port.(*Port); ok {
		_ = p.Send(frame.Bytes())
	}
}

func (b *Bridge) Deliver(port rbridge.Port, frame *rbridge.Frame) {
	b.Forward(port, frame)
}

func (b *Bridge) EndstationDeliver(frame *rbridge.Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.ports {
		if p.cfg.TrillFlag {
			_ = p.Send(frame.Bytes())
		}
	}
}

func (b *Bridge) TrillFloodForward(frame *rbridge.Frame) {
	b.EndstationDeliver(frame)
}

func (b *Bridge) HandleFrameFinish(frame *rbridge.Frame) {}

func (b *Bridge) AllowedIngress(frame *rbridge.Frame) (rbridge.VID, bool) {
	return b.vlanAllow(frame)
}

// --- rbridge.BridgePort ---

func (b *Bridge) PortOf(frame *rbridge.Frame) (rbridge.Port, bool) {
	if frame.IngressPort == nil {
		return nil, false
	}
	_, ok := frame.IngressPort.(*Port)
	return frame.IngressPort, ok
}

func (b *Bridge) IsLocalGuestPort(port rbridge.Port, mac net.HardwareAddr, vid rbridge.VID) bool {
	entry, ok := b.Get(mac, vid)
	if !ok {
		return false
	}
	p, ok := entry.Port.(*Port)
	return ok && p.cfg.TrillFlag
}

func (b *Bridge) TrillFlag(port rbridge.Port) bool {
	p, ok := port.(*Port)
	return ok && p.cfg.TrillFlag
}

func (b *Bridge) GetPortVNIID(port rbridge.Port) (uint32, bool) {
	p, ok := port.(*Port)
	if !ok || p.cfg.VNIID == nil {
		return 0, false
	}
	return *p.cfg.VNIID, true
}

func (b *Bridge) PortMAC(port rbridge.Port) (net.HardwareAddr, bool) {
	p, ok := port.(*Port)
	if !ok {
		return nil, false
	}
	return p.MAC(), true
}

// --- rbridge.STP ---

func (b *Bridge) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stpRunning
}

func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stpRunning = false
}

// --- rbridge.NickResolution ---

func (b *Bridge) LookupNickFromMAC(port rbridge.Port, mac net.HardwareAddr, vid rbridge.VID) rbridge.Nickname {
	entry, ok := b.Get(mac, vid)
	if !ok {
		return rbridge.NickNone
	}
	return entry.IngressNickname
}
