package rbridge

import "net"

// FDBEntry is what bridge_fdb.Get returns: the port an inner destination
// MAC is reachable on for a given VLAN, plus whatever metadata the host
// bridge records about how it learned that.
type FDBEntry struct {
	Port Port
	VID  VID

	// IngressNickname is set when this entry was learned from a TRILL
	// frame rather than from a directly-attached end station (spec.md
	// §6, bridge_fdb.update_with_nick).
	IngressNickname Nickname
}

// FDB is the bridge's MAC address forwarding database, deliberately out
// of scope per spec.md §1 and invoked here only through this narrow
// interface.
type FDB interface {
	// Get looks up the port an inner destination mac is reachable on at
	// vid.
	Get(mac net.HardwareAddr, vid VID) (FDBEntry, bool)

	// Update records (or refreshes) a learning entry for a source MAC
	// seen on port at vid.
	Update(port Port, mac net.HardwareAddr, vid VID)

	// UpdateWithNick is Update plus a record of the TRILL ingress
	// nickname the frame carrying mac arrived with (spec.md §4.7 step 3,
	// §4.8 step 6b, §4.9 step 6).
	UpdateWithNick(port Port, mac net.HardwareAddr, vid VID, ingress Nickname)
}

// Forwarding is the bridge's outbound packet primitives, per spec.md §6
// bridge_forward.
type Forwarding interface {
	// Forward hands frame to a specific port's transmit path (spec.md
	// §4.5 step 4, the "per-port forward primitive").
	Forward(port Port, frame *Frame)

	// Deliver hands frame to a specific port's local-delivery path
	// (spec.md §4.7 step 4, the "per-port deliver primitive").
	Deliver(port Port, frame *Frame)

	// EndstationDeliver broadcasts frame to this bridge's locally
	// attached end stations (spec.md §4.4 step 2, the local-delivery
	// interface used for the multi-destination clone).
	EndstationDeliver(frame *Frame)

	// TrillFloodForward hands frame to the bridge's TRILL-flood
	// primitive, used by the Forwarder when the fdb has no entry for the
	// inner destination (spec.md §4.5 step 4). Decapsulate floods through
	// EndstationDeliver instead.
	TrillFloodForward(frame *Frame)

	// HandleFrameFinish is invoked on every exit path that hands a frame
	// off to one of the primitives above, mirroring the bridge's
	// post-processing hook (e.g. statistics, tracing).
	HandleFrameFinish(frame *Frame)

	// AllowedIngress applies the bridge's VLAN ingress policy to frame
	// and returns the resolved VID, or false if the frame is rejected
	// (spec.md §4.8 step 4).
	AllowedIngress(frame *Frame) (VID, bool)
}

// BridgePort is the per-port metadata and lookup primitives of spec.md §6
// bridge_port.
type BridgePort interface {
	// PortOf resolves the port a frame arrived on, if any.
	PortOf(frame *Frame) (Port, bool)

	// IsLocalGuestPort reports whether mac is reachable on a local guest
	// port at vid (spec.md §4.8 step 6a).
	IsLocalGuestPort(port Port, mac net.HardwareAddr, vid VID) bool

	// TrillFlag reports whether port is configured as a guest
	// (end-station-facing) port versus a fabric port (spec.md §4.8).
	TrillFlag(port Port) bool

	// GetPortVNIID returns the virtual network id configured for port,
	// if any.
	GetPortVNIID(port Port) (uint32, bool)

	// PortMAC returns port's own device MAC, used by the Forwarder to
	// overwrite the outer source address on an fdb hit (spec.md §4.5
	// step 4).
	PortMAC(port Port) (net.HardwareAddr, bool)
}

// STP is the minimal Spanning Tree Protocol collaborator, used only to
// enforce spec.md §3 invariant 1 (TRILL and STP are mutually exclusive).
type STP interface {
	// Running reports whether STP is currently active on bridge.
	Running() bool

	// Stop halts STP processing on bridge.
	Stop()
}

// NickResolution is the control-plane-maintained MAC-to-RBridge mapping
// of spec.md §6.
type NickResolution interface {
	// LookupNickFromMAC resolves the egress nickname to use for a given
	// destination mac at vid on port, or NickNone to request flooding.
	LookupNickFromMAC(port Port, mac net.HardwareAddr, vid VID) Nickname
}

// VNI is the optional virtual-network-tagging collaborator of spec.md §6,
// used only when VNT is enabled.
type VNI interface {
	// FindVNI resolves a configured vni id to whatever handle
	// VNIFloodDeliver expects.
	FindVNI(id uint32) (any, bool)

	// VNIFloodDeliver floods frame to every port in vni's flood set.
	// freeOnExhaustion mirrors the Replicator/Forwarder convention: true
	// if the caller wants frame freed when there are no receivers.
	VNIFloodDeliver(vni any, frame *Frame, freeOnExhaustion bool)
}
