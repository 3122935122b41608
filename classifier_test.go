package rbridge

import (
	"fmt"
	"net"
	"testing"
)

// fakeFDB mirrors the real FDB's (mac, vid) key shape closely enough to
// exercise Get/Update/UpdateWithNick in isolation from any real bridge.
type fakeFDB struct {
	entries map[string]FDBEntry
}

func newFakeFDB() *fakeFDB {
	return &fakeFDB{entries: make(map[string]FDBEntry)}
}

func fdbKeyFor(mac net.HardwareAddr, vid VID) string {
	return fmt.Sprintf("%s|%d", mac.String(), vid)
}

func (f *fakeFDB) Get(mac net.HardwareAddr, vid VID) (FDBEntry, bool) {
	e, ok := f.entries[fdbKeyFor(mac, vid)]
	return e, ok
}

func (f *fakeFDB) Update(port Port, mac net.HardwareAddr, vid VID) {
	f.entries[fdbKeyFor(mac, vid)] = FDBEntry{Port: port, VID: vid}
}

func (f *fakeFDB) UpdateWithNick(port Port, mac net.HardwareAddr, vid VID, ingress Nickname) {
	f.entries[fdbKeyFor(mac, vid)] = FDBEntry{Port: port, VID: vid, IngressNickname: ingress}
}

func (f *fakeFDB) set(mac net.HardwareAddr, vid VID, entry FDBEntry) {
	f.entries[fdbKeyFor(mac, vid)] = entry
}

// fakeForwarding records every call made to it so tests can assert on call
// counts and arguments instead of needing a real bridge datapath.
type fakeForwarding struct {
	forwarded    []Port
	delivered    []Port
	endstation   int
	floodForward int
	finishes     int
	vid          VID
	allow        bool
}

func (f *fakeForwarding) Forward(port Port, frame *Frame)       { f.forwarded = append(f.forwarded, port) }
func (f *fakeForwarding) Deliver(port Port, frame *Frame)       { f.delivered = append(f.delivered, port) }
func (f *fakeForwarding) EndstationDeliver(frame *Frame)        { f.endstation++ }
func (f *fakeForwarding) TrillFloodForward(frame *Frame)        { f.floodForward++ }
func (f *fakeForwarding) HandleFrameFinish(frame *Frame)        { f.finishes++ }
func (f *fakeForwarding) AllowedIngress(frame *Frame) (VID, bool) {
	return f.vid, f.allow
}

type fakeBridgePort struct {
	trillFlag       map[Port]bool
	vni             map[Port]uint32
	mac             map[Port]net.HardwareAddr
	isLocalGuest    bool
}

func newFakeBridgePort() *fakeBridgePort {
	return &fakeBridgePort{
		trillFlag: make(map[Port]bool),
		vni:       make(map[Port]uint32),
		mac:       make(map[Port]net.HardwareAddr),
	}
}

func (p *fakeBridgePort) PortOf(frame *Frame) (Port, bool) {
	if frame.IngressPort == nil {
		return nil, false
	}
	return frame.IngressPort, true
}

func (p *fakeBridgePort) IsLocalGuestPort(port Port, mac net.HardwareAddr, vid VID) bool {
	return p.isLocalGuest
}

func (p *fakeBridgePort) TrillFlag(port Port) bool {
	return p.trillFlag[port]
}

func (p *fakeBridgePort) GetPortVNIID(port Port) (uint32, bool) {
	id, ok := p.vni[port]
	return id, ok
}

func (p *fakeBridgePort) PortMAC(port Port) (net.HardwareAddr, bool) {
	mac, ok := p.mac[port]
	return mac, ok
}

type fakeNickResolution struct {
	byDst map[string]Nickname
}

func (r *fakeNickResolution) LookupNickFromMAC(port Port, mac net.HardwareAddr, vid VID) Nickname {
	if nick, ok := r.byDst[mac.String()]; ok {
		return nick
	}
	return NickNone
}

type fakeSTP struct{ running bool }

func (s *fakeSTP) Running() bool { return s.running }
func (s *fakeSTP) Stop()         { s.running = false }

// classifierFixture wires a Bridge against the fakes above so each test
// only has to set up the collaborator state its scenario needs.
type classifierFixture struct {
	bridge *Bridge
	state  *RbrState

	fdb  *fakeFDB
	fwd  *fakeForwarding
	port *fakeBridgePort
	nres *fakeNickResolution
}

func newClassifierFixture(t *testing.T, localNick Nickname) *classifierFixture {
	t.Helper()

	bridge := NewBridge(mustMAC("02:00:00:00:00:ff"), nil)
	fx := &classifierFixture{
		bridge: bridge,
		fdb:    newFakeFDB(),
		fwd:    &fakeForwarding{allow: true, vid: 0},
		port:   newFakeBridgePort(),
		nres:   &fakeNickResolution{byDst: make(map[string]Nickname)},
	}
	bridge.FDB = fx.fdb
	bridge.Forwarding = fx.fwd
	bridge.Port = fx.port
	bridge.STP = &fakeSTP{}
	bridge.NickResolution = fx.nres

	state, err := Enable(bridge, 0, Features{})
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if localNick.Valid() {
		if err := state.SetLocalNickname(localNick); err != nil {
			t.Fatalf("SetLocalNickname: %v", err)
		}
	}
	fx.state = state
	return fx
}

func innerFrameBytes(dst, src net.HardwareAddr) []byte {
	b := make([]byte, EthHLen+4)
	writeEthHeader(b, dst, src, 0x0800)
	copy(b[EthHLen:], []byte{0xDE, 0xAD, 0xBE, 0xEF})
	return b
}

func buildTrillFrame(outerDst, outerSrc net.HardwareAddr, hdr TrillHeader, inner []byte) *Frame {
	hdrBytes, err := hdr.MarshalBinary()
	if err != nil {
		panic(err)
	}
	full := make([]byte, 0, EthHLen+len(hdrBytes)+len(inner))
	outer := make([]byte, EthHLen)
	writeEthHeader(outer, outerDst, outerSrc, EtherTypeTRILL)
	full = append(full, outer...)
	full = append(full, hdrBytes...)
	full = append(full, inner...)
	return newFrameNoHeadroom(full)
}

// Scenario 1: ingress classification of a guest-port frame whose
// destination resolves to a remote nickname encapsulates it and forwards
// it into the fabric (spec.md §8 "unicast encapsulation").
func TestReceiveUnicastEncapsulation(t *testing.T) {
	fx := newClassifierFixture(t, 10)

	neighborMAC := mustMAC("aa:aa:aa:aa:aa:aa")
	if err := fx.state.InstallNeighbor(20, NeighborInfo{AdjSNPA: neighborMAC}); err != nil {
		t.Fatalf("InstallNeighbor: %v", err)
	}

	guestDst := mustMAC("00:11:22:33:44:55")
	guestSrc := mustMAC("00:66:77:88:99:aa")
	fx.nres.byDst[guestDst.String()] = 20

	fx.port.trillFlag["guest1"] = true
	fx.port.isLocalGuest = false

	frame := NewFrame(innerFrameBytes(guestDst, guestSrc))
	frame.IngressPort = "guest1"

	consumed := Receive(fx.state, frame)
	if !consumed {
		t.Fatal("expected Receive to consume the frame")
	}

	if fx.fwd.floodForward != 1 {
		t.Fatalf("floodForward calls = %d, want 1 (no fdb entry for inner dst)", fx.fwd.floodForward)
	}

	b := frame.Bytes()
	if readEthType(b) != EtherTypeTRILL {
		t.Fatalf("outer EtherType = %#x, want TRILL", readEthType(b))
	}
	if !macEqual(readEthDst(b), neighborMAC) {
		t.Fatalf("outer dst = %v, want neighbor AdjSNPA %v", readEthDst(b), neighborMAC)
	}

	var hdr TrillHeader
	if err := hdr.UnmarshalBinary(b[EthHLen:]); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if hdr.EgressNickname != 20 || hdr.IngressNickname != 10 {
		t.Fatalf("header nicknames = egress %v ingress %v, want 20/10", hdr.EgressNickname, hdr.IngressNickname)
	}
	if hdr.HopCount != DefaultHopCount-1 {
		t.Fatalf("HopCount = %d, want %d (Forward decrements once after encapsulation seeds the default)", hdr.HopCount, DefaultHopCount-1)
	}
}

// Scenario 2: a fabric-port TRILL frame whose egress nickname is neither
// local nor the ingress transits onward with its hop count decremented
// (spec.md §8 "unicast transit").
func TestReceiveUnicastTransitForward(t *testing.T) {
	fx := newClassifierFixture(t, 10)

	nextHopMAC := mustMAC("bb:bb:bb:bb:bb:bb")
	if err := fx.state.InstallNeighbor(30, NeighborInfo{AdjSNPA: nextHopMAC}); err != nil {
		t.Fatalf("InstallNeighbor: %v", err)
	}

	fx.port.trillFlag["fabric1"] = false

	hdr := TrillHeader{
		Version:         TrillProtocolVersion,
		HopCount:        5,
		EgressNickname:  30,
		IngressNickname: 40,
	}
	frame := buildTrillFrame(fx.bridge.MAC, mustMAC("cc:cc:cc:cc:cc:cc"), hdr, innerFrameBytes(mustMAC("11:22:33:44:55:66"), mustMAC("66:55:44:33:22:11")))
	frame.IngressPort = "fabric1"

	consumed := Receive(fx.state, frame)
	if !consumed {
		t.Fatal("expected Receive to consume the frame")
	}
	if fx.fwd.floodForward != 1 {
		t.Fatalf("floodForward calls = %d, want 1", fx.fwd.floodForward)
	}

	b := frame.Bytes()
	var got TrillHeader
	if err := got.UnmarshalBinary(b[EthHLen:]); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.HopCount != 4 {
		t.Fatalf("HopCount = %d, want 4", got.HopCount)
	}
	if !macEqual(readEthDst(b), nextHopMAC) {
		t.Fatalf("outer dst = %v, want next-hop AdjSNPA %v", readEthDst(b), nextHopMAC)
	}
}

// Scenario 3: a unicast TRILL frame addressed to the local nickname is
// decapsulated and delivered (spec.md §8 "decapsulation").
func TestReceiveUnicastDecapsulation(t *testing.T) {
	fx := newClassifierFixture(t, 10)
	fx.port.trillFlag["fabric1"] = false

	inner := innerFrameBytes(mustMAC("11:22:33:44:55:66"), mustMAC("66:55:44:33:22:11"))
	hdr := TrillHeader{
		Version:         TrillProtocolVersion,
		HopCount:        5,
		EgressNickname:  10,
		IngressNickname: 40,
	}
	frame := buildTrillFrame(fx.bridge.MAC, mustMAC("cc:cc:cc:cc:cc:cc"), hdr, inner)
	frame.IngressPort = "fabric1"

	if !Receive(fx.state, frame) {
		t.Fatal("expected Receive to consume the frame")
	}

	if fx.fwd.endstation != 1 {
		t.Fatalf("endstation deliveries = %d, want 1 (no fdb entry for inner dst)", fx.fwd.endstation)
	}
	if got := frame.Bytes(); string(got) != string(inner) {
		t.Fatalf("Bytes() after decapsulation = %x, want %x", got, inner)
	}
}

// Scenario 4: a multi-destination TRILL frame is both replicated along the
// surviving adjacencies of its distribution tree and locally decapsulated
// (spec.md §8 "multi-destination replication").
func TestReceiveMultiDestinationReplicates(t *testing.T) {
	fx := newClassifierFixture(t, 10)
	fx.port.trillFlag["fabric1"] = false

	arrivedFromMAC := mustMAC("02:02:03:04:05:06")
	adj2MAC := mustMAC("02:02:02:02:02:02")
	adj3MAC := mustMAC("03:03:03:03:03:03")

	// Neighbor 201 is both where the frame physically arrived from and the
	// header's ingress nickname.
	if err := fx.state.InstallNeighbor(201, NeighborInfo{AdjSNPA: arrivedFromMAC, DTRoots: []Nickname{100}}); err != nil {
		t.Fatalf("InstallNeighbor(201): %v", err)
	}
	if err := fx.state.InstallNeighbor(202, NeighborInfo{AdjSNPA: adj2MAC}); err != nil {
		t.Fatalf("InstallNeighbor(202): %v", err)
	}
	if err := fx.state.InstallNeighbor(203, NeighborInfo{AdjSNPA: adj3MAC}); err != nil {
		t.Fatalf("InstallNeighbor(203): %v", err)
	}
	if err := fx.state.InstallNeighbor(100, NeighborInfo{Adjacencies: []Nickname{201, 202, 203}}); err != nil {
		t.Fatalf("InstallNeighbor(100): %v", err)
	}

	hdr := TrillHeader{
		Version:          TrillProtocolVersion,
		MultiDestination: true,
		HopCount:         5,
		EgressNickname:   100, // tree root
		IngressNickname:  201,
	}
	inner := innerFrameBytes(mustMAC("ff:ff:ff:ff:ff:ff"), mustMAC("11:11:11:11:11:11"))
	frame := buildTrillFrame(fx.bridge.MAC, arrivedFromMAC, hdr, inner)
	frame.IngressPort = "fabric1"

	if !Receive(fx.state, frame) {
		t.Fatal("expected Receive to consume the frame")
	}

	// Replicate forwards to the two surviving adjacencies (202, 203); with
	// no fdb entry for the inner destination on either, both fall through
	// to the flood primitive.
	if fx.fwd.floodForward != 2 {
		t.Fatalf("floodForward calls = %d, want 2", fx.fwd.floodForward)
	}
	// The original buffer is decapsulated and delivered locally.
	if fx.fwd.endstation != 1 {
		t.Fatalf("endstation deliveries = %d, want 1", fx.fwd.endstation)
	}
	if fx.bridge.Stats.RxDropped.Total() != 0 {
		t.Fatalf("RxDropped.Total() = %d, want 0", fx.bridge.Stats.RxDropped.Total())
	}
}

// Scenario 5: a multi-destination frame whose egress (tree-root) nickname
// is not among the ingress nickname's advertised tree roots fails the
// reverse-path-forwarding check and is dropped (spec.md §8 "RPF failure").
func TestReceiveMultiDestinationFailsRPF(t *testing.T) {
	fx := newClassifierFixture(t, 10)
	fx.port.trillFlag["fabric1"] = false

	arrivedFromMAC := mustMAC("02:02:03:04:05:06")
	if err := fx.state.InstallNeighbor(201, NeighborInfo{
		AdjSNPA: arrivedFromMAC,
		DTRoots: []Nickname{999}, // does not include the egress/root nickname
	}); err != nil {
		t.Fatalf("InstallNeighbor(201): %v", err)
	}
	if err := fx.state.InstallNeighbor(100, NeighborInfo{Adjacencies: []Nickname{201}}); err != nil {
		t.Fatalf("InstallNeighbor(100): %v", err)
	}
	// TreeRoot left at NickNone, so the "no dt_roots advertised" exception
	// does not apply here either (DTRoots is non-empty).

	hdr := TrillHeader{
		Version:          TrillProtocolVersion,
		MultiDestination: true,
		HopCount:         5,
		EgressNickname:   100,
		IngressNickname:  201,
	}
	frame := buildTrillFrame(fx.bridge.MAC, arrivedFromMAC, hdr, innerFrameBytes(mustMAC("ff:ff:ff:ff:ff:ff"), mustMAC("11:11:11:11:11:11")))
	frame.IngressPort = "fabric1"

	if !Receive(fx.state, frame) {
		t.Fatal("expected Receive to consume the frame")
	}

	if fx.fwd.floodForward != 0 || fx.fwd.endstation != 0 {
		t.Fatalf("expected no forwarding or delivery, got flood=%d endstation=%d", fx.fwd.floodForward, fx.fwd.endstation)
	}
	if got := fx.bridge.Stats.RxDropped.Value(ErrFailedRPF); got != 1 {
		t.Fatalf("RxDropped[ErrFailedRPF] = %d, want 1", got)
	}
}

// Scenario 6: a TRILL frame whose ingress nickname equals the local
// nickname indicates the frame looped back to its originator and must be
// dropped rather than reprocessed (spec.md §8 "loop guard").
func TestReceiveTrillSelfLoopDropped(t *testing.T) {
	fx := newClassifierFixture(t, 10)
	fx.port.trillFlag["fabric1"] = false

	hdr := TrillHeader{
		Version:         TrillProtocolVersion,
		HopCount:        5,
		EgressNickname:  30,
		IngressNickname: 10, // matches local nickname
	}
	frame := buildTrillFrame(fx.bridge.MAC, mustMAC("cc:cc:cc:cc:cc:cc"), hdr, innerFrameBytes(mustMAC("11:22:33:44:55:66"), mustMAC("66:55:44:33:22:11")))
	frame.IngressPort = "fabric1"

	if !Receive(fx.state, frame) {
		t.Fatal("expected Receive to consume the frame")
	}

	if fx.fwd.floodForward != 0 || fx.fwd.endstation != 0 || len(fx.fwd.forwarded) != 0 {
		t.Fatal("expected no forwarding or delivery for a self-loop frame")
	}
	if got := fx.bridge.Stats.RxDropped.Value(ErrLoopDetected); got != 1 {
		t.Fatalf("RxDropped[ErrLoopDetected] = %d, want 1", got)
	}
}

// Receive must pass loopback-marked frames straight through without
// consuming them, regardless of TRILL enablement (spec.md §4.8 step 1).
func TestReceivePassesThroughLoopbackFrames(t *testing.T) {
	fx := newClassifierFixture(t, 10)
	frame := NewFrame(innerFrameBytes(mustMAC("11:22:33:44:55:66"), mustMAC("66:55:44:33:22:11")))
	frame.Loopback = true

	if Receive(fx.state, frame) {
		t.Fatal("expected Receive to pass a loopback frame through")
	}
}

// Receive must pass every frame through untouched while TRILL is disabled.
func TestReceivePassesThroughWhenDisabled(t *testing.T) {
	fx := newClassifierFixture(t, 10)
	Disable(fx.bridge)

	frame := NewFrame(innerFrameBytes(mustMAC("11:22:33:44:55:66"), mustMAC("66:55:44:33:22:11")))
	if Receive(fx.state, frame) {
		t.Fatal("expected Receive to pass frames through once TRILL is disabled")
	}
}
