package rbridge

// Port is an opaque handle identifying a bridge port. The core never
// interprets it; it is only ever handed back to the bridge_port/bridge_fdb/
// bridge_forward collaborators defined in collaborators.go, which know how
// to resolve it to whatever the hosting bridge uses internally.
type Port any

// VID is an 802.1Q VLAN identifier.
type VID uint16

// VLANTag records a hardware-accelerated 802.1Q tag carried out-of-band by
// the NIC/driver rather than inline in the frame bytes (spec.md §4.4: "if
// the buffer carries an accelerated VLAN tag, reinsert it inline and clear
// the acceleration fields").
type VLANTag struct {
	TCI uint16 // priority(3) + DEI(1) + VID(12)
}

const vlanTagLen = 4  // inline 802.1Q tag: TPID+TCI
const vlanTPID = 0x8100

// Frame is a mutable Ethernet frame buffer with sk_buff-like headroom and
// clone semantics: layers are prepended by reserving headroom in front of
// the current data rather than by allocating a new, larger buffer for
// every push, and cloning produces a fully independent copy so outer
// addresses can be rewritten per hop without one copy's mutation leaking
// into another's (spec.md §9, "per-buffer mutation vs. clone").
type Frame struct {
	buf   []byte
	start int

	// encapsulated records whether this frame currently carries a TRILL
	// shim (and outer Ethernet header) in front of an inner Ethernet
	// frame, and where that inner frame begins.
	encapsulated bool
	innerStart   int

	vlanAccel *VLANTag

	// IngressPort and VID are receive-side metadata threaded through the
	// pipeline; they are not part of the wire bytes.
	IngressPort Port
	VID         VID

	// Loopback mirrors the driver's notion of a loopback packet type
	// (e.g. Linux's PACKET_LOOPBACK skb->pkt_type); IngressClassifier
	// passes such frames straight through.
	Loopback bool
}

// defaultHeadroom is reserved in front of a freshly-received frame so the
// common case of pushing a TRILL header + outer Ethernet header never
// needs to reallocate.
const defaultHeadroom = HeaderSize + TrillOptSize + VNTExtensionSize + 14 /* ETH_HLEN */ + vlanTagLen

// NewFrame wraps data as a freshly received frame, reserving headroom for
// subsequent encapsulation so the common path doesn't reallocate.
func NewFrame(data []byte) *Frame {
	buf := make([]byte, defaultHeadroom+len(data))
	copy(buf[defaultHeadroom:], data)
	return &Frame{buf: buf, start: defaultHeadroom}
}

// newFrameNoHeadroom wraps data with zero spare headroom; used in tests
// that want to exercise the reallocating path of Push.
func newFrameNoHeadroom(data []byte) *Frame {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Frame{buf: buf, start: 0}
}

// Bytes returns the frame's current contents, i.e. everything from the
// current outermost layer onward.
func (f *Frame) Bytes() []byte {
	return f.buf[f.start:]
}

// Len returns len(f.Bytes()).
func (f *Frame) Len() int {
	return len(f.buf) - f.start
}

// Push reserves n bytes of headroom in front of the current data,
// reallocating if necessary, and returns that space for the caller to
// fill in with header bytes. It returns ErrAllocationFailure only for a
// nonsensical negative n; real allocation failure (as spec.md §7's
// AllocationFailure models) is not otherwise reachable with Go's
// allocator.
func (f *Frame) Push(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrAllocationFailure
	}
	if f.start < n {
		grow := n - f.start
		nb := make([]byte, len(f.buf)+grow)
		copy(nb[grow:], f.buf)
		f.buf = nb
		f.start += grow
		f.innerStart += grow
	}
	f.start -= n
	return f.buf[f.start : f.start+n], nil
}

// Pull strips n bytes from the front of the current data, advancing the
// start offset. It fails if fewer than n bytes remain.
func (f *Frame) Pull(n int) error {
	if f.Len() < n {
		return ErrMalformedHeader
	}
	f.start += n
	return nil
}

// MarkEncapsulated records that a TRILL shim (and outer Ethernet header)
// totaling shimLen bytes now precede the inner Ethernet frame: the inner
// frame's start is the current start offset plus shimLen, i.e. where the
// current start was before the caller pushed the shim.
func (f *Frame) MarkEncapsulated(shimLen int) {
	f.encapsulated = true
	f.innerStart = f.start + shimLen
}

// Encapsulated reports whether this frame currently carries a TRILL shim.
func (f *Frame) Encapsulated() bool {
	return f.encapsulated
}

// MarkEncapsulatedAt records that a TRILL shim (and outer Ethernet header)
// precede the inner Ethernet frame starting innerOffset bytes past the
// current start, without moving the current data pointer. Used by the
// TRILL receive path, which must keep parsing the shim after recording
// where the inner frame will resume (spec.md §4.9 step 4).
func (f *Frame) MarkEncapsulatedAt(innerOffset int) {
	f.encapsulated = true
	f.innerStart = f.start + innerOffset
}

// ResetToInner discards the outer Ethernet + TRILL header layers, making
// the previously-recorded inner Ethernet frame the current packet, and
// clears the encapsulation flag (spec.md §4.7 step 2).
func (f *Frame) ResetToInner() {
	f.start = f.innerStart
	f.encapsulated = false
}

// Clone returns an independent deep copy of the frame, including its
// current offsets and VLAN acceleration metadata. Every replicated
// multi-destination copy must be a true copy since outer addresses are
// rewritten per hop (spec.md §9).
func (f *Frame) Clone() (*Frame, error) {
	if f == nil {
		return nil, ErrAllocationFailure
	}
	nb := make([]byte, len(f.buf))
	copy(nb, f.buf)
	clone := &Frame{
		buf:          nb,
		start:        f.start,
		encapsulated: f.encapsulated,
		innerStart:   f.innerStart,
		IngressPort:  f.IngressPort,
		VID:          f.VID,
	}
	if f.vlanAccel != nil {
		v := *f.vlanAccel
		clone.vlanAccel = &v
	}
	return clone, nil
}

// VLANAccel returns the hardware-accelerated VLAN tag carried out-of-band
// by this frame, if any.
func (f *Frame) VLANAccel() *VLANTag {
	return f.vlanAccel
}

// SetVLANAccel attaches hardware-accelerated VLAN tag metadata to this
// frame (used by tests and by receive-side drivers that surface NIC VLAN
// offload).
func (f *Frame) SetVLANAccel(tag *VLANTag) {
	f.vlanAccel = tag
}

// macPairLen is the combined length of the destination and source MAC
// addresses at the front of an Ethernet header.
const macPairLen = 12

// ReinsertVLANAccel pushes an inline 802.1Q tag built from the
// accelerated VLAN tag (if any) between the two MAC addresses and the
// EtherType of the current Ethernet header, and clears the acceleration
// fields, per spec.md §4.4. It is a no-op if no accelerated tag is
// present.
func (f *Frame) ReinsertVLANAccel() error {
	if f.vlanAccel == nil {
		return nil
	}
	if f.Len() < macPairLen {
		return ErrMalformedHeader
	}
	tag := *f.vlanAccel
	f.vlanAccel = nil

	if _, err := f.Push(vlanTagLen); err != nil {
		return err
	}
	b := f.Bytes()
	// Shift the two MAC addresses forward over the space just reserved,
	// then fill the gap they vacated with the inline tag.
	copy(b, b[vlanTagLen:vlanTagLen+macPairLen])
	b[macPairLen] = byte(vlanTPID >> 8)
	b[macPairLen+1] = byte(vlanTPID & 0xff)
	b[macPairLen+2] = byte(tag.TCI >> 8)
	b[macPairLen+3] = byte(tag.TCI)
	return nil
}
