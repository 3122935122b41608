package rbridge

import (
	"encoding/binary"
	"fmt"
)

// TrillProtocolVersion is the only version this codec understands. Per
// spec.md §4.3/§4.9, a frame whose version does not match is malformed.
const TrillProtocolVersion = 0

// EtherTypeTRILL is the outer Ethernet EtherType carried by TRILL-
// encapsulated frames.
const EtherTypeTRILL = 0x22F3

// DefaultHopCount is the hop count a fresh encapsulation is seeded with
// (spec.md §4.3: "initial hop count on encapsulation is a configured
// default"). 21 matches the value the originating RFC 6325 implementation
// uses as its compiled-in default.
const DefaultHopCount = 21

// HeaderSize is the fixed, non-optional size of the TRILL shim header in
// bytes (flags word + egress nickname + ingress nickname).
const HeaderSize = 6

// TrillOptSize is the size in bytes of the fixed TrillOpt extension.
const TrillOptSize = 8

// VNTExtensionSize is the size in bytes of the VNT extension that may
// follow a TrillOpt.
const VNTExtensionSize = 4

// optLenUnit is the unit (in octets) that opt_len is expressed in.
const optLenUnit = 4

// TrillHeader is the bit-exact TRILL shim header described in spec.md
// §4.3: a 16-bit flags word (version/reserved/multi_destination/opt_len/
// hop_count), a 16-bit egress nickname and a 16-bit ingress nickname, all
// in network byte order.
//
// This is deliberately coded directly against encoding/binary rather than
// through the mdlayher/netlink attribute encoder this repository otherwise
// uses for IFLA_*/NDA_* TLVs: the TRILL header is a fixed, non-TLV,
// big-endian structure, and netlink's attribute model (and the host-order
// nlenc helpers built for it) doesn't apply to it. See DESIGN.md.
type TrillHeader struct {
	Version          uint8
	MultiDestination bool
	OptLen           uint8 // in 4-octet units
	HopCount         uint8 // 6 bits, 0-63
	EgressNickname   Nickname
	IngressNickname  Nickname
}

// flags word bit layout, MSB first: version(2) reserved(2) multi_dest(1) opt_len(5) hop_count(6)
const (
	flagsVersionShift = 14
	flagsVersionMask  = 0x3
	flagsReservedMask = 0x3 // bits 13:12, unused
	flagsMDShift      = 11
	flagsMDMask       = 0x1
	flagsOptLenShift  = 6
	flagsOptLenMask   = 0x1F
	flagsHopMask      = 0x3F
)

// MarshalBinary encodes the fixed 6-byte TRILL header. It does not encode
// any optional extension; callers that set OptLen > 0 must separately
// marshal the TrillOpt (and VNT extension, if present) and place them
// immediately after these 6 bytes, per spec.md §4.3.
func (h TrillHeader) MarshalBinary() ([]byte, error) {
	if h.HopCount > flagsHopMask {
		return nil, fmt.Errorf("%w: hop count %d exceeds 6 bits", ErrMalformedHeader, h.HopCount)
	}
	if h.OptLen > flagsOptLenMask {
		return nil, fmt.Errorf("%w: opt_len %d exceeds 5 bits", ErrMalformedHeader, h.OptLen)
	}

	b := make([]byte, HeaderSize)

	flags := uint16(h.Version&flagsVersionMask) << flagsVersionShift
	if h.MultiDestination {
		flags |= 1 << flagsMDShift
	}
	flags |= uint16(h.OptLen&flagsOptLenMask) << flagsOptLenShift
	flags |= uint16(h.HopCount) & flagsHopMask

	binary.BigEndian.PutUint16(b[0:2], flags)
	binary.BigEndian.PutUint16(b[2:4], uint16(h.EgressNickname))
	binary.BigEndian.PutUint16(b[4:6], uint16(h.IngressNickname))

	return b, nil
}

// UnmarshalBinary decodes the fixed 6-byte TRILL header from the front of
// b. It does not consume or validate any optional extension area; callers
// must separately parse TrhSize()-HeaderSize further bytes when OptLen > 0.
func (h *TrillHeader) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("%w: buffer shorter than TRILL header", ErrMalformedHeader)
	}

	flags := binary.BigEndian.Uint16(b[0:2])

	h.Version = uint8(flags>>flagsVersionShift) & flagsVersionMask
	h.MultiDestination = (flags>>flagsMDShift)&flagsMDMask != 0
	h.OptLen = uint8(flags>>flagsOptLenShift) & flagsOptLenMask
	h.HopCount = uint8(flags & flagsHopMask)
	h.EgressNickname = Nickname(binary.BigEndian.Uint16(b[2:4]))
	h.IngressNickname = Nickname(binary.BigEndian.Uint16(b[4:6]))

	return nil
}

// TrhSize returns the total size of the TRILL shim header including any
// optional extension area: 6 + opt_len*4, per spec.md §4.9 step 2.
func (h TrillHeader) TrhSize() int {
	return HeaderSize + int(h.OptLen)*optLenUnit
}

// DecrementHopCount decrements the hop count in place. The caller is
// responsible for having checked HopCount > 0 first (spec.md §4.5 step 2
// and §4.9 step 6).
func (h *TrillHeader) DecrementHopCount() {
	h.HopCount--
}

// TrillOpt is the fixed 8-octet optional extension header: two 32-bit
// fields, OptFlag and OptFlow (spec.md §4.3).
type TrillOpt struct {
	OptFlag uint32
	OptFlow uint32
}

// MarshalBinary encodes the 8-byte TrillOpt.
func (o TrillOpt) MarshalBinary() ([]byte, error) {
	b := make([]byte, TrillOptSize)
	binary.BigEndian.PutUint32(b[0:4], o.OptFlag)
	binary.BigEndian.PutUint32(b[4:8], o.OptFlow)
	return b, nil
}

// UnmarshalBinary decodes an 8-byte TrillOpt from the front of b.
func (o *TrillOpt) UnmarshalBinary(b []byte) error {
	if len(b) < TrillOptSize {
		return fmt.Errorf("%w: buffer shorter than TrillOpt", ErrMalformedHeader)
	}
	o.OptFlag = binary.BigEndian.Uint32(b[0:4])
	o.OptFlow = binary.BigEndian.Uint32(b[4:8])
	return nil
}

// VNTExtensionType is the extension type value a TrillOpt.OptFlag must
// carry (via extensionType) for the following 4 octets to be interpreted
// as a VNTExtension.
const VNTExtensionType uint8 = 0x1

// extensionType extracts the extension type byte from a TrillOpt's
// OptFlag. The high byte of OptFlag carries the type in this codec's
// layout, mirroring the source's trill_extension_get_type accessor
// referenced in spec.md §9.
func extensionType(optFlag uint32) uint8 {
	return uint8(optFlag >> 24)
}

// VNTExtension is the optional 4-octet virtual-network-tagging extension
// that may follow a TrillOpt, carrying a 24-bit virtual network
// identifier (spec.md §4.3, Glossary "VNT / VNI"). Per spec.md's
// "{flags16, reserved16, vni24-in-flags-and-reserved}", the 24-bit VNI
// overlaps the low byte of the nominal 16-bit flags word and the whole of
// the nominal 16-bit reserved word: Flags occupies the top 8 bits of the
// 4-octet extension, and the remaining 24 bits carry the VNI.
type VNTExtension struct {
	Flags uint8
	VNI   uint32 // low 24 bits significant; upper byte always 0
}

const vniMask = 0x00FFFFFF

// MarshalBinary encodes the 4-byte VNTExtension.
func (v VNTExtension) MarshalBinary() ([]byte, error) {
	b := make([]byte, VNTExtensionSize)
	word := uint32(v.Flags)<<24 | (v.VNI & vniMask)
	binary.BigEndian.PutUint32(b, word)
	return b, nil
}

// UnmarshalBinary decodes a 4-byte VNTExtension from the front of b.
func (v *VNTExtension) UnmarshalBinary(b []byte) error {
	if len(b) < VNTExtensionSize {
		return fmt.Errorf("%w: buffer shorter than VNTExtension", ErrMalformedHeader)
	}
	word := binary.BigEndian.Uint32(b)
	v.Flags = uint8(word >> 24)
	v.VNI = word & vniMask
	return nil
}
