// Package linuxbridge is a reference implementation of the rbridge
// package's external collaborator interfaces (FDB, Forwarding,
// BridgePort, STP, NickResolution, VNI) on top of a real Linux bridge:
// AF_PACKET raw sockets for the data path, a classic BPF pre-filter on
// fabric ports so only TRILL-EtherType and BPDU frames reach userspace
// there, and
// mdlayher/netlink for control-plane link/attribute queries.
package linuxbridge

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/go-trill/rbridge"
)

// minTrillMTU is the smallest interface MTU this bridge will open a fabric
// port on: the classic minimum IPv4 MTU, plus headroom for the largest
// TRILL shim form (fixed header, TrillOpt, and a VNT extension) this
// codec can emit. This is only a sanity floor against pathologically
// small interfaces at open time; it does not bound per-frame size against
// Port.MTU() on the encapsulation path, so a near-MTU end-station frame
// can still grow past the link MTU once shimmed.
const minTrillMTU = 68 + rbridge.HeaderSize + rbridge.TrillOptSize + rbridge.VNTExtensionSize

// PortConfig is the static, control-plane-supplied configuration of one
// bridge port.
type PortConfig struct {
	Name      string
	TrillFlag bool    // true: end-station-facing guest port; false: fabric port
	VNIID     *uint32 // nil: no VNI configured on this port
}

// Port is a bridge port backed by a real network interface: an AF_PACKET
// raw socket bound to it. On a fabric port a classic BPF pre-filter is
// installed so only TRILL and BPDU frames are delivered to userspace; a
// guest port receives every frame.
type Port struct {
	cfg PortConfig

	ifi *net.Interface
	fd  int
	mtu uint32
}

// OpenPort binds an AF_PACKET socket to the named interface and, when cfg
// describes a fabric port, installs the TRILL pre-filter (see filter.go).
func OpenPort(cfg PortConfig) (*Port, error) {
	ifi, err := net.InterfaceByName(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("linuxbridge: resolve interface %s: %w", cfg.Name, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, htons(unix.ETH_P_ALL))
	if err != nil {
		return nil, fmt.Errorf("linuxbridge: open AF_PACKET socket: %w", err)
	}

	if !cfg.TrillFlag {
		if err := attachTrillFilter(fd); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("linuxbridge: attach BPF filter: %w", err)
		}
	}

	addr := unix.SockaddrLinklayer{
		Protocol: uint16(htons(unix.ETH_P_ALL)),
		Ifindex:  ifi.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("linuxbridge: bind to %s: %w", cfg.Name, err)
	}

	mtu, err := queryMTU(int32(ifi.Index))
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("linuxbridge: query MTU for %s: %w", cfg.Name, err)
	}
	if mtu < minTrillMTU {
		unix.Close(fd)
		return nil, fmt.Errorf("linuxbridge: %s MTU %d is below the %d this bridge needs for TRILL encapsulation overhead", cfg.Name, mtu, minTrillMTU)
	}

	return &Port{cfg: cfg, ifi: ifi, fd: fd, mtu: mtu}, nil
}

// Close releases the port's socket.
func (p *Port) Close() error {
	return unix.Close(p.fd)
}

// MAC returns the port's own device MAC address.
func (p *Port) MAC() net.HardwareAddr {
	return p.ifi.HardwareAddr
}

// MTU returns the interface's MTU as queried at OpenPort time.
func (p *Port) MTU() uint32 {
	return p.mtu
}

// Send transmits raw to the wire, unchanged.
func (p *Port) Send(raw []byte) error {
	addr := unix.SockaddrLinklayer{Ifindex: p.ifi.Index}
	return unix.Sendto(p.fd, raw, 0, &addr)
}

// htons converts a uint16 from host to network byte order. AF_PACKET
// socket() and sockaddr_ll both expect the protocol field in network byte
// order regardless of host endianness.
func htons(v int) int {
	return int(uint16(v)>>8) | int(uint16(v)<<8)&0xff00
}
