// Package xdpfilter is a placeholder for an optional fast-path offload:
// attaching an XDP program ahead of the AF_PACKET socket the data-plane
// core reads from, so a future revision can classify and drop traffic
// IngressClassifier would reject anyway before it ever reaches userspace.
// The program this package currently loads is an unconditional XDP_PASS —
// it proves out the load/attach/detach lifecycle but does no
// classification of its own yet; every packet still takes the normal
// receive path into the AF_PACKET socket and is triaged there.
//
// This is strictly an optimization; the rbridge package's correctness
// never depends on it being loaded.
package xdpfilter

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
)

const etherTypeTRILL = 0x22F3

// Attachment holds the loaded program and its live link to an interface.
type Attachment struct {
	prog *ebpf.Program
	link link.Link
}

// Attach loads the XDP passthrough program and attaches it to ifindex.
// Callers must have CAP_SYS_ADMIN (or CAP_BPF+CAP_NET_ADMIN on newer
// kernels); RemoveMemlock lifts the RLIMIT_MEMLOCK cap the kernel still
// enforces on some configurations.
func Attach(ifindex int) (*Attachment, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("xdpfilter: remove memlock rlimit: %w", err)
	}

	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Type: ebpf.XDP,
		Instructions: asm.Instructions{
			// XDP_PASS unconditionally. See the package doc comment:
			// this is the load/attach/detach skeleton, not yet the
			// EtherType classifier the offload is meant to grow into.
			asm.LoadImm(asm.R0, 2 /* XDP_PASS */, asm.DWord),
			asm.Return(),
		},
		License: "GPL",
	})
	if err != nil {
		return nil, fmt.Errorf("xdpfilter: load program: %w", err)
	}

	lnk, err := link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: ifindex,
	})
	if err != nil {
		prog.Close()
		return nil, fmt.Errorf("xdpfilter: attach to ifindex %d: %w", ifindex, err)
	}

	return &Attachment{prog: prog, link: lnk}, nil
}

// Close detaches the program and releases its file descriptors.
func (a *Attachment) Close() error {
	linkErr := a.link.Close()
	progErr := a.prog.Close()
	if linkErr != nil {
		return linkErr
	}
	return progErr
}
