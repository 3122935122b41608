package linuxbridge

import (
	"unsafe"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/go-trill/rbridge"
)

// bpduGroupHigh/bpduGroupLow are the BPDU group MAC 01:80:C2:00:00:00
// split into the 4-byte and 2-byte loads a classic BPF program can
// address it with.
const (
	bpduGroupHigh = 0x0180C200
	bpduGroupLow  = 0x0000
)

// attachTrillFilter installs a classic BPF program on fd that drops
// every frame except those carrying the TRILL EtherType or addressed to
// the BPDU group MAC; everything else is discarded by the kernel before
// it is ever copied into a socket buffer. OpenPort attaches it to fabric
// ports only, since a guest port's end-station frames are all input to
// IngressClassifier.
func attachTrillFilter(fd int) error {
	prog, err := bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},                                        // 0: EtherType
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: rbridge.EtherTypeTRILL, SkipTrue: 4}, // 1: -> accept
		bpf.LoadAbsolute{Off: 0, Size: 4},                                         // 2: dst MAC[0:4]
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: bpduGroupHigh, SkipFalse: 3},         // 3: -> reject
		bpf.LoadAbsolute{Off: 4, Size: 2},                                         // 4: dst MAC[4:6]
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: bpduGroupLow, SkipFalse: 1},          // 5: -> reject
		bpf.RetConstant{Val: 0x40000},                                             // 6: accept up to 256KiB
		bpf.RetConstant{Val: 0},                                                   // 7: reject
	})
	if err != nil {
		return err
	}

	raw := make([]unix.SockFilter, len(prog))
	for i, ins := range prog {
		raw[i] = unix.SockFilter{
			Code: ins.Op,
			Jt:   ins.Jt,
			Jf:   ins.Jf,
			K:    ins.K,
		}
	}
	fprog := unix.SockFprog{
		Len:    uint16(len(raw)),
		Filter: (*unix.SockFilter)(unsafe.Pointer(&raw[0])),
	}
	return unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &fprog)
}
