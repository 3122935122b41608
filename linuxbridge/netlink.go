package linuxbridge

import (
	"encoding/binary"
	"fmt"

	"github.com/mdlayher/netlink"

	"github.com/go-trill/rbridge/internal/unix"
)

// ifinfomsg mirrors the kernel's struct ifinfomsg: family, pad, type,
// index, flags, change.
type ifinfomsg struct {
	Family uint8
	_      uint8
	Type   uint16
	Index  int32
	Flags  uint32
	Change uint32
}

// queryMTU asks the kernel for ifindex's MTU over a raw rtnetlink socket.
// It exists to demonstrate (and exercise) the mdlayher/netlink transport
// directly, for control-plane queries this package doesn't want to model
// through a full link-attribute codec.
func queryMTU(ifindex int32) (uint32, error) {
	conn, err := netlink.Dial(0, nil) // NETLINK_ROUTE
	if err != nil {
		return 0, fmt.Errorf("linuxbridge: dial rtnetlink: %w", err)
	}
	defer conn.Close()

	body := make([]byte, 16)
	ifi := ifinfomsg{Family: unix.AF_UNSPEC, Index: ifindex}
	binary.LittleEndian.PutUint32(body[4:8], uint32(ifi.Index))

	req := netlink.Message{
		Header: netlink.Header{
			Type:  netlink.HeaderType(unix.RTM_GETLINK),
			Flags: netlink.Request | netlink.Acknowledge,
		},
		Data: body,
	}

	msgs, err := conn.Execute(req)
	if err != nil {
		return 0, fmt.Errorf("linuxbridge: RTM_GETLINK: %w", err)
	}
	for _, m := range msgs {
		if len(m.Data) < 16 {
			continue
		}
		ad, err := netlink.NewAttributeDecoder(m.Data[16:])
		if err != nil {
			continue
		}
		for ad.Next() {
			if ad.Type() == unix.IFLA_MTU {
				return ad.Uint32(), nil
			}
		}
	}
	return 0, fmt.Errorf("linuxbridge: no IFLA_MTU in reply for ifindex %d", ifindex)
}
