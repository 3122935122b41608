package rbridge

import "net"

// Encapsulate takes an inbound end-station frame plus the resolved egress
// decision and pushes a TRILL shim and outer Ethernet header in front of
// it, then dispatches to the Forwarder (unicast) or Replicator
// (multi-destination), per spec.md §4.4. egressNick == NickNone means
// "flood on the distribution tree".
func Encapsulate(state *RbrState, frame *Frame, egressNick Nickname, port Port, vid VID) {
	bridge := state.bridge
	localNick := state.LocalNick()

	if !localNick.Valid() {
		bridge.Stats.TxDropped.bump(ErrInvalidNickname)
		bridge.log.warn("encapsulate.no-local-nick", ErrInvalidNickname)
		return
	}

	if egressNick == NickNone {
		root := resolveTreeRoot(state, localNick)
		if !root.Valid() {
			bridge.Stats.TxDropped.bump(ErrUnknownNeighbor)
			bridge.log.warn("encapsulate.no-tree-root", ErrUnknownNeighbor)
			return
		}

		deliverLocally(bridge, frame, port)

		if err := pushTrillShim(bridge, frame, port, true, localNick, root, state.HopCount()); err != nil {
			bridge.Stats.TxDropped.bump(err)
			bridge.log.warn("encapsulate.push", err)
			return
		}
		Replicate(state, frame, root, localNick, nil, vid, true)
		return
	}

	if !egressNick.Valid() {
		bridge.Stats.TxDropped.bump(ErrInvalidNickname)
		bridge.log.warn("encapsulate.invalid-egress", ErrInvalidNickname)
		return
	}

	if err := pushTrillShim(bridge, frame, port, false, localNick, egressNick, state.HopCount()); err != nil {
		bridge.Stats.TxDropped.bump(err)
		bridge.log.warn("encapsulate.push", err)
		return
	}
	Forward(state, frame, egressNick, vid)
}

// resolveTreeRoot picks the distribution-tree root per spec.md §4.4 step
// 2: the local node's first advertised dt_root, falling back to the
// bridge's configured tree_root.
func resolveTreeRoot(state *RbrState, localNick Nickname) Nickname {
	local := state.neighbors.Lookup(localNick)
	if local.Valid() {
		info := local.Info()
		local.Release()
		if len(info.DTRoots) > 0 {
			return info.DTRoots[0]
		}
	}
	return state.TreeRoot()
}

// deliverLocally hands a clone of frame to the bridge's end-station
// delivery primitive, or to the VNT flood set when the ingress port has a
// VNI configured (spec.md §4.4 step 2).
func deliverLocally(bridge *Bridge, frame *Frame, port Port) {
	clone, err := frame.Clone()
	if err != nil {
		bridge.Stats.TxDropped.bump(ErrAllocationFailure)
		bridge.log.warn("encapsulate.clone-local", err)
		return
	}

	if bridge.VNI != nil {
		if vniID, ok := bridge.Port.GetPortVNIID(port); ok {
			if vni, ok := bridge.VNI.FindVNI(vniID); ok {
				bridge.VNI.VNIFloodDeliver(vni, clone, true)
				bridge.Forwarding.HandleFrameFinish(clone)
				return
			}
		}
	}
	bridge.Forwarding.EndstationDeliver(clone)
	bridge.Forwarding.HandleFrameFinish(clone)
}

// pushTrillShim reinserts any accelerated VLAN tag, then pushes the
// optional VNT extension (if the ingress port has a VNI configured), the
// TRILL header, and the outer Ethernet header, per spec.md §4.4's
// encapsulation procedure.
func pushTrillShim(bridge *Bridge, frame *Frame, port Port, multiDest bool, ingress, egress Nickname, hopCount uint8) error {
	if err := frame.ReinsertVLANAccel(); err != nil {
		return err
	}

	optLen := uint8(0)
	var vniID uint32
	vniConfigured := false
	if bridge.VNI != nil {
		if id, ok := bridge.Port.GetPortVNIID(port); ok {
			vniID = id
			vniConfigured = true
			optLen = (TrillOptSize + VNTExtensionSize) / optLenUnit
		}
	}

	if vniConfigured {
		vnt := VNTExtension{Flags: VNTExtensionType, VNI: vniID}
		vntBytes, err := vnt.MarshalBinary()
		if err != nil {
			return err
		}
		space, err := frame.Push(len(vntBytes))
		if err != nil {
			return err
		}
		copy(space, vntBytes)

		opt := TrillOpt{OptFlag: uint32(VNTExtensionType) << 24}
		optBytes, err := opt.MarshalBinary()
		if err != nil {
			return err
		}
		space, err = frame.Push(len(optBytes))
		if err != nil {
			return err
		}
		copy(space, optBytes)
	}

	hdr := TrillHeader{
		Version:          TrillProtocolVersion,
		MultiDestination: multiDest,
		OptLen:           optLen,
		HopCount:         hopCount,
		EgressNickname:   egress,
		IngressNickname:  ingress,
	}
	hdrBytes, err := hdr.MarshalBinary()
	if err != nil {
		return err
	}
	space, err := frame.Push(len(hdrBytes))
	if err != nil {
		return err
	}
	copy(space, hdrBytes)

	outer, err := frame.Push(EthHLen)
	if err != nil {
		return err
	}
	writeEthHeader(outer, emptyMAC, emptyMAC, EtherTypeTRILL)

	shimLen := EthHLen + len(hdrBytes)
	if vniConfigured {
		shimLen += TrillOptSize + VNTExtensionSize
	}
	frame.MarkEncapsulated(shimLen)
	return nil
}

var emptyMAC = make(net.HardwareAddr, 6)
