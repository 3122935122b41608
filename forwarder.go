package rbridge

// Forward resolves the unicast next hop for egressNick and hands frame off
// to the bridge's forwarding primitive, per spec.md §4.5. frame must
// already carry a TRILL header with a non-zero hop count to decrement
// (fresh encapsulations are seeded with state.HopCount(); transit frames
// arrive with their own already-validated hop count).
func Forward(state *RbrState, frame *Frame, egressNick Nickname, vid VID) {
	bridge := state.bridge

	neighbor := state.neighbors.Lookup(egressNick)
	if !neighbor.Valid() {
		bridge.Stats.TxDropped.bump(ErrUnknownNeighbor)
		bridge.log.warn("forward.unknown-neighbor", ErrUnknownNeighbor)
		return
	}
	defer neighbor.Release()
	info := neighbor.Info()

	b := frame.Bytes()
	var hdr TrillHeader
	if err := hdr.UnmarshalBinary(b[EthHLen:]); err != nil {
		bridge.Stats.TxDropped.bump(ErrMalformedHeader)
		bridge.log.warn("forward.unmarshal", err)
		return
	}
	hdr.DecrementHopCount()
	encoded, err := hdr.MarshalBinary()
	if err != nil {
		bridge.Stats.TxDropped.bump(err)
		bridge.log.warn("forward.marshal", err)
		return
	}
	copy(b[EthHLen:EthHLen+HeaderSize], encoded)

	setEthSrc(b, bridge.MAC)
	setEthDst(b, info.AdjSNPA)

	innerOffset := EthHLen + hdr.TrhSize()
	innerDst := readEthDst(b[innerOffset:])

	if entry, ok := bridge.FDB.Get(innerDst, vid); ok {
		if mac, ok := bridge.Port.PortMAC(entry.Port); ok {
			setEthSrc(frame.Bytes(), mac)
		}
		bridge.Forwarding.Forward(entry.Port, frame)
	} else {
		bridge.Forwarding.TrillFloodForward(frame)
	}
	bridge.Forwarding.HandleFrameFinish(frame)
}
