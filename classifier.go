package rbridge

// Receive is the TRILL receive entry point (spec.md §4.8): it filters out
// non-applicable frames, distinguishes guest-port traffic from fabric
// traffic, and routes work to Encapsulate, Decapsulate/Forward, or the
// bridge fallback. It returns true if the frame was consumed (delivered,
// forwarded, or dropped) and false if it should pass through to the
// bridge's standard receive path, still owned by the caller.
func Receive(state *RbrState, frame *Frame) bool {
	bridge := state.bridge

	if !state.Enabled() {
		return false
	}
	if frame.Loopback {
		return false
	}

	b := frame.Bytes()
	if len(b) < EthHLen {
		bridge.Stats.RxDropped.bump(ErrMalformedHeader)
		bridge.log.warn("receive.short-frame", ErrMalformedHeader)
		return true
	}

	srcMAC := readEthSrc(b)
	if !isValidSourceMAC(srcMAC) {
		bridge.Stats.RxDropped.bump(ErrInvalidSourceMAC)
		bridge.log.warn("receive.invalid-source-mac", ErrInvalidSourceMAC)
		return true
	}

	vid, ok := bridge.Forwarding.AllowedIngress(frame)
	if !ok {
		bridge.Stats.RxDropped.bump(ErrVlanIngressDenied)
		bridge.log.warn("receive.vlan-denied", ErrVlanIngressDenied)
		return true
	}
	frame.VID = vid

	dstMAC := readEthDst(b)
	if macEqual(dstMAC, BPDUGroupMAC) {
		bridge.FDB.Update(frame.IngressPort, srcMAC, vid)
		return true
	}

	port, ok := bridge.Port.PortOf(frame)
	if !ok {
		bridge.Stats.RxDropped.bump(ErrNotFound)
		bridge.log.warn("receive.no-port", ErrNotFound)
		return true
	}
	frame.IngressPort = port

	if bridge.Port.TrillFlag(port) {
		return receiveFromGuestPort(state, port, frame, srcMAC, dstMAC, vid)
	}
	return receiveFromFabricPort(state, port, frame, vid)
}

// receiveFromGuestPort handles spec.md §4.8 step 6: the local-delivery
// shortcut for end-station-to-end-station traffic, and otherwise a hand-
// off to Encapsulate.
func receiveFromGuestPort(state *RbrState, port Port, frame *Frame, srcMAC, dstMAC []byte, vid VID) bool {
	bridge := state.bridge

	if bridge.Port.IsLocalGuestPort(port, dstMAC, vid) {
		bridge.FDB.Update(port, srcMAC, vid)

		entry, found := bridge.FDB.Get(dstMAC, vid)
		if !found {
			return true
		}
		if bridge.VNI != nil {
			srcVNI, haveSrc := bridge.Port.GetPortVNIID(port)
			dstVNI, haveDst := bridge.Port.GetPortVNIID(entry.Port)
			if haveSrc != haveDst || (haveSrc && srcVNI != dstVNI) {
				bridge.Stats.RxDropped.bump(ErrVlanIngressDenied)
				bridge.log.warn("receive.guest-vni-mismatch", ErrVlanIngressDenied)
				return true
			}
		}
		bridge.Forwarding.Deliver(entry.Port, frame)
		bridge.Forwarding.HandleFrameFinish(frame)
		return true
	}

	egressNick := bridge.NickResolution.LookupNickFromMAC(port, dstMAC, vid)
	bridge.FDB.Update(port, srcMAC, vid)
	Encapsulate(state, frame, egressNick, port, vid)
	return true
}

// receiveFromFabricPort handles spec.md §4.8 step 7: TRILL frames are
// handed to receiveTrill; frames addressed to the bridge itself pass
// through to the local stack; anything else is dropped.
func receiveFromFabricPort(state *RbrState, port Port, frame *Frame, vid VID) bool {
	bridge := state.bridge
	b := frame.Bytes()

	switch {
	case readEthType(b) == EtherTypeTRILL:
		receiveTrill(state, port, frame, vid)
		return true
	case macEqual(readEthDst(b), bridge.MAC):
		return false
	default:
		bridge.Stats.RxDropped.bump(ErrNotFound)
		bridge.log.warn("receive.unroutable-fabric-frame", ErrNotFound)
		return true
	}
}

// receiveTrill implements spec.md §4.9: validation of a fabric-port frame
// whose outer EtherType is TRILL, followed by unicast or multi-destination
// handling.
func receiveTrill(state *RbrState, port Port, frame *Frame, vid VID) {
	bridge := state.bridge
	b := frame.Bytes()

	// Outer-MAC drop rule: without this check, frames flooded at L2
	// circulate until hop-count exhaustion.
	if !macEqual(readEthDst(b), bridge.MAC) {
		bridge.Stats.RxDropped.bump(ErrLoopDetected)
		bridge.log.warn("receive-trill.wrong-outer-dst", ErrLoopDetected)
		return
	}

	var hdr TrillHeader
	if err := hdr.UnmarshalBinary(b[EthHLen:]); err != nil {
		bridge.Stats.RxDropped.bump(ErrMalformedHeader)
		bridge.log.warn("receive-trill.unmarshal", err)
		return
	}
	trhSize := hdr.TrhSize()

	if len(b) < EthHLen+trhSize+EthHLen {
		bridge.Stats.RxDropped.bump(ErrMalformedHeader)
		bridge.log.warn("receive-trill.short-buffer", ErrMalformedHeader)
		return
	}
	frame.MarkEncapsulatedAt(EthHLen + trhSize)

	if !hdr.EgressNickname.Valid() || !hdr.IngressNickname.Valid() {
		bridge.Stats.RxDropped.bump(ErrInvalidNickname)
		bridge.log.warn("receive-trill.invalid-nickname", ErrInvalidNickname)
		return
	}
	if hdr.Version != TrillProtocolVersion {
		bridge.Stats.RxDropped.bump(ErrMalformedHeader)
		bridge.log.warn("receive-trill.version", ErrMalformedHeader)
		return
	}
	if hdr.IngressNickname == state.LocalNick() {
		bridge.Stats.RxDropped.bump(ErrLoopDetected)
		bridge.log.warn("receive-trill.self-loop", ErrLoopDetected)
		return
	}
	var frameVNI uint32
	var haveFrameVNI bool
	if !state.Features().VNT {
		if hdr.OptLen != 0 {
			bridge.Stats.RxDropped.bump(ErrMalformedHeader)
			bridge.log.warn("receive-trill.opt-len-without-vnt", ErrMalformedHeader)
			return
		}
	} else if hdr.OptLen != 0 {
		var opt TrillOpt
		if err := opt.UnmarshalBinary(b[EthHLen+HeaderSize:]); err != nil {
			bridge.Stats.RxDropped.bump(ErrMalformedHeader)
			bridge.log.warn("receive-trill.opt-unmarshal", err)
			return
		}
		if extensionType(opt.OptFlag) != VNTExtensionType {
			bridge.Stats.RxDropped.bump(ErrMalformedHeader)
			bridge.log.warn("receive-trill.unknown-extension", ErrMalformedHeader)
			return
		}
		if hdr.OptLen < 3 {
			bridge.Stats.RxDropped.bump(ErrMalformedHeader)
			bridge.log.warn("receive-trill.vnt-missing", ErrMalformedHeader)
			return
		}
		var vnt VNTExtension
		if err := vnt.UnmarshalBinary(b[EthHLen+HeaderSize+TrillOptSize:]); err != nil {
			bridge.Stats.RxDropped.bump(ErrMalformedHeader)
			bridge.log.warn("receive-trill.vnt-unmarshal", err)
			return
		}
		frameVNI, haveFrameVNI = vnt.VNI, true
	}

	if !hdr.MultiDestination {
		receiveUnicast(state, port, frame, hdr, vid, frameVNI, haveFrameVNI)
		return
	}
	receiveMultiDestination(state, port, frame, hdr, vid, readEthSrc(b), frameVNI, haveFrameVNI)
}

func receiveUnicast(state *RbrState, port Port, frame *Frame, hdr TrillHeader, vid VID, frameVNI uint32, haveFrameVNI bool) {
	bridge := state.bridge

	if hdr.EgressNickname == hdr.IngressNickname {
		bridge.Stats.RxDropped.bump(ErrLoopDetected)
		bridge.log.warn("receive-unicast.loop", ErrLoopDetected)
		return
	}
	if hdr.EgressNickname == state.LocalNick() {
		Decapsulate(state, port, frame, hdr.IngressNickname, vid, frameVNI, haveFrameVNI)
		return
	}
	if hdr.HopCount > 0 {
		bridge.FDB.Update(port, readEthSrc(frame.Bytes()), vid)
		Forward(state, frame, hdr.EgressNickname, vid)
		return
	}
	bridge.Stats.RxDropped.bump(ErrHopCountExhausted)
	bridge.log.warn("receive-unicast.hop-count", ErrHopCountExhausted)
}

func receiveMultiDestination(state *RbrState, port Port, frame *Frame, hdr TrillHeader, vid VID, outerSrc []byte, frameVNI uint32, haveFrameVNI bool) {
	bridge := state.bridge

	dest := state.neighbors.Lookup(hdr.EgressNickname)
	if !dest.Valid() {
		bridge.Stats.RxDropped.bump(ErrUnknownNeighbor)
		bridge.log.warn("receive-multidest.unknown-root", ErrUnknownNeighbor)
		return
	}
	destInfo := dest.Info()
	dest.Release()

	adjacencyOK := false
	for _, a := range destInfo.Adjacencies {
		h := state.neighbors.Lookup(a)
		if !h.Valid() {
			continue
		}
		snpa := h.Info().AdjSNPA
		h.Release()
		if macEqual(outerSrc, snpa) {
			adjacencyOK = true
			break
		}
	}
	if !adjacencyOK {
		bridge.Stats.RxDropped.bump(ErrWrongAdjacency)
		bridge.log.warn("receive-multidest.wrong-adjacency", ErrWrongAdjacency)
		return
	}

	var ingressInfo NeighborInfo
	if in := state.neighbors.Lookup(hdr.IngressNickname); in.Valid() {
		ingressInfo = in.Info()
		in.Release()
	}
	rpfOK := ingressInfo.hasRoot(hdr.EgressNickname)
	if len(ingressInfo.DTRoots) == 0 {
		rpfOK = hdr.EgressNickname == state.TreeRoot()
	}
	if !rpfOK {
		bridge.Stats.RxDropped.bump(ErrFailedRPF)
		bridge.log.warn("receive-multidest.rpf", ErrFailedRPF)
		return
	}

	if hdr.HopCount == 0 {
		bridge.Stats.RxDropped.bump(ErrHopCountExhausted)
		bridge.log.warn("receive-multidest.hop-count", ErrHopCountExhausted)
		return
	}

	clone, err := frame.Clone()
	if err != nil {
		bridge.Stats.RxDropped.bump(ErrAllocationFailure)
		bridge.log.warn("receive-multidest.clone", err)
		return
	}
	Replicate(state, clone, hdr.EgressNickname, hdr.IngressNickname, outerSrc, vid, false)
	Decapsulate(state, port, frame, hdr.IngressNickname, vid, frameVNI, haveFrameVNI)
}
