package rbridge

// Decapsulate strips the TRILL shim and outer Ethernet header from frame
// (already recorded via Frame.MarkEncapsulatedAt earlier in the receive
// path), learns the inner source MAC against ingressNick, and delivers
// the inner frame, per spec.md §4.7. ingressNick is the TRILL header's
// ingress nickname, read by the caller before the header was stripped.
// frameVNI/haveFrameVNI carry the VNI the frame's VNT extension advertised
// (if any), parsed by the caller before the header was stripped.
func Decapsulate(state *RbrState, port Port, frame *Frame, ingressNick Nickname, vid VID, frameVNI uint32, haveFrameVNI bool) {
	bridge := state.bridge

	frame.ResetToInner()
	b := frame.Bytes()

	srcMAC := readEthSrc(b)
	bridge.FDB.UpdateWithNick(port, srcMAC, vid, ingressNick)

	dstMAC := readEthDst(b)
	entry, found := bridge.FDB.Get(dstMAC, vid)
	if found {
		if bridge.VNI != nil {
			if portVNI, havePortVNI := bridge.Port.GetPortVNIID(entry.Port); havePortVNI {
				if !haveFrameVNI || portVNI != frameVNI {
					bridge.Stats.RxDropped.bump(ErrVlanIngressDenied)
					bridge.log.warn("decapsulate.vni-mismatch", ErrVlanIngressDenied)
					return
				}
			}
		}
		bridge.Forwarding.Deliver(entry.Port, frame)
		bridge.Forwarding.HandleFrameFinish(frame)
		return
	}

	if bridge.VNI != nil {
		if vniID, ok := bridge.Port.GetPortVNIID(port); ok {
			if vni, ok := bridge.VNI.FindVNI(vniID); ok {
				bridge.VNI.VNIFloodDeliver(vni, frame, false)
				bridge.Forwarding.HandleFrameFinish(frame)
				return
			}
		}
	}
	bridge.Forwarding.EndstationDeliver(frame)
	bridge.Forwarding.HandleFrameFinish(frame)
}
