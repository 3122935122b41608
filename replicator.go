package rbridge

import "net"

// Replicate walks the distribution tree rooted at egressNick and forwards
// a copy to each surviving adjacency, per spec.md §4.6. sourceOuterMAC, if
// non-nil, prunes the link the frame arrived on; ingressNick is never
// replicated back toward. freeOnExhaustion has no effect: when no
// adjacency survives, the original buffer is dropped (left to the garbage
// collector) whatever its value.
func Replicate(state *RbrState, frame *Frame, egressNick, ingressNick Nickname, sourceOuterMAC net.HardwareAddr, vid VID, freeOnExhaustion bool) {
	bridge := state.bridge

	root := state.neighbors.Lookup(egressNick)
	if !root.Valid() {
		bridge.Stats.TxDropped.bump(ErrUnknownNeighbor)
		bridge.log.warn("replicate.unknown-root", ErrUnknownNeighbor)
		return
	}
	info := root.Info()
	root.Release()

	var deferred Nickname
	haveDeferred := false

	for _, a := range info.Adjacencies {
		if !a.Valid() || a == ingressNick {
			continue
		}
		h := state.neighbors.Lookup(a)
		if !h.Valid() {
			continue
		}
		adjSNPA := h.Info().AdjSNPA
		h.Release()

		if sourceOuterMAC != nil && macEqual(sourceOuterMAC, adjSNPA) {
			continue
		}

		if !haveDeferred {
			deferred = a
			haveDeferred = true
			continue
		}

		clone, err := frame.Clone()
		if err != nil {
			bridge.Stats.TxDropped.bump(ErrAllocationFailure)
			bridge.log.warn("replicate.clone", err)
			continue
		}
		Forward(state, clone, a, vid)
	}

	if haveDeferred {
		Forward(state, frame, deferred, vid)
		return
	}
	_ = freeOnExhaustion // no receivers: the original buffer is simply dropped
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
