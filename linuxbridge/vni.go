package linuxbridge

import "github.com/go-trill/rbridge"

// FindVNI resolves a configured VNI id to the set of ports carrying it.
// It satisfies rbridge.VNI.
func (b *Bridge) FindVNI(id uint32) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var members []*Port
	for _, p := range b.ports {
		if p.cfg.VNIID != nil && *p.cfg.VNIID == id {
			members = append(members, p)
		}
	}
	if len(members) == 0 {
		return nil, false
	}
	return members, true
}

// VNIFloodDeliver sends frame out every port in the set vni resolved to.
func (b *Bridge) VNIFloodDeliver(vni any, frame *rbridge.Frame, freeOnExhaustion bool) {
	members, ok := vni.([]*Port)
	if !ok {
		return
	}
	for _, p := range members {
		_ = p.Send(frame.Bytes())
	}
}
