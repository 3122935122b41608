//go:build go1.18
// +build go1.18

package rbridge

import "testing"

// FuzzTrillHeader exercises the header codec's Unmarshal/Marshal roundtrip
// against arbitrary input.
func FuzzTrillHeader(f *testing.F) {
	f.Add([]byte{0x00, 0x15, 0x00, 0x02, 0x00, 0x01})
	f.Add(make([]byte, HeaderSize))
	f.Fuzz(func(t *testing.T, data []byte) {
		h := &TrillHeader{}
		if err := h.UnmarshalBinary(data); err != nil {
			return
		}
		if _, err := h.MarshalBinary(); err != nil {
			t.Fatalf("marshal after successful unmarshal: %v", err)
		}
	})
}

// FuzzTrillOpt exercises the TrillOpt extension codec.
func FuzzTrillOpt(f *testing.F) {
	f.Add(make([]byte, TrillOptSize))
	f.Fuzz(func(t *testing.T, data []byte) {
		o := &TrillOpt{}
		if err := o.UnmarshalBinary(data); err != nil {
			return
		}
		if _, err := o.MarshalBinary(); err != nil {
			t.Fatalf("marshal after successful unmarshal: %v", err)
		}
	})
}
