// +build gofuzz

package rbridge

func Fuzz(data []byte) int {
	return fuzzTrillHeader(data)
}

func fuzzTrillHeader(data []byte) int {
	h := &TrillHeader{}
	if err := h.UnmarshalBinary(data); err != nil {
		return 0
	}

	if _, err := h.MarshalBinary(); err != nil {
		panic(err)
	}

	return 1
}
