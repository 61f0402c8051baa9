package longpoll

import "encoding/hex"

// decodeHexInto mirrors fetcher's malformed-input tolerance: a garbled
// long-poll payload is a protocol error, not a crash (spec.md §7).
func decodeHexInto(dst []byte, src string) {
	if src == "" {
		return
	}
	raw, err := hex.DecodeString(src)
	if err != nil {
		return
	}
	copy(dst, raw)
}
