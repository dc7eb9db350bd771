package logging

import "github.com/braylonh/kismet/internal/core/domain"

// IsWeakIV implements the classic FMS weak-IV predicate used by
// airsnort-family tools (SPEC_FULL.md Open Question 2: the original
// kismet_server.cc predicate was not in the retrieved source, so this
// adopts the standard documented test unchanged): the first IV byte
// falls in the known-weak range [3, 15] and the second byte is 0xff.
func IsWeakIV(info domain.PacketInfo) bool {
	if !info.HasIV {
		return false
	}
	b0, b1 := info.IV[0], info.IV[1]
	return b0 >= 3 && b0 <= 15 && b1 == 0xff
}

// NewWeakWriter creates a DumpWriter that only appends frames matching
// IsWeakIV (§4.3: "appends only frames whose first IV byte matches the
// classic weak-IV pattern; file is only opened if crypt_log enabled").
func NewWeakWriter(quota int) *DumpWriter {
	w := NewDumpWriter("weak", quota)
	w.Filter = IsWeakIV
	return w
}
