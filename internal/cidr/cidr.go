// Package cidr converts IPv4 CIDR notation into inclusive integer ranges.
package cidr

import (
	"encoding/binary"
	"net/netip"
	"strconv"
	"strings"
)

// ToRange converts "A.B.C.D" or "A.B.C.D/N" into an inclusive [start, end]
// range. ok is false for anything that is not an IPv4 address with an
// optional 0-32 prefix length.
//
// The end bound is addr + mask, so it only equals the last address of the
// network when addr is the network address itself.
func ToRange(s string) (start, end uint64, ok bool) {
	host, prefix, masked := strings.Cut(s, "/")

	addr, err := netip.ParseAddr(host)
	if err != nil || !addr.Is4() {
		return 0, 0, false
	}

	octets := addr.As4()
	base := uint64(binary.BigEndian.Uint32(octets[:]))

	if !masked {
		return base, base, true
	}

	bits, err := strconv.Atoi(prefix)
	if err != nil || bits < 0 || bits > 32 {
		return 0, 0, false
	}

	mask := uint64(1)<<(32-bits) - 1

	return base &^ mask, base + mask, true
}
