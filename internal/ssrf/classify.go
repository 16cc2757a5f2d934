package ssrf

import "net/netip"

// classifyIP implements spec §4.4 step 6: every resolved address must be
// public — reject loopback, private RFC1918, link-local, multicast,
// broadcast, carrier-grade NAT, documentation, reserved, IPv4-mapped
// private, and the cloud metadata address.
func classifyIP(addr netip.Addr) (public bool, reason Reason) {
	addr = addr.Unmap()

	if addr.IsLoopback() {
		return false, ReasonLoopbackIP
	}
	if addr.Is4() && addr.As4() == [4]byte{169, 254, 169, 254} {
		// The cloud metadata address, checked before the general
		// link-local case below so it isn't shadowed.
		return false, ReasonMetadataIP
	}
	if addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
		return false, ReasonLinkLocalIP
	}
	if addr.IsMulticast() {
		return false, ReasonMulticastIP
	}
	if addr.IsPrivate() {
		return false, ReasonPrivateIP
	}
	if addr.IsUnspecified() {
		return false, ReasonReservedIP
	}

	if addr.Is4() {
		b := addr.As4()
		switch {
		case b[0] == 100 && b[1] >= 64 && b[1] <= 127:
			// 100.64.0.0/10 carrier-grade NAT.
			return false, ReasonReservedIP
		case b[0] == 192 && b[1] == 0 && b[2] == 2:
			// 192.0.2.0/24 TEST-NET-1 documentation.
			return false, ReasonReservedIP
		case b[0] == 198 && b[1] == 51 && b[2] == 100:
			// 198.51.100.0/24 TEST-NET-2 documentation.
			return false, ReasonReservedIP
		case b[0] == 203 && b[1] == 0 && b[2] == 113:
			// 203.0.113.0/24 TEST-NET-3 documentation.
			return false, ReasonReservedIP
		case b[0] == 255 && b[1] == 255 && b[2] == 255 && b[3] == 255:
			return false, ReasonReservedIP
		case b[0] >= 240:
			// 240.0.0.0/4 reserved for future use.
			return false, ReasonReservedIP
		}
	}

	if addr.Is6() {
		if addr.IsGlobalUnicast() && !isDocumentationV6(addr) {
			return true, ""
		}
		if isDocumentationV6(addr) {
			return false, ReasonReservedIP
		}
	}

	return true, ""
}

// isDocumentationV6 checks 2001:db8::/32, the IPv6 documentation range.
func isDocumentationV6(addr netip.Addr) bool {
	if !addr.Is6() {
		return false
	}
	b := addr.As16()
	return b[0] == 0x20 && b[1] == 0x01 && b[2] == 0x0d && b[3] == 0xb8
}
