package conversion

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// MaxPort is the highest port number usable in underlay addresses and
// border router address templates.
const MaxPort = 65534

// CSVToIntList parses a comma separated list of integers, e.g. "3,3,2,4".
func CSVToIntList(csv string) ([]int64, error) {
	parts := strings.Split(csv, ",")
	values := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing element %d of %q: %s", i, csv, err)
		}
		values[i] = v
	}
	return values, nil
}

// IntListToCSV renders a list of integers as a comma separated string.
func IntListToCSV(values []int64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

// IAToInt parses an ISD-AS identifier like "1-ff00:0:110" and returns its
// numeric form (ISD in the 16 most significant bits, AS in the lower 48).
func IAToInt(ia string) (uint64, error) {
	parts := strings.Split(ia, "-")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected ISD-AS in %q", ia)
	}
	if strings.TrimSpace(parts[0]) != parts[0] || strings.TrimSpace(parts[1]) != parts[1] {
		return 0, fmt.Errorf("ISD-AS %q contains blanks", ia)
	}
	isd, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad ISD in %q: %s", ia, err)
	}
	if isd > 65535 {
		return 0, fmt.Errorf("ISD out of range: %d", isd)
	}

	asParts := strings.Split(parts[1], ":")
	var asValue uint64
	switch len(asParts) {
	case 1:
		// plain decimal (BGP) AS number
		if strings.TrimSpace(asParts[0]) != asParts[0] {
			return 0, fmt.Errorf("AS part of %q contains blanks", ia)
		}
		asValue, err = strconv.ParseUint(asParts[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad AS in %q: %s", ia, err)
		}
		if asValue > (1<<32)-1 {
			return 0, fmt.Errorf("decimal value for AS is too big: %d", asValue)
		}
	case 3:
		for _, p := range asParts {
			if strings.TrimSpace(p) != p {
				return 0, fmt.Errorf("AS part of %q contains blanks", ia)
			}
			v, err := strconv.ParseUint(p, 16, 64)
			if err != nil {
				return 0, fmt.Errorf("bad AS part in %q: %s", ia, err)
			}
			if v > 65535 {
				return 0, fmt.Errorf("AS part too big: %d", v)
			}
			asValue = asValue<<16 | v
		}
	default:
		return 0, fmt.Errorf("expected 3 parts in AS of %q", ia)
	}
	if asValue > (1<<48)-1 {
		return 0, fmt.Errorf("AS value is too large: %d", asValue)
	}
	return isd<<48 | asValue, nil
}

// ValidateIA returns an error iff ia is not a valid ISD-AS identifier.
func ValidateIA(ia string) error {
	_, err := IAToInt(ia)
	return err
}

// ipAndRestFromStr splits on the last colon. The IP must be written as a
// plain IPv4 address or a bracketed IPv6 one.
func ipAndRestFromStr(s string) (netip.Addr, string, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return netip.Addr{}, "", fmt.Errorf("invalid address %q", s)
	}
	host, rest := s[:idx], s[idx+1:]
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		ip, err := netip.ParseAddr(host[1 : len(host)-1])
		if err != nil || !ip.Is6() {
			return netip.Addr{}, "", fmt.Errorf("invalid address %q", s)
		}
		return ip, rest, nil
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !ip.Is4() {
		// a bare IPv6 address is rejected: it must be bracketed
		return netip.Addr{}, "", fmt.Errorf("invalid address %q", s)
	}
	return ip, rest, nil
}

// IPPortFromStr parses "IP:port", with IPv6 addresses in brackets.
func IPPortFromStr(s string) (netip.Addr, int, error) {
	ip, rest, err := ipAndRestFromStr(s)
	if err != nil {
		return netip.Addr{}, 0, err
	}
	port, err := strconv.Atoi(rest)
	if err != nil || port < 0 || port > MaxPort {
		return netip.Addr{}, 0, fmt.Errorf("invalid port in address %q", s)
	}
	return ip, port, nil
}

// IPPortRangeFromStr parses "IP:minPort-maxPort" and returns the IP, the
// minimum and the maximum port. The pair is normalized to min <= max.
func IPPortRangeFromStr(s string) (netip.Addr, int, int, error) {
	ip, rest, err := ipAndRestFromStr(s)
	if err != nil {
		return netip.Addr{}, 0, 0, err
	}
	bounds := strings.Split(rest, "-")
	if len(bounds) != 2 {
		return netip.Addr{}, 0, 0, fmt.Errorf("invalid port range in %q", s)
	}
	lo, err := strconv.Atoi(bounds[0])
	if err != nil {
		return netip.Addr{}, 0, 0, fmt.Errorf("invalid port range in %q", s)
	}
	hi, err := strconv.Atoi(bounds[1])
	if err != nil {
		return netip.Addr{}, 0, 0, fmt.Errorf("invalid port range in %q", s)
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo < 0 || hi > MaxPort {
		return netip.Addr{}, 0, 0, fmt.Errorf("invalid port range in %q (out of range)", s)
	}
	return ip, lo, hi, nil
}

// IPPortToStr formats an address and port, bracketing IPv6 addresses.
func IPPortToStr(ip netip.Addr, port int) string {
	if ip.Is6() {
		return fmt.Sprintf("[%s]:%d", ip, port)
	}
	return fmt.Sprintf("%s:%d", ip, port)
}
