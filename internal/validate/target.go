// Package validate implements the target acceptance grammar from spec §6.2:
// an IPv4/IPv6 address, a CIDR block, or a DNS name.
package validate

import (
	"net"
	"regexp"

	"github.com/reconnity/easm-core/internal/model"
)

// dnsNameRe matches a DNS name of one or more dot-separated labels, each
// alphanumeric, 1-63 chars, hyphens allowed except at the first/last
// position. All-digit labels are allowed.
var dnsNameRe = regexp.MustCompile(
	`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*$`,
)

// Target reports whether s parses as an IPv4/IPv6 address, a CIDR block, or
// a DNS name per spec §6.2. Empty strings are always rejected.
func Target(s string) bool {
	if s == "" {
		return false
	}
	if net.ParseIP(s) != nil {
		return true
	}
	if _, _, err := net.ParseCIDR(s); err == nil {
		return true
	}
	return dnsNameRe.MatchString(s)
}

var (
	ipv4Re   = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)
	domainRe = regexp.MustCompile(`^[a-zA-Z0-9][-a-zA-Z0-9.]+\.[a-zA-Z]{2,}$`)
)

// InferAssetType classifies a target's storage representation for Asset
// upsert, grounded on the original Python Result Processor's regexes.
func InferAssetType(target string) model.AssetType {
	switch {
	case ipv4Re.MatchString(target):
		return model.AssetIP
	case net.ParseIP(target) != nil:
		return model.AssetIP
	case domainRe.MatchString(target):
		return model.AssetDomain
	default:
		return model.AssetUnknown
	}
}
