package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

var (
	ErrInvalidURL  = errors.New("url must be an absolute http or https address")
	ErrUnsafeHost  = errors.New("target host resolves to a local or private network")
	errTooManyHops = errors.New("too many redirects")
)

// carrier-grade NAT and the "this network" block are not covered by net.IP helpers
var extraBlocked = mustCIDRs("0.0.0.0/8", "100.64.0.0/10", "192.0.0.0/24", "198.18.0.0/15")

func mustCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// IsUnsafeHost reports whether host names localhost or a literal address in a
// loopback, private, link-local or unspecified range. Plain host names pass;
// their resolved addresses are checked again when the connection is dialed.
func IsUnsafeHost(host string) bool {
	h := strings.ToLower(strings.TrimSuffix(strings.Trim(host, "[]"), "."))
	if h == "" {
		return true
	}
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return unsafeIP(ip)
	}
	return false
}

func unsafeIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() {
		return true
	}
	for _, n := range extraBlocked {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ValidateURL parses raw and applies the scheme and host policy.
func ValidateURL(raw string) (*url.URL, error) {
	return validateURL(raw, false)
}

func validateURL(raw string, allowPrivate bool) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if !allowPrivate && IsUnsafeHost(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrUnsafeHost, u.Hostname())
	}
	return u, nil
}

// dialGuard rejects connections to unsafe addresses after DNS resolution.
func dialGuard(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || unsafeIP(ip) {
		return fmt.Errorf("%w: %s", ErrUnsafeHost, host)
	}
	return nil
}

// Resolver is the lookup half of net.Resolver.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// CheckResolvedURL applies the host policy to a request that is not made
// through Fetcher, such as a subresource or navigation issued by a headless
// browser. Names are resolved and every address must be public; lookup
// failures are rejected. Local schemes that never touch the network pass.
func CheckResolvedURL(ctx context.Context, r Resolver, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "data", "blob", "about":
		return nil
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := u.Hostname()
	if IsUnsafeHost(host) {
		return fmt.Errorf("%w: %s", ErrUnsafeHost, host)
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	addrs, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("resolve %s: no addresses", host)
	}
	for _, a := range addrs {
		if unsafeIP(a.IP) {
			return fmt.Errorf("%w: %s resolves to %s", ErrUnsafeHost, host, a.IP)
		}
	}
	return nil
}
