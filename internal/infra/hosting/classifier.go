package hosting

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

const defaultLookupTimeout = 3 * time.Second

// domestic country-code suffixes, in ASCII form (.рф is xn--p1ai)
var domesticSuffixes = map[string]bool{"ru": true, "xn--p1ai": true, "su": true}

// Resolver is the subset of *net.Resolver used here.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Classifier decides whether a host is served from domestic infrastructure.
// Only a resolved address inside a configured CIDR proves domestic hosting.
// Without CIDRs the result is always unknown; a country-code TLD is noted in
// the reason but says nothing about where the servers are.
type Classifier struct {
	log      *logrus.Entry
	resolver Resolver
	domestic []*net.IPNet
	timeout  time.Duration
}

func New(log *logrus.Entry, domesticCIDRs []string, resolver Resolver) (*Classifier, error) {
	nets := make([]*net.IPNet, 0, len(domesticCIDRs))
	for _, c := range domesticCIDRs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("hosting: bad cidr %q: %w", c, err)
		}
		nets = append(nets, n)
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Classifier{log: log, resolver: resolver, domestic: nets, timeout: defaultLookupTimeout}, nil
}

func (c *Classifier) Classify(ctx context.Context, host string) audit.HostingInfo {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return audit.HostingInfo{Class: audit.HostingUnknown, Reason: "empty host"}
	}

	ips, err := c.resolve(ctx, host)
	if err != nil {
		c.log.WithError(err).WithField("host", host).Debug("hosting lookup failed")
		return audit.HostingInfo{Class: audit.HostingUnknown, Reason: "dns lookup failed"}
	}
	first := ips[0].String()

	if len(c.domestic) == 0 {
		reason := "no domestic networks configured"
		if suffix, ok := domesticTLD(host); ok {
			reason = "domestic country-code domain ." + suffix + ", hosting location not verified"
		}
		return audit.HostingInfo{Class: audit.HostingUnknown, IP: first, Reason: reason}
	}

	for _, ip := range ips {
		for _, n := range c.domestic {
			if n.Contains(ip) {
				return audit.HostingInfo{Class: audit.HostingDomestic, IP: ip.String(), Reason: "address in " + n.String()}
			}
		}
	}
	return audit.HostingInfo{Class: audit.HostingForeign, IP: first, Reason: "address outside domestic networks"}
}

func (c *Classifier) resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	addrs, err := c.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

func domesticTLD(host string) (string, bool) {
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", false
	}
	suffix, _ := publicsuffix.PublicSuffix(ascii)
	if i := strings.LastIndexByte(suffix, '.'); i >= 0 {
		suffix = suffix[i+1:]
	}
	return suffix, domesticSuffixes[suffix]
}
