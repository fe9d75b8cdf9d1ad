package hosting

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

type fakeResolver map[string][]string

func (f fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]net.IPAddr, len(ips))
	for i, s := range ips {
		out[i] = net.IPAddr{IP: net.ParseIP(s)}
	}
	return out, nil
}

func newClassifier(t *testing.T, cidrs []string) *Classifier {
	l, _ := logtest.NewNullLogger()
	c, err := New(logrus.NewEntry(l), cidrs, fakeResolver{
		"shop.ru":  {"5.255.255.5"},
		"shop.com": {"104.16.1.1"},
		"dual.com": {"104.16.1.1", "5.255.255.5"},
		"aws.ru":   {"52.95.110.1"},
	})
	require.NoError(t, err)
	return c
}

func TestClassify_ByCIDR(t *testing.T) {
	c := newClassifier(t, []string{"5.255.0.0/16"})
	ctx := context.Background()

	assert.Equal(t, audit.HostingDomestic, c.Classify(ctx, "shop.ru").Class)
	foreign := c.Classify(ctx, "shop.com")
	assert.Equal(t, audit.HostingForeign, foreign.Class)
	assert.Equal(t, "104.16.1.1", foreign.IP)
	assert.Equal(t, audit.HostingDomestic, c.Classify(ctx, "dual.com").Class)
	assert.Equal(t, audit.HostingDomestic, c.Classify(ctx, "5.255.1.1").Class)
	assert.Equal(t, audit.HostingUnknown, c.Classify(ctx, "nxdomain.ru").Class)
}

func TestClassify_TLDAloneIsNotDomestic(t *testing.T) {
	c := newClassifier(t, nil)
	ctx := context.Background()

	// .ru name served from a foreign cloud address
	info := c.Classify(ctx, "shop.ru")
	assert.Equal(t, audit.HostingUnknown, info.Class)
	assert.Equal(t, "5.255.255.5", info.IP)
	assert.Contains(t, info.Reason, "not verified")

	assert.Equal(t, audit.HostingUnknown, c.Classify(ctx, "aws.ru").Class)
	assert.Equal(t, audit.HostingUnknown, c.Classify(ctx, "сайт.рф").Class)
	assert.Equal(t, audit.HostingUnknown, c.Classify(ctx, "shop.com").Class)
}

func TestNew_RejectsBadCIDR(t *testing.T) {
	l, _ := logtest.NewNullLogger()
	_, err := New(logrus.NewEntry(l), []string{"10.0.0.0/33"}, nil)
	assert.Error(t, err)
}
