// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package connector

import (
	"context"
	"fmt"
	"net"
)

// Addr is a resolved candidate address with its SRV priority/weight (zero
// for plain A-record fallback), per spec.md §6's resolver interface.
type Addr struct {
	Host     string
	Port     uint16
	Priority uint16
	Weight   uint16
}

func (a Addr) String() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// Resolver is the DNS collaborator of spec.md §6: resolve_srv and
// resolve_a. The default implementation wraps *net.Resolver.
type Resolver interface {
	ResolveSRV(ctx context.Context, service, proto, domain string) ([]Addr, error)
	ResolveA(ctx context.Context, host string) ([]string, error)
}

// netResolver is the default Resolver, grounded on the teacher's dial
// package which performs the same SRV-then-A fallback over net.Resolver.
type netResolver struct {
	r *net.Resolver
}

// DefaultResolver returns a Resolver backed by net.DefaultResolver.
func DefaultResolver() Resolver {
	return &netResolver{r: net.DefaultResolver}
}

func (n *netResolver) ResolveSRV(ctx context.Context, service, proto, domain string) ([]Addr, error) {
	_, srvs, err := n.r.LookupSRV(ctx, service, proto, domain)
	if err != nil {
		return nil, err
	}
	out := make([]Addr, 0, len(srvs))
	for _, s := range srvs {
		out = append(out, Addr{Host: trimDot(s.Target), Port: s.Port, Priority: s.Priority, Weight: s.Weight})
	}
	return out, nil
}

func (n *netResolver) ResolveA(ctx context.Context, host string) ([]string, error) {
	addrs, err := n.r.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

func trimDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}

// resolveCandidates implements spec.md §4.3 step 1: if an explicit host
// override is given, resolve A for it; else try SRV
// _xmpp-client._tcp.<domain> first, falling back to A of the domain if SRV
// has no records, ordering SRV hits by priority then weight.
func resolveCandidates(ctx context.Context, r Resolver, domain string, explicitHost string, explicitPort uint16) ([]Addr, error) {
	if explicitHost != "" {
		addrs, err := r.ResolveA(ctx, explicitHost)
		if err != nil {
			return nil, err
		}
		port := explicitPort
		if port == 0 {
			port = 5222
		}
		out := make([]Addr, 0, len(addrs))
		for _, a := range addrs {
			out = append(out, Addr{Host: a, Port: port})
		}
		return out, nil
	}

	srvs, err := r.ResolveSRV(ctx, "xmpp-client", "tcp", domain)
	if err == nil && len(srvs) > 0 {
		return orderSRV(srvs), nil
	}

	addrs, err := r.ResolveA(ctx, domain)
	if err != nil {
		return nil, err
	}
	out := make([]Addr, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Addr{Host: a, Port: 5222})
	}
	return out, nil
}

// orderSRV sorts by priority ascending, breaking ties by weight descending,
// the conventional DNS SRV selection rule referenced in spec.md §4.3.
func orderSRV(addrs []Addr) []Addr {
	out := append([]Addr(nil), addrs...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := out[j-1], out[j]
			if a.Priority > b.Priority || (a.Priority == b.Priority && a.Weight < b.Weight) {
				out[j-1], out[j] = out[j], out[j-1]
			}
		}
	}
	return out
}
