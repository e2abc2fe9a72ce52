// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// Resolver resolves a domain name to its IPv4 (A-record) addresses. The
// Parser calls it exactly once per domain token, synchronously, at load
// time.
type Resolver interface {
	LookupA(name string) ([]net.IP, error)
}

// SystemResolver queries the resolvers listed in /etc/resolv.conf using
// github.com/miekg/dns, following the same query-and-extract-A-records
// shape as the teacher's internal/services/dns forwarding path.
type SystemResolver struct {
	clientConfigPath string
}

// NewSystemResolver returns a resolver reading nameservers from the given
// resolv.conf-style file ("/etc/resolv.conf" if empty).
func NewSystemResolver(clientConfigPath string) *SystemResolver {
	if clientConfigPath == "" {
		clientConfigPath = "/etc/resolv.conf"
	}
	return &SystemResolver{clientConfigPath: clientConfigPath}
}

// LookupA resolves name to its A records via a single synchronous exchange
// with the first configured nameserver.
func (r *SystemResolver) LookupA(name string) ([]net.IP, error) {
	cfg, err := dns.ClientConfigFromFile(r.clientConfigPath)
	if err != nil || cfg == nil || len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("netcontrol: no usable resolver configuration: %w", err)
	}

	client := new(dns.Client)
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	msg.RecursionDesired = true

	server := net.JoinHostPort(cfg.Servers[0], cfg.Port)
	resp, _, err := client.Exchange(msg, server)
	if err != nil {
		return nil, fmt.Errorf("netcontrol: dns exchange for %q failed: %w", name, err)
	}
	if resp == nil || resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("netcontrol: dns lookup for %q failed with rcode %d", name, respRcode(resp))
	}

	var addrs []net.IP
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			addrs = append(addrs, a.A)
		}
	}
	return addrs, nil
}

func respRcode(resp *dns.Msg) int {
	if resp == nil {
		return dns.RcodeServerFailure
	}
	return resp.Rcode
}
