// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package policy holds the typed representation of a parsed policy file
// (see Parser in parser.go) and the pure data model the rest of the agent
// (classifier, quota state, dispatcher) builds on.
package policy

import "net"

// Ipv4Cidr is a single IPv4 address with a prefix length in [0, 32].
type Ipv4Cidr struct {
	IP     net.IP // always a 4-byte (To4) address
	Prefix int
}

// String renders the CIDR in standard "a.b.c.d/n" notation.
func (c Ipv4Cidr) String() string {
	mask := net.CIDRMask(c.Prefix, 32)
	return (&net.IPNet{IP: c.IP.Mask(mask), Mask: mask}).String()
}

// Destination is the ordered set of IPv4 CIDRs a policy entry applies to.
// It is produced either by parsing a literal CIDR directly, or by resolving
// a domain name once at load time to its A records (each retained as /32).
type Destination struct {
	CIDRs []Ipv4Cidr
}

// DataEntry pairs a destination with a byte quota.
type DataEntry struct {
	Name        string
	Destination Destination
	LimitBytes  uint64
}

// TimeEntry pairs a destination with a wall-clock connectivity quota.
type TimeEntry struct {
	Name        string
	Destination Destination
	LimitSeconds uint64
}

// Policy is the fully parsed, order-preserving policy file.
type Policy struct {
	Data []DataEntry
	Time []TimeEntry
}
