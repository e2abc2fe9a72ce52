// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/matislovas/netcontrol-go/internal/logging"
)

// Grammar, as given in SPEC_FULL.md §3 / spec.md §6:
//
//	line     = blank | comment | entry
//	comment  = "#" , { any-char }
//	entry    = host , WS+ , quota
//	host     = cidr | domain
//	cidr     = ipv4 , [ "/" , 0..32 ]
//	quota    = integer , ( "kb"|"mb"|"gb"|"kib"|"mib"|"gib"|"s"|"m"|"h" )
var (
	octet     = `(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)`
	cidrRe    = regexp.MustCompile(`^` + octet + `(\.` + octet + `){3}(/[0-9]{1,2})?$`)
	domainRe  = regexp.MustCompile(`^((xn--)?[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+(xn--)?[a-zA-Z]{2,}$`)
	dataQuota = regexp.MustCompile(`^([0-9]+)(kb|mb|gb|kib|mib|gib)$`)
	timeQuota = regexp.MustCompile(`^([0-9]+)(s|m|h)$`)

	timeMultiplier = map[string]uint64{"s": 1, "m": 60, "h": 3600}
)

// Parser reads a policy file and produces a Policy.
type Parser struct {
	resolver Resolver
	logger   *logging.Logger
}

// NewParser returns a Parser that resolves domain hosts with resolver. If
// resolver is nil a SystemResolver reading /etc/resolv.conf is used.
func NewParser(resolver Resolver, logger *logging.Logger) *Parser {
	if resolver == nil {
		resolver = NewSystemResolver("")
	}
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Parser{resolver: resolver, logger: logger.WithComponent("policy.parser")}
}

// ParseFile reads path line by line and returns the assembled Policy. Any
// parse failure is returned wrapped in a *FileError carrying the 1-based
// line number (comment lines never produce an error and are skipped before
// the line counter would matter).
func (p *Parser) ParseFile(path string) (Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return Policy{}, fmt.Errorf("netcontrol: open policy file %q: %w", path, err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse reads r line by line and returns the assembled Policy.
func (p *Parser) Parse(r io.Reader) (Policy, error) {
	var pol Policy
	scanner := bufio.NewScanner(r)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch entry, err := p.parseLine(line); {
		case err != nil:
			return Policy{}, &FileError{Line: lineNo, Err: err}
		default:
			switch e := entry.(type) {
			case DataEntry:
				e.Name = fmt.Sprintf("dq_%d", len(pol.Data))
				pol.Data = append(pol.Data, e)
			case TimeEntry:
				e.Name = fmt.Sprintf("tq_%d", len(pol.Time))
				pol.Time = append(pol.Time, e)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Policy{}, fmt.Errorf("netcontrol: reading policy file: %w", err)
	}

	p.logger.Info("policy parsed", "data_entries", len(pol.Data), "time_entries", len(pol.Time))
	return pol, nil
}

// parseLine parses one non-blank, non-comment line, returning either a
// DataEntry or a TimeEntry (with Name left empty — the caller assigns
// position-based names) as an any so the caller can type-switch.
func (p *Parser) parseLine(line string) (any, error) {
	fields := strings.Fields(line)
	switch len(fields) {
	case 0:
		return nil, newEntryError(ErrEmpty)
	case 2:
		// fallthrough below
	default:
		return nil, newEntryError(ErrBadLen)
	}

	hostTok, quotaTok := fields[0], fields[1]

	dest, err := p.parseHost(hostTok)
	if err != nil {
		return nil, err
	}

	if m := dataQuota.FindStringSubmatch(quotaTok); m != nil {
		limit, err := parseDataQuotaValue(quotaTok)
		if err != nil {
			return nil, wrapEntryError(ErrBadDataQuota, err)
		}
		return DataEntry{Destination: dest, LimitBytes: limit}, nil
	}

	if m := timeQuota.FindStringSubmatch(quotaTok); m != nil {
		limit, err := parseTimeQuotaValue(m)
		if err != nil {
			return nil, wrapEntryError(ErrBadTimeQuota, err)
		}
		return TimeEntry{Destination: dest, LimitSeconds: limit}, nil
	}

	return nil, newEntryError(ErrInvalidQuotaFormat)
}

// parseHost resolves hostTok to a Destination. A CIDR is parsed directly; a
// domain is resolved once via the Parser's Resolver.
func (p *Parser) parseHost(hostTok string) (Destination, error) {
	switch {
	case cidrRe.MatchString(hostTok):
		cidr, err := parseCIDR(hostTok)
		if err != nil {
			return Destination{}, wrapEntryError(ErrBadCIDR, err)
		}
		return Destination{CIDRs: []Ipv4Cidr{cidr}}, nil

	case domainRe.MatchString(hostTok):
		addrs, err := p.resolver.LookupA(hostTok)
		if err != nil {
			return Destination{}, wrapEntryError(ErrDNSFailed, err)
		}
		if len(addrs) == 0 {
			return Destination{}, newEntryError(ErrInvalidHostFormat)
		}
		dest := Destination{CIDRs: make([]Ipv4Cidr, 0, len(addrs))}
		for _, ip := range addrs {
			v4 := ip.To4()
			if v4 == nil {
				continue
			}
			dest.CIDRs = append(dest.CIDRs, Ipv4Cidr{IP: v4, Prefix: 32})
		}
		if len(dest.CIDRs) == 0 {
			return Destination{}, newEntryError(ErrInvalidHostFormat)
		}
		return dest, nil

	default:
		return Destination{}, newEntryError(ErrInvalidHostFormat)
	}
}

// parseCIDR parses a dotted-quad with an optional "/prefix" (default 32).
func parseCIDR(tok string) (Ipv4Cidr, error) {
	addrPart, prefixPart, hasPrefix := strings.Cut(tok, "/")

	ip := net.ParseIP(addrPart)
	if ip == nil {
		return Ipv4Cidr{}, fmt.Errorf("invalid IPv4 address %q", addrPart)
	}
	v4 := ip.To4()
	if v4 == nil {
		return Ipv4Cidr{}, fmt.Errorf("not an IPv4 address: %q", addrPart)
	}

	prefix := 32
	if hasPrefix {
		n, err := strconv.Atoi(prefixPart)
		if err != nil || n < 0 || n > 32 {
			return Ipv4Cidr{}, fmt.Errorf("invalid prefix length %q", prefixPart)
		}
		prefix = n
	}

	return Ipv4Cidr{IP: v4, Prefix: prefix}, nil
}

// parseDataQuotaValue scales a validated "<n>(kb|mb|gb|kib|mib|gib)" token
// into bytes. SI suffixes (kb/mb/gb) are powers of 1000; IEC suffixes
// (kib/mib/gib) are powers of 1024 — exactly the split go-humanize's
// ParseBytes makes between its decimal and binary suffix tables.
func parseDataQuotaValue(tok string) (uint64, error) {
	return humanize.ParseBytes(tok)
}

// parseTimeQuotaValue scales a validated "<n>(s|m|h)" token into seconds.
func parseTimeQuotaValue(m []string) (uint64, error) {
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, err
	}
	mult, ok := timeMultiplier[m[2]]
	if !ok {
		return 0, fmt.Errorf("unknown time suffix %q", m[2])
	}
	return n * mult, nil
}
