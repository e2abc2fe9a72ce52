// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"

	"github.com/matislovas/netcontrol-go/internal/logging"
	"github.com/matislovas/netcontrol-go/internal/policy"
)

// Programmer owns the netcontrol table/chain topology and translates policy
// entries into batched nftables mutations. It is the only component that
// mutates kernel classifier state.
type Programmer struct {
	conn      Conn
	logger    *logging.Logger
	tableName string

	mu        sync.Mutex
	arena     *Arena
	installed bool // guards Deinit against emitting deletes for a table that was never created

	// entryCIDRs records, per entry name, the CIDRs its rulesets were built
	// for, in the same order as arena.data[i].rules / arena.time[i].rules.
	// Block/Unblock need the original match criteria to synthesize the
	// rules they add or remove at runtime.
	entryCIDRs map[string][]policy.Ipv4Cidr

	// degraded records entries whose most recent runtime Block/Unblock
	// batch was rejected by the kernel (spec.md §7: "the offending entry
	// is marked Degraded (its enforcement is best-effort)"). A later
	// successful commit for the same entry clears it.
	degraded map[string]bool
}

// NewProgrammer returns a Programmer driving conn, using the default
// netcontrol table name. Pass a real *nftables.Conn in production; tests
// pass a fake satisfying Conn.
func NewProgrammer(conn Conn, logger *logging.Logger) *Programmer {
	return NewProgrammerWithTable(conn, logger, "")
}

// NewProgrammerWithTable is NewProgrammer with the nftables table name
// overridden; an empty table defaults to the standard "netcontrol" name.
func NewProgrammerWithTable(conn Conn, logger *logging.Logger, table string) *Programmer {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	if table == "" {
		table = tableName
	}
	return &Programmer{
		conn:       conn,
		logger:     logger.WithComponent("classifier.programmer"),
		tableName:  table,
		entryCIDRs: make(map[string][]policy.Ipv4Cidr),
		degraded:   make(map[string]bool),
	}
}

// Degraded returns the names of entries whose most recent runtime
// Block/Unblock commit was rejected by the kernel. Their last-requested
// state (blocked or not) may not match what is actually installed;
// enforcement for them is best-effort until a later commit succeeds.
func (p *Programmer) Degraded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.degraded))
	for name, bad := range p.degraded {
		if bad {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Installed reports whether Init has successfully completed and Deinit has
// not yet run.
func (p *Programmer) Installed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.installed
}

// Init installs the table, the four chains, and the accounting/log rules for
// every entry in pol. On any batch rejection it attempts best-effort
// teardown of whatever portion was installed and returns a ProgrammerError
// wrapping ErrChannelRefused.
func (p *Programmer) Init(pol policy.Policy) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.installed {
		return newProgrammerError(ErrChannelRefused, fmt.Errorf("classifier already initialized"))
	}

	arena := newArena()
	arena.table = p.conn.AddTable(&nftables.Table{Name: p.tableName, Family: nftables.TableFamilyIPv4})

	arena.chains[chainDataIn] = p.addFilterChain(arena.table, dataInChainName, nftables.ChainHookInput)
	arena.chains[chainDataOut] = p.addFilterChain(arena.table, dataOutChainName, nftables.ChainHookOutput)
	arena.chains[chainTimeIn] = p.addFilterChain(arena.table, timeInChainName, nftables.ChainHookInput)
	arena.chains[chainTimeOut] = p.addFilterChain(arena.table, timeOutChainName, nftables.ChainHookOutput)

	entryCIDRs := make(map[string][]policy.Ipv4Cidr)

	for _, entry := range pol.Data {
		p.installDataEntry(arena, entry)
		entryCIDRs[entry.Name] = entry.Destination.CIDRs
	}

	for _, entry := range pol.Time {
		p.installTimeEntry(arena, entry)
		entryCIDRs[entry.Name] = entry.Destination.CIDRs
	}

	if err := p.conn.Flush(); err != nil {
		p.logger.Error("init batch rejected, rolling back", "error", err)
		p.conn.DelTable(arena.table)
		_ = p.conn.Flush()
		return newProgrammerError(ErrChannelRefused, err)
	}

	p.arena = arena
	p.entryCIDRs = entryCIDRs
	p.installed = true
	p.logger.Info("classifier initialized", "data_entries", len(pol.Data), "time_entries", len(pol.Time))
	return nil
}

func (p *Programmer) addFilterChain(table *nftables.Table, name string, hook *nftables.ChainHook) *nftables.Chain {
	return p.conn.AddChain(&nftables.Chain{
		Name:     name,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  hook,
		Priority: nftables.ChainPriorityFilter,
		Policy:   chainPolicyAccept(),
	})
}

func chainPolicyAccept() *nftables.ChainPolicy {
	accept := nftables.ChainPolicyAccept
	return &accept
}

// installDataEntry creates the entry's named quota object and, for every
// resolved CIDR, a block rule and a log rule both referencing it.
func (p *Programmer) installDataEntry(arena *Arena, entry policy.DataEntry) {
	quota := &nftables.Quota{
		Table: arena.table,
		Name:  entry.Name,
		Bytes: entry.LimitBytes,
		Over:  true,
	}
	p.conn.AddObj(quota)
	quotaIndex := len(arena.quotas)
	arena.quotas = append(arena.quotas, quota)

	limit := dataLimit{name: entry.Name, quotaIndex: quotaIndex}

	for _, cidr := range entry.Destination.CIDRs {
		blockExprs := concatExprs(ipMatchExprs(cidr, 12), quotaRefExprs(entry.Name), dropExprs())
		blockRule := p.conn.AddRule(&nftables.Rule{
			Table: arena.table,
			Chain: arena.chains[chainDataIn],
			Exprs: blockExprs,
		})

		logExprList := concatExprs(ipMatchExprs(cidr, 12), quotaRefExprs(entry.Name), logExprs(DataQuotaGroup, entry.Name))
		logRule := p.conn.AddRule(&nftables.Rule{
			Table: arena.table,
			Chain: arena.chains[chainDataIn],
			Exprs: logExprList,
		})

		limit.rules = append(limit.rules, dataRuleSet{block: blockRule, log: logRule})
	}

	arena.data = append(arena.data, limit)
}

// installTimeEntry installs the always-on monitor rules (start/in_fin/
// out_fin) for every resolved CIDR. Block rules are added later by Block.
func (p *Programmer) installTimeEntry(arena *Arena, entry policy.TimeEntry) {
	limit := timeLimit{name: entry.Name, limitSeconds: entry.LimitSeconds}

	for _, cidr := range entry.Destination.CIDRs {
		startExprs := concatExprs(
			tcpProtoExprs(),
			ipMatchExprs(cidr, 12),
			tcpFlagsExprs(tcpFlagSYN|tcpFlagACK, tcpFlagSYN|tcpFlagACK, expr.CmpOpEq),
			logExprs(TimeQuotaGroup, timeStartLogPrefix+entry.Name),
		)
		start := p.conn.AddRule(&nftables.Rule{Table: arena.table, Chain: arena.chains[chainTimeIn], Exprs: startExprs})

		inFinExprs := concatExprs(
			tcpProtoExprs(),
			ipMatchExprs(cidr, 12),
			tcpFlagsExprs(tcpFlagRST|tcpFlagFIN, 0, expr.CmpOpNeq),
			logExprs(TimeQuotaGroup, timeFinLogPrefix+entry.Name),
		)
		inFin := p.conn.AddRule(&nftables.Rule{Table: arena.table, Chain: arena.chains[chainTimeIn], Exprs: inFinExprs})

		outFinExprs := concatExprs(
			tcpProtoExprs(),
			ipMatchExprs(cidr, 16),
			tcpFlagsExprs(tcpFlagRST|tcpFlagFIN, 0, expr.CmpOpNeq),
			logExprs(TimeQuotaGroup, timeFinLogPrefix+entry.Name),
		)
		outFin := p.conn.AddRule(&nftables.Rule{Table: arena.table, Chain: arena.chains[chainTimeOut], Exprs: outFinExprs})

		limit.rules = append(limit.rules, timeRuleSet{start: start, inFin: inFin, outFin: outFin})
	}

	arena.time = append(arena.time, limit)
}

// Block installs the per-entry block rules: for a data entry this means
// removing the log rule (stopping further over-quota notifications; the
// drop rule was installed unconditionally at Init and has been counting
// all along); for a time entry this means adding reject rules in both
// directions for every CIDR.
func (p *Programmer) Block(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.arena == nil {
		return newProgrammerError(ErrChannelRefused, fmt.Errorf("classifier not initialized"))
	}

	if i := p.arena.dataLimitIndex(name); i >= 0 {
		limit := &p.arena.data[i]
		for j := range limit.rules {
			if limit.rules[j].log == nil {
				continue
			}
			if err := p.conn.DelRule(limit.rules[j].log); err != nil {
				return newProgrammerError(ErrBatchRejected, err)
			}
			limit.rules[j].log = nil
		}
		return p.commitRuntime(name)
	}

	if i := p.arena.timeLimitIndex(name); i >= 0 {
		limit := &p.arena.time[i]
		cidrs := p.entryCIDRs[name]
		for j := range limit.rules {
			rs := &limit.rules[j]
			if rs.blockIn != nil {
				continue
			}
			cidr := cidrs[j]

			blockInExprs := concatExprs(tcpProtoExprs(), ipMatchExprs(cidr, 12), rejectTCPExprs())
			rs.blockIn = p.conn.AddRule(&nftables.Rule{Table: p.arena.table, Chain: p.arena.chains[chainTimeIn], Exprs: blockInExprs})

			blockOutExprs := concatExprs(tcpProtoExprs(), ipMatchExprs(cidr, 16), rejectTCPExprs())
			rs.blockOut = p.conn.AddRule(&nftables.Rule{Table: p.arena.table, Chain: p.arena.chains[chainTimeOut], Exprs: blockOutExprs})
		}
		return p.commitRuntime(name)
	}

	return newProgrammerError(ErrChannelRefused, fmt.Errorf("unknown entry %q", name))
}

// Unblock removes an entry's block rules: for a data entry this reinstalls
// the log rule; for a time entry this deletes the reject rules.
func (p *Programmer) Unblock(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.arena == nil {
		return newProgrammerError(ErrChannelRefused, fmt.Errorf("classifier not initialized"))
	}

	if i := p.arena.dataLimitIndex(name); i >= 0 {
		limit := &p.arena.data[i]
		cidrs := p.entryCIDRs[name]
		for j := range limit.rules {
			if limit.rules[j].log != nil {
				continue
			}
			cidr := cidrs[j]
			logExprList := concatExprs(ipMatchExprs(cidr, 12), quotaRefExprs(name), logExprs(DataQuotaGroup, name))
			limit.rules[j].log = p.conn.AddRule(&nftables.Rule{Table: p.arena.table, Chain: p.arena.chains[chainDataIn], Exprs: logExprList})
		}
		return p.commitRuntime(name)
	}

	if i := p.arena.timeLimitIndex(name); i >= 0 {
		limit := &p.arena.time[i]
		for j := range limit.rules {
			rs := &limit.rules[j]
			if rs.blockIn != nil {
				if err := p.conn.DelRule(rs.blockIn); err != nil {
					return newProgrammerError(ErrBatchRejected, err)
				}
				rs.blockIn = nil
			}
			if rs.blockOut != nil {
				if err := p.conn.DelRule(rs.blockOut); err != nil {
					return newProgrammerError(ErrBatchRejected, err)
				}
				rs.blockOut = nil
			}
		}
		return p.commitRuntime(name)
	}

	return newProgrammerError(ErrChannelRefused, fmt.Errorf("unknown entry %q", name))
}

// commitRuntime flushes a runtime (non-init, non-deinit) batch fire-and-
// forget style: failures are logged rather than escalated, per the
// batching discipline's accepted trade-off that a lost runtime mutation
// surfaces only as a Degraded entry, not a hard error. name identifies the
// entry the batch was built for, so a failure can be attributed to it.
func (p *Programmer) commitRuntime(name string) error {
	if err := p.conn.Flush(); err != nil {
		p.logger.Warn("runtime batch commit failed, marking entry degraded", "entry", name, "error", err)
		p.degraded[name] = true
		return nil
	}
	p.degraded[name] = false
	return nil
}

// Deinit deletes the table, cascading the removal of every chain, rule, and
// quota object it contains. It is a no-op if Init never completed.
func (p *Programmer) Deinit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.installed {
		return nil
	}

	p.conn.DelTable(p.arena.table)
	if err := p.conn.Flush(); err != nil {
		return newProgrammerError(ErrBatchRejected, err)
	}

	p.installed = false
	p.arena = nil
	p.logger.Info("classifier deinitialized")
	return nil
}

// concatExprs appends one or more expr.Any slices into a single new slice,
// in order, for readability at the rule-synthesis call sites above.
func concatExprs(groups ...[]expr.Any) []expr.Any {
	var out []expr.Any
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
