// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import "github.com/google/nftables"

// dataRuleSet is the pair of kernel rules realizing one CIDR of one
// DataEntry: an always-installed accounting/block rule, and a log rule that
// is present only while the entry is still in the Counting state.
type dataRuleSet struct {
	block *nftables.Rule
	log   *nftables.Rule // nil once the entry has transitioned to OverLimit
}

// timeRuleSet is the set of kernel rules realizing one CIDR of one
// TimeEntry. start/inFin/outFin are installed for the lifetime of the
// entry; blockIn/blockOut exist only once the entry has expired.
type timeRuleSet struct {
	start  *nftables.Rule
	inFin  *nftables.Rule
	outFin *nftables.Rule

	blockIn  *nftables.Rule // nil unless Expired
	blockOut *nftables.Rule // nil unless Expired
}

// dataLimit is the arena's record for one DataEntry. quotaIndex is an index
// into Arena.quotas rather than a direct pointer: per the shared-lifetime
// graph design (table -> chains -> rules -> quotas), rulesets reference
// their quota positionally so the arena can be grown and walked without
// holding live pointers across a rebuild.
type dataLimit struct {
	name       string
	quotaIndex int
	rules      []dataRuleSet // one per Destination.CIDRs entry
}

// timeLimit is the arena's record for one TimeEntry.
type timeLimit struct {
	name         string
	limitSeconds uint64
	rules        []timeRuleSet
}

// Arena owns every kernel object the Programmer creates: the table, its four
// chains (indexed by the chainData*/chainTime* constants), the named quota
// objects (one per DataEntry), and the per-entry rule sets. It is the
// "shared-lifetime graph" the design calls for — everything with the same
// lifetime as the table lives here, addressed by index rather than by
// pointer chase.
type Arena struct {
	table  *nftables.Table
	chains [numChains]*nftables.Chain
	quotas []*nftables.Quota

	data []dataLimit
	time []timeLimit
}

func newArena() *Arena {
	return &Arena{}
}

// dataLimitIndex returns the index of the named DataEntry's arena record,
// or -1 if not found.
func (a *Arena) dataLimitIndex(name string) int {
	for i := range a.data {
		if a.data[i].name == name {
			return i
		}
	}
	return -1
}

// timeLimitIndex returns the index of the named TimeEntry's arena record, or
// -1 if not found.
func (a *Arena) timeLimitIndex(name string) int {
	for i := range a.time {
		if a.time[i].name == name {
			return i
		}
	}
	return -1
}
