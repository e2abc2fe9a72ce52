// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import "github.com/google/nftables"

// fakeConn is an in-memory stand-in for *nftables.Conn, mirroring the
// teacher's pattern of a Kernel fake for simulation-mode tests. It records
// every mutation so tests can assert on the resulting rule set without a
// real netlink socket.
type fakeConn struct {
	tables []*nftables.Table
	chains []*nftables.Chain
	rules  []*nftables.Rule
	objs   []nftables.Obj

	nextHandle uint64
	flushErr   error
	flushes    int
}

func newFakeConn() *fakeConn {
	return &fakeConn{}
}

func (f *fakeConn) AddTable(t *nftables.Table) *nftables.Table {
	f.tables = append(f.tables, t)
	return t
}

func (f *fakeConn) DelTable(t *nftables.Table) {
	var kept []*nftables.Table
	for _, existing := range f.tables {
		if existing != t {
			kept = append(kept, existing)
		}
	}
	f.tables = kept
	f.rules = nil
	f.chains = nil
	f.objs = nil
}

func (f *fakeConn) AddChain(c *nftables.Chain) *nftables.Chain {
	f.chains = append(f.chains, c)
	return c
}

func (f *fakeConn) AddRule(r *nftables.Rule) *nftables.Rule {
	f.nextHandle++
	r.Handle = f.nextHandle
	f.rules = append(f.rules, r)
	return r
}

func (f *fakeConn) DelRule(r *nftables.Rule) error {
	var kept []*nftables.Rule
	found := false
	for _, existing := range f.rules {
		if existing == r {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	f.rules = kept
	if !found {
		return errNotFound
	}
	return nil
}

func (f *fakeConn) AddObj(o nftables.Obj) nftables.Obj {
	f.objs = append(f.objs, o)
	return o
}

func (f *fakeConn) Flush() error {
	f.flushes++
	return f.flushErr
}

func (f *fakeConn) rulesInChain(chain *nftables.Chain) int {
	n := 0
	for _, r := range f.rules {
		if r.Chain == chain {
			n++
		}
	}
	return n
}

var errNotFound = &fakeConnError{"rule not found"}

type fakeConnError struct{ msg string }

func (e *fakeConnError) Error() string { return e.msg }
