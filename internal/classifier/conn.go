// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import "github.com/google/nftables"

// Conn abstracts the subset of *nftables.Conn the Programmer depends on, the
// same way the teacher's internal/kernel package abstracts the OS network
// subsystem behind the Kernel interface — so Programmer can be driven by a
// fake in tests without a real netlink socket.
type Conn interface {
	AddTable(*nftables.Table) *nftables.Table
	DelTable(*nftables.Table)
	AddChain(*nftables.Chain) *nftables.Chain
	AddRule(*nftables.Rule) *nftables.Rule
	DelRule(*nftables.Rule) error
	AddObj(nftables.Obj) nftables.Obj
	Flush() error
}

// compile-time assertion that the real netlink connection satisfies Conn.
var _ Conn = (*nftables.Conn)(nil)
