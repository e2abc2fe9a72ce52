// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matislovas/netcontrol-go/internal/policy"
)

func cidr(s string) policy.Ipv4Cidr {
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	ones, _ := ipnet.Mask.Size()
	return policy.Ipv4Cidr{IP: ip.To4(), Prefix: ones}
}

func TestProgrammer_InitInstallsTableChainsAndDataRules(t *testing.T) {
	conn := newFakeConn()
	p := NewProgrammer(conn, nil)

	pol := policy.Policy{
		Data: []policy.DataEntry{
			{Name: "dq_0", Destination: policy.Destination{CIDRs: []policy.Ipv4Cidr{cidr("10.0.0.5/32")}}, LimitBytes: 1000},
		},
	}

	require.NoError(t, p.Init(pol))
	assert.True(t, p.Installed())
	assert.Len(t, conn.tables, 1)
	assert.Len(t, conn.chains, numChains)
	assert.Len(t, conn.objs, 1)

	// one block rule + one log rule, both in data_qt-in
	assert.Equal(t, 2, conn.rulesInChain(conn.chains[chainDataIn]))
}

func TestProgrammer_InitInstallsTimeRules(t *testing.T) {
	conn := newFakeConn()
	p := NewProgrammer(conn, nil)

	pol := policy.Policy{
		Time: []policy.TimeEntry{
			{Name: "tq_0", Destination: policy.Destination{CIDRs: []policy.Ipv4Cidr{cidr("10.0.0.5/32")}}, LimitSeconds: 30},
		},
	}

	require.NoError(t, p.Init(pol))
	// start + in_fin both land in time_qt-in
	assert.Equal(t, 2, conn.rulesInChain(conn.chains[chainTimeIn]))
	// out_fin lands in time_qt-out
	assert.Equal(t, 1, conn.rulesInChain(conn.chains[chainTimeOut]))
}

func TestProgrammer_DoubleInitFails(t *testing.T) {
	conn := newFakeConn()
	p := NewProgrammer(conn, nil)
	require.NoError(t, p.Init(policy.Policy{}))

	err := p.Init(policy.Policy{})
	require.Error(t, err)
	var progErr *ProgrammerError
	require.ErrorAs(t, err, &progErr)
	assert.Equal(t, ErrChannelRefused, progErr.Code)
}

func TestProgrammer_InitRollsBackOnFlushFailure(t *testing.T) {
	conn := newFakeConn()
	conn.flushErr = assertErr("kernel refused batch")
	p := NewProgrammer(conn, nil)

	err := p.Init(policy.Policy{
		Data: []policy.DataEntry{
			{Name: "dq_0", Destination: policy.Destination{CIDRs: []policy.Ipv4Cidr{cidr("10.0.0.5/32")}}, LimitBytes: 1000},
		},
	})
	require.Error(t, err)
	assert.False(t, p.Installed())
	assert.Empty(t, conn.tables, "table should have been torn down after the failed flush")
}

func TestProgrammer_BlockDataEntryRemovesLogRuleOnly(t *testing.T) {
	conn := newFakeConn()
	p := NewProgrammer(conn, nil)
	require.NoError(t, p.Init(policy.Policy{
		Data: []policy.DataEntry{
			{Name: "dq_0", Destination: policy.Destination{CIDRs: []policy.Ipv4Cidr{cidr("10.0.0.5/32")}}, LimitBytes: 1000},
		},
	}))

	require.NoError(t, p.Block("dq_0"))
	assert.Equal(t, 1, conn.rulesInChain(conn.chains[chainDataIn]), "only the block rule should remain")

	require.NoError(t, p.Unblock("dq_0"))
	assert.Equal(t, 2, conn.rulesInChain(conn.chains[chainDataIn]), "log rule should be reinstalled")
}

func TestProgrammer_BlockTimeEntryAddsBothDirections(t *testing.T) {
	conn := newFakeConn()
	p := NewProgrammer(conn, nil)
	require.NoError(t, p.Init(policy.Policy{
		Time: []policy.TimeEntry{
			{Name: "tq_0", Destination: policy.Destination{CIDRs: []policy.Ipv4Cidr{cidr("10.0.0.5/32")}}, LimitSeconds: 30},
		},
	}))

	require.NoError(t, p.Block("tq_0"))
	assert.Equal(t, 3, conn.rulesInChain(conn.chains[chainTimeIn]), "start + in_fin + block_in")
	assert.Equal(t, 2, conn.rulesInChain(conn.chains[chainTimeOut]), "out_fin + block_out")

	require.NoError(t, p.Unblock("tq_0"))
	assert.Equal(t, 2, conn.rulesInChain(conn.chains[chainTimeIn]))
	assert.Equal(t, 1, conn.rulesInChain(conn.chains[chainTimeOut]))
}

func TestProgrammer_BlockMarksEntryDegradedOnRuntimeFlushFailure(t *testing.T) {
	conn := newFakeConn()
	p := NewProgrammer(conn, nil)
	require.NoError(t, p.Init(policy.Policy{
		Data: []policy.DataEntry{
			{Name: "dq_0", Destination: policy.Destination{CIDRs: []policy.Ipv4Cidr{cidr("10.0.0.5/32")}}, LimitBytes: 1000},
		},
	}))

	conn.flushErr = &fakeConnError{"batch rejected"}
	require.NoError(t, p.Block("dq_0"), "runtime commit failures are swallowed, not returned")
	assert.Equal(t, []string{"dq_0"}, p.Degraded())

	conn.flushErr = nil
	require.NoError(t, p.Unblock("dq_0"))
	assert.Empty(t, p.Degraded(), "a later successful commit clears the degraded mark")
}

func TestProgrammer_DeinitRemovesTable(t *testing.T) {
	conn := newFakeConn()
	p := NewProgrammer(conn, nil)
	require.NoError(t, p.Init(policy.Policy{
		Data: []policy.DataEntry{
			{Name: "dq_0", Destination: policy.Destination{CIDRs: []policy.Ipv4Cidr{cidr("10.0.0.5/32")}}, LimitBytes: 1000},
		},
	}))

	require.NoError(t, p.Deinit())
	assert.False(t, p.Installed())
	assert.Empty(t, conn.tables)
	assert.Empty(t, conn.rules)
}

func TestProgrammer_DeinitIsNoopWhenNeverInitialized(t *testing.T) {
	conn := newFakeConn()
	p := NewProgrammer(conn, nil)
	require.NoError(t, p.Deinit())
	assert.Equal(t, 0, conn.flushes)
}

func TestProgrammer_BlockUnknownEntryFails(t *testing.T) {
	conn := newFakeConn()
	p := NewProgrammer(conn, nil)
	require.NoError(t, p.Init(policy.Policy{}))

	err := p.Block("nope")
	require.Error(t, err)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
