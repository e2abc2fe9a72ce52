// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"net"

	"github.com/google/nftables/expr"

	"github.com/matislovas/netcontrol-go/internal/policy"
)

// ipMatchExprs builds the payload+bitwise+cmp triple that matches an IPv4
// header field against a CIDR. offset is 12 for source address, 16 for
// destination address (IPv4 header layout).
func ipMatchExprs(cidr policy.Ipv4Cidr, offset uint32) []expr.Any {
	mask := net.CIDRMask(cidr.Prefix, 32)
	network := cidr.IP.Mask(mask)

	return []expr.Any{
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseNetworkHeader,
			Offset:       offset,
			Len:          4,
		},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           []byte(mask),
			Xor:            []byte{0, 0, 0, 0},
		},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     []byte(network),
		},
	}
}

// tcpProtoExprs matches meta l4proto == IPPROTO_TCP.
func tcpProtoExprs() []expr.Any {
	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{ipProtoTCP}},
	}
}

// tcpFlagsExprs matches the TCP flags byte (transport-header offset 13)
// against mask/want with the given comparison op: (flags & mask) op want.
func tcpFlagsExprs(mask byte, want byte, op expr.CmpOp) []expr.Any {
	return []expr.Any{
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseTransportHeader,
			Offset:       13,
			Len:          1,
		},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            1,
			Mask:           []byte{mask},
			Xor:            []byte{0},
		},
		&expr.Cmp{Op: op, Register: 1, Data: []byte{want}},
	}
}

// logExprs emits a notification to the given group tagged with prefix.
func logExprs(group uint16, prefix string) []expr.Any {
	return []expr.Any{
		&expr.Log{
			Group:   group,
			Snaplen: 0,
			Data:    []byte(prefix),
		},
	}
}

// quotaRefExprs matches the named quota stateful object, counting this
// packet's bytes against it.
func quotaRefExprs(name string) []expr.Any {
	return []expr.Any{
		&expr.Objref{Type: nftObjTypeQuota, Name: name},
	}
}

func dropExprs() []expr.Any {
	return []expr.Any{&expr.Verdict{Kind: expr.VerdictDrop}}
}

// rejectTCPExprs sends a TCP RST, the standard reject action for blocked
// TCP flows (as opposed to ICMP unreachable for other protocols, which this
// agent never needs since time-quota blocking is TCP-only).
func rejectTCPExprs() []expr.Any {
	return []expr.Any{&expr.Reject{Type: expr.RejectTypeTCPRST, Code: 0}}
}
