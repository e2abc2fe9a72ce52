// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package classifier owns the in-kernel nftables topology (one table, four
// chains) and the per-entry rule sets that realize data and time quotas on
// top of it. It translates the policy model into batched netlink mutations
// via github.com/google/nftables.
package classifier

// Table and chain names. Exact strings carried over from the original
// netcontrol implementation so operators reading `nft list ruleset` see
// familiar names.
const (
	tableName = "netcontrol"

	dataInChainName  = "data_qt-in"
	dataOutChainName = "data_qt-out"
	timeInChainName  = "time_qt-in"
	timeOutChainName = "time_qt-out"
)

// Arena chain slots, in Init's creation order.
const (
	chainDataIn = iota
	chainDataOut
	chainTimeIn
	chainTimeOut
	numChains
)

// Log-group numbers bound by internal/nflog, and the prefixes the
// dispatcher keys its lookups on.
const (
	DataQuotaGroup uint16 = 0
	TimeQuotaGroup uint16 = 1

	dataLogPrefix      = "dq_"
	timeStartLogPrefix = "start_"
	timeFinLogPrefix   = "fin_"
)

// TCP protocol number and flag bits (linux/netfilter doesn't export Go
// constants for these; they're IANA/RFC 793 fixed values).
const (
	ipProtoTCP byte = 6

	tcpFlagFIN byte = 0x01
	tcpFlagSYN byte = 0x02
	tcpFlagRST byte = 0x04
	tcpFlagACK byte = 0x10
)

// nftObjTypeQuota is NFT_OBJECT_QUOTA from linux/netfilter/nf_tables.h; the
// expr.Objref wire type for referencing a named quota stateful object.
const nftObjTypeQuota uint32 = 2
