package classify

import (
	"github.com/soltrace/soltrace/service/ledger"
)

// Known protocols, keyed by protocol id. Several program ids map to one
// protocol. The table is static; detection is a pure lookup with no
// network calls.
var protocolTable = map[string]*ledger.ProtocolInfo{
	"jupiter": {
		ID: "jupiter", Name: "Jupiter", Category: ledger.CategoryDEX,
		URL: "https://jup.ag",
		ProgramIDs: []string{
			"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",
			"JUP4Fb2cqiRUcaTHdrPC8h2gNsA2ETXiPDD33WcGuJB",
		},
	},
	"raydium": {
		ID: "raydium", Name: "Raydium", Category: ledger.CategoryDEX,
		URL: "https://raydium.io",
		ProgramIDs: []string{
			"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8",
			"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK",
		},
	},
	"orca": {
		ID: "orca", Name: "Orca", Category: ledger.CategoryDEX,
		URL: "https://www.orca.so",
		ProgramIDs: []string{
			"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",
			"9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP",
		},
	},
	"meteora": {
		ID: "meteora", Name: "Meteora", Category: ledger.CategoryDEX,
		URL: "https://meteora.ag",
		ProgramIDs: []string{
			"LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo",
		},
	},
	"pumpfun": {
		ID: "pumpfun", Name: "Pump.fun", Category: ledger.CategoryDEX,
		URL: "https://pump.fun",
		ProgramIDs: []string{
			"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P",
		},
	},
	"solend": {
		ID: "solend", Name: "Solend", Category: ledger.CategoryLending,
		URL: "https://solend.fi",
		ProgramIDs: []string{
			"So1endDq2YkqhipRh3WViPa8hdiSpxWy6z3Z6tMCpAo",
		},
	},
	"kamino": {
		ID: "kamino", Name: "Kamino", Category: ledger.CategoryLending,
		URL: "https://kamino.finance",
		ProgramIDs: []string{
			"KLend2g3cP87fffoy8q1mQqGKjrxjC8boSyAYavgmjD",
		},
	},
	"marginfi": {
		ID: "marginfi", Name: "marginfi", Category: ledger.CategoryLending,
		URL: "https://marginfi.com",
		ProgramIDs: []string{
			"MFv2hWf31Z9kbCa1snEPYctwafyhdvnV7FZnsebVacA",
		},
	},
	"marinade": {
		ID: "marinade", Name: "Marinade", Category: ledger.CategoryStaking,
		URL: "https://marinade.finance",
		ProgramIDs: []string{
			"MarBmsSgKXdrN1egZf5sqe1TMai9K1rChYNDJgjq7aD",
		},
	},
	"native-stake": {
		ID: "native-stake", Name: "Solana Staking", Category: ledger.CategoryStaking,
		ProgramIDs: []string{
			"Stake11111111111111111111111111111111111111",
		},
	},
	"wormhole": {
		ID: "wormhole", Name: "Wormhole", Category: ledger.CategoryBridge,
		URL: "https://wormhole.com",
		ProgramIDs: []string{
			"worm2ZoG2kUd4vFXhvjh93UUH596ayRfgQ2MgjNMTth",
			"wormDTUJ6AWPNvk59vGQbDvGJmqbDTdgWgAqcLBCgUb",
		},
	},
	"metaplex": {
		ID: "metaplex", Name: "Metaplex", Category: ledger.CategoryNFT,
		URL: "https://www.metaplex.com",
		ProgramIDs: []string{
			"metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s",
			"BGUMAp9Gq7iTEuizy4pqaxsTyUCBK68MDfK752saRPUY",
		},
	},
	"magiceden": {
		ID: "magiceden", Name: "Magic Eden", Category: ledger.CategoryNFT,
		URL: "https://magiceden.io",
		ProgramIDs: []string{
			"M2mx93ekt1fmXSVkTrUL9xVFHkmME8HTUi5Cyc5aF7K",
		},
	},
	"tensor": {
		ID: "tensor", Name: "Tensor", Category: ledger.CategoryNFT,
		URL: "https://tensor.trade",
		ProgramIDs: []string{
			"TSWAPaqyCSx2KABk68Shruf4rp7CxcNi8hAsbdwmHbN",
		},
	},
	"jupiter-distributor": {
		ID: "jupiter-distributor", Name: "Jupiter Distributor", Category: ledger.CategoryDistributor,
		ProgramIDs: []string{
			"meRjbQXFNf5En86FXT2YPz1dQzLj4Yb3xK8u1MVgqpb",
		},
	},
}

// protocolPriority is the deterministic tie-break when a transaction's
// program ids map to more than one protocol: the first protocol in this
// list that matches wins. More specific protocols (lending, NFT
// marketplaces, distributors) rank above aggregators and AMMs, which rank
// above infrastructure programs.
var protocolPriority = []string{
	"solend",
	"kamino",
	"marginfi",
	"marinade",
	"native-stake",
	"wormhole",
	"magiceden",
	"tensor",
	"metaplex",
	"jupiter-distributor",
	"jupiter",
	"raydium",
	"orca",
	"meteora",
	"pumpfun",
}

// DetectProtocol maps the set of program ids touched by a transaction to a
// known protocol, or nil when none match.
func DetectProtocol(programIDs []string) *ledger.ProtocolInfo {
	if len(programIDs) == 0 {
		return nil
	}
	touched := make(map[string]struct{}, len(programIDs))
	for _, id := range programIDs {
		touched[id] = struct{}{}
	}
	for _, protoID := range protocolPriority {
		proto := protocolTable[protoID]
		for _, programID := range proto.ProgramIDs {
			if _, ok := touched[programID]; ok {
				return proto
			}
		}
	}
	return nil
}

// ProtocolByID returns the static protocol entry, or nil.
func ProtocolByID(id string) *ledger.ProtocolInfo {
	return protocolTable[id]
}
