// Package rx contains client bindings for the CreatorPass on-chain program:
// account layouts and their fixed-offset decoders, program-derived address
// derivation, and instruction builders. The account schema and instruction
// encodings are dictated by the program; offsets here must track it exactly.
package rx

import "github.com/gagliardetto/solana-go"

// DefaultProgramID is the devnet deployment of the CreatorPass program.
// Deployments elsewhere pass their own id through each package's Config.
var DefaultProgramID = solana.MustPublicKeyFromBase58("D43Xs9NAXeKBHUhDATKua8kvJhmr5gXMNPTdMfR2z29n")

// PDA seed tags, combined with referenced keys (and a little-endian u32
// index for tiers) to derive account addresses.
var (
	SeedCreator = []byte("creator")
	SeedTier    = []byte("tier")
	SeedPass    = []byte("pass")
)

// Account discriminators: the first 8 bytes of sha256("account:<Name>"),
// stored at offset 0 of every account of that type.
var (
	CreatorDiscriminator = [8]byte{237, 37, 233, 153, 165, 132, 54, 103}
	TierDiscriminator    = [8]byte{18, 149, 18, 34, 50, 201, 207, 55}
	PassDiscriminator    = [8]byte{40, 247, 140, 113, 56, 14, 57, 44}
)

// Instruction discriminators: the first 8 bytes of sha256("global:<name>").
var (
	InitCreatorDiscriminator        = [8]byte{143, 37, 67, 139, 129, 118, 169, 236}
	CreateTierDiscriminator         = [8]byte{64, 146, 139, 178, 95, 123, 94, 244}
	SubscribeOrRenewDiscriminator   = [8]byte{12, 43, 136, 90, 218, 193, 55, 92}
	GrantScholarshipDiscriminator   = [8]byte{101, 18, 45, 203, 83, 252, 196, 10}
	RefillScholarshipsDiscriminator = [8]byte{24, 249, 146, 80, 100, 64, 41, 119}
)

// Program-enforced bounds on tier string fields, in bytes.
const (
	TierNameMax = 64
	TierURIMax  = 200
)

const LamportsPerSOL = 1_000_000_000
