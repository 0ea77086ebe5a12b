package rx

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// InitCreatorArgs is the payload of the init_creator instruction.
type InitCreatorArgs struct {
	PayoutWallet solana.PublicKey
}

// CreateTierArgs is the payload of the create_tier instruction. A zero
// TokenMint means SOL pricing.
type CreateTierArgs struct {
	Index                uint32
	PriceLamports        uint64
	TokenMint            solana.PublicKey
	DurationSec          uint64
	Name                 string
	URI                  string
	ScholarshipRemaining uint32
}

// RefillScholarshipsArgs is the payload of the refill_scholarships
// instruction.
type RefillScholarshipsArgs struct {
	AddSlots uint32
}

func encodeData(discriminator [8]byte, args any) ([]byte, error) {
	data := make([]byte, 8, 64)
	copy(data, discriminator[:])
	if args == nil {
		return data, nil
	}
	encoded, err := bin.MarshalBorsh(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode instruction args: %w", err)
	}
	return append(data, encoded...), nil
}

// NewInitCreatorInstruction builds the init_creator instruction. The
// creator account is the PDA derived from the owner; the owner signs and
// pays rent.
func NewInitCreatorInstruction(programID, creator, owner solana.PublicKey, args InitCreatorArgs) (solana.Instruction, error) {
	data, err := encodeData(InitCreatorDiscriminator, args)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(creator).WRITE(),
		solana.Meta(owner).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

// NewCreateTierInstruction builds the create_tier instruction for the tier
// PDA derived from (creator, args.Index).
func NewCreateTierInstruction(programID, creator, tier, owner solana.PublicKey, args CreateTierArgs) (solana.Instruction, error) {
	if n := len(args.Name); n > TierNameMax {
		return nil, fmt.Errorf("tier name is %d bytes, max %d", n, TierNameMax)
	}
	if n := len(args.URI); n > TierURIMax {
		return nil, fmt.Errorf("tier uri is %d bytes, max %d", n, TierURIMax)
	}
	data, err := encodeData(CreateTierDiscriminator, args)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(creator),
		solana.Meta(tier).WRITE(),
		solana.Meta(owner).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

// NewSubscribeOrRenewInstruction builds the subscribe_or_renew instruction.
// The program moves the SOL payment itself for SOL-priced tiers; payout must
// equal the creator's configured payout wallet or the program rejects it.
func NewSubscribeOrRenewInstruction(programID, creator, tier, payout, pass, payer solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeData(SubscribeOrRenewDiscriminator, nil)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(creator),
		solana.Meta(tier),
		solana.Meta(payout).WRITE(),
		solana.Meta(pass).WRITE(),
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

// NewGrantScholarshipInstruction builds the grant_scholarship instruction.
// The beneficiary does not sign; the creator's owner pays rent for the pass.
func NewGrantScholarshipInstruction(programID, creator, tier, pass, beneficiary, owner solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeData(GrantScholarshipDiscriminator, nil)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(creator),
		solana.Meta(tier).WRITE(),
		solana.Meta(pass).WRITE(),
		solana.Meta(beneficiary),
		solana.Meta(owner).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

// NewLamportsTransferInstruction builds a plain system-program transfer,
// used to compose an extra payment alongside a program instruction in the
// same transaction.
func NewLamportsTransferInstruction(lamports uint64, from, to solana.PublicKey) solana.Instruction {
	return system.NewTransferInstruction(lamports, from, to).Build()
}

// NewRefillScholarshipsInstruction builds the refill_scholarships
// instruction.
func NewRefillScholarshipsInstruction(programID, creator, tier, owner solana.PublicKey, args RefillScholarshipsArgs) (solana.Instruction, error) {
	data, err := encodeData(RefillScholarshipsDiscriminator, args)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(creator),
		solana.Meta(tier).WRITE(),
		solana.Meta(owner).WRITE().SIGNER(),
	}, data), nil
}
