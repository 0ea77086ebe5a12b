package rx

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// FindCreatorAddress derives the Creator account address for an owner
// wallet. The derivation is a pure function of the program id and seeds;
// identical inputs always yield the identical address.
func FindCreatorAddress(programID, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{SeedCreator, owner.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive creator address: %w", err)
	}
	return addr, bump, nil
}

// FindTierAddress derives the Tier account address for (creator, index).
func FindTierAddress(programID, creator solana.PublicKey, index uint32) (solana.PublicKey, uint8, error) {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)
	addr, bump, err := solana.FindProgramAddress([][]byte{SeedTier, creator.Bytes(), idx[:]}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive tier address: %w", err)
	}
	return addr, bump, nil
}

// FindPassAddress derives the Pass account address for (tier, wallet).
func FindPassAddress(programID, tier, wallet solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{SeedPass, tier.Bytes(), wallet.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive pass address: %w", err)
	}
	return addr, bump, nil
}
