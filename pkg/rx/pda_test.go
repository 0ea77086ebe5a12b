package rx

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestCreatorPass_RX_FindCreatorAddress(t *testing.T) {
	t.Parallel()

	owner := solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")

	t.Run("is deterministic", func(t *testing.T) {
		t.Parallel()

		first, bump1, err := FindCreatorAddress(DefaultProgramID, owner)
		require.NoError(t, err)
		second, bump2, err := FindCreatorAddress(DefaultProgramID, owner)
		require.NoError(t, err)

		require.Equal(t, first, second)
		require.Equal(t, bump1, bump2)
	})

	t.Run("distinct owners get distinct addresses", func(t *testing.T) {
		t.Parallel()

		other := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

		a, _, err := FindCreatorAddress(DefaultProgramID, owner)
		require.NoError(t, err)
		b, _, err := FindCreatorAddress(DefaultProgramID, other)
		require.NoError(t, err)

		require.NotEqual(t, a, b)
	})

	t.Run("program id is part of the derivation", func(t *testing.T) {
		t.Parallel()

		a, _, err := FindCreatorAddress(DefaultProgramID, owner)
		require.NoError(t, err)
		b, _, err := FindCreatorAddress(solana.SystemProgramID, owner)
		require.NoError(t, err)

		require.NotEqual(t, a, b)
	})
}

func TestCreatorPass_RX_FindTierAddress(t *testing.T) {
	t.Parallel()

	creator, _, err := FindCreatorAddress(DefaultProgramID, solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111"))
	require.NoError(t, err)

	t.Run("index changes the address", func(t *testing.T) {
		t.Parallel()

		seen := make(map[solana.PublicKey]bool)
		for i := uint32(0); i < 5; i++ {
			addr, _, err := FindTierAddress(DefaultProgramID, creator, i)
			require.NoError(t, err)
			require.False(t, seen[addr], "tier index %d collided", i)
			seen[addr] = true
		}
	})

	t.Run("is deterministic per index", func(t *testing.T) {
		t.Parallel()

		a, _, err := FindTierAddress(DefaultProgramID, creator, 2)
		require.NoError(t, err)
		b, _, err := FindTierAddress(DefaultProgramID, creator, 2)
		require.NoError(t, err)
		require.Equal(t, a, b)
	})
}

func TestCreatorPass_RX_FindPassAddress(t *testing.T) {
	t.Parallel()

	creator, _, err := FindCreatorAddress(DefaultProgramID, solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111"))
	require.NoError(t, err)
	tier, _, err := FindTierAddress(DefaultProgramID, creator, 0)
	require.NoError(t, err)

	walletA := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	walletB := solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")

	a, _, err := FindPassAddress(DefaultProgramID, tier, walletA)
	require.NoError(t, err)
	b, _, err := FindPassAddress(DefaultProgramID, tier, walletB)
	require.NoError(t, err)
	a2, _, err := FindPassAddress(DefaultProgramID, tier, walletA)
	require.NoError(t, err)

	require.Equal(t, a, a2)
	require.NotEqual(t, a, b)
}
