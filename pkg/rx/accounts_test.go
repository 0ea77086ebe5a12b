package rx

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func creatorBuffer(owner, payout [32]byte) []byte {
	buf := make([]byte, 0, 72)
	buf = append(buf, CreatorDiscriminator[:]...)
	buf = append(buf, owner[:]...)
	buf = append(buf, payout[:]...)
	return buf
}

func tierBuffer(t *testing.T, tier Tier, padTo int) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(TierDiscriminator[:])
	buf.Write(tier.Creator.Bytes())
	var u32 [4]byte
	var u64 [8]byte
	binary.LittleEndian.PutUint32(u32[:], tier.Index)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint64(u64[:], tier.PriceLamports)
	buf.Write(u64[:])
	buf.Write(tier.TokenMint.Bytes())
	binary.LittleEndian.PutUint64(u64[:], tier.DurationSec)
	buf.Write(u64[:])
	binary.LittleEndian.PutUint32(u32[:], uint32(len(tier.Name)))
	buf.Write(u32[:])
	buf.WriteString(tier.Name)
	binary.LittleEndian.PutUint32(u32[:], uint32(len(tier.URI)))
	buf.Write(u32[:])
	buf.WriteString(tier.URI)
	binary.LittleEndian.PutUint32(u32[:], tier.ScholarshipRemaining)
	buf.Write(u32[:])
	for buf.Len() < padTo {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func passBuffer(pass Pass) []byte {
	buf := make([]byte, 0, 112)
	buf = append(buf, PassDiscriminator[:]...)
	buf = append(buf, pass.Creator.Bytes()...)
	buf = append(buf, pass.Tier.Bytes()...)
	buf = append(buf, pass.Wallet.Bytes()...)
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], pass.ExpiryTs)
	buf = append(buf, u64[:]...)
	return buf
}

func TestCreatorPass_RX_DecodeCreator(t *testing.T) {
	t.Parallel()

	t.Run("decodes owner and payout wallet at fixed offsets", func(t *testing.T) {
		t.Parallel()

		var owner, payout [32]byte
		owner[0] = 1
		for i := range payout {
			payout[i] = 0xFF
		}

		creator, err := DecodeCreator(creatorBuffer(owner, payout))
		require.NoError(t, err)
		require.Equal(t, solana.PublicKeyFromBytes(owner[:]), creator.Owner)
		require.Equal(t, solana.PublicKeyFromBytes(payout[:]), creator.PayoutWallet)
	})

	t.Run("rejects truncated buffer", func(t *testing.T) {
		t.Parallel()

		var owner, payout [32]byte
		data := creatorBuffer(owner, payout)

		_, err := DecodeCreator(data[:40])
		require.ErrorIs(t, err, ErrTruncatedAccount)

		_, err = DecodeCreator(data[:3])
		require.ErrorIs(t, err, ErrTruncatedAccount)

		_, err = DecodeCreator(nil)
		require.ErrorIs(t, err, ErrTruncatedAccount)
	})

	t.Run("rejects wrong discriminator", func(t *testing.T) {
		t.Parallel()

		var owner, payout [32]byte
		data := creatorBuffer(owner, payout)
		copy(data[:8], TierDiscriminator[:])

		_, err := DecodeCreator(data)
		require.ErrorIs(t, err, ErrDiscriminatorMismatch)
	})
}

func TestCreatorPass_RX_DecodeTier(t *testing.T) {
	t.Parallel()

	sample := Tier{
		Creator:              solana.MustPublicKeyFromBase58("D43Xs9NAXeKBHUhDATKua8kvJhmr5gXMNPTdMfR2z29n"),
		Index:                3,
		PriceLamports:        250_000_000,
		TokenMint:            solana.PublicKey{},
		DurationSec:          30 * 86400,
		Name:                 "Premium Access",
		URI:                  "https://creatorpass.example/tiers/3",
		ScholarshipRemaining: 7,
	}

	t.Run("round-trips all fields", func(t *testing.T) {
		t.Parallel()

		decoded, err := DecodeTier(tierBuffer(t, sample, 0))
		require.NoError(t, err)
		require.Equal(t, sample, decoded)
		require.True(t, decoded.SOLPriced())
	})

	t.Run("preserves multi-byte UTF-8 exactly", func(t *testing.T) {
		t.Parallel()

		tier := sample
		tier.Name = "día del café ☕"
		tier.URI = "https://creatorpass.example/ニュース"

		decoded, err := DecodeTier(tierBuffer(t, tier, 0))
		require.NoError(t, err)
		require.Equal(t, tier.Name, decoded.Name)
		require.Equal(t, tier.URI, decoded.URI)
	})

	t.Run("tolerates trailing rent padding", func(t *testing.T) {
		t.Parallel()

		// Accounts are allocated at their max size; bytes past the
		// declared string lengths are padding, not data.
		decoded, err := DecodeTier(tierBuffer(t, sample, 400))
		require.NoError(t, err)
		require.Equal(t, sample.Name, decoded.Name)
		require.Equal(t, sample.URI, decoded.URI)
		require.Equal(t, sample.ScholarshipRemaining, decoded.ScholarshipRemaining)
	})

	t.Run("rejects string length past buffer end", func(t *testing.T) {
		t.Parallel()

		data := tierBuffer(t, sample, 0)
		// Inflate the declared name length beyond the buffer.
		binary.LittleEndian.PutUint32(data[92:96], uint32(len(data)))

		_, err := DecodeTier(data)
		require.ErrorIs(t, err, ErrTruncatedAccount)
	})

	t.Run("rejects buffer shorter than fixed fields", func(t *testing.T) {
		t.Parallel()

		data := tierBuffer(t, sample, 0)
		_, err := DecodeTier(data[:60])
		require.ErrorIs(t, err, ErrTruncatedAccount)
	})

	t.Run("rejects buffer missing scholarship counter", func(t *testing.T) {
		t.Parallel()

		data := tierBuffer(t, sample, 0)
		_, err := DecodeTier(data[:len(data)-4])
		require.ErrorIs(t, err, ErrTruncatedAccount)
	})

	t.Run("rejects pass discriminator", func(t *testing.T) {
		t.Parallel()

		data := tierBuffer(t, sample, 0)
		copy(data[:8], PassDiscriminator[:])
		_, err := DecodeTier(data)
		require.ErrorIs(t, err, ErrDiscriminatorMismatch)
	})
}

func TestCreatorPass_RX_DecodePass(t *testing.T) {
	t.Parallel()

	sample := Pass{
		Creator:  solana.MustPublicKeyFromBase58("D43Xs9NAXeKBHUhDATKua8kvJhmr5gXMNPTdMfR2z29n"),
		Tier:     solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"),
		Wallet:   solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111"),
		ExpiryTs: 1_900_000_000,
	}

	t.Run("round-trips all fields", func(t *testing.T) {
		t.Parallel()

		decoded, err := DecodePass(passBuffer(sample))
		require.NoError(t, err)
		require.Equal(t, sample, decoded)
	})

	t.Run("rejects truncated buffer", func(t *testing.T) {
		t.Parallel()

		data := passBuffer(sample)
		_, err := DecodePass(data[:104])
		require.ErrorIs(t, err, ErrTruncatedAccount)
	})
}

func TestCreatorPass_RX_PassActiveAt(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_800_000_000, 0)

	t.Run("strictly after now is active", func(t *testing.T) {
		t.Parallel()
		p := Pass{ExpiryTs: uint64(now.Unix()) + 1}
		require.True(t, p.ActiveAt(now))
	})

	t.Run("exactly now is not active", func(t *testing.T) {
		t.Parallel()
		p := Pass{ExpiryTs: uint64(now.Unix())}
		require.False(t, p.ActiveAt(now))
	})

	t.Run("expired is not active", func(t *testing.T) {
		t.Parallel()
		p := Pass{ExpiryTs: uint64(now.Unix()) - 1}
		require.False(t, p.ActiveAt(now))
	})

	t.Run("fresh pass with zero expiry is not active", func(t *testing.T) {
		t.Parallel()
		p := Pass{}
		require.False(t, p.ActiveAt(now))
	})
}
