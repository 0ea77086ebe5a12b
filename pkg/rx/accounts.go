package rx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrTruncatedAccount is returned when a buffer is too short for the
	// requested layout, including a declared string length that would read
	// past the end of the buffer.
	ErrTruncatedAccount = errors.New("account data truncated")

	// ErrDiscriminatorMismatch is returned when the first 8 bytes of a
	// buffer do not match the expected account type.
	ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")
)

// Creator is a creator registration account. One exists per owner wallet,
// at the address derived from ("creator", owner).
type Creator struct {
	Owner        solana.PublicKey `json:"owner"`
	PayoutWallet solana.PublicKey `json:"payoutWallet"`
}

// Tier is a subscription offering published by a creator, addressed by
// ("tier", creator, index).
type Tier struct {
	Creator              solana.PublicKey `json:"creator"`
	Index                uint32           `json:"index"`
	PriceLamports        uint64           `json:"priceLamports"`
	TokenMint            solana.PublicKey `json:"tokenMint"`
	DurationSec          uint64           `json:"durationSec"`
	Name                 string           `json:"name"`
	URI                  string           `json:"uri"`
	ScholarshipRemaining uint32           `json:"scholarshipRemaining"`
}

// SOLPriced reports whether the tier is priced in native SOL. The program
// encodes SOL pricing as the all-zero token mint.
func (t Tier) SOLPriced() bool {
	return t.TokenMint.IsZero()
}

// Pass grants a wallet timed access to one tier, addressed by
// ("pass", tier, wallet).
type Pass struct {
	Creator  solana.PublicKey `json:"creator"`
	Tier     solana.PublicKey `json:"tier"`
	Wallet   solana.PublicKey `json:"wallet"`
	ExpiryTs uint64           `json:"expiryTs"`
}

// ActiveAt reports whether the pass grants access at the given instant.
// The comparison is strict: a pass expiring exactly now is not active.
func (p Pass) ActiveAt(now time.Time) bool {
	ts := now.Unix()
	if ts < 0 {
		return p.ExpiryTs > 0
	}
	return p.ExpiryTs > uint64(ts)
}

const (
	creatorDataSize   = 8 + 32 + 32
	tierFixedPrefix   = 8 + 32 + 4 + 8 + 32 + 8 // through durationSec
	passDataSize      = 8 + 32 + 32 + 32 + 8
	passWalletOffset  = 72 // memcmp filter offset for Pass.Wallet
	tierCreatorOffset = 8  // memcmp filter offset for Tier.Creator
)

func checkDiscriminator(data []byte, want [8]byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: %d bytes, need at least 8 for discriminator", ErrTruncatedAccount, len(data))
	}
	if !bytes.Equal(data[:8], want[:]) {
		return fmt.Errorf("%w: got %x, want %x", ErrDiscriminatorMismatch, data[:8], want[:])
	}
	return nil
}

// DecodeCreator parses a raw Creator account buffer.
func DecodeCreator(data []byte) (Creator, error) {
	if err := checkDiscriminator(data, CreatorDiscriminator); err != nil {
		return Creator{}, err
	}
	if len(data) < creatorDataSize {
		return Creator{}, fmt.Errorf("%w: %d bytes, need %d for creator", ErrTruncatedAccount, len(data), creatorDataSize)
	}
	return Creator{
		Owner:        solana.PublicKeyFromBytes(data[8:40]),
		PayoutWallet: solana.PublicKeyFromBytes(data[40:72]),
	}, nil
}

// DecodeTier parses a raw Tier account buffer. The name and uri fields are
// u32-length-prefixed UTF-8; declared lengths are honored exactly and a
// length reaching past the buffer is an error, never a silent truncation.
func DecodeTier(data []byte) (Tier, error) {
	if err := checkDiscriminator(data, TierDiscriminator); err != nil {
		return Tier{}, err
	}
	if len(data) < tierFixedPrefix {
		return Tier{}, fmt.Errorf("%w: %d bytes, need %d for tier fixed fields", ErrTruncatedAccount, len(data), tierFixedPrefix)
	}

	t := Tier{
		Creator:       solana.PublicKeyFromBytes(data[8:40]),
		Index:         binary.LittleEndian.Uint32(data[40:44]),
		PriceLamports: binary.LittleEndian.Uint64(data[44:52]),
		TokenMint:     solana.PublicKeyFromBytes(data[52:84]),
		DurationSec:   binary.LittleEndian.Uint64(data[84:92]),
	}

	off := 92
	name, off, err := readString(data, off, "name")
	if err != nil {
		return Tier{}, err
	}
	uri, off, err := readString(data, off, "uri")
	if err != nil {
		return Tier{}, err
	}
	if off+4 > len(data) {
		return Tier{}, fmt.Errorf("%w: %d bytes, need %d for scholarship counter", ErrTruncatedAccount, len(data), off+4)
	}
	t.Name = name
	t.URI = uri
	t.ScholarshipRemaining = binary.LittleEndian.Uint32(data[off : off+4])
	return t, nil
}

// DecodePass parses a raw Pass account buffer.
func DecodePass(data []byte) (Pass, error) {
	if err := checkDiscriminator(data, PassDiscriminator); err != nil {
		return Pass{}, err
	}
	if len(data) < passDataSize {
		return Pass{}, fmt.Errorf("%w: %d bytes, need %d for pass", ErrTruncatedAccount, len(data), passDataSize)
	}
	return Pass{
		Creator:  solana.PublicKeyFromBytes(data[8:40]),
		Tier:     solana.PublicKeyFromBytes(data[40:72]),
		Wallet:   solana.PublicKeyFromBytes(data[72:104]),
		ExpiryTs: binary.LittleEndian.Uint64(data[104:112]),
	}, nil
}

// readString reads a u32-length-prefixed UTF-8 string at off, returning the
// string and the offset just past it.
func readString(data []byte, off int, field string) (string, int, error) {
	if off+4 > len(data) {
		return "", 0, fmt.Errorf("%w: %d bytes, need %d for %s length prefix", ErrTruncatedAccount, len(data), off+4, field)
	}
	n := int(binary.LittleEndian.Uint32(data[off : off+4]))
	off += 4
	if n < 0 || off+n > len(data) {
		return "", 0, fmt.Errorf("%w: %s length %d reaches past %d-byte buffer", ErrTruncatedAccount, field, n, len(data))
	}
	return string(data[off : off+n]), off + n, nil
}

// TierCreatorOffset is the byte offset of the embedded creator address in a
// Tier account, for equality-filtered scans.
func TierCreatorOffset() uint64 { return tierCreatorOffset }

// PassWalletOffset is the byte offset of the subscriber wallet in a Pass
// account, for equality-filtered scans.
func PassWalletOffset() uint64 { return passWalletOffset }
