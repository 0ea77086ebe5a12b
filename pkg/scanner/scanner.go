// Package scanner discovers CreatorPass program accounts on the ledger. It
// wraps discriminator- and field-filtered getProgramAccounts queries, decodes
// each match, and assembles the creator/tier/pass relationships entirely
// client-side; there is no off-chain registry.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/creatorpass/creatorpass/pkg/metrics"
	"github.com/creatorpass/creatorpass/pkg/retry"
	"github.com/creatorpass/creatorpass/pkg/rx"
)

// ErrAccountNotFound is returned by single-account lookups when no account
// exists at the derived address. During tier probing it means "no tier at
// this index", not a failure.
var ErrAccountNotFound = errors.New("account not found")

// DefaultTierProbeWindow is how many tier indices are probed per creator
// when full program scanning is undesired. The original client hardcoded
// five; here it is a config knob.
const DefaultTierProbeWindow = 5

type RPC interface {
	GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *solanarpc.GetProgramAccountsOpts) (solanarpc.GetProgramAccountsResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetAccountInfoOpts) (*solanarpc.GetAccountInfoResult, error)
}

type Config struct {
	Logger          *slog.Logger
	RPC             RPC
	ProgramID       solana.PublicKey
	TierProbeWindow int
	MaxConcurrency  int
	Commitment      solanarpc.CommitmentType
	Retry           retry.Config

	// Limiter, when set, paces getProgramAccounts calls. Public RPC
	// endpoints throttle full program scans aggressively.
	Limiter *rate.Limiter
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.ProgramID.IsZero() {
		return errors.New("program id is required")
	}
	if cfg.TierProbeWindow < 0 {
		return errors.New("tier probe window must not be negative")
	}
	return nil
}

type Scanner struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TierProbeWindow == 0 {
		cfg.TierProbeWindow = DefaultTierProbeWindow
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solanarpc.CommitmentConfirmed
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Scanner{log: cfg.Logger, cfg: cfg}, nil
}

// KeyedCreator is a decoded Creator record together with its account
// address.
type KeyedCreator struct {
	Address solana.PublicKey `json:"address"`
	rx.Creator
}

type KeyedTier struct {
	Address solana.PublicKey `json:"address"`
	rx.Tier
}

type KeyedPass struct {
	Address solana.PublicKey `json:"address"`
	rx.Pass
}

// CreatorWithTiers is the discovery view: one creator and all its tiers,
// sorted by tier index.
type CreatorWithTiers struct {
	KeyedCreator
	Tiers []KeyedTier `json:"tiers"`
}

// Creators scans for all Creator accounts owned by the program. Accounts
// that fail to decode, or whose address does not re-derive from their
// embedded owner, are skipped and logged rather than aborting the scan.
func (s *Scanner) Creators(ctx context.Context) ([]KeyedCreator, error) {
	raw, err := s.scan(ctx, "creator", rx.CreatorDiscriminator, nil)
	if err != nil {
		return nil, err
	}

	out := make([]KeyedCreator, 0, len(raw))
	for _, acc := range raw {
		creator, err := rx.DecodeCreator(acc.Account.Data.GetBinary())
		if err != nil {
			s.skip("creator", acc.Pubkey, "decode", err)
			continue
		}
		derived, _, err := rx.FindCreatorAddress(s.cfg.ProgramID, creator.Owner)
		if err != nil || !derived.Equals(acc.Pubkey) {
			s.skip("creator", acc.Pubkey, "address_mismatch", err)
			continue
		}
		out = append(out, KeyedCreator{Address: acc.Pubkey, Creator: creator})
	}
	return out, nil
}

// TiersForCreator scans for Tier accounts whose embedded creator field
// equals the given creator address.
func (s *Scanner) TiersForCreator(ctx context.Context, creator solana.PublicKey) ([]KeyedTier, error) {
	filter := []solanarpc.RPCFilter{{
		Memcmp: &solanarpc.RPCFilterMemcmp{
			Offset: rx.TierCreatorOffset(),
			Bytes:  solana.Base58(creator.Bytes()),
		},
	}}
	raw, err := s.scan(ctx, "tier", rx.TierDiscriminator, filter)
	if err != nil {
		return nil, err
	}

	out := make([]KeyedTier, 0, len(raw))
	for _, acc := range raw {
		tier, err := rx.DecodeTier(acc.Account.Data.GetBinary())
		if err != nil {
			s.skip("tier", acc.Pubkey, "decode", err)
			continue
		}
		if !tier.Creator.Equals(creator) {
			s.skip("tier", acc.Pubkey, "filter_mismatch", nil)
			continue
		}
		derived, _, err := rx.FindTierAddress(s.cfg.ProgramID, tier.Creator, tier.Index)
		if err != nil || !derived.Equals(acc.Pubkey) {
			s.skip("tier", acc.Pubkey, "address_mismatch", err)
			continue
		}
		out = append(out, KeyedTier{Address: acc.Pubkey, Tier: tier})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// PassesForWallet scans for Pass accounts whose subscriber wallet equals
// the given wallet.
func (s *Scanner) PassesForWallet(ctx context.Context, wallet solana.PublicKey) ([]KeyedPass, error) {
	filter := []solanarpc.RPCFilter{{
		Memcmp: &solanarpc.RPCFilterMemcmp{
			Offset: rx.PassWalletOffset(),
			Bytes:  solana.Base58(wallet.Bytes()),
		},
	}}
	raw, err := s.scan(ctx, "pass", rx.PassDiscriminator, filter)
	if err != nil {
		return nil, err
	}

	out := make([]KeyedPass, 0, len(raw))
	for _, acc := range raw {
		pass, err := rx.DecodePass(acc.Account.Data.GetBinary())
		if err != nil {
			s.skip("pass", acc.Pubkey, "decode", err)
			continue
		}
		if !pass.Wallet.Equals(wallet) {
			s.skip("pass", acc.Pubkey, "filter_mismatch", nil)
			continue
		}
		derived, _, err := rx.FindPassAddress(s.cfg.ProgramID, pass.Tier, pass.Wallet)
		if err != nil || !derived.Equals(acc.Pubkey) {
			s.skip("pass", acc.Pubkey, "address_mismatch", err)
			continue
		}
		out = append(out, KeyedPass{Address: acc.Pubkey, Pass: pass})
	}
	return out, nil
}

// CreatorsWithTiers performs the two-level discovery join: scan creators,
// then scan each creator's tiers with bounded concurrency. A failed tier
// scan drops that creator's tiers, not the whole result. Output is sorted
// by creator address so repeated scans of unchanged state compare equal.
func (s *Scanner) CreatorsWithTiers(ctx context.Context) ([]CreatorWithTiers, error) {
	creators, err := s.Creators(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]CreatorWithTiers, len(creators))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, creator := range creators {
		i, creator := i, creator
		g.Go(func() error {
			tiers, err := s.TiersForCreator(gctx, creator.Address)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.log.Warn("scanner: tier scan failed, creator listed without tiers",
					"creator", creator.Address.String(), "error", err)
				tiers = nil
			}
			mu.Lock()
			out[i] = CreatorWithTiers{KeyedCreator: creator, Tiers: tiers}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.String() < out[j].Address.String()
	})
	return out, nil
}

// ProbeTiers looks up a creator's tiers by re-deriving tier addresses for
// indices 0..window-1 and fetching each, instead of a full program scan.
// "Not found" at an index means no tier there; results come back in index
// order.
func (s *Scanner) ProbeTiers(ctx context.Context, creator solana.PublicKey) ([]KeyedTier, error) {
	out := make([]KeyedTier, 0, s.cfg.TierProbeWindow)
	for i := uint32(0); i < uint32(s.cfg.TierProbeWindow); i++ {
		addr, _, err := rx.FindTierAddress(s.cfg.ProgramID, creator, i)
		if err != nil {
			return nil, err
		}
		data, err := s.fetchAccount(ctx, addr)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to probe tier %d: %w", i, err)
		}
		tier, err := rx.DecodeTier(data)
		if err != nil {
			s.skip("tier", addr, "decode", err)
			continue
		}
		out = append(out, KeyedTier{Address: addr, Tier: tier})
	}
	return out, nil
}

// Creator fetches the Creator record for an owner wallet, or
// ErrAccountNotFound if the owner never initialized one.
func (s *Scanner) Creator(ctx context.Context, owner solana.PublicKey) (KeyedCreator, error) {
	addr, _, err := rx.FindCreatorAddress(s.cfg.ProgramID, owner)
	if err != nil {
		return KeyedCreator{}, err
	}
	data, err := s.fetchAccount(ctx, addr)
	if err != nil {
		return KeyedCreator{}, err
	}
	creator, err := rx.DecodeCreator(data)
	if err != nil {
		return KeyedCreator{}, fmt.Errorf("failed to decode creator %s: %w", addr, err)
	}
	return KeyedCreator{Address: addr, Creator: creator}, nil
}

// CreatorByAddress fetches and decodes a Creator account at a known
// address.
func (s *Scanner) CreatorByAddress(ctx context.Context, addr solana.PublicKey) (KeyedCreator, error) {
	data, err := s.fetchAccount(ctx, addr)
	if err != nil {
		return KeyedCreator{}, err
	}
	creator, err := rx.DecodeCreator(data)
	if err != nil {
		return KeyedCreator{}, fmt.Errorf("failed to decode creator %s: %w", addr, err)
	}
	return KeyedCreator{Address: addr, Creator: creator}, nil
}

// TierByAddress fetches and decodes a Tier account at a known address.
func (s *Scanner) TierByAddress(ctx context.Context, addr solana.PublicKey) (KeyedTier, error) {
	data, err := s.fetchAccount(ctx, addr)
	if err != nil {
		return KeyedTier{}, err
	}
	tier, err := rx.DecodeTier(data)
	if err != nil {
		return KeyedTier{}, fmt.Errorf("failed to decode tier %s: %w", addr, err)
	}
	return KeyedTier{Address: addr, Tier: tier}, nil
}

// Pass fetches the Pass record for (tier, wallet), or ErrAccountNotFound
// when the wallet never subscribed to the tier.
func (s *Scanner) Pass(ctx context.Context, tier, wallet solana.PublicKey) (KeyedPass, error) {
	addr, _, err := rx.FindPassAddress(s.cfg.ProgramID, tier, wallet)
	if err != nil {
		return KeyedPass{}, err
	}
	data, err := s.fetchAccount(ctx, addr)
	if err != nil {
		return KeyedPass{}, err
	}
	pass, err := rx.DecodePass(data)
	if err != nil {
		return KeyedPass{}, fmt.Errorf("failed to decode pass %s: %w", addr, err)
	}
	return KeyedPass{Address: addr, Pass: pass}, nil
}

func (s *Scanner) scan(ctx context.Context, kind string, discriminator [8]byte, extraFilters []solanarpc.RPCFilter) (solanarpc.GetProgramAccountsResult, error) {
	if s.cfg.Limiter != nil {
		if err := s.cfg.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	filters := append([]solanarpc.RPCFilter{{
		Memcmp: &solanarpc.RPCFilterMemcmp{
			Offset: 0,
			Bytes:  solana.Base58(discriminator[:]),
		},
	}}, extraFilters...)

	start := time.Now()
	var result solanarpc.GetProgramAccountsResult
	err := retry.Do(ctx, s.cfg.Retry, func() error {
		var err error
		result, err = s.cfg.RPC.GetProgramAccountsWithOpts(ctx, s.cfg.ProgramID, &solanarpc.GetProgramAccountsOpts{
			Commitment: s.cfg.Commitment,
			Encoding:   solana.EncodingBase64,
			Filters:    filters,
		})
		return err
	})
	metrics.ScanDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ScansTotal.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("failed to scan %s accounts: %w", kind, err)
	}
	metrics.ScansTotal.WithLabelValues(kind, "ok").Inc()
	s.log.Debug("scanner: scan completed", "kind", kind, "matches", len(result), "duration", time.Since(start))
	return result, nil
}

func (s *Scanner) fetchAccount(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	var out *solanarpc.GetAccountInfoResult
	err := retry.Do(ctx, s.cfg.Retry, func() error {
		var err error
		out, err = s.cfg.RPC.GetAccountInfoWithOpts(ctx, addr, &solanarpc.GetAccountInfoOpts{
			Commitment: s.cfg.Commitment,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil && errors.Is(err, solanarpc.ErrNotFound) {
			// Terminal, not worth a retry.
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account %s: %w", addr, err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("account %s: %w", addr, ErrAccountNotFound)
	}
	return out.Value.Data.GetBinary(), nil
}

func (s *Scanner) skip(kind string, addr solana.PublicKey, reason string, err error) {
	metrics.ScanAccountsSkipped.WithLabelValues(kind, reason).Inc()
	s.log.Warn("scanner: skipping account", "kind", kind, "address", addr.String(), "reason", reason, "error", err)
}
