// Package txflow assembles, signs, and submits CreatorPass transactions.
// Every submission fetches a fresh recent blockhash, signs with the
// caller's wallet as fee payer, and sends exactly once; a rejected or
// expired transaction surfaces as an error, never a silent retry, so a
// payment is never double-spent.
package txflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/creatorpass/creatorpass/pkg/metrics"
	"github.com/creatorpass/creatorpass/pkg/rx"
)

// ErrSigningDeclined is returned when the wallet refuses to sign. The
// transaction is abandoned before submission and on-chain state is
// untouched.
var ErrSigningDeclined = errors.New("wallet declined to sign transaction")

type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
}

// Wallet abstracts the signing key. KeypairWallet covers local keypairs;
// browser or hardware wallets supply their own implementation and may
// return ErrSigningDeclined.
type Wallet interface {
	PublicKey() solana.PublicKey
	Sign(tx *solana.Transaction) error
}

// KeypairWallet signs with an in-memory private key.
type KeypairWallet struct {
	key solana.PrivateKey
}

func NewKeypairWallet(key solana.PrivateKey) *KeypairWallet {
	return &KeypairWallet{key: key}
}

func (w *KeypairWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

func (w *KeypairWallet) Sign(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}

type Config struct {
	Logger     *slog.Logger
	RPC        RPC
	ProgramID  solana.PublicKey
	Commitment solanarpc.CommitmentType
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
	return nil
}

type Flow struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Flow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solanarpc.CommitmentConfirmed
	}
	return &Flow{log: cfg.Logger, cfg: cfg}, nil
}

// InitCreator registers the wallet as a creator with the given payout
// destination. The creator account address is derived from the wallet.
func (f *Flow) InitCreator(ctx context.Context, wallet Wallet, payout solana.PublicKey) (solana.Signature, error) {
	owner := wallet.PublicKey()
	creatorAddr, _, err := rx.FindCreatorAddress(f.cfg.ProgramID, owner)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := rx.NewInitCreatorInstruction(f.cfg.ProgramID, creatorAddr, owner, rx.InitCreatorArgs{PayoutWallet: payout})
	if err != nil {
		return solana.Signature{}, err
	}
	return f.submit(ctx, "init_creator", wallet, ix)
}

// CreateTier publishes a new subscription tier under the wallet's creator
// account.
func (f *Flow) CreateTier(ctx context.Context, wallet Wallet, args rx.CreateTierArgs) (solana.Signature, error) {
	owner := wallet.PublicKey()
	creatorAddr, _, err := rx.FindCreatorAddress(f.cfg.ProgramID, owner)
	if err != nil {
		return solana.Signature{}, err
	}
	tierAddr, _, err := rx.FindTierAddress(f.cfg.ProgramID, creatorAddr, args.Index)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := rx.NewCreateTierInstruction(f.cfg.ProgramID, creatorAddr, tierAddr, owner, args)
	if err != nil {
		return solana.Signature{}, err
	}
	return f.submit(ctx, "create_tier", wallet, ix)
}

// SubscribeOrRenew purchases or extends the wallet's pass for a tier. The
// tier's price moves from the payer to the creator's payout wallet inside
// the program instruction itself; when extraTransferLamports is non-zero a
// plain system transfer for that amount is placed ahead of the program
// instruction in the same transaction, so both settle atomically or not at
// all.
func (f *Flow) SubscribeOrRenew(ctx context.Context, wallet Wallet, creatorAddr solana.PublicKey, tier rx.Tier, payout solana.PublicKey, extraTransferLamports uint64) (solana.Signature, error) {
	payer := wallet.PublicKey()
	tierAddr, _, err := rx.FindTierAddress(f.cfg.ProgramID, creatorAddr, tier.Index)
	if err != nil {
		return solana.Signature{}, err
	}
	passAddr, _, err := rx.FindPassAddress(f.cfg.ProgramID, tierAddr, payer)
	if err != nil {
		return solana.Signature{}, err
	}

	var instrs []solana.Instruction
	if extraTransferLamports > 0 {
		instrs = append(instrs, rx.NewLamportsTransferInstruction(extraTransferLamports, payer, payout))
	}
	ix, err := rx.NewSubscribeOrRenewInstruction(f.cfg.ProgramID, creatorAddr, tierAddr, payout, passAddr, payer)
	if err != nil {
		return solana.Signature{}, err
	}
	instrs = append(instrs, ix)

	return f.submit(ctx, "subscribe_or_renew", wallet, instrs...)
}

// GrantScholarship issues a free pass for a tier to a beneficiary wallet.
// Only the creator's owner signs; the beneficiary does not.
func (f *Flow) GrantScholarship(ctx context.Context, wallet Wallet, tierIndex uint32, beneficiary solana.PublicKey) (solana.Signature, error) {
	owner := wallet.PublicKey()
	creatorAddr, _, err := rx.FindCreatorAddress(f.cfg.ProgramID, owner)
	if err != nil {
		return solana.Signature{}, err
	}
	tierAddr, _, err := rx.FindTierAddress(f.cfg.ProgramID, creatorAddr, tierIndex)
	if err != nil {
		return solana.Signature{}, err
	}
	passAddr, _, err := rx.FindPassAddress(f.cfg.ProgramID, tierAddr, beneficiary)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := rx.NewGrantScholarshipInstruction(f.cfg.ProgramID, creatorAddr, tierAddr, passAddr, beneficiary, owner)
	if err != nil {
		return solana.Signature{}, err
	}
	return f.submit(ctx, "grant_scholarship", wallet, ix)
}

// RefillScholarships adds scholarship slots to one of the wallet's tiers.
func (f *Flow) RefillScholarships(ctx context.Context, wallet Wallet, tierIndex uint32, addSlots uint32) (solana.Signature, error) {
	owner := wallet.PublicKey()
	creatorAddr, _, err := rx.FindCreatorAddress(f.cfg.ProgramID, owner)
	if err != nil {
		return solana.Signature{}, err
	}
	tierAddr, _, err := rx.FindTierAddress(f.cfg.ProgramID, creatorAddr, tierIndex)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := rx.NewRefillScholarshipsInstruction(f.cfg.ProgramID, creatorAddr, tierAddr, owner, rx.RefillScholarshipsArgs{AddSlots: addSlots})
	if err != nil {
		return solana.Signature{}, err
	}
	return f.submit(ctx, "refill_scholarships", wallet, ix)
}

func (f *Flow) submit(ctx context.Context, intent string, wallet Wallet, instrs ...solana.Instruction) (solana.Signature, error) {
	start := time.Now()

	blockhash, err := f.cfg.RPC.GetLatestBlockhash(ctx, f.cfg.Commitment)
	if err != nil {
		metrics.TransactionsSubmitted.WithLabelValues(intent, "error").Inc()
		return solana.Signature{}, fmt.Errorf("failed to fetch recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instrs, blockhash.Value.Blockhash, solana.TransactionPayer(wallet.PublicKey()))
	if err != nil {
		metrics.TransactionsSubmitted.WithLabelValues(intent, "error").Inc()
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	if err := wallet.Sign(tx); err != nil {
		metrics.TransactionsSubmitted.WithLabelValues(intent, "declined").Inc()
		if errors.Is(err, ErrSigningDeclined) {
			return solana.Signature{}, err
		}
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := f.cfg.RPC.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
		PreflightCommitment: f.cfg.Commitment,
	})
	if err != nil {
		metrics.TransactionsSubmitted.WithLabelValues(intent, "error").Inc()
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	metrics.TransactionsSubmitted.WithLabelValues(intent, "ok").Inc()
	f.log.Info("txflow: transaction submitted",
		"intent", intent,
		"signature", sig.String(),
		"payer", wallet.PublicKey().String(),
		"duration", time.Since(start),
	)
	return sig, nil
}
