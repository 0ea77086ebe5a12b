package pay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"

	"github.com/creatorpass/creatorpass/pkg/metrics"
)

// ErrPaymentNotFound means no confirmed transaction referencing the key
// exists yet.
var ErrPaymentNotFound = errors.New("payment not found")

// TimeoutError is returned when the polling budget runs out before a
// payment appears. The payment may still land later; callers can resume
// watching the same reference.
type TimeoutError struct {
	Reference solana.PublicKey
	Attempts  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no payment for reference %s after %d attempts", e.Reference, e.Attempts)
}

type WatcherRPC interface {
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error)
}

type WatcherConfig struct {
	Logger      *slog.Logger
	RPC         WatcherRPC
	Clock       clockwork.Clock
	Interval    time.Duration
	MaxAttempts int
	Commitment  solanarpc.CommitmentType
}

func (cfg *WatcherConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Interval < 0 {
		return errors.New("interval must not be negative")
	}
	if cfg.MaxAttempts < 0 {
		return errors.New("max attempts must not be negative")
	}
	return nil
}

// Watcher polls the chain for transactions that include a payment
// request's reference key in their account list.
type Watcher struct {
	log *slog.Logger
	cfg WatcherConfig
}

func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval == 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 30
	}
	return &Watcher{log: cfg.Logger, cfg: cfg}, nil
}

// FindReference performs a single lookup for a confirmed transaction
// carrying the reference key. Failed transactions are ignored: a reverted
// payment attempt is not a payment.
func (w *Watcher) FindReference(ctx context.Context, reference solana.PublicKey) (solana.Signature, error) {
	limit := 10
	sigs, err := w.cfg.RPC.GetSignaturesForAddressWithOpts(ctx, reference, &solanarpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: w.cfg.Commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to look up reference %s: %w", reference, err)
	}

	// Oldest first: the first successful transaction that touched the
	// reference is the payment.
	for i := len(sigs) - 1; i >= 0; i-- {
		if sigs[i].Err != nil {
			continue
		}
		return sigs[i].Signature, nil
	}
	return solana.Signature{}, ErrPaymentNotFound
}

// WaitForPayment polls FindReference on the configured interval until the
// payment shows up, the attempt budget is spent, or ctx is done.
func (w *Watcher) WaitForPayment(ctx context.Context, reference solana.PublicKey) (solana.Signature, error) {
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		sig, err := w.FindReference(ctx, reference)
		if err == nil {
			metrics.PaymentsConfirmed.Inc()
			w.log.Info("pay: payment confirmed",
				"reference", reference.String(),
				"signature", sig.String(),
				"attempt", attempt,
			)
			return sig, nil
		}
		if !errors.Is(err, ErrPaymentNotFound) {
			w.log.Warn("pay: reference lookup failed", "reference", reference.String(), "error", err)
		}
		if attempt == w.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return solana.Signature{}, ctx.Err()
		case <-w.cfg.Clock.After(w.cfg.Interval):
		}
	}
	return solana.Signature{}, &TimeoutError{Reference: reference, Attempts: w.cfg.MaxAttempts}
}
