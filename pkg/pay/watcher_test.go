package pay

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/creatorpass/creatorpass/pkg/logger/logtest"
)

type mockWatcherRPC struct {
	GetSignaturesForAddressWithOptsFunc func(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error)
}

func (m *mockWatcherRPC) GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error) {
	return m.GetSignaturesForAddressWithOptsFunc(ctx, account, opts)
}

func TestCreatorPass_Pay_FindReference(t *testing.T) {
	t.Parallel()

	reference := solana.NewWallet().PublicKey()

	t.Run("returns oldest successful signature", func(t *testing.T) {
		t.Parallel()

		payment := solana.Signature{1}
		later := solana.Signature{2}
		client := &mockWatcherRPC{
			GetSignaturesForAddressWithOptsFunc: func(_ context.Context, account solana.PublicKey, _ *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error) {
				require.True(t, account.Equals(reference))
				// Newest first, as the rpc returns them.
				return []*solanarpc.TransactionSignature{
					{Signature: later},
					{Signature: payment},
				}, nil
			},
		}
		w, err := NewWatcher(WatcherConfig{Logger: logtest.NewLogger(), RPC: client})
		require.NoError(t, err)

		sig, err := w.FindReference(context.Background(), reference)
		require.NoError(t, err)
		require.Equal(t, payment, sig)
	})

	t.Run("skips failed transactions", func(t *testing.T) {
		t.Parallel()

		good := solana.Signature{3}
		client := &mockWatcherRPC{
			GetSignaturesForAddressWithOptsFunc: func(context.Context, solana.PublicKey, *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error) {
				return []*solanarpc.TransactionSignature{
					{Signature: good},
					{Signature: solana.Signature{4}, Err: map[string]any{"InstructionError": []any{}}},
				}, nil
			},
		}
		w, err := NewWatcher(WatcherConfig{Logger: logtest.NewLogger(), RPC: client})
		require.NoError(t, err)

		sig, err := w.FindReference(context.Background(), reference)
		require.NoError(t, err)
		require.Equal(t, good, sig)
	})

	t.Run("nothing yet", func(t *testing.T) {
		t.Parallel()

		client := &mockWatcherRPC{
			GetSignaturesForAddressWithOptsFunc: func(context.Context, solana.PublicKey, *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error) {
				return nil, nil
			},
		}
		w, err := NewWatcher(WatcherConfig{Logger: logtest.NewLogger(), RPC: client})
		require.NoError(t, err)

		_, err = w.FindReference(context.Background(), reference)
		require.ErrorIs(t, err, ErrPaymentNotFound)
	})
}

func TestCreatorPass_Pay_WaitForPayment(t *testing.T) {
	t.Parallel()

	reference := solana.NewWallet().PublicKey()

	t.Run("payment appears on a later poll", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		payment := solana.Signature{9}
		var calls atomic.Int64
		client := &mockWatcherRPC{
			GetSignaturesForAddressWithOptsFunc: func(context.Context, solana.PublicKey, *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error) {
				if calls.Add(1) < 3 {
					return nil, nil
				}
				return []*solanarpc.TransactionSignature{{Signature: payment}}, nil
			},
		}
		w, err := NewWatcher(WatcherConfig{
			Logger:   logtest.NewLogger(),
			RPC:      client,
			Clock:    clock,
			Interval: 2 * time.Second,
		})
		require.NoError(t, err)

		done := make(chan struct{})
		var sig solana.Signature
		var waitErr error
		go func() {
			defer close(done)
			sig, waitErr = w.WaitForPayment(context.Background(), reference)
		}()

		for i := 0; i < 2; i++ {
			clock.BlockUntil(1)
			clock.Advance(2 * time.Second)
		}
		<-done

		require.NoError(t, waitErr)
		require.Equal(t, payment, sig)
		require.EqualValues(t, 3, calls.Load())
	})

	t.Run("attempt budget exhausted", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		var calls atomic.Int64
		client := &mockWatcherRPC{
			GetSignaturesForAddressWithOptsFunc: func(context.Context, solana.PublicKey, *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error) {
				calls.Add(1)
				return nil, nil
			},
		}
		w, err := NewWatcher(WatcherConfig{
			Logger:      logtest.NewLogger(),
			RPC:         client,
			Clock:       clock,
			Interval:    time.Second,
			MaxAttempts: 3,
		})
		require.NoError(t, err)

		done := make(chan struct{})
		var waitErr error
		go func() {
			defer close(done)
			_, waitErr = w.WaitForPayment(context.Background(), reference)
		}()

		for i := 0; i < 2; i++ {
			clock.BlockUntil(1)
			clock.Advance(time.Second)
		}
		<-done

		var timeoutErr *TimeoutError
		require.ErrorAs(t, waitErr, &timeoutErr)
		require.Equal(t, 3, timeoutErr.Attempts)
		require.True(t, timeoutErr.Reference.Equals(reference))
		require.EqualValues(t, 3, calls.Load())
	})

	t.Run("context cancellation wins over the timer", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		client := &mockWatcherRPC{
			GetSignaturesForAddressWithOptsFunc: func(context.Context, solana.PublicKey, *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error) {
				return nil, nil
			},
		}
		w, err := NewWatcher(WatcherConfig{
			Logger: logtest.NewLogger(),
			RPC:    client,
			Clock:  clock,
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		var waitErr error
		go func() {
			defer close(done)
			_, waitErr = w.WaitForPayment(ctx, reference)
		}()

		clock.BlockUntil(1)
		cancel()
		<-done

		require.ErrorIs(t, waitErr, context.Canceled)
	})

	t.Run("rpc errors do not burn the budget silently", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		client := &mockWatcherRPC{
			GetSignaturesForAddressWithOptsFunc: func(context.Context, solana.PublicKey, *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error) {
				return nil, errors.New("rpc throttled")
			},
		}
		w, err := NewWatcher(WatcherConfig{
			Logger:      logtest.NewLogger(),
			RPC:         client,
			Clock:       clock,
			MaxAttempts: 1,
		})
		require.NoError(t, err)

		_, err = w.WaitForPayment(context.Background(), reference)
		var timeoutErr *TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
	})
}
