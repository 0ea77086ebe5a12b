package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	flag "github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/creatorpass/creatorpass/pkg/logger"
	"github.com/creatorpass/creatorpass/pkg/metrics"
	"github.com/creatorpass/creatorpass/pkg/pay"
	"github.com/creatorpass/creatorpass/pkg/rx"
	"github.com/creatorpass/creatorpass/pkg/scanner"
	"github.com/creatorpass/creatorpass/pkg/server"
	"github.com/creatorpass/creatorpass/pkg/txflow"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A .env file is optional; real env vars win.
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// Chain configuration
	rpcURLFlag := flag.String("rpc-url", solanarpc.DevNet_RPC, "Solana RPC endpoint (or set SOLANA_RPC_URL env var)")
	programIDFlag := flag.String("program-id", rx.DefaultProgramID.String(), "CreatorPass program id (or set CREATORPASS_PROGRAM_ID env var)")
	tierProbeWindowFlag := flag.Int("tier-probe-window", scanner.DefaultTierProbeWindow, "tier indices probed per creator for direct lookups")
	keypairFlag := flag.String("keypair", "", "path to a JSON keypair file for signing (or set WALLET_SECRET_KEY env var to a base58 secret key)")

	// Commands
	serveFlag := flag.Bool("serve", false, "Run the HTTP API server")
	listCreatorsFlag := flag.Bool("list-creators", false, "Scan and print all creators with their tiers")
	listSubscriptionsFlag := flag.String("subscriptions", "", "Print all passes held by the given wallet")
	initCreatorFlag := flag.Bool("init-creator", false, "Register the signing wallet as a creator")
	createTierFlag := flag.Bool("create-tier", false, "Publish a new tier under the signing wallet's creator account")
	subscribeFlag := flag.String("subscribe", "", "Subscribe the signing wallet to a tier of the given creator owner")
	grantFlag := flag.Bool("grant-scholarship", false, "Grant a free pass on one of the signing wallet's tiers")
	refillFlag := flag.Bool("refill-scholarships", false, "Add scholarship slots to one of the signing wallet's tiers")
	payRequestFlag := flag.Bool("pay-request", false, "Build a Solana Pay URI and wait for the payment")

	// Server options
	listenFlag := flag.String("listen", ":8080", "HTTP listen address for --serve")
	corsOriginsFlag := flag.StringSlice("cors-origin", nil, "allowed CORS origins for --serve (repeatable)")

	// Transaction options
	payoutFlag := flag.String("payout", "", "payout wallet for --init-creator")
	tierIndexFlag := flag.Uint32("tier-index", 0, "tier index for tier-scoped commands")
	nameFlag := flag.String("name", "", "tier name for --create-tier")
	uriFlag := flag.String("uri", "", "tier metadata uri for --create-tier")
	priceSOLFlag := flag.String("price-sol", "", "tier price in SOL for --create-tier and --pay-request")
	durationDaysFlag := flag.Int("duration-days", 30, "pass duration in days for --create-tier")
	scholarshipsFlag := flag.Uint32("scholarships", 0, "initial scholarship slots for --create-tier")
	beneficiaryFlag := flag.String("beneficiary", "", "beneficiary wallet for --grant-scholarship")
	addSlotsFlag := flag.Uint32("add-slots", 0, "scholarship slots to add for --refill-scholarships")
	recipientFlag := flag.String("recipient", "", "recipient wallet for --pay-request")
	labelFlag := flag.String("label", "", "label for --pay-request")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if env := os.Getenv("SOLANA_RPC_URL"); env != "" {
		*rpcURLFlag = env
	}
	if env := os.Getenv("CREATORPASS_PROGRAM_ID"); env != "" {
		*programIDFlag = env
	}
	if env := os.Getenv("TIER_PROBE_WINDOW"); env != "" {
		window, err := strconv.Atoi(env)
		if err != nil {
			return fmt.Errorf("invalid TIER_PROBE_WINDOW: %w", err)
		}
		*tierProbeWindowFlag = window
	}

	programID, err := solana.PublicKeyFromBase58(*programIDFlag)
	if err != nil {
		return fmt.Errorf("invalid program id: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rpcClient := solanarpc.New(*rpcURLFlag)

	sc, err := scanner.New(scanner.Config{
		Logger:          log,
		RPC:             rpcClient,
		ProgramID:       programID,
		TierProbeWindow: *tierProbeWindowFlag,
		Limiter:         rate.NewLimiter(rate.Every(200*time.Millisecond), 4),
	})
	if err != nil {
		return err
	}

	watcher, err := pay.NewWatcher(pay.WatcherConfig{
		Logger: log,
		RPC:    rpcClient,
	})
	if err != nil {
		return err
	}

	if *serveFlag {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		srv, err := server.New(server.Config{
			Logger:         log,
			ListenAddr:     *listenFlag,
			Scanner:        sc,
			Watcher:        watcher,
			AllowedOrigins: *corsOriginsFlag,
			VersionInfo: server.VersionInfo{
				Version: version,
				Commit:  commit,
				Date:    date,
			},
		})
		if err != nil {
			return err
		}
		return srv.Run(ctx)
	}

	if *listCreatorsFlag {
		creators, err := sc.CreatorsWithTiers(ctx)
		if err != nil {
			return err
		}
		return printJSON(creators)
	}

	if *listSubscriptionsFlag != "" {
		wallet, err := solana.PublicKeyFromBase58(*listSubscriptionsFlag)
		if err != nil {
			return fmt.Errorf("invalid wallet: %w", err)
		}
		passes, err := sc.PassesForWallet(ctx, wallet)
		if err != nil {
			return err
		}
		return printJSON(passes)
	}

	if *payRequestFlag {
		if *recipientFlag == "" {
			return errors.New("--recipient is required for --pay-request")
		}
		recipient, err := solana.PublicKeyFromBase58(*recipientFlag)
		if err != nil {
			return fmt.Errorf("invalid recipient: %w", err)
		}
		amount, err := parseSOLAmount(*priceSOLFlag)
		if err != nil {
			return err
		}
		reference, err := pay.NewReference()
		if err != nil {
			return err
		}
		req := pay.Request{
			Recipient: recipient,
			Amount:    amount,
			Reference: reference,
			Label:     *labelFlag,
		}
		uri, err := req.URL()
		if err != nil {
			return err
		}
		fmt.Println(uri)

		log.Info("waiting for payment", "reference", reference.String())
		sig, err := watcher.WaitForPayment(ctx, reference)
		if err != nil {
			return err
		}
		fmt.Println(sig.String())
		return nil
	}

	// Everything below needs a signing wallet.
	wallet, err := loadWallet(*keypairFlag)
	if err != nil {
		return err
	}

	flow, err := txflow.New(txflow.Config{
		Logger:    log,
		RPC:       rpcClient,
		ProgramID: programID,
	})
	if err != nil {
		return err
	}

	switch {
	case *initCreatorFlag:
		payout := wallet.PublicKey()
		if *payoutFlag != "" {
			payout, err = solana.PublicKeyFromBase58(*payoutFlag)
			if err != nil {
				return fmt.Errorf("invalid payout wallet: %w", err)
			}
		}
		sig, err := flow.InitCreator(ctx, wallet, payout)
		if err != nil {
			return err
		}
		fmt.Println(sig.String())
		return nil

	case *createTierFlag:
		if *nameFlag == "" {
			return errors.New("--name is required for --create-tier")
		}
		price, err := parseSOLAmount(*priceSOLFlag)
		if err != nil {
			return err
		}
		lamports := price.Mul(decimal.NewFromInt(rx.LamportsPerSOL))
		if !lamports.IsInteger() {
			return fmt.Errorf("price %s SOL is below lamport resolution", price)
		}
		durationSec, err := tierDurationSec(*durationDaysFlag)
		if err != nil {
			return err
		}
		sig, err := flow.CreateTier(ctx, wallet, rx.CreateTierArgs{
			Index:                *tierIndexFlag,
			PriceLamports:        lamports.BigInt().Uint64(),
			DurationSec:          durationSec,
			Name:                 *nameFlag,
			URI:                  *uriFlag,
			ScholarshipRemaining: *scholarshipsFlag,
		})
		if err != nil {
			return err
		}
		fmt.Println(sig.String())
		return nil

	case *subscribeFlag != "":
		owner, err := solana.PublicKeyFromBase58(*subscribeFlag)
		if err != nil {
			return fmt.Errorf("invalid creator owner: %w", err)
		}
		creator, err := sc.Creator(ctx, owner)
		if err != nil {
			return fmt.Errorf("failed to resolve creator: %w", err)
		}
		tierAddr, _, err := rx.FindTierAddress(programID, creator.Address, *tierIndexFlag)
		if err != nil {
			return err
		}
		tier, err := sc.TierByAddress(ctx, tierAddr)
		if err != nil {
			return fmt.Errorf("failed to resolve tier %d: %w", *tierIndexFlag, err)
		}
		sig, err := flow.SubscribeOrRenew(ctx, wallet, creator.Address, tier.Tier, creator.PayoutWallet, 0)
		if err != nil {
			return err
		}
		fmt.Println(sig.String())
		return nil

	case *grantFlag:
		if *beneficiaryFlag == "" {
			return errors.New("--beneficiary is required for --grant-scholarship")
		}
		beneficiary, err := solana.PublicKeyFromBase58(*beneficiaryFlag)
		if err != nil {
			return fmt.Errorf("invalid beneficiary: %w", err)
		}
		sig, err := flow.GrantScholarship(ctx, wallet, *tierIndexFlag, beneficiary)
		if err != nil {
			return err
		}
		fmt.Println(sig.String())
		return nil

	case *refillFlag:
		if *addSlotsFlag == 0 {
			return errors.New("--add-slots must be positive for --refill-scholarships")
		}
		sig, err := flow.RefillScholarships(ctx, wallet, *tierIndexFlag, *addSlotsFlag)
		if err != nil {
			return err
		}
		fmt.Println(sig.String())
		return nil
	}

	flag.Usage()
	return nil
}

func loadWallet(keypairPath string) (*txflow.KeypairWallet, error) {
	if env := os.Getenv("WALLET_SECRET_KEY"); env != "" {
		raw, err := base58.Decode(env)
		if err != nil {
			return nil, fmt.Errorf("invalid WALLET_SECRET_KEY: %w", err)
		}
		if len(raw) != 64 {
			return nil, fmt.Errorf("invalid WALLET_SECRET_KEY: got %d bytes, want 64", len(raw))
		}
		return txflow.NewKeypairWallet(solana.PrivateKey(raw)), nil
	}
	if keypairPath == "" {
		return nil, errors.New("a signing wallet is required: pass --keypair or set WALLET_SECRET_KEY")
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(keypairPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", keypairPath, err)
	}
	return txflow.NewKeypairWallet(key), nil
}

func tierDurationSec(days int) (uint64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("--duration-days must be positive, got %d", days)
	}
	return uint64(days) * 86_400, nil
}

func parseSOLAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, errors.New("--price-sol is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid SOL amount %q: %w", raw, err)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("SOL amount must be positive, got %s", amount)
	}
	return amount, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
