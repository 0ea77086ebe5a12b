package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/creatorpass/creatorpass/pkg/pay"
	"github.com/creatorpass/creatorpass/pkg/scanner"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger            *slog.Logger
	ListenAddr        string
	Scanner           *scanner.Scanner
	Watcher           *pay.Watcher
	Clock             clockwork.Clock
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo

	// AllowedOrigins configures CORS for browser clients. Empty means
	// same-origin only.
	AllowedOrigins []string

	// ScanRequestsPerMinute caps per-IP program scan traffic. Program
	// scans are the expensive RPC calls; everything else is cheap.
	ScanRequestsPerMinute int
	ScanBurst             int

	// PaymentRequestTTL bounds how long a created payment request stays
	// queryable before it is swept.
	PaymentRequestTTL time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.Scanner == nil {
		return errors.New("scanner is required")
	}
	if cfg.Watcher == nil {
		return errors.New("payment watcher is required")
	}
	return nil
}
