package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/creatorpass/creatorpass/pkg/metrics"
	"github.com/creatorpass/creatorpass/pkg/pay"
	"github.com/creatorpass/creatorpass/pkg/scanner"
)

// handleListCreators returns all creators with their tiers. Creators with
// no published tiers are omitted unless ?all=true.
func (s *Server) handleListCreators(w http.ResponseWriter, r *http.Request) {
	creators, err := s.cfg.Scanner.CreatorsWithTiers(r.Context())
	if err != nil {
		s.log.Error("failed to scan creators", "error", err)
		s.writeError(w, http.StatusBadGateway, "chain scan failed")
		return
	}

	if r.URL.Query().Get("all") != "true" {
		withTiers := creators[:0]
		for _, c := range creators {
			if len(c.Tiers) > 0 {
				withTiers = append(withTiers, c)
			}
		}
		creators = withTiers
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"creators": creators})
}

// handleGetCreator returns one creator, looked up by owner wallet, with
// tiers resolved by index probing rather than a program scan.
func (s *Server) handleGetCreator(w http.ResponseWriter, r *http.Request) {
	owner, err := solana.PublicKeyFromBase58(chi.URLParam(r, "owner"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "owner: invalid base58 public key")
		return
	}

	creator, err := s.cfg.Scanner.Creator(r.Context(), owner)
	if err != nil {
		if errors.Is(err, scanner.ErrAccountNotFound) {
			s.writeError(w, http.StatusNotFound, "creator not found")
			return
		}
		s.log.Error("failed to fetch creator", "owner", owner.String(), "error", err)
		s.writeError(w, http.StatusBadGateway, "chain lookup failed")
		return
	}

	tiers, err := s.cfg.Scanner.ProbeTiers(r.Context(), creator.Address)
	if err != nil {
		s.log.Error("failed to probe tiers", "creator", creator.Address.String(), "error", err)
		s.writeError(w, http.StatusBadGateway, "chain lookup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, scanner.CreatorWithTiers{KeyedCreator: creator, Tiers: tiers})
}

type subscriptionView struct {
	Pass    scanner.KeyedPass     `json:"pass"`
	Tier    *scanner.KeyedTier    `json:"tier,omitempty"`
	Creator *scanner.KeyedCreator `json:"creator,omitempty"`
	Active  bool                  `json:"active"`
}

// handleListSubscriptions returns every pass held by a wallet, joined with
// the tier and creator records it points at. A pass whose tier cannot be
// fetched is still listed, just without the joined detail.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	wallet, err := solana.PublicKeyFromBase58(r.URL.Query().Get("wallet"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "wallet: invalid base58 public key")
		return
	}

	passes, err := s.cfg.Scanner.PassesForWallet(r.Context(), wallet)
	if err != nil {
		s.log.Error("failed to scan passes", "wallet", wallet.String(), "error", err)
		s.writeError(w, http.StatusBadGateway, "chain scan failed")
		return
	}

	now := s.cfg.Clock.Now()
	views := make([]subscriptionView, 0, len(passes))
	for _, p := range passes {
		view := subscriptionView{Pass: p, Active: p.ActiveAt(now)}
		if tier, err := s.cfg.Scanner.TierByAddress(r.Context(), p.Tier); err == nil {
			view.Tier = &tier
		} else {
			s.log.Warn("failed to resolve tier for pass", "pass", p.Address.String(), "error", err)
		}
		if creator, err := s.cfg.Scanner.CreatorByAddress(r.Context(), p.Creator); err == nil {
			view.Creator = &creator
		} else {
			s.log.Warn("failed to resolve creator for pass", "pass", p.Address.String(), "error", err)
		}
		views = append(views, view)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"subscriptions": views})
}

// handleCheckAccess answers whether a wallet currently holds an unexpired
// pass for a tier. No pass account at all is a plain "no", not an error.
func (s *Server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	tier, err := solana.PublicKeyFromBase58(r.URL.Query().Get("tier"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "tier: invalid base58 public key")
		return
	}
	wallet, err := solana.PublicKeyFromBase58(r.URL.Query().Get("wallet"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "wallet: invalid base58 public key")
		return
	}

	pass, err := s.cfg.Scanner.Pass(r.Context(), tier, wallet)
	if err != nil {
		if errors.Is(err, scanner.ErrAccountNotFound) {
			s.writeJSON(w, http.StatusOK, map[string]any{"active": false})
			return
		}
		s.log.Error("failed to fetch pass", "tier", tier.String(), "wallet", wallet.String(), "error", err)
		s.writeError(w, http.StatusBadGateway, "chain lookup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"active":    pass.ActiveAt(s.cfg.Clock.Now()),
		"expiry_ts": pass.ExpiryTs,
		"pass":      pass.Address.String(),
	})
}

type createPaymentRequestBody struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	SPLToken  string `json:"spl_token,omitempty"`
	Label     string `json:"label,omitempty"`
	Message   string `json:"message,omitempty"`
	Memo      string `json:"memo,omitempty"`
}

type paymentRequestView struct {
	Reference string `json:"reference"`
	URI       string `json:"uri"`
	Confirmed bool   `json:"confirmed"`
	Signature string `json:"signature,omitempty"`
}

// handleCreatePaymentRequest mints a fresh reference key, builds the
// Solana Pay URI, and registers the request for status polling. All
// validation happens before anything is stored.
func (s *Server) handleCreatePaymentRequest(w http.ResponseWriter, r *http.Request) {
	var body createPaymentRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	recipient, err := solana.PublicKeyFromBase58(body.Recipient)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "recipient: invalid base58 public key")
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "amount: invalid decimal")
		return
	}

	reference, err := pay.NewReference()
	if err != nil {
		s.log.Error("failed to generate payment reference", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create payment request")
		return
	}

	req := pay.Request{
		Recipient: recipient,
		Amount:    amount,
		Reference: reference,
		Label:     body.Label,
		Message:   body.Message,
		Memo:      body.Memo,
	}
	if body.SPLToken != "" {
		mint, err := solana.PublicKeyFromBase58(body.SPLToken)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "spl_token: invalid base58 public key")
			return
		}
		req.SPLToken = &mint
	}

	uri, err := req.URL()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.payStore.put(&paymentRecord{
		Request:   req,
		URI:       uri,
		CreatedAt: s.cfg.Clock.Now(),
	})
	metrics.PaymentRequestsCreated.Inc()
	s.log.Info("pay: payment request created", "reference", reference.String(), "amount", amount.String())

	s.writeJSON(w, http.StatusCreated, paymentRequestView{
		Reference: reference.String(),
		URI:       uri,
	})
}

// handleGetPaymentRequest reports a payment request's status. An
// unconfirmed request triggers a single on-chain reference lookup; the
// result is cached once the payment confirms.
func (s *Server) handleGetPaymentRequest(w http.ResponseWriter, r *http.Request) {
	reference, err := solana.PublicKeyFromBase58(chi.URLParam(r, "reference"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reference: invalid base58 public key")
		return
	}

	rec, ok := s.payStore.get(reference)
	if !ok {
		s.writeError(w, http.StatusNotFound, "payment request not found")
		return
	}

	view := paymentRequestView{
		Reference: reference.String(),
		URI:       rec.URI,
		Confirmed: rec.Confirmed,
	}
	if rec.Confirmed {
		view.Signature = rec.Signature.String()
		s.writeJSON(w, http.StatusOK, view)
		return
	}

	sig, err := s.cfg.Watcher.FindReference(r.Context(), reference)
	switch {
	case err == nil:
		s.payStore.confirm(reference, sig)
		metrics.PaymentsConfirmed.Inc()
		view.Confirmed = true
		view.Signature = sig.String()
	case errors.Is(err, pay.ErrPaymentNotFound):
		// Still pending.
	default:
		s.log.Error("failed to look up payment reference", "reference", reference.String(), "error", err)
		s.writeError(w, http.StatusBadGateway, "chain lookup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, view)
}

// handlePaymentRequestQR renders the request's Solana Pay URI as a PNG QR
// code. Size is clamped to keep render cost bounded.
func (s *Server) handlePaymentRequestQR(w http.ResponseWriter, r *http.Request) {
	reference, err := solana.PublicKeyFromBase58(chi.URLParam(r, "reference"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reference: invalid base58 public key")
		return
	}

	rec, ok := s.payStore.get(reference)
	if !ok {
		s.writeError(w, http.StatusNotFound, "payment request not found")
		return
	}

	size := 256
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 64 || parsed > 1024 {
			s.writeError(w, http.StatusBadRequest, "size: must be an integer between 64 and 1024")
			return
		}
		size = parsed
	}

	png, err := rec.Request.QRPNG(size)
	if err != nil {
		s.log.Error("failed to render payment qr", "reference", reference.String(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to render qr code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		s.log.Error("failed to write qr response", "error", err)
	}
}
