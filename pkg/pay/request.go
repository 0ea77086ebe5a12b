// Package pay implements Solana Pay transfer requests: building payment
// URIs a mobile wallet can scan, rendering them as QR codes, and watching
// the chain for the transaction that carries the request's reference key.
package pay

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

// Request is a Solana Pay transfer request. Amount is denominated in whole
// tokens (SOL, or the SPL token's UI units when SPLToken is set), not
// lamports; the wallet app does the conversion.
type Request struct {
	Recipient solana.PublicKey
	Amount    decimal.Decimal
	Reference solana.PublicKey
	Label     string
	Message   string
	Memo      string
	SPLToken  *solana.PublicKey
}

func (r *Request) Validate() error {
	if r.Recipient.IsZero() {
		return errors.New("recipient is required")
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", r.Amount)
	}
	if r.Reference.IsZero() {
		return errors.New("reference is required")
	}
	return nil
}

// NewReference returns a fresh random public key used solely to locate the
// payment transaction later. Nothing is ever held at this address.
func NewReference() (solana.PublicKey, error) {
	wallet := solana.NewWallet()
	if wallet == nil {
		return solana.PublicKey{}, errors.New("failed to generate reference key")
	}
	return wallet.PublicKey(), nil
}

// URL encodes the request as a solana: URI per the Solana Pay transfer
// request spec. Spaces in free-text fields are percent-encoded, never "+";
// some wallet URI parsers take "+" literally.
func (r *Request) URL() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}

	params := []string{
		"amount=" + r.Amount.String(),
	}
	if r.SPLToken != nil {
		params = append(params, "spl-token="+r.SPLToken.String())
	}
	params = append(params, "reference="+r.Reference.String())
	if r.Label != "" {
		params = append(params, "label="+escapeParam(r.Label))
	}
	if r.Message != "" {
		params = append(params, "message="+escapeParam(r.Message))
	}
	if r.Memo != "" {
		params = append(params, "memo="+escapeParam(r.Memo))
	}

	return "solana:" + r.Recipient.String() + "?" + strings.Join(params, "&"), nil
}

func escapeParam(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// QRPNG renders the request URI as a PNG QR code of the given pixel size.
func (r *Request) QRPNG(size int) ([]byte, error) {
	uri, err := r.URL()
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(uri, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}
	return png, nil
}
