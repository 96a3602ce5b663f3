// Package webhook implements the signature-verified ingestion described in
// spec.md §4.2: one handler per external source, sharing a common envelope —
// capture the raw body, verify a signature, dispatch on event type — modeled
// on services/skus's HandleStripeWebhook/HandleIOSWebhook/HandleAndroidWebhook
// handler family.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"

	jose "github.com/go-jose/go-jose/v3"
)

// ErrSignatureInvalid is returned by every verifier on a failed check.
// Handlers MUST NOT mutate state when this is returned (spec §4.2 step 3).
var ErrSignatureInvalid = errors.New("webhook: signature verification failed")

// VerifyHMAC checks a hex-encoded HMAC-SHA256 signature over body using
// secret, in constant time. Used for the payment gateway, auth provider and
// messaging sources (spec §4.2).
func VerifyHMAC(body []byte, signatureHex, secret string) error {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return ErrSignatureInvalid
	}
	return nil
}

// CertChainValidator verifies a JWS ES256 payload's embedded certificate
// chain against a pinned root, caching the parsed root across calls (spec §9
// "cached verifier objects").
type CertChainValidator struct {
	root *x509.Certificate
}

// NewCertChainValidator parses rootCertPEM once; construct it at service
// startup and reuse it for the lifetime of the process.
func NewCertChainValidator(rootCertDER []byte) (*CertChainValidator, error) {
	root, err := x509.ParseCertificate(rootCertDER)
	if err != nil {
		return nil, fmt.Errorf("webhook: parsing root certificate: %w", err)
	}
	return &CertChainValidator{root: root}, nil
}

// VerifyJWS parses a compact JWS, verifies its embedded x5c certificate
// chain terminates at the pinned root, and verifies the signature using the
// leaf certificate's public key. Returns the verified payload bytes. Used
// for mobile store server notifications (spec §4.2).
func (v *CertChainValidator) VerifyJWS(token string) ([]byte, error) {
	sig, err := jose.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed JWS: %v", ErrSignatureInvalid, err)
	}
	if len(sig.Signatures) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one signature", ErrSignatureInvalid)
	}

	chain := sig.Signatures[0].Headers.ExtraHeaders["x5c"]
	certs, err := decodeX5C(chain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if err := verifyChainToRoot(certs, v.root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	payload, err := sig.Verify(certs[0].PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return payload, nil
}

func decodeX5C(raw interface{}) ([]*x509.Certificate, error) {
	list, ok := raw.([]interface{})
	if !ok || len(list) == 0 {
		return nil, errors.New("missing x5c header")
	}

	certs := make([]*x509.Certificate, 0, len(list))
	for _, entry := range list {
		s, ok := entry.(string)
		if !ok {
			return nil, errors.New("x5c entry is not a string")
		}
		der := []byte(s)
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parsing x5c certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func verifyChainToRoot(chain []*x509.Certificate, root *x509.Certificate) error {
	if len(chain) == 0 {
		return errors.New("empty certificate chain")
	}

	pool := x509.NewCertPool()
	pool.AddCert(root)

	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}

	_, err := chain[0].Verify(x509.VerifyOptions{
		Roots:         pool,
		Intermediates: intermediates,
	})
	return err
}
