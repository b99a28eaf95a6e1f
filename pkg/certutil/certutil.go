// Package certutil formats, validates, and fingerprints the PEM
// certificates used to trust an external identity provider.
package certutil

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
	"time"
)

const (
	pemHeader = "-----BEGIN CERTIFICATE-----"
	pemFooter = "-----END CERTIFICATE-----"
	lineWidth = 64
)

// Info describes a parsed X.509 certificate.
type Info struct {
	Subject   string    `json:"subject"`
	Issuer    string    `json:"issuer"`
	NotBefore time.Time `json:"not_before"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Format normalizes raw certificate material into canonical PEM: any
// existing header/footer and interior whitespace are stripped, the
// base64 body is re-wrapped at 64 columns, and exactly one
// BEGIN/END CERTIFICATE pair is emitted. Applying Format twice yields
// the same output as applying it once.
func Format(raw string) string {
	body := strings.TrimSpace(raw)
	body = strings.ReplaceAll(body, pemHeader, "")
	body = strings.ReplaceAll(body, pemFooter, "")

	// Collapse all whitespace inside the base64 payload.
	var b strings.Builder
	for _, r := range body {
		switch r {
		case ' ', '\t', '\r', '\n':
		default:
			b.WriteRune(r)
		}
	}
	body = b.String()

	var wrapped strings.Builder
	wrapped.WriteString(pemHeader)
	wrapped.WriteByte('\n')
	for len(body) > 0 {
		n := lineWidth
		if len(body) < n {
			n = len(body)
		}
		wrapped.WriteString(body[:n])
		wrapped.WriteByte('\n')
		body = body[n:]
	}
	wrapped.WriteString(pemFooter)
	return wrapped.String()
}

// Parse decodes a PEM certificate and parses the DER payload.
func Parse(pemCert string) (*x509.Certificate, error) {
	if strings.TrimSpace(pemCert) == "" {
		return nil, fmt.Errorf("certificate is empty")
	}

	block, _ := pem.Decode([]byte(Format(pemCert)))
	if block == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// Validate parses the certificate and reports its subject, issuer, and
// validity window. The expiration comes from the DER payload, not a
// synthetic value.
func Validate(pemCert string) (*Info, error) {
	cert, err := Parse(pemCert)
	if err != nil {
		return nil, err
	}

	return &Info{
		Subject:   cert.Subject.String(),
		Issuer:    cert.Issuer.String(),
		NotBefore: cert.NotBefore,
		ExpiresAt: cert.NotAfter,
	}, nil
}

// Fingerprint returns the SHA-256 digest of the DER encoding as
// colon-separated uppercase hex.
func Fingerprint(pemCert string) (string, error) {
	cert, err := Parse(pemCert)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":"), nil
}

// DERBase64 returns the raw base64 DER payload without PEM armor, the
// form SAML metadata embeds in X509Certificate elements.
func DERBase64(pemCert string) (string, error) {
	cert, err := Parse(pemCert)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(cert.Raw), nil
}
