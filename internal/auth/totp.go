package auth

import (
	"encoding/base64"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// TOTPManager handles two-factor secret enrollment and code validation.
type TOTPManager struct {
	issuer string
}

// NewTOTPManager creates a TOTP manager. The issuer names this service
// in authenticator apps.
func NewTOTPManager(issuer string) *TOTPManager {
	return &TOTPManager{issuer: issuer}
}

// Enrollment carries everything a client needs to register an
// authenticator app for an account.
type Enrollment struct {
	Secret    string // base32 secret, persisted after confirmation
	URL       string // otpauth:// provisioning URL
	QRDataURL string // PNG QR code of the URL as a data: URL
}

// GenerateEnrollment creates a new TOTP secret and its provisioning QR
// code for the given account.
func (tm *TOTPManager) GenerateEnrollment(accountEmail string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountEmail,
		SecretSize:  32, // 256 bits
		Period:      30,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &Enrollment{
		Secret:    key.Secret(),
		URL:       key.URL(),
		QRDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// ValidateCode checks a six-digit code against the stored secret.
func (tm *TOTPManager) ValidateCode(secret, code string) bool {
	return totp.Validate(code, secret)
}
