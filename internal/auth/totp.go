package auth

import (
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPProvider generates and checks time-based one-time passwords.
type TOTPProvider interface {
	GenerateSecret() (string, error)
	Verify(secret, code string) bool
	EnrollmentURI(secret, label string) (string, error)
}

// PquernaTOTP implements TOTPProvider with github.com/pquerna/otp using the
// standard authenticator-app parameters (SHA1, 6 digits, 30s period) and a
// tolerance of one step either side.
type PquernaTOTP struct {
	issuer string
	now    func() time.Time
}

var _ TOTPProvider = (*PquernaTOTP)(nil)

// NewPquernaTOTP creates a provider that labels enrollments with issuer.
func NewPquernaTOTP(issuer string) *PquernaTOTP {
	if issuer == "" {
		issuer = "EMS"
	}
	return &PquernaTOTP{issuer: issuer, now: time.Now}
}

const (
	totpPeriod     = 30
	totpSkew       = 1
	totpSecretSize = 20
)

// GenerateSecret returns a new base32 secret.
func (p *PquernaTOTP) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: "enrollment",
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return key.Secret(), nil
}

// Verify checks a 6-digit code against secret at the current time.
func (p *PquernaTOTP) Verify(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != 6 {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, p.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// EnrollmentURI builds the otpauth:// URI an authenticator app scans.
func (p *PquernaTOTP) EnrollmentURI(secret, label string) (string, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
	if err != nil {
		return "", fmt.Errorf("invalid totp secret: %w", err)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: label,
		Period:      totpPeriod,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build enrollment uri: %w", err)
	}
	return key.URL(), nil
}
