package auth

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// RecoveryCodeCount is how many codes are issued per enrollment.
const RecoveryCodeCount = 8

const recoveryAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRecoveryCodes returns RecoveryCodeCount codes shaped XXXX-XXXX.
func GenerateRecoveryCodes() ([]string, error) {
	codes := make([]string, 0, RecoveryCodeCount)
	for i := 0; i < RecoveryCodeCount; i++ {
		left, err := randomChunk(4)
		if err != nil {
			return nil, err
		}
		right, err := randomChunk(4)
		if err != nil {
			return nil, err
		}
		codes = append(codes, left+"-"+right)
	}
	return codes, nil
}

func randomChunk(n int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(recoveryAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate recovery code: %w", err)
		}
		b.WriteByte(recoveryAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

// NormalizeRecoveryCode uppercases and trims a submitted code.
func NormalizeRecoveryCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SpendRecoveryCode removes one matching code from codes. The returned slice
// is a new slice; codes is not modified.
func SpendRecoveryCode(codes []string, submitted string) ([]string, bool) {
	want := NormalizeRecoveryCode(submitted)
	if want == "" {
		return codes, false
	}
	for i, c := range codes {
		if NormalizeRecoveryCode(c) == want {
			remaining := make([]string, 0, len(codes)-1)
			remaining = append(remaining, codes[:i]...)
			remaining = append(remaining, codes[i+1:]...)
			return remaining, true
		}
	}
	return codes, false
}

// EncodeRecoveryCodes serialises codes as the JSON array stored (encrypted)
// on the user row.
func EncodeRecoveryCodes(codes []string) (string, error) {
	if codes == nil {
		codes = []string{}
	}
	b, err := json.Marshal(codes)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeRecoveryCodes parses the stored JSON array. An empty string decodes
// to no codes.
func DecodeRecoveryCodes(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		return nil, fmt.Errorf("invalid recovery code set: %w", err)
	}
	return codes, nil
}
