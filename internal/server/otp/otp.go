// Package otp issues and evaluates six-digit one-time passcodes.
//
// The package is storage-agnostic: it works on models.OtpState values and
// leaves persistence (including the atomic attempt counter) to the caller.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/dmitrijs2005/storefront/internal/server/models"
)

// CodeLength is the number of digits in a passcode.
const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

// Generator produces a fresh passcode.
type Generator func() (string, error)

// GenerateCode returns a uniformly random code in 000000..999999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Issue returns a new pending state valid for validity from now.
func Issue(now time.Time, validity time.Duration, gen Generator) (models.OtpState, error) {
	if gen == nil {
		gen = GenerateCode
	}
	code, err := gen()
	if err != nil {
		return models.OtpState{}, err
	}
	expires := now.Add(validity)
	return models.OtpState{Code: &code, ExpiresAt: &expires}, nil
}

// Outcome is the result of checking a submitted code.
type Outcome int

const (
	Match Outcome = iota
	Mismatch
	NoPending
	Expired
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Match:
		return "match"
	case Mismatch:
		return "mismatch"
	case NoPending:
		return "no_pending"
	case Expired:
		return "expired"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Evaluate checks submitted against state at time now. Checks run in order:
// no code, expiry, exhausted attempts, then a constant-time comparison.
// Evaluate never mutates state.
func Evaluate(state models.OtpState, submitted string, now time.Time, maxAttempts int) Outcome {
	if !state.Pending() {
		return NoPending
	}
	if state.ExpiresAt == nil || now.After(*state.ExpiresAt) {
		return Expired
	}
	if state.AttemptsUsed >= maxAttempts {
		return Exhausted
	}
	if subtle.ConstantTimeCompare([]byte(*state.Code), []byte(submitted)) != 1 {
		return Mismatch
	}
	return Match
}

// ValidFormat reports whether s looks like a passcode.
func ValidFormat(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
