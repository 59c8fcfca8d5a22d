package provider

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/wardmail/accountlink/internal/validation"
)

// generateSecureCode returns a cryptographically random hex string of
// byteLen random bytes.
func generateSecureCode(byteLen int) (string, error) {
	bytes := make([]byte, byteLen)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// selectRandomChar picks a random rune from available without modulo bias.
func selectRandomChar(available []rune) (rune, error) {
	availLen := len(available)
	maxNeeded := 256 - (256 % availLen)

	for {
		b := make([]byte, 1)
		if _, err := rand.Read(b); err != nil {
			return 0, fmt.Errorf("generating random byte: %w", err)
		}

		// Reject values that would introduce modulo bias
		if int(b[0]) >= maxNeeded {
			continue
		}

		idx := int(b[0]) % availLen
		return available[idx], nil
	}
}

// generateUserCode produces a user code meeting RFC 8628 section 6.1
// requirements: two groups drawn from the restricted charset with limited
// character repetition.
func generateUserCode() (string, error) {
	const maxAttempts = 100
	charset := []rune(validation.ValidCharset)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var builder strings.Builder
		freqs := make(map[rune]int)
		success := true

		for group := 0; group < 2; group++ {
			if group > 0 {
				builder.WriteRune('-')
			}

			for i := 0; i < validation.GroupSize; i++ {
				var available []rune
				for _, c := range charset {
					if freqs[c] < 2 { // max 2 occurrences per code
						available = append(available, c)
					}
				}
				if len(available) == 0 {
					success = false
					break
				}

				char, err := selectRandomChar(available)
				if err != nil {
					return "", err
				}
				builder.WriteRune(char)
				freqs[char]++
			}
			if !success {
				break
			}
		}
		if !success {
			continue
		}

		code := builder.String()
		if err := validation.ValidateUserCode(code); err == nil {
			return code, nil
		}
	}

	return "", fmt.Errorf("failed to generate valid user code after %d attempts", maxAttempts)
}
