package refresh

import (
	"encoding/json"
	"fmt"
)

// extractRefreshCredential pulls a refresh credential for the account out of
// an opaque cache blob by key-matching on the account identity. An exact key
// match wins; when no key matches but exactly one credential is present, that
// credential is used as a fallback. The fallback is a deliberate heuristic:
// with multiple cached accounts it could pick the wrong credential, so
// callers log when it triggers.
func extractRefreshCredential(blob []byte, providerAccountID string) (key, credential string, fallback, ok bool) {
	var cache struct {
		RefreshTokens map[string]string `json:"refresh_tokens"`
	}
	if err := json.Unmarshal(blob, &cache); err != nil {
		return "", "", false, false
	}

	if credential, exists := cache.RefreshTokens[providerAccountID]; exists && credential != "" {
		return providerAccountID, credential, false, true
	}

	if len(cache.RefreshTokens) == 1 {
		for k, v := range cache.RefreshTokens {
			if v != "" {
				return k, v, true, true
			}
		}
	}

	return "", "", false, false
}

// replaceRefreshCredential rewrites one refresh credential inside a cache
// blob, leaving every other field untouched.
func replaceRefreshCredential(blob []byte, key, credential string) ([]byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("parsing cache blob: %w", err)
	}

	tokens := make(map[string]string)
	if data, ok := raw["refresh_tokens"]; ok {
		if err := json.Unmarshal(data, &tokens); err != nil {
			return nil, fmt.Errorf("parsing refresh credentials: %w", err)
		}
	}
	tokens[key] = credential

	data, err := json.Marshal(tokens)
	if err != nil {
		return nil, fmt.Errorf("marshaling refresh credentials: %w", err)
	}
	raw["refresh_tokens"] = data

	updated, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshaling cache blob: %w", err)
	}
	return updated, nil
}
