package provider

import (
	"encoding/json"
	"fmt"
)

// cacheVersion is the version marker written into serialized caches so the
// format can evolve without breaking persisted blobs.
const cacheVersion = 1

// tokenCache is the serialized cache written by the providers in this
// package. Downstream components persist it without depending on the shape;
// only best-effort credential extraction in the refresh chain peeks inside.
type tokenCache struct {
	Version       int                `json:"version"`
	Provider      string             `json:"provider"`
	Accounts      map[string]Account `json:"accounts"`
	RefreshTokens map[string]string  `json:"refresh_tokens"`
}

func newTokenCache(providerName string) *tokenCache {
	return &tokenCache{
		Version:       cacheVersion,
		Provider:      providerName,
		Accounts:      make(map[string]Account),
		RefreshTokens: make(map[string]string),
	}
}

func parseTokenCache(blob []byte) (*tokenCache, error) {
	var c tokenCache
	if err := json.Unmarshal(blob, &c); err != nil {
		return nil, fmt.Errorf("parsing token cache: %w", err)
	}
	if c.Version != cacheVersion {
		return nil, fmt.Errorf("unsupported token cache version %d", c.Version)
	}
	if c.Accounts == nil {
		c.Accounts = make(map[string]Account)
	}
	if c.RefreshTokens == nil {
		c.RefreshTokens = make(map[string]string)
	}
	return &c, nil
}

func (c *tokenCache) put(account Account, refreshToken string) {
	c.Accounts[account.ID] = account
	if refreshToken != "" {
		c.RefreshTokens[account.ID] = refreshToken
	}
}

func (c *tokenCache) marshal() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling token cache: %w", err)
	}
	return data, nil
}
