package config

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// TokenCriteria defines search criteria for finding a PKCS#11 token.
type TokenCriteria struct {
	// Label matches the token label, trailing padding ignored.
	Label string `yaml:"label"`

	// Serial matches the token serial number.
	Serial string `yaml:"serial"`
}

// IsEmpty reports whether no criteria are set.
func (c *TokenCriteria) IsEmpty() bool {
	return c == nil || (c.Label == "" && c.Serial == "")
}

// String implements fmt.Stringer.
func (c *TokenCriteria) String() string {
	if c.IsEmpty() {
		return "TokenCriteria{}"
	}
	var parts []string
	if c.Label != "" {
		parts = append(parts, fmt.Sprintf("label=%q", c.Label))
	}
	if c.Serial != "" {
		parts = append(parts, fmt.Sprintf("serial=%q", c.Serial))
	}
	return fmt.Sprintf("TokenCriteria{%s}", strings.Join(parts, ", "))
}

// PKCS11Config configures signing with a PKCS#11 hardware token.
type PKCS11Config struct {
	// ModulePath is the path to the PKCS#11 shared library.
	ModulePath string `yaml:"module-path"`

	// SlotNo selects a slot by index. Nil means search by token
	// criteria, or use the only available slot.
	SlotNo *int `yaml:"slot-no"`

	// TokenCriteria selects a token by label or serial.
	TokenCriteria *TokenCriteria `yaml:"token-criteria"`

	// UserPIN is the user PIN. Empty skips login.
	UserPIN string `yaml:"user-pin"`

	// KeyLabel and KeyID identify the private key on the token. KeyID
	// is hex encoded.
	KeyLabel string `yaml:"key-label"`
	KeyID    string `yaml:"key-id"`

	// CertLabel and CertID identify the signing certificate. CertID is
	// hex encoded.
	CertLabel string `yaml:"cert-label"`
	CertID    string `yaml:"cert-id"`
}

// Validate validates the PKCS#11 configuration.
func (c *PKCS11Config) Validate() error {
	if c.ModulePath == "" {
		return NewConfigError("module-path", "required field is missing")
	}
	if _, err := c.GetKeyID(); err != nil {
		return NewConfigError("key-id", err.Error())
	}
	if _, err := c.GetCertID(); err != nil {
		return NewConfigError("cert-id", err.Error())
	}
	return nil
}

// GetKeyID decodes the hex encoded key ID, or nil when unset.
func (c *PKCS11Config) GetKeyID() ([]byte, error) {
	return decodeHexID(c.KeyID)
}

// GetCertID decodes the hex encoded certificate ID, or nil when unset.
func (c *PKCS11Config) GetCertID() ([]byte, error) {
	return decodeHexID(c.CertID)
}

func decodeHexID(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	id, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex id %q: %w", s, err)
	}
	return id, nil
}
