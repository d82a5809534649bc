// Package config loads and validates the YAML configuration used by
// the signing CLI: key material sources, the signature field profile,
// and logging.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Common errors
var (
	ErrConfigurationError   = errors.New("configuration error")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrUnknownKeySet        = errors.New("unknown key set")
	ErrAmbiguousKeySet      = errors.New("key set must configure exactly one backend")
)

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message, Err: ErrConfigurationError}
}

// Config is the root of the YAML configuration file.
type Config struct {
	// Logging configures debug output.
	Logging LoggingConfig `yaml:"logging"`

	// Field is the default signature field profile.
	Field FieldConfig `yaml:"field"`

	// KeySets maps a name to one key material source.
	KeySets map[string]KeySetConfig `yaml:"key-sets"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Empty disables logging.
	Level string `yaml:"level"`

	// Format is text or json. Defaults to text.
	Format string `yaml:"format"`
}

// BuildLogger returns a logger per the configuration, or nil when
// logging is disabled.
func (c *LoggingConfig) BuildLogger(w io.Writer) (*slog.Logger, error) {
	if c.Level == "" {
		return nil, nil
	}
	if w == nil {
		w = os.Stderr
	}

	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, NewConfigError("logging.level", fmt.Sprintf("unknown level %q", c.Level))
	}

	opts := &slog.HandlerOptions{Level: level}
	switch c.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, NewConfigError("logging.format", fmt.Sprintf("unknown format %q", c.Format))
	}
}

// FieldConfig describes the visible signature field placed on the
// document.
type FieldConfig struct {
	// Name is the form field name. Defaults to "Signature1".
	Name string `yaml:"name"`

	// Page is the zero-based page index the widget is placed on.
	Page int `yaml:"page"`

	// Rect is the widget rectangle [llx lly urx ury]. Empty means an
	// invisible signature.
	Rect []float64 `yaml:"rect"`

	// Reason, Location, ContactInfo, and SignerName populate the
	// signature dictionary.
	Reason      string `yaml:"reason"`
	Location    string `yaml:"location"`
	ContactInfo string `yaml:"contact-info"`
	SignerName  string `yaml:"signer-name"`
}

// Validate validates the field profile.
func (c *FieldConfig) Validate() error {
	if c.Page < 0 {
		return NewConfigError("field.page", "page index must not be negative")
	}
	if len(c.Rect) != 0 && len(c.Rect) != 4 {
		return NewConfigError("field.rect", "rect must have exactly four numbers")
	}
	return nil
}

// KeySetConfig selects exactly one key material backend and the digest
// used with it.
type KeySetConfig struct {
	// PemDer configures separate PEM/DER key and certificate files.
	PemDer *PemDerConfig `yaml:"pemder,omitempty"`

	// PKCS12 configures a PKCS#12 container file.
	PKCS12 *PKCS12Config `yaml:"pkcs12,omitempty"`

	// PKCS11 configures a hardware token.
	PKCS11 *PKCS11Config `yaml:"pkcs11,omitempty"`

	// Digest names the digest algorithm. Defaults to sha256.
	Digest string `yaml:"digest"`
}

// Validate validates the key set.
func (c *KeySetConfig) Validate() error {
	n := 0
	if c.PemDer != nil {
		n++
	}
	if c.PKCS12 != nil {
		n++
	}
	if c.PKCS11 != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("%w: got %d backends", ErrAmbiguousKeySet, n)
	}
	if c.PemDer != nil {
		return c.PemDer.Validate()
	}
	if c.PKCS12 != nil {
		return c.PKCS12.Validate()
	}
	return c.PKCS11.Validate()
}

// DigestName returns the configured digest, defaulting to sha256.
func (c *KeySetConfig) DigestName() string {
	if c.Digest == "" {
		return "sha256"
	}
	return c.Digest
}

// PemDerConfig configures signing with separate key and certificate
// files.
type PemDerConfig struct {
	// KeyFile is the path to the private key file.
	KeyFile string `yaml:"key-file"`

	// CertFile is the path to the certificate file.
	CertFile string `yaml:"cert-file"`
}

// Validate validates the PEM/DER configuration.
func (c *PemDerConfig) Validate() error {
	if c.KeyFile == "" {
		return NewConfigError("key-file", "required field is missing")
	}
	if c.CertFile == "" {
		return NewConfigError("cert-file", "required field is missing")
	}
	return nil
}

// PKCS12Config configures signing with a PKCS#12 container.
type PKCS12Config struct {
	// PFXFile is the path to the PKCS#12 file.
	PFXFile string `yaml:"pfx-file"`

	// PFXPassphrase is the container passphrase.
	PFXPassphrase string `yaml:"pfx-passphrase"`
}

// Validate validates the PKCS#12 configuration.
func (c *PKCS12Config) Validate() error {
	if c.PFXFile == "" {
		return NewConfigError("pfx-file", "required field is missing")
	}
	return nil
}

// Load reads and validates a configuration file.
func Load(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads and validates configuration from a reader.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrConfigurationError, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the whole configuration.
func (c *Config) Validate() error {
	if err := c.Field.Validate(); err != nil {
		return err
	}
	for name, ks := range c.KeySets {
		ks := ks
		if err := ks.Validate(); err != nil {
			return fmt.Errorf("key set %q: %w", name, err)
		}
	}
	return nil
}

// KeySet returns the named key set.
func (c *Config) KeySet(name string) (KeySetConfig, error) {
	ks, ok := c.KeySets[name]
	if !ok {
		return KeySetConfig{}, fmt.Errorf("%w: %q", ErrUnknownKeySet, name)
	}
	return ks, nil
}
