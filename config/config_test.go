package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleConfig = `
logging:
  level: debug
  format: text

field:
  name: ApprovalSignature
  page: 1
  rect: [100, 100, 300, 160]
  reason: Approved
  location: Berlin
  contact-info: ops@example.com
  signer-name: Jane Roe

key-sets:
  local:
    pemder:
      key-file: /keys/signer.key
      cert-file: /keys/signer.crt
    digest: sha384
  container:
    pkcs12:
      pfx-file: /keys/signer.pfx
      pfx-passphrase: secret
  token:
    pkcs11:
      module-path: /usr/lib/softhsm/libsofthsm2.so
      token-criteria:
        label: signing-token
      user-pin: "1234"
      key-label: sigkey
      cert-id: deadbeef
`

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Field.Name != "ApprovalSignature" || cfg.Field.Page != 1 {
		t.Errorf("field = %+v", cfg.Field)
	}
	if len(cfg.Field.Rect) != 4 || cfg.Field.Rect[2] != 300 {
		t.Errorf("rect = %v", cfg.Field.Rect)
	}
	if len(cfg.KeySets) != 3 {
		t.Fatalf("KeySets = %v", cfg.KeySets)
	}

	local, err := cfg.KeySet("local")
	if err != nil {
		t.Fatal(err)
	}
	if local.PemDer == nil || local.PemDer.KeyFile != "/keys/signer.key" {
		t.Errorf("pemder = %+v", local.PemDer)
	}
	if local.DigestName() != "sha384" {
		t.Errorf("DigestName() = %q", local.DigestName())
	}

	container, _ := cfg.KeySet("container")
	if container.PKCS12 == nil || container.PKCS12.PFXPassphrase != "secret" {
		t.Errorf("pkcs12 = %+v", container.PKCS12)
	}
	if container.DigestName() != "sha256" {
		t.Errorf("default DigestName() = %q", container.DigestName())
	}

	token, _ := cfg.KeySet("token")
	if token.PKCS11 == nil || token.PKCS11.KeyLabel != "sigkey" {
		t.Errorf("pkcs11 = %+v", token.PKCS11)
	}
	if token.PKCS11.TokenCriteria.Label != "signing-token" {
		t.Errorf("token criteria = %+v", token.PKCS11.TokenCriteria)
	}
	id, err := token.PKCS11.GetCertID()
	if err != nil || !bytes.Equal(id, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Errorf("GetCertID() = %x, %v", id, err)
	}

	if _, err := cfg.KeySet("missing"); !errors.Is(err, ErrUnknownKeySet) {
		t.Errorf("expected ErrUnknownKeySet, got %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "unknown key rejected",
			yaml: "fild:\n  name: Sig1\n",
			want: ErrConfigurationError,
		},
		{
			name: "no backend",
			yaml: "key-sets:\n  broken: {}\n",
			want: ErrAmbiguousKeySet,
		},
		{
			name: "two backends",
			yaml: `key-sets:
  broken:
    pemder:
      key-file: a
      cert-file: b
    pkcs12:
      pfx-file: c
`,
			want: ErrAmbiguousKeySet,
		},
		{
			name: "pemder without cert",
			yaml: "key-sets:\n  broken:\n    pemder:\n      key-file: a\n",
			want: ErrConfigurationError,
		},
		{
			name: "pkcs11 without module",
			yaml: "key-sets:\n  broken:\n    pkcs11:\n      key-label: k\n",
			want: ErrConfigurationError,
		},
		{
			name: "pkcs11 bad hex id",
			yaml: "key-sets:\n  broken:\n    pkcs11:\n      module-path: m\n      key-id: xyz\n",
			want: ErrConfigurationError,
		},
		{
			name: "bad rect",
			yaml: "field:\n  rect: [1, 2]\n",
			want: ErrConfigurationError,
		},
		{
			name: "negative page",
			yaml: "field:\n  page: -1\n",
			want: ErrConfigurationError,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tc.yaml)); !errors.Is(err, tc.want) {
				t.Errorf("Parse error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Field.Name != "" || len(cfg.KeySets) != 0 {
		t.Errorf("empty config = %+v", cfg)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.KeySets) != 3 {
		t.Errorf("KeySets = %v", cfg.KeySets)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBuildLogger(t *testing.T) {
	t.Run("disabled when level empty", func(t *testing.T) {
		c := LoggingConfig{}
		logger, err := c.BuildLogger(nil)
		if err != nil || logger != nil {
			t.Errorf("BuildLogger = %v, %v", logger, err)
		}
	})

	t.Run("level filters records", func(t *testing.T) {
		var buf bytes.Buffer
		c := LoggingConfig{Level: "warn"}
		logger, err := c.BuildLogger(&buf)
		if err != nil {
			t.Fatal(err)
		}
		logger.Info("quiet")
		logger.Warn("loud")
		out := buf.String()
		if strings.Contains(out, "quiet") || !strings.Contains(out, "loud") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		c := LoggingConfig{Level: "info", Format: "json"}
		logger, err := c.BuildLogger(&buf)
		if err != nil {
			t.Fatal(err)
		}
		logger.Info("hello", slog.String("k", "v"))
		if !strings.Contains(buf.String(), `"msg":"hello"`) {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("bad level and format", func(t *testing.T) {
		c := LoggingConfig{Level: "loudest"}
		if _, err := c.BuildLogger(nil); !errors.Is(err, ErrConfigurationError) {
			t.Errorf("level error = %v", err)
		}
		c = LoggingConfig{Level: "info", Format: "xml"}
		if _, err := c.BuildLogger(nil); !errors.Is(err, ErrConfigurationError) {
			t.Errorf("format error = %v", err)
		}
	})
}

func TestTokenCriteria(t *testing.T) {
	var nilCriteria *TokenCriteria
	if !nilCriteria.IsEmpty() {
		t.Error("nil criteria must be empty")
	}
	if (&TokenCriteria{Label: "x"}).IsEmpty() {
		t.Error("labeled criteria must not be empty")
	}
	got := (&TokenCriteria{Label: "tok", Serial: "042"}).String()
	if got != `TokenCriteria{label="tok", serial="042"}` {
		t.Errorf("String() = %s", got)
	}
}
