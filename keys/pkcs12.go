package keys

import (
	"crypto/x509"
	"fmt"
	"os"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Bundle groups a signing certificate with its CA chain.
type Bundle struct {
	Certificate *x509.Certificate
	CACerts     []*x509.Certificate
}

// LoadPKCS12 loads a private key, its certificate, and any CA
// certificates from a PKCS#12 (.p12/.pfx) file.
func LoadPKCS12(filename string, passphrase string) (PrivateKey, *Bundle, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return LoadPKCS12Data(data, passphrase)
}

// LoadPKCS12Data loads key material from PKCS#12 encoded data.
func LoadPKCS12Data(data []byte, passphrase string) (PrivateKey, *Bundle, error) {
	key, cert, caCerts, err := pkcs12.DecodeChain(data, passphrase)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode PKCS#12 data: %w", err)
	}

	signer, err := toPrivateKey(key)
	if err != nil {
		return nil, nil, err
	}

	return signer, &Bundle{Certificate: cert, CACerts: caCerts}, nil
}
