// Package signers defines the signer capability consumed by the
// signing orchestration engine, together with concrete implementations
// backed by local keys and PKCS#11 tokens.
//
// A signer owns one cryptographic scheme and identity: it accumulates a
// digest over the bytes the engine feeds it, reports an upper bound for
// its output size, and finally produces opaque signature bytes. Signers
// that cannot finish locally (smart cards, remote key services) expose
// their intermediate digest instead and are completed through the
// engine's two-phase workflow.
package signers

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"
)

// Common signer errors.
var (
	ErrIntermediateUnsupported = errors.New("signer cannot expose an intermediate digest result")
	ErrSyncUnsupported         = errors.New("signer cannot produce a signature synchronously")
	ErrUnsupportedDigest       = errors.New("unsupported digest algorithm")
	ErrNoDigestState           = errors.New("no digest state; Reset was not called")
)

// Signature handler names written into the PDF signature dictionary.
const (
	FilterAdobePPKLite = "Adobe.PPKLite"

	SubFilterAdbePkcs7Detached = "adbe.pkcs7.detached"
	SubFilterAdbeX509RSASHA1   = "adbe.x509.rsa_sha1"
	SubFilterETSICAdES         = "ETSI.CAdES.detached"
	SubFilterETSIRFC3161       = "ETSI.RFC3161"
)

// DefaultSignatureSize is the reserved /Contents size used when a
// signer cannot give a tighter estimate.
const DefaultSignatureSize = 16 * 1024

// Signer is the capability contract the signing engine invokes.
type Signer interface {
	// EstimateSignatureSize returns an upper bound, in bytes, for the
	// signature this signer will produce. The reserved /Contents region
	// is sized from it, so an underestimate makes the final patch fail.
	EstimateSignatureSize() int

	// Reset discards any accumulated digest state.
	Reset() error

	// AppendData feeds file bytes into the digest, in file order.
	AppendData(p []byte) error

	// ComputeSignature finalizes the digest and produces the signature
	// bytes. Signers that only support out-of-process completion return
	// ErrSyncUnsupported.
	ComputeSignature() ([]byte, error)

	// FetchIntermediateResult returns the current digest state for
	// out-of-process signing. Signers without that capability return
	// ErrIntermediateUnsupported.
	FetchIntermediateResult() ([]byte, error)

	// SignatureFilter returns the /Filter handler name.
	SignatureFilter() string

	// SignatureSubFilter returns the /SubFilter format name.
	SignatureSubFilter() string
}

// DigestAlgorithm identifies the hash accumulated over the signed byte
// ranges.
type DigestAlgorithm string

// Supported digest algorithms.
const (
	DigestSHA256   DigestAlgorithm = "sha256"
	DigestSHA384   DigestAlgorithm = "sha384"
	DigestSHA512   DigestAlgorithm = "sha512"
	DigestSHA3_256 DigestAlgorithm = "sha3-256"
	DigestSHA3_512 DigestAlgorithm = "sha3-512"
)

// NewHash returns a fresh hash for the algorithm.
func (a DigestAlgorithm) NewHash() (hash.Hash, error) {
	switch a {
	case DigestSHA256:
		return sha256.New(), nil
	case DigestSHA384:
		return sha512.New384(), nil
	case DigestSHA512:
		return sha512.New(), nil
	case DigestSHA3_256:
		return sha3.New256(), nil
	case DigestSHA3_512:
		return sha3.New512(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDigest, a)
	}
}

// CryptoHash returns the crypto.Hash identifier for the algorithm.
func (a DigestAlgorithm) CryptoHash() (crypto.Hash, error) {
	switch a {
	case DigestSHA256:
		return crypto.SHA256, nil
	case DigestSHA384:
		return crypto.SHA384, nil
	case DigestSHA512:
		return crypto.SHA512, nil
	case DigestSHA3_256:
		return crypto.SHA3_256, nil
	case DigestSHA3_512:
		return crypto.SHA3_512, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDigest, a)
	}
}

// RawSigner signs with a local crypto.Signer key, producing a raw
// signature over the accumulated digest (PKCS#1 v1.5 for RSA keys,
// ASN.1 DER for ECDSA keys). The signature bytes are opaque to the
// engine.
type RawSigner struct {
	key       crypto.Signer
	algorithm DigestAlgorithm
	hash      hash.Hash
	subFilter string
}

// NewRawSigner creates a signer around a local private key.
func NewRawSigner(key crypto.Signer, algorithm DigestAlgorithm) (*RawSigner, error) {
	if _, err := algorithm.NewHash(); err != nil {
		return nil, err
	}
	return &RawSigner{
		key:       key,
		algorithm: algorithm,
		subFilter: SubFilterAdbeX509RSASHA1,
	}, nil
}

// WithSubFilter overrides the /SubFilter name.
func (s *RawSigner) WithSubFilter(subFilter string) *RawSigner {
	s.subFilter = subFilter
	return s
}

// EstimateSignatureSize implements Signer.
func (s *RawSigner) EstimateSignatureSize() int {
	switch pub := s.key.Public().(type) {
	case *rsa.PublicKey:
		return pub.Size()
	case *ecdsa.PublicKey:
		byteLen := (pub.Curve.Params().BitSize + 7) / 8
		return 2*byteLen + 12 // DER framing margin
	default:
		return DefaultSignatureSize
	}
}

// Reset implements Signer.
func (s *RawSigner) Reset() error {
	h, err := s.algorithm.NewHash()
	if err != nil {
		return err
	}
	s.hash = h
	return nil
}

// AppendData implements Signer.
func (s *RawSigner) AppendData(p []byte) error {
	if s.hash == nil {
		if err := s.Reset(); err != nil {
			return err
		}
	}
	_, err := s.hash.Write(p)
	return err
}

// ComputeSignature implements Signer.
func (s *RawSigner) ComputeSignature() ([]byte, error) {
	if s.hash == nil {
		return nil, ErrNoDigestState
	}
	digest := s.hash.Sum(nil)
	cryptoHash, err := s.algorithm.CryptoHash()
	if err != nil {
		return nil, err
	}
	signature, err := s.key.Sign(rand.Reader, digest, cryptoHash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return signature, nil
}

// FetchIntermediateResult implements Signer. The returned digest can be
// handed to an external service and the real signature supplied later
// through the two-phase workflow.
func (s *RawSigner) FetchIntermediateResult() ([]byte, error) {
	if s.hash == nil {
		return nil, ErrNoDigestState
	}
	return s.hash.Sum(nil), nil
}

// SignatureFilter implements Signer.
func (s *RawSigner) SignatureFilter() string {
	return FilterAdobePPKLite
}

// SignatureSubFilter implements Signer.
func (s *RawSigner) SignatureSubFilter() string {
	return s.subFilter
}
