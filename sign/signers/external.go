package signers

import (
	"fmt"
	"hash"
)

// ExternalSigner digests locally but never produces a signature itself:
// the digest is fetched mid-flight, the caller obtains the signature
// out of process, and the engine patches it in during the second phase.
type ExternalSigner struct {
	estimatedSize int
	algorithm     DigestAlgorithm
	hash          hash.Hash
	filter        string
	subFilter     string
}

// ExternalSignerOptions configures an ExternalSigner.
type ExternalSignerOptions struct {
	// EstimatedSize is the reserved size for the externally produced
	// signature. Zero selects DefaultSignatureSize.
	EstimatedSize int
	Algorithm     DigestAlgorithm
	Filter        string
	SubFilter     string
}

// DefaultExternalSignerOptions returns options for a detached CMS
// signature digested with SHA-256.
func DefaultExternalSignerOptions() ExternalSignerOptions {
	return ExternalSignerOptions{
		EstimatedSize: DefaultSignatureSize,
		Algorithm:     DigestSHA256,
		Filter:        FilterAdobePPKLite,
		SubFilter:     SubFilterETSICAdES,
	}
}

// NewExternalSigner creates a signer completed outside the process.
func NewExternalSigner(opts ExternalSignerOptions) (*ExternalSigner, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = DigestSHA256
	}
	if _, err := opts.Algorithm.NewHash(); err != nil {
		return nil, err
	}
	if opts.EstimatedSize <= 0 {
		opts.EstimatedSize = DefaultSignatureSize
	}
	if opts.Filter == "" {
		opts.Filter = FilterAdobePPKLite
	}
	if opts.SubFilter == "" {
		opts.SubFilter = SubFilterETSICAdES
	}
	return &ExternalSigner{
		estimatedSize: opts.EstimatedSize,
		algorithm:     opts.Algorithm,
		filter:        opts.Filter,
		subFilter:     opts.SubFilter,
	}, nil
}

// EstimateSignatureSize implements Signer.
func (s *ExternalSigner) EstimateSignatureSize() int {
	return s.estimatedSize
}

// Reset implements Signer.
func (s *ExternalSigner) Reset() error {
	h, err := s.algorithm.NewHash()
	if err != nil {
		return err
	}
	s.hash = h
	return nil
}

// AppendData implements Signer.
func (s *ExternalSigner) AppendData(p []byte) error {
	if s.hash == nil {
		if err := s.Reset(); err != nil {
			return err
		}
	}
	_, err := s.hash.Write(p)
	return err
}

// ComputeSignature implements Signer. An external signer has no key
// material, so synchronous completion is always refused.
func (s *ExternalSigner) ComputeSignature() ([]byte, error) {
	return nil, fmt.Errorf("external signer: %w", ErrSyncUnsupported)
}

// FetchIntermediateResult implements Signer.
func (s *ExternalSigner) FetchIntermediateResult() ([]byte, error) {
	if s.hash == nil {
		return nil, ErrNoDigestState
	}
	return s.hash.Sum(nil), nil
}

// SignatureFilter implements Signer.
func (s *ExternalSigner) SignatureFilter() string {
	return s.filter
}

// SignatureSubFilter implements Signer.
func (s *ExternalSigner) SignatureSubFilter() string {
	return s.subFilter
}
