package signers

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"sync"

	pkcs11 "github.com/miekg/pkcs11"

	"github.com/CrackerCat/podofo/config"
)

// PKCS#11 related errors
var (
	ErrPKCS11ModuleLoad     = errors.New("failed to load PKCS#11 module")
	ErrPKCS11NoToken        = errors.New("no matching token found")
	ErrPKCS11NoKey          = errors.New("private key not found")
	ErrPKCS11NoCert         = errors.New("certificate not found")
	ErrPKCS11MultipleKeys   = errors.New("multiple private keys found")
	ErrPKCS11MultipleCerts  = errors.New("multiple certificates found")
	ErrPKCS11SessionFailed  = errors.New("failed to open PKCS#11 session")
	ErrPKCS11LoginFailed    = errors.New("PKCS#11 login failed")
	ErrPKCS11SignFailed     = errors.New("PKCS#11 signing failed")
	ErrPKCS11UnsupportedAlg = errors.New("unsupported algorithm for PKCS#11")
)

// Mechanism constants (from PKCS#11 spec)
const (
	CKM_RSA_PKCS = 0x00000001
	CKM_ECDSA    = 0x00001041
)

// Object class constants
const (
	CKO_CERTIFICATE = 0x00000001
	CKO_PRIVATE_KEY = 0x00000003
)

// Attribute constants
const (
	CKA_CLASS = 0x00000000
	CKA_LABEL = 0x00000003
	CKA_VALUE = 0x00000011
	CKA_ID    = 0x00000102
	CKA_SIGN  = 0x00000108
)

// PKCS11Session wraps a PKCS#11 session.
type PKCS11Session struct {
	ctx     *pkcs11.Ctx
	session pkcs11.SessionHandle
	slotID  uint
}

// Close closes the PKCS#11 session.
func (s *PKCS11Session) Close() error {
	if s.ctx == nil {
		return nil
	}
	err := s.ctx.CloseSession(s.session)
	s.ctx.Finalize()
	s.ctx.Destroy()
	return err
}

// PKCS11Signer signs through a PKCS#11 token. The digest over the
// signed byte ranges is accumulated locally; only the final digest
// crosses into the token, through the raw CKM_RSA_PKCS or CKM_ECDSA
// mechanism.
type PKCS11Signer struct {
	session     *PKCS11Session
	keyHandle   pkcs11.ObjectHandle
	signingCert *x509.Certificate

	algorithm DigestAlgorithm
	hash      hash.Hash
	subFilter string

	certLabel string
	certID    []byte
	keyLabel  string
	keyID     []byte

	loaded bool
	mu     sync.Mutex
}

// NewPKCS11Signer creates a signer over an open PKCS#11 session.
func NewPKCS11Signer(session *PKCS11Session, algorithm DigestAlgorithm) (*PKCS11Signer, error) {
	if _, err := algorithm.NewHash(); err != nil {
		return nil, err
	}
	return &PKCS11Signer{
		session:   session,
		algorithm: algorithm,
		subFilter: SubFilterAdbeX509RSASHA1,
	}, nil
}

// WithCertLabel sets the certificate label.
func (s *PKCS11Signer) WithCertLabel(label string) *PKCS11Signer {
	s.certLabel = label
	return s
}

// WithCertID sets the certificate ID.
func (s *PKCS11Signer) WithCertID(id []byte) *PKCS11Signer {
	s.certID = id
	return s
}

// WithKeyLabel sets the key label.
func (s *PKCS11Signer) WithKeyLabel(label string) *PKCS11Signer {
	s.keyLabel = label
	return s
}

// WithKeyID sets the key ID.
func (s *PKCS11Signer) WithKeyID(id []byte) *PKCS11Signer {
	s.keyID = id
	return s
}

// WithSubFilter overrides the /SubFilter name.
func (s *PKCS11Signer) WithSubFilter(subFilter string) *PKCS11Signer {
	s.subFilter = subFilter
	return s
}

// WithSigningCertificate sets a pre-loaded signing certificate.
func (s *PKCS11Signer) WithSigningCertificate(cert *x509.Certificate) *PKCS11Signer {
	s.signingCert = cert
	return s
}

// Certificate returns the signing certificate, if loaded.
func (s *PKCS11Signer) Certificate() *x509.Certificate {
	return s.signingCert
}

// Load locates the key and certificate on the token.
func (s *PKCS11Signer) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return nil
	}

	effectiveKeyLabel := s.keyLabel
	effectiveKeyID := s.keyID
	effectiveCertLabel := s.certLabel
	effectiveCertID := s.certID

	// Default key identifiers from cert if not set
	if effectiveKeyLabel == "" && effectiveKeyID == nil {
		if effectiveCertID != nil {
			effectiveKeyID = effectiveCertID
		} else if effectiveCertLabel != "" {
			effectiveKeyLabel = effectiveCertLabel
		}
	}

	// Default cert identifiers from key if not set and no cert provided
	if s.signingCert == nil {
		if effectiveCertLabel == "" && effectiveCertID == nil {
			if effectiveKeyID != nil {
				effectiveCertID = effectiveKeyID
			} else if effectiveKeyLabel != "" {
				effectiveCertLabel = effectiveKeyLabel
			}
		}
	}

	if s.signingCert == nil {
		cert, err := s.pullCertificate(effectiveCertLabel, effectiveCertID)
		if err != nil {
			return fmt.Errorf("failed to load certificate: %w", err)
		}
		s.signingCert = cert
	}

	keyHandle, err := s.pullKeyHandle(effectiveKeyLabel, effectiveKeyID)
	if err != nil {
		return fmt.Errorf("failed to load key: %w", err)
	}
	s.keyHandle = keyHandle

	s.loaded = true
	return nil
}

// pullCertificate fetches a certificate from the token.
func (s *PKCS11Signer) pullCertificate(label string, id []byte) (*x509.Certificate, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(CKA_CLASS, CKO_CERTIFICATE),
	}
	if label != "" {
		template = append(template, pkcs11.NewAttribute(CKA_LABEL, label))
	}
	if id != nil {
		template = append(template, pkcs11.NewAttribute(CKA_ID, id))
	}

	if err := s.session.ctx.FindObjectsInit(s.session.session, template); err != nil {
		return nil, fmt.Errorf("FindObjectsInit failed: %w", err)
	}
	defer s.session.ctx.FindObjectsFinal(s.session.session)

	objs, _, err := s.session.ctx.FindObjects(s.session.session, 10)
	if err != nil {
		return nil, fmt.Errorf("FindObjects failed: %w", err)
	}

	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: label=%q, id=%s", ErrPKCS11NoCert, label, hex.EncodeToString(id))
	}
	if len(objs) > 1 {
		return nil, fmt.Errorf("%w: label=%q, id=%s", ErrPKCS11MultipleCerts, label, hex.EncodeToString(id))
	}

	attrs, err := s.session.ctx.GetAttributeValue(s.session.session, objs[0], []*pkcs11.Attribute{
		pkcs11.NewAttribute(CKA_VALUE, nil),
	})
	if err != nil {
		return nil, fmt.Errorf("GetAttributeValue failed: %w", err)
	}

	if len(attrs) == 0 || len(attrs[0].Value) == 0 {
		return nil, fmt.Errorf("certificate has no value")
	}

	cert, err := x509.ParseCertificate(attrs[0].Value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return cert, nil
}

// pullKeyHandle fetches a private key handle from the token.
func (s *PKCS11Signer) pullKeyHandle(label string, id []byte) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(CKA_CLASS, CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(CKA_SIGN, true),
	}
	if label != "" {
		template = append(template, pkcs11.NewAttribute(CKA_LABEL, label))
	}
	if id != nil {
		template = append(template, pkcs11.NewAttribute(CKA_ID, id))
	}

	if err := s.session.ctx.FindObjectsInit(s.session.session, template); err != nil {
		return 0, fmt.Errorf("FindObjectsInit failed: %w", err)
	}
	defer s.session.ctx.FindObjectsFinal(s.session.session)

	objs, _, err := s.session.ctx.FindObjects(s.session.session, 10)
	if err != nil {
		return 0, fmt.Errorf("FindObjects failed: %w", err)
	}

	if len(objs) == 0 {
		return 0, fmt.Errorf("%w: label=%q, id=%s", ErrPKCS11NoKey, label, hex.EncodeToString(id))
	}
	if len(objs) > 1 {
		return 0, fmt.Errorf("%w: label=%q, id=%s", ErrPKCS11MultipleKeys, label, hex.EncodeToString(id))
	}

	return objs[0], nil
}

// EstimateSignatureSize implements Signer.
func (s *PKCS11Signer) EstimateSignatureSize() int {
	if s.signingCert != nil {
		switch pub := s.signingCert.PublicKey.(type) {
		case *rsa.PublicKey:
			return pub.Size()
		case *ecdsa.PublicKey:
			byteLen := (pub.Curve.Params().BitSize + 7) / 8
			return 2*byteLen + 12
		}
	}
	return DefaultSignatureSize
}

// Reset implements Signer.
func (s *PKCS11Signer) Reset() error {
	h, err := s.algorithm.NewHash()
	if err != nil {
		return err
	}
	s.hash = h
	return nil
}

// AppendData implements Signer.
func (s *PKCS11Signer) AppendData(p []byte) error {
	if s.hash == nil {
		if err := s.Reset(); err != nil {
			return err
		}
	}
	_, err := s.hash.Write(p)
	return err
}

// ComputeSignature implements Signer.
func (s *PKCS11Signer) ComputeSignature() ([]byte, error) {
	if s.hash == nil {
		return nil, ErrNoDigestState
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s.signDigest(s.hash.Sum(nil))
}

// FetchIntermediateResult implements Signer.
func (s *PKCS11Signer) FetchIntermediateResult() ([]byte, error) {
	if s.hash == nil {
		return nil, ErrNoDigestState
	}
	return s.hash.Sum(nil), nil
}

// SignatureFilter implements Signer.
func (s *PKCS11Signer) SignatureFilter() string {
	return FilterAdobePPKLite
}

// SignatureSubFilter implements Signer.
func (s *PKCS11Signer) SignatureSubFilter() string {
	return s.subFilter
}

// signDigest signs an already computed digest on the token.
func (s *PKCS11Signer) signDigest(digest []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		mechanism     *pkcs11.Mechanism
		input         []byte
		postTransform func([]byte) ([]byte, error)
		err           error
	)

	switch s.signingCert.PublicKeyAlgorithm {
	case x509.RSA:
		mechanism = pkcs11.NewMechanism(CKM_RSA_PKCS, nil)
		input, err = wrapDigestInfo(s.algorithm, digest)
		if err != nil {
			return nil, err
		}
	case x509.ECDSA:
		mechanism = pkcs11.NewMechanism(CKM_ECDSA, nil)
		input = digest
		postTransform = encodeECDSASignature
	default:
		return nil, fmt.Errorf("%w: %s", ErrPKCS11UnsupportedAlg, s.signingCert.PublicKeyAlgorithm)
	}

	if err := s.session.ctx.SignInit(s.session.session, []*pkcs11.Mechanism{mechanism}, s.keyHandle); err != nil {
		return nil, fmt.Errorf("%w: SignInit failed: %v", ErrPKCS11SignFailed, err)
	}

	signature, err := s.session.ctx.Sign(s.session.session, input)
	if err != nil {
		return nil, fmt.Errorf("%w: Sign failed: %v", ErrPKCS11SignFailed, err)
	}

	if postTransform != nil {
		signature, err = postTransform(signature)
		if err != nil {
			return nil, err
		}
	}

	return signature, nil
}

// wrapDigestInfo wraps a digest in a PKCS#1 DigestInfo structure.
func wrapDigestInfo(algorithm DigestAlgorithm, digest []byte) ([]byte, error) {
	var oid asn1.ObjectIdentifier

	switch algorithm {
	case DigestSHA256:
		oid = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	case DigestSHA384:
		oid = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	case DigestSHA512:
		oid = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
	case DigestSHA3_256:
		oid = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 8}
	case DigestSHA3_512:
		oid = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 10}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDigest, algorithm)
	}

	type algorithmIdentifier struct {
		Algorithm  asn1.ObjectIdentifier
		Parameters asn1.RawValue `asn1:"optional"`
	}

	type digestInfo struct {
		DigestAlgorithm algorithmIdentifier
		Digest          []byte
	}

	di := digestInfo{
		DigestAlgorithm: algorithmIdentifier{
			Algorithm:  oid,
			Parameters: asn1.RawValue{Tag: 5}, // NULL
		},
		Digest: digest,
	}

	return asn1.Marshal(di)
}

// encodeECDSASignature encodes an ECDSA signature (r||s) to DER.
func encodeECDSASignature(raw []byte) ([]byte, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("invalid ECDSA signature length: %d", len(raw))
	}

	halfLen := len(raw) / 2
	r := new(big.Int).SetBytes(raw[:halfLen])
	s := new(big.Int).SetBytes(raw[halfLen:])

	type ecdsaSig struct {
		R, S *big.Int
	}

	return asn1.Marshal(ecdsaSig{R: r, S: s})
}

// OpenPKCS11Session loads a PKCS#11 module and opens a login session on
// the slot selected by number or token criteria.
func OpenPKCS11Session(
	modulePath string,
	slotNo *int,
	tokenCriteria *config.TokenCriteria,
	userPIN string,
) (*PKCS11Session, error) {
	ctx := pkcs11.New(modulePath)
	if ctx == nil {
		return nil, fmt.Errorf("%w: %s", ErrPKCS11ModuleLoad, modulePath)
	}

	if err := ctx.Initialize(); err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("PKCS#11 initialize failed: %w", err)
	}

	teardown := func() {
		ctx.Finalize()
		ctx.Destroy()
	}

	slots, err := ctx.GetSlotList(true)
	if err != nil {
		teardown()
		return nil, fmt.Errorf("failed to get slots: %w", err)
	}
	if len(slots) == 0 {
		teardown()
		return nil, fmt.Errorf("%w: no slots with tokens available", ErrPKCS11NoToken)
	}

	targetSlot, err := findToken(ctx, slots, slotNo, tokenCriteria)
	if err != nil {
		teardown()
		return nil, err
	}

	session, err := ctx.OpenSession(targetSlot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		teardown()
		return nil, fmt.Errorf("%w: %v", ErrPKCS11SessionFailed, err)
	}

	if userPIN != "" {
		if err := ctx.Login(session, pkcs11.CKU_USER, userPIN); err != nil {
			ctx.CloseSession(session)
			teardown()
			return nil, fmt.Errorf("%w: %v", ErrPKCS11LoginFailed, err)
		}
	}

	return &PKCS11Session{
		ctx:     ctx,
		session: session,
		slotID:  targetSlot,
	}, nil
}

// findToken finds a token in the given slots matching the criteria.
func findToken(
	ctx *pkcs11.Ctx,
	slots []uint,
	slotNo *int,
	tokenCriteria *config.TokenCriteria,
) (uint, error) {
	if slotNo != nil {
		if *slotNo >= len(slots) {
			return 0, fmt.Errorf("slot %d not found (only %d slots available)", *slotNo, len(slots))
		}
		slot := slots[*slotNo]

		if tokenCriteria != nil && !tokenCriteria.IsEmpty() {
			tokenInfo, err := ctx.GetTokenInfo(slot)
			if err != nil {
				return 0, fmt.Errorf("failed to get token info: %w", err)
			}
			if !tokenMatchesCriteria(tokenInfo, tokenCriteria) {
				return 0, fmt.Errorf("%w: token in slot %d does not match criteria %s",
					ErrPKCS11NoToken, *slotNo, tokenCriteria)
			}
		}
		return slot, nil
	}

	if tokenCriteria != nil && !tokenCriteria.IsEmpty() {
		for _, slot := range slots {
			tokenInfo, err := ctx.GetTokenInfo(slot)
			if err != nil {
				continue
			}
			if tokenMatchesCriteria(tokenInfo, tokenCriteria) {
				return slot, nil
			}
		}
		return 0, fmt.Errorf("%w: no token matching criteria %s", ErrPKCS11NoToken, tokenCriteria)
	}

	if len(slots) > 1 {
		return 0, fmt.Errorf("multiple tokens available; specify slot number or token criteria")
	}
	return slots[0], nil
}

// tokenMatchesCriteria checks if a token matches the given criteria.
func tokenMatchesCriteria(tokenInfo pkcs11.TokenInfo, criteria *config.TokenCriteria) bool {
	if criteria == nil || criteria.IsEmpty() {
		return true
	}

	if criteria.Label != "" {
		// PKCS#11 pads labels with trailing spaces
		if trimPKCS11String(tokenInfo.Label) != criteria.Label {
			return false
		}
	}

	if criteria.Serial != "" {
		if trimPKCS11String(tokenInfo.SerialNumber) != criteria.Serial {
			return false
		}
	}

	return true
}

// trimPKCS11String trims trailing spaces from a PKCS#11 string.
func trimPKCS11String(s string) string {
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

// Ensure all signer implementations satisfy the capability contract.
var (
	_ Signer = (*RawSigner)(nil)
	_ Signer = (*ExternalSigner)(nil)
	_ Signer = (*PKCS11Signer)(nil)
)
