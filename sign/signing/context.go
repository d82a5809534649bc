// Package signing orchestrates PDF digital-signature passes: it
// registers signers against signature objects, reserves exact-size
// placeholder regions for signature bytes that do not yet exist, saves
// the document, digests the byte spans that exclude those placeholders,
// and patches the real signature bytes back in without changing the
// file length.
//
// Two workflows are exposed: Sign runs a whole pass synchronously,
// while StartSigning/FinishSigning split digesting from signature
// production so the signature can be computed out of process (smart
// card, HSM, remote signing service) with arbitrary elapsed time in
// between.
package signing

import (
	"sync"

	"github.com/CrackerCat/podofo/logging"
	"github.com/CrackerCat/podofo/pdf/document"
	"github.com/CrackerCat/podofo/pdf/generic"
	"github.com/CrackerCat/podofo/sign/signers"
)

type phase int

const (
	phaseConfiguring phase = iota
	phaseStarted
	phaseFinished
)

// signerHandle tags a registered signer with its ownership. Borrowed
// handles stay owned by the caller, which must keep them alive for the
// whole pass; they are admitted only through the package's own
// convenience entry points.
type signerHandle struct {
	signer   signers.Signer
	borrowed bool
}

// signatureAttrs collects the per-signature-object registration state:
// the page the visible widget sits on and the ordered signer handles
// bound to the object.
type signatureAttrs struct {
	signature *document.Signature
	pageIndex int
	handles   []signerHandle
}

// SigningContext is the signer registry and pass driver. Registration
// and execution are mutually exclusive phases: once a pass has begun,
// AddSigner is rejected, and a context drives at most one pass over its
// lifetime.
type SigningContext struct {
	mu    sync.Mutex
	phase phase
	attrs map[generic.Reference]*signatureAttrs

	saveOptions document.SaveOptions
}

// NewSigningContext creates an empty registry in the configuring phase.
func NewSigningContext() *SigningContext {
	return &SigningContext{
		attrs: make(map[generic.Reference]*signatureAttrs),
	}
}

// SetSaveOptions configures how the document is serialized during the
// pass. The options are passed through to the document's save routine.
func (c *SigningContext) SetSaveOptions(opts document.SaveOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saveOptions = opts
}

// AddSigner registers a signer against a signature object and returns
// the identity of the registration. Registering a second signer for
// the same object appends to its list rather than replacing it. Fails
// once a pass has started.
func (c *SigningContext) AddSigner(signature *document.Signature, signer signers.Signer) (SignerID, error) {
	return c.addSigner(signature, signer, false)
}

// addSignerBorrowed admits a handle the caller keeps ownership of. It
// is reserved for this package's own top-level convenience functions,
// which guarantee the handle outlives the pass.
func (c *SigningContext) addSignerBorrowed(signature *document.Signature, signer signers.Signer) (SignerID, error) {
	return c.addSigner(signature, signer, true)
}

func (c *SigningContext) addSigner(signature *document.Signature, signer signers.Signer, borrowed bool) (SignerID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureNotStarted(); err != nil {
		return SignerID{}, err
	}
	if signature == nil {
		return SignerID{}, ErrNilSignature
	}
	if signer == nil {
		return SignerID{}, ErrNilSigner
	}

	ref := signature.Ref()
	attrs, ok := c.attrs[ref]
	if !ok {
		attrs = &signatureAttrs{
			signature: signature,
			pageIndex: signature.PageIndex(),
		}
		c.attrs[ref] = attrs
	}

	id := SignerID{SignatureRef: ref, SignerIndex: len(attrs.handles)}
	attrs.handles = append(attrs.handles, signerHandle{signer: signer, borrowed: borrowed})

	logging.Logger().Debug("registered signer",
		"signature", ref.String(),
		"index", id.SignerIndex,
		"subfilter", signer.SignatureSubFilter(),
		"borrowed", borrowed)

	return id, nil
}

// SignerCount returns the number of registered signers across all
// signature objects.
func (c *SigningContext) SignerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, attrs := range c.attrs {
		n += len(attrs.handles)
	}
	return n
}

// ensureNotStarted guards every mutating registration call; callers
// hold c.mu.
func (c *SigningContext) ensureNotStarted() error {
	switch c.phase {
	case phaseConfiguring:
		return nil
	case phaseStarted:
		return ErrAlreadyStarted
	default:
		return ErrContextConsumed
	}
}
