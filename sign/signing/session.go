package signing

import (
	"github.com/CrackerCat/podofo/logging"
	"github.com/CrackerCat/podofo/pdf/device"
	"github.com/CrackerCat/podofo/pdf/document"
	"github.com/CrackerCat/podofo/sign/signers"
)

// SigningSession is the token bridging the two halves of a two-phase
// pass. StartSigning returns it, FinishSigning requires it back, which
// makes an unfinished or doubly finished pass visible in the types
// rather than hidden in context state. While a session is open the
// engine holds exclusive logical ownership of the document and device;
// the caller must not mutate or close either until FinishSigning
// returns.
type SigningSession struct {
	ctx      *SigningContext
	doc      *document.Document
	device   device.StreamDevice
	contexts map[SignerID]*signatureCtx
	results  *SigningResults
	finished bool
}

// Results returns the intermediate digest material produced by
// StartSigning, keyed by every registered SignerID.
func (s *SigningSession) Results() *SigningResults {
	return s.results
}

// StartSigning runs the first phase of a two-phase pass: placeholders
// are reserved, the document is saved to the device, byte ranges are
// resolved and patched, and every signer digests its spans. The
// returned session carries each signer's intermediate result so the
// caller can produce the real signatures out of process.
func (c *SigningContext) StartSigning(doc *document.Document, dev device.StreamDevice) (*SigningSession, error) {
	if err := c.beginPass(); err != nil {
		return nil, err
	}

	contexts, err := c.prepareSignatureContexts(doc)
	if err != nil {
		return nil, err
	}
	if err := c.saveDocForSigning(doc, dev, contexts); err != nil {
		return nil, err
	}

	results := NewSigningResults()
	if err := appendDataForSigning(contexts, dev, results); err != nil {
		return nil, err
	}

	logging.Logger().Debug("signing pass started", "signers", len(contexts))

	return &SigningSession{
		ctx:      c,
		doc:      doc,
		device:   dev,
		contexts: contexts,
		results:  results,
	}, nil
}

// FinishSigning runs the second phase: the processed results must hold
// signature bytes for exactly the SignerIDs the session's StartSigning
// returned. On any mismatch the stream is left untouched. On success
// every signature is patched into its reserved region and the session
// is consumed.
func (c *SigningContext) FinishSigning(session *SigningSession, processed map[SignerID][]byte) error {
	if session == nil {
		return ErrNilSession
	}
	if session.ctx != c {
		return ErrForeignSession
	}
	if session.finished {
		return ErrSessionFinished
	}

	if len(processed) != len(session.contexts) {
		return ErrResultSetMismatch
	}
	for id := range session.contexts {
		if _, ok := processed[id]; !ok {
			return ErrResultSetMismatch
		}
	}

	if err := computeSignatures(session.contexts, session.device, processed); err != nil {
		return err
	}

	session.finished = true
	session.doc = nil
	session.device = nil
	session.contexts = nil

	c.mu.Lock()
	c.phase = phaseFinished
	c.mu.Unlock()

	logging.Logger().Debug("signing pass finished", "signers", len(processed))
	return nil
}

// Sign runs a whole pass synchronously: prepare, save, digest, and
// patch within one call. Every registered signer must be able to
// produce its signature in process; signers that only support deferred
// completion make the pass fail with a capability error.
func (c *SigningContext) Sign(doc *document.Document, dev device.StreamDevice) error {
	if err := c.beginPass(); err != nil {
		return err
	}

	contexts, err := c.prepareSignatureContexts(doc)
	if err != nil {
		return err
	}
	if err := c.saveDocForSigning(doc, dev, contexts); err != nil {
		return err
	}
	if err := appendDataForSigning(contexts, dev, nil); err != nil {
		return err
	}
	if err := computeSignatures(contexts, dev, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.phase = phaseFinished
	c.mu.Unlock()

	logging.Logger().Debug("document signed", "signers", len(contexts))
	return nil
}

// beginPass transitions the context from configuring to started.
func (c *SigningContext) beginPass() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureNotStarted(); err != nil {
		return err
	}
	if len(c.attrs) == 0 {
		return ErrNoSigners
	}
	c.phase = phaseStarted
	return nil
}

// SignDocument signs one signature field with one signer in a single
// synchronous pass. The signer handle is borrowed: the caller keeps
// ownership and must keep it alive until this function returns. This is
// the only caller of the registry's borrowed-handle entry point.
func SignDocument(doc *document.Document, dev device.StreamDevice, signature *document.Signature, signer signers.Signer) error {
	ctx := NewSigningContext()
	if _, err := ctx.addSignerBorrowed(signature, signer); err != nil {
		return err
	}
	return ctx.Sign(doc, dev)
}
