package signing

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/CrackerCat/podofo/logging"
	"github.com/CrackerCat/podofo/pdf/device"
	"github.com/CrackerCat/podofo/pdf/document"
	"github.com/CrackerCat/podofo/pdf/generic"
	"github.com/CrackerCat/podofo/sign/signers"
)

// digestChunkSize is the read buffer used while feeding file spans into
// signer digests.
const digestChunkSize = 4096

// signatureCtx is the transient per-signer working state of one pass,
// created at prepare time and consumed at finalize time. Signers
// stacked on the same signature object share its placeholders.
type signatureCtx struct {
	signer    signers.Signer
	signature *document.Signature
	contents  *generic.ContentsPlaceholder
	byteRange *generic.ByteRangePlaceholder
}

// prepareSignatureContexts reserves, for every signature object with
// registered signers, a /Contents literal wide enough for the largest
// signer estimate and a fixed-width /ByteRange array. Reservation must
// happen before serialization; resizing either literal afterwards would
// shift every subsequent byte in the file.
func (c *SigningContext) prepareSignatureContexts(doc *document.Document) (map[SignerID]*signatureCtx, error) {
	refs := make([]generic.Reference, 0, len(c.attrs))
	for ref := range c.attrs {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ObjectNumber != refs[j].ObjectNumber {
			return refs[i].ObjectNumber < refs[j].ObjectNumber
		}
		return refs[i].GenerationNumber < refs[j].GenerationNumber
	})

	contexts := make(map[SignerID]*signatureCtx)
	for _, ref := range refs {
		attrs := c.attrs[ref]

		if _, err := doc.Signature(ref); err != nil {
			return nil, fmt.Errorf("%w: signature %s: %v", ErrConfiguration, ref, err)
		}

		reserve := 0
		for _, h := range attrs.handles {
			if est := h.signer.EstimateSignatureSize(); est > reserve {
				reserve = est
			}
		}
		if reserve <= 0 {
			reserve = signers.DefaultSignatureSize
		}

		// The dictionary identifies one signature format, so the first
		// registered signer names the handler.
		first := attrs.handles[0].signer
		contents, byteRange := attrs.signature.PrepareForSigning(
			first.SignatureFilter(), first.SignatureSubFilter(), reserve)

		logging.Logger().Debug("reserved signature placeholder",
			"signature", ref.String(),
			"bytes", reserve,
			"signers", len(attrs.handles))

		for i, h := range attrs.handles {
			contexts[SignerID{SignatureRef: ref, SignerIndex: i}] = &signatureCtx{
				signer:    h.signer,
				signature: attrs.signature,
				contents:  contents,
				byteRange: byteRange,
			}
		}
	}
	return contexts, nil
}

// saveDocForSigning serializes the document through the device,
// resolving placeholder offsets along the way, then patches the real
// /ByteRange values in place while the offsets are fresh. The byte
// range array itself sits inside the hashed region, so it must hold its
// final values before any digesting starts.
func (c *SigningContext) saveDocForSigning(doc *document.Document, dev device.StreamDevice, contexts map[SignerID]*signatureCtx) error {
	if err := doc.Save(dev, c.saveOptions); err != nil {
		return ioError("saving document", err)
	}

	eof, err := dev.Len()
	if err != nil {
		return ioError("measuring saved file", err)
	}

	patched := make(map[*generic.ByteRangePlaceholder]bool)
	for _, id := range sortedIDs(contexts) {
		ctx := contexts[id]
		if patched[ctx.byteRange] {
			continue
		}

		start, end, err := ctx.contents.Offsets()
		if err != nil {
			return fmt.Errorf("%w: signature %s: %v", ErrIO, id.SignatureRef, err)
		}
		if err := ctx.byteRange.FillOffsets(dev, start, end, eof); err != nil {
			return ioError("patching byte range", err)
		}
		patched[ctx.byteRange] = true

		arr := ctx.byteRange.Values()
		logging.Logger().Debug("resolved byte range",
			"signature", id.SignatureRef.String(),
			"span1", arr[1], "span2Start", arr[2], "span2Len", arr[3])
	}
	return nil
}

// appendDataForSigning feeds each signer the two file spans its byte
// range describes, in file order, skipping only that signature's own
// placeholder bytes. With a result sink, each signer's intermediate
// digest state is captured instead of a final signature.
func appendDataForSigning(contexts map[SignerID]*signatureCtx, dev device.StreamDevice, results *SigningResults) error {
	buf := make([]byte, digestChunkSize)
	for _, id := range sortedIDs(contexts) {
		ctx := contexts[id]
		if err := ctx.signer.Reset(); err != nil {
			return fmt.Errorf("%w: resetting signer %s: %v", ErrCapability, id, err)
		}

		arr := ctx.byteRange.Values()
		if err := feedSpan(dev, ctx.signer, arr[0], arr[1], buf); err != nil {
			return err
		}
		if err := feedSpan(dev, ctx.signer, arr[2], arr[3], buf); err != nil {
			return err
		}

		if results != nil {
			intermediate, err := ctx.signer.FetchIntermediateResult()
			if err != nil {
				return fmt.Errorf("%w: signer %s: %v", ErrCapability, id, err)
			}
			results.Intermediate[id] = intermediate
		}
	}
	return nil
}

// feedSpan streams length bytes starting at offset into the signer's
// digest.
func feedSpan(dev device.StreamDevice, signer signers.Signer, offset, length int64, buf []byte) error {
	if length == 0 {
		return nil
	}
	if _, err := dev.Seek(offset, io.SeekStart); err != nil {
		return ioError("seeking digest span", err)
	}

	remaining := length
	for remaining > 0 {
		chunk := buf
		if remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}
		n, err := dev.Read(chunk)
		if n > 0 {
			if appendErr := signer.AppendData(chunk[:n]); appendErr != nil {
				return fmt.Errorf("%w: updating digest: %v", ErrCapability, appendErr)
			}
			remaining -= int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) && remaining == 0 {
				break
			}
			return ioError("reading digest span", err)
		}
		if n == 0 {
			// A device yielding (0, nil) would spin forever; treat it
			// as a truncated span.
			return ioError("reading digest span", io.ErrNoProgress)
		}
	}
	return nil
}

// computeSignatures obtains the final signature bytes for every
// context, synchronously from the signer or from externally processed
// results, validates them against the reserved sizes, and only then
// patches them into the resolved placeholder offsets. A failure on any
// signer leaves the stream untouched.
func computeSignatures(contexts map[SignerID]*signatureCtx, dev device.StreamDevice, processed map[SignerID][]byte) error {
	ids := sortedIDs(contexts)

	patches := make(map[SignerID][]byte, len(ids))
	for _, id := range ids {
		ctx := contexts[id]

		var signature []byte
		if processed == nil {
			var err error
			signature, err = ctx.signer.ComputeSignature()
			if err != nil {
				return fmt.Errorf("%w: signer %s: %v", ErrCapability, id, err)
			}
		} else {
			var ok bool
			signature, ok = processed[id]
			if !ok {
				return fmt.Errorf("%w: missing processed result for %s", ErrProtocol, id)
			}
		}

		if len(signature) > ctx.contents.Capacity() {
			return fmt.Errorf("%w: signature for %s is %d bytes, reserved %d",
				ErrSizing, id, len(signature), ctx.contents.Capacity())
		}
		patches[id] = signature
	}

	for _, id := range ids {
		if _, err := contexts[id].contents.Fill(dev, patches[id]); err != nil {
			return ioError("patching signature contents", err)
		}
		logging.Logger().Debug("patched signature",
			"signer", id.String(),
			"bytes", len(patches[id]))
	}
	return nil
}
