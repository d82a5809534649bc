package signing

import (
	"fmt"
	"sort"

	"github.com/CrackerCat/podofo/pdf/generic"
)

// SignerID is the composite, immutable key identifying one registered
// signing operation: the signature object it targets plus the signer's
// index within that object's list. Two signers on the same signature
// object differ only by index, which allows stacking independent
// computations on one logical signature field.
type SignerID struct {
	SignatureRef generic.Reference
	SignerIndex  int
}

// Hash derives a value combining both fields, for callers that need a
// stable numeric identity rather than map-key equality.
func (id SignerID) Hash() uint64 {
	return uint64(id.SignatureRef.ObjectNumber) ^
		uint64(id.SignatureRef.GenerationNumber)<<16 ^
		uint64(id.SignerIndex)<<24
}

// String implements fmt.Stringer.
func (id SignerID) String() string {
	return fmt.Sprintf("%s/%d", id.SignatureRef, id.SignerIndex)
}

// less orders IDs by object number, generation, then signer index.
func (id SignerID) less(other SignerID) bool {
	if id.SignatureRef.ObjectNumber != other.SignatureRef.ObjectNumber {
		return id.SignatureRef.ObjectNumber < other.SignatureRef.ObjectNumber
	}
	if id.SignatureRef.GenerationNumber != other.SignatureRef.GenerationNumber {
		return id.SignatureRef.GenerationNumber < other.SignatureRef.GenerationNumber
	}
	return id.SignerIndex < other.SignerIndex
}

// sortedIDs returns the map's keys in deterministic order.
func sortedIDs[V any](m map[SignerID]V) []SignerID {
	ids := make([]SignerID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].less(ids[j]) })
	return ids
}

// SigningResults carries the intermediate buffer (typically a digest)
// each signer produced during the first phase of a two-phase pass,
// keyed by SignerID.
type SigningResults struct {
	Intermediate map[SignerID][]byte
}

// NewSigningResults returns an empty result set.
func NewSigningResults() *SigningResults {
	return &SigningResults{Intermediate: make(map[SignerID][]byte)}
}

// IDs returns the result keys in deterministic order.
func (r *SigningResults) IDs() []SignerID {
	return sortedIDs(r.Intermediate)
}
