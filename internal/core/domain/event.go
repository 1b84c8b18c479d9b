package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// eventNamespace scopes deterministic match event ids.
var eventNamespace = uuid.MustParse("6f1c2f2e-2b6c-4d38-9a51-3f8d8f0b7c11")

// Provenance records where in the envelope a match was detected.
type Provenance string

const (
	ProvenanceEnvelopeAlias  Provenance = "envelope_alias"
	ProvenanceEnvelopeEntity Provenance = "envelope_entity"
	ProvenanceForeignPayload Provenance = "foreign_payload"
)

// Resolution records how the matched entity id was obtained.
type Resolution string

const (
	ResolutionBound         Resolution = "bound"
	ResolutionHeuristic     Resolution = "heuristic"
	ResolutionLookup        Resolution = "lookup"
	ResolutionUnresolved    Resolution = "unresolved"
	ResolutionNotApplicable Resolution = "not_applicable"
)

// MatchEvent is emitted once per (transaction, matched transfer) pair.
type MatchEvent struct {
	ID                 uuid.UUID  `json:"id"`
	Address            Address    `json:"address"`
	Label              string     `json:"label,omitempty"`
	Entity             *EntityID  `json:"entity,omitempty"`
	Amount             int64      `json:"amount"`
	TxID               string     `json:"transaction_id"`
	TransferIndex      int        `json:"transfer_index"`
	Position           Position   `json:"consensus_timestamp"`
	Memo               string     `json:"memo,omitempty"`
	SenderUsedRawAlias bool       `json:"sender_used_raw_alias"`
	Provenance         Provenance `json:"provenance"`
	Resolution         Resolution `json:"resolution"`
}

// EventID derives the deterministic id of the event for a transfer line.
func EventID(txID string, transferIndex int) uuid.UUID {
	return uuid.NewSHA1(eventNamespace, []byte(txID+"#"+strconv.Itoa(transferIndex)))
}

// Resolved reports whether the event carries an entity id.
func (e *MatchEvent) Resolved() bool {
	return e.Entity != nil
}
