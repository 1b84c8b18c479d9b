package domain

// DestinationKind tags which variant of Destination is populated.
type DestinationKind int

const (
	// DestinationRawAlias means the sender addressed the credit by its 20-byte alias.
	DestinationRawAlias DestinationKind = iota + 1
	// DestinationEntity means the sender addressed the credit by ledger entity id.
	DestinationEntity
)

func (k DestinationKind) String() string {
	switch k {
	case DestinationRawAlias:
		return "raw_alias"
	case DestinationEntity:
		return "entity"
	default:
		return "unknown"
	}
}

// Destination is the pre-resolution destination encoding chosen by the sender.
type Destination struct {
	Kind   DestinationKind
	Alias  Address
	Entity EntityID
}

// RawAlias builds an alias destination.
func RawAlias(a Address) Destination {
	return Destination{Kind: DestinationRawAlias, Alias: a}
}

// EntityDestination builds an entity-id destination.
func EntityDestination(id EntityID) Destination {
	return Destination{Kind: DestinationEntity, Entity: id}
}

func (d Destination) String() string {
	switch d.Kind {
	case DestinationRawAlias:
		return "alias:" + d.Alias.String()
	case DestinationEntity:
		return "entity:" + d.Entity.String()
	default:
		return "unknown"
	}
}

// TransferInstruction is one credit line decoded from an envelope.
type TransferInstruction struct {
	// Index is the entry's position in the envelope's transfer list.
	Index       int
	Destination Destination
	Amount      int64
	// Foreign is set when the instruction came from an embedded foreign payload.
	Foreign bool
}

// EnvelopeLayout records which nesting path the decoder took.
type EnvelopeLayout int

const (
	LayoutSigned EnvelopeLayout = iota + 1
	LayoutLegacyBodyBytes
	LayoutLegacyBody
)

func (l EnvelopeLayout) String() string {
	switch l {
	case LayoutSigned:
		return "signed"
	case LayoutLegacyBodyBytes:
		return "legacy_body_bytes"
	case LayoutLegacyBody:
		return "legacy_body"
	default:
		return "unknown"
	}
}

// DecodedTransaction is the result of envelope decoding.
type DecodedTransaction struct {
	ID        string
	Position  Position
	Kind      TxKind
	Layout    EnvelopeLayout
	Memo      string
	Payer     EntityID
	Transfers []TransferInstruction
}
