// Package matcher turns decoded transfers into match events for watched
// addresses.
package matcher

import (
	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// Watchlist is the read side of the watched address set.
type Watchlist interface {
	Contains(addr domain.Address) bool
	Label(addr domain.Address) string
}

// Bindings is the read side of the identity reconciler.
type Bindings interface {
	Lookup(addr domain.Address) (domain.EntityID, bool)
	ReverseLookup(id domain.EntityID) (domain.Address, bool)
}

// Match returns one event per credit whose destination is watched, in
// transfer order. It only reads the bindings; raw alias credits to unbound
// addresses come back with ResolutionUnresolved for a later resolution step.
// An entity credit matches only if the entity is already bound to a watched
// address.
func Match(tx *domain.DecodedTransaction, watchlist Watchlist, bindings Bindings) []domain.MatchEvent {
	var events []domain.MatchEvent
	for _, ins := range tx.Transfers {
		if ins.Amount <= 0 {
			continue
		}

		ev := domain.MatchEvent{
			ID:            domain.EventID(tx.ID, ins.Index),
			Amount:        ins.Amount,
			TxID:          tx.ID,
			TransferIndex: ins.Index,
			Position:      tx.Position,
			Memo:          tx.Memo,
		}

		switch ins.Destination.Kind {
		case domain.DestinationRawAlias:
			addr := ins.Destination.Alias
			if !watchlist.Contains(addr) {
				continue
			}
			ev.Address = addr
			ev.SenderUsedRawAlias = true
			ev.Provenance = provenance(ins, domain.ProvenanceEnvelopeAlias)
			if id, ok := bindings.Lookup(addr); ok {
				ev.Entity = &id
				ev.Resolution = domain.ResolutionBound
			} else {
				ev.Resolution = domain.ResolutionUnresolved
			}

		case domain.DestinationEntity:
			id := ins.Destination.Entity
			addr, ok := bindings.ReverseLookup(id)
			if !ok || !watchlist.Contains(addr) {
				continue
			}
			ev.Address = addr
			ev.Entity = &id
			ev.Provenance = provenance(ins, domain.ProvenanceEnvelopeEntity)
			ev.Resolution = domain.ResolutionNotApplicable

		default:
			continue
		}

		ev.Label = watchlist.Label(ev.Address)
		events = append(events, ev)
	}
	return events
}

func provenance(ins domain.TransferInstruction, envelope domain.Provenance) domain.Provenance {
	if ins.Foreign {
		return domain.ProvenanceForeignPayload
	}
	return envelope
}
