package store

import (
	"time"

	"github.com/esdx-scion/esdx/pkg/serialize"
)

// PurchaseOrder is a buyer-signed intent that consumed a specific offer.
// Exactly one purchase order can attach to any given offer.
type PurchaseOrder struct {
	ID         int64
	OfferID    int64
	BuyerIAID  string
	Signature  []byte
	BwProfile  string
	StartingOn time.Time
}

// SerializeToBytes returns the canonical purchase order bytes. offer must be
// the offer the buyer's signature is bound to (the requested one).
func (po *PurchaseOrder) SerializeToBytes(offer *Offer) []byte {
	return serialize.PurchaseOrderFields(
		offer.SerializeToBytes(),
		po.BuyerIAID,
		po.BwProfile,
		po.StartingOn.Unix(),
	)
}
