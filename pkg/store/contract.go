package store

import (
	"time"

	"github.com/esdx-scion/esdx/pkg/serialize"
)

// Contract is the broker-signed record of a completed purchase, one to one
// with its purchase order.
type Contract struct {
	ID              int64
	PurchaseOrderID int64
	Timestamp       time.Time
	BrAddress       string
	SignatureBroker []byte
}

// SerializeToBytes returns the canonical contract bytes: the purchase order
// bytes, the buyer's signature in wire form, the timestamp in seconds, and
// the allocated border router address.
func (c *Contract) SerializeToBytes(po *PurchaseOrder, offer *Offer) []byte {
	return serialize.ContractFields(
		po.SerializeToBytes(offer),
		po.Signature,
		c.Timestamp.Unix(),
		c.BrAddress,
	)
}
