package store

import (
	"fmt"
	"time"

	"github.com/esdx-scion/esdx/pkg/conversion"
	"github.com/esdx-scion/esdx/pkg/serialize"
)

// Link types an offer can advertise for the purchased interface.
const (
	LinkToCore   = "CORE"
	LinkToParent = "PARENT"
	LinkToPeer   = "PEER"
)

// Offer is a time-sliced bandwidth advertisement. Offers form a singly
// linked lineage via Deprecates: the root carries the seller's signature,
// every other node carries the broker's. The unique offer of a lineage with
// no successor is the available one.
type Offer struct {
	ID        int64
	IAID      string
	IsCore    bool
	Signature []byte
	NotBefore time.Time
	NotAfter  time.Time
	// newline separated list of comma separated ISD-AS#IF,IF sequences
	ReachablePaths string
	QoSClass       int32
	PricePerUnit   float64
	// bandwidth units per BwPeriod slot, e.g. "3,3,2,4"
	BwProfile         string
	BrAddressTemplate string
	BrMTU             int32
	BrLinkTo          string
	// id of the offer this one supersedes; 0 for the lineage root
	Deprecates int64
}

// Validate checks every offer invariant except signatures.
func (o *Offer) Validate() error {
	if err := conversion.ValidateIA(o.IAID); err != nil {
		return fmt.Errorf("not a valid IA value: %s", err)
	}
	if !o.NotAfter.After(o.NotBefore) {
		return fmt.Errorf("notafter must happen after notbefore")
	}
	lifespan := o.NotAfter.Sub(o.NotBefore)
	if lifespan%BwPeriod != 0 {
		return fmt.Errorf("the life span of the offer must be a multiple of %v", BwPeriod)
	}
	profile, err := conversion.CSVToIntList(o.BwProfile)
	if err != nil {
		return fmt.Errorf("bad bw_profile: %s", err)
	}
	if want := int(lifespan / BwPeriod); len(profile) != want {
		return fmt.Errorf("bw_profile should contain exactly %d values; contains %d", want, len(profile))
	}
	for _, v := range profile {
		if v < 0 {
			return fmt.Errorf("bw_profile contains a negative value: %d", v)
		}
	}
	if _, _, _, err := conversion.IPPortRangeFromStr(o.BrAddressTemplate); err != nil {
		return fmt.Errorf("bad br_address_template: %s", err)
	}
	if o.BrMTU < 100 || o.BrMTU > 65534 {
		return fmt.Errorf("br_mtu %d out of range [100, 65534]", o.BrMTU)
	}
	switch o.BrLinkTo {
	case LinkToCore, LinkToParent, LinkToPeer:
	default:
		return fmt.Errorf("br_link_to must be one of CORE, PARENT, PEER; got %q", o.BrLinkTo)
	}
	return nil
}

// SerializeToBytes returns the canonical offer bytes, with an empty
// signature field. Every signature over the offer covers these bytes.
func (o *Offer) SerializeToBytes() []byte {
	return serialize.OfferFields(
		o.IAID,
		o.NotBefore.Unix(),
		o.NotAfter.Unix(),
		o.ReachablePaths,
		o.QoSClass,
		o.PricePerUnit,
		o.BwProfile,
		o.BrAddressTemplate,
		o.BrMTU,
		o.BrLinkTo,
		nil,
	)
}

// SerializeToBytesWithSignature returns the canonical offer bytes including
// the stored signature. Used for byte-for-byte staleness comparison.
func (o *Offer) SerializeToBytesWithSignature() []byte {
	return serialize.OfferFields(
		o.IAID,
		o.NotBefore.Unix(),
		o.NotAfter.Unix(),
		o.ReachablePaths,
		o.QoSClass,
		o.PricePerUnit,
		o.BwProfile,
		o.BrAddressTemplate,
		o.BrMTU,
		o.BrLinkTo,
		o.Signature,
	)
}

// Purchase computes the residual profile after buying bwProfile starting at
// the given time. It returns false when the purchase is not possible: a
// start before the offer or off the BwPeriod grid, a profile longer than
// what remains, a slot exceeding the available bandwidth, a negative slot,
// or a total purchase of zero.
func (o *Offer) Purchase(bwProfile string, starting time.Time) (string, bool) {
	want, err := conversion.CSVToIntList(bwProfile)
	if err != nil {
		return "", false
	}
	orig, err := conversion.CSVToIntList(o.BwProfile)
	if err != nil {
		return "", false
	}
	offset := starting.Sub(o.NotBefore)
	if offset < 0 || offset%BwPeriod != 0 {
		return "", false
	}
	k := int(offset / BwPeriod)
	if len(want) > len(orig)-k {
		return "", false
	}
	var total int64
	for i, w := range want {
		if w < 0 || w > orig[k+i] {
			return "", false
		}
		orig[k+i] -= w
		total += w
	}
	if total == 0 {
		return "", false
	}
	return conversion.IntListToCSV(orig), true
}

// Clone returns a copy of the offer without identity.
func (o *Offer) Clone() *Offer {
	c := *o
	c.ID = 0
	c.Deprecates = 0
	return &c
}
