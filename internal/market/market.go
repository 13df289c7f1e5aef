// Package market defines the marketplace service interface and the
// wire-shaped messages of the MarketController surface.
package market

import (
	"context"
)

// OfferSpecification carries the full description of an offer as it travels
// on the wire. Timestamps are seconds since the UTC epoch. The signature is
// base64 encoded RSA-PSS over the canonical offer bytes.
type OfferSpecification struct {
	IAID              string  `json:"iaid"`
	IsCore            bool    `json:"is_core"`
	Notbefore         int64   `json:"notbefore"`
	Notafter          int64   `json:"notafter"`
	ReachablePaths    string  `json:"reachable_paths"`
	QoSClass          int32   `json:"qos_class"`
	PricePerUnit      float64 `json:"price_per_unit"`
	BwProfile         string  `json:"bw_profile"`
	BrAddressTemplate string  `json:"br_address_template"`
	BrMTU             int32   `json:"br_mtu"`
	BrLinkTo          string  `json:"br_link_to"`
	Signature         []byte  `json:"signature"`
}

// Offer is an offer with its store identity.
type Offer struct {
	ID    int64              `json:"id"`
	Specs OfferSpecification `json:"specs"`
}

// PurchaseRequest asks to buy a sub-profile of an offer. The newer request
// form embeds the full offer message the buyer saw, enabling staleness
// detection; the older form carries only the offer id. Both are tolerated.
type PurchaseRequest struct {
	Offer      *Offer `json:"offer,omitempty"`
	OfferID    int64  `json:"offer_id,omitempty"`
	BuyerIAID  string `json:"buyer_iaid"`
	Signature  []byte `json:"signature"`
	BwProfile  string `json:"bw_profile"`
	StartingOn int64  `json:"starting_on"`
}

// Contract is the full projection of a completed purchase, including the
// offer specification the buyer's signature is bound to.
type Contract struct {
	ContractID        int64              `json:"contract_id"`
	ContractTimestamp int64              `json:"contract_timestamp"`
	ContractSignature []byte             `json:"contract_signature"`
	Offer             OfferSpecification `json:"offer"`
	BuyerIAID         string             `json:"buyer_iaid"`
	BuyerStartingOn   int64              `json:"buyer_starting_on"`
	BuyerBwProfile    string             `json:"buyer_bw_profile"`
	BuyerSignature    []byte             `json:"buyer_signature"`
	BrAddress         string             `json:"br_address"`
}

// GetContractRequest asks for a contract projection. Only the seller and
// the buyer of the contract may retrieve it.
type GetContractRequest struct {
	ContractID         int64  `json:"contract_id"`
	RequesterIAID      string `json:"requester_iaid"`
	RequesterSignature []byte `json:"requester_signature"`
}

// Market defines the marketplace operations.
type Market interface {
	// ListOffers returns every available offer (those with no successor).
	ListOffers(ctx context.Context) ([]Offer, error)
	// AddOffer validates and registers a seller-signed offer, returning the
	// broker-signed offer that becomes available.
	AddOffer(ctx context.Context, specs OfferSpecification) (Offer, error)
	// Purchase atomically buys a sub-profile of an offer and returns the
	// minted contract.
	Purchase(ctx context.Context, req PurchaseRequest) (Contract, error)
	// GetContract returns a contract to its seller or buyer.
	GetContract(ctx context.Context, req GetContractRequest) (Contract, error)
}
