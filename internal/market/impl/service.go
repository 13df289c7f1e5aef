// Package impl implements the Market interface on top of the store.
package impl

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/esdx-scion/esdx/internal/market"
	"github.com/esdx-scion/esdx/pkg/serialize"
	"github.com/esdx-scion/esdx/pkg/store"
)

// MarketService is the offer/contract state engine.
type MarketService struct {
	store store.Store
	// chPurchase serializes purchases process-wide: port allocation and
	// lineage extension do not commute.
	chPurchase chan struct{}
	now        func() time.Time
	log        zerolog.Logger
}

var _ market.Market = (*MarketService)(nil)

// NewMarketService creates the state engine on the given store.
func NewMarketService(s store.Store) *MarketService {
	m := &MarketService{
		store:      s,
		chPurchase: make(chan struct{}, 1),
		now:        time.Now,
		log:        logger.With().Str("component", "market").Logger(),
	}
	m.chPurchase <- struct{}{}
	return m
}

// ListOffers returns every available offer. Offers whose residual profile is
// all zeros remain listed until superseded.
func (m *MarketService) ListOffers(ctx context.Context) ([]market.Offer, error) {
	offers, err := m.store.ListAvailableOffers(ctx)
	if err != nil {
		return nil, market.Errorf(market.CodeInternal, "listing offers: %s", err)
	}
	ret := make([]market.Offer, 0, len(offers))
	for _, o := range offers {
		ret = append(ret, market.Offer{ID: o.ID, Specs: specFromOffer(o)})
	}
	return ret, nil
}

// AddOffer validates a seller-signed offer, persists the seller-signed root
// of a new lineage, and derives the broker-signed offer that becomes
// available.
func (m *MarketService) AddOffer(ctx context.Context, specs market.OfferSpecification) (market.Offer, error) {
	root := offerFromSpec(specs)
	if err := root.Validate(); err != nil {
		return market.Offer{}, market.Errorf(market.CodeInvalidArgument, "invalid offer: %s", err)
	}

	var available *store.Offer
	err := m.store.WithTx(ctx, func(tx store.Store) error {
		seller, err := tx.GetAS(ctx, root.IAID)
		if err != nil {
			return classifyStoreErr(err)
		}
		cert, err := seller.Certificate()
		if err != nil {
			return market.Errorf(market.CodeInternal, "seller certificate: %s", err)
		}
		if err := cert.VerifySignature(root.SerializeToBytes(), root.Signature); err != nil {
			return market.Errorf(market.CodeSignatureInvalid, "seller signature: %s", err)
		}
		if err := tx.InsertOffer(ctx, root); err != nil {
			return classifyStoreErr(err)
		}

		available = root.Clone()
		available.Deprecates = root.ID
		if err := m.signWithBroker(ctx, tx, available); err != nil {
			return err
		}
		if err := tx.InsertOffer(ctx, available); err != nil {
			return classifyStoreErr(err)
		}
		return nil
	})
	if err != nil {
		return market.Offer{}, err
	}
	m.log.Info().Int64("offerId", available.ID).Str("seller", available.IAID).Msg("offer added")
	return market.Offer{ID: available.ID, Specs: specFromOffer(available)}, nil
}

// GetContract returns the contract projection to its seller or buyer.
func (m *MarketService) GetContract(ctx context.Context, req market.GetContractRequest) (market.Contract, error) {
	var ret market.Contract
	err := m.store.WithTx(ctx, func(tx store.Store) error {
		requester, err := tx.GetAS(ctx, req.RequesterIAID)
		if err != nil {
			return classifyStoreErr(err)
		}
		cert, err := requester.Certificate()
		if err != nil {
			return market.Errorf(market.CodeInternal, "requester certificate: %s", err)
		}
		data := serialize.GetContractRequestFields(req.ContractID, req.RequesterIAID)
		if err := cert.VerifySignature(data, req.RequesterSignature); err != nil {
			return market.Errorf(market.CodeSignatureInvalid, "requester signature: %s", err)
		}

		contract, err := tx.GetContract(ctx, req.ContractID)
		if err != nil {
			return classifyStoreErr(err)
		}
		po, err := tx.GetPurchaseOrder(ctx, contract.PurchaseOrderID)
		if err != nil {
			return classifyStoreErr(err)
		}
		offer, err := tx.GetOffer(ctx, po.OfferID)
		if err != nil {
			return classifyStoreErr(err)
		}
		if req.RequesterIAID != offer.IAID && req.RequesterIAID != po.BuyerIAID {
			return market.Errorf(market.CodeForbidden,
				"IA %s cannot obtain this contract", req.RequesterIAID)
		}
		ret = contractProjection(contract, po, offer)
		return nil
	})
	if err != nil {
		return market.Contract{}, err
	}
	return ret, nil
}

// signWithBroker replaces the offer signature with a broker-issued one over
// the canonical offer bytes.
func (m *MarketService) signWithBroker(ctx context.Context, tx store.Store, o *store.Offer) error {
	key, err := tx.BrokerKey(ctx)
	if err != nil {
		return classifyStoreErr(err)
	}
	sig, err := key.Sign(o.SerializeToBytes())
	if err != nil {
		return market.Errorf(market.CodeInternal, "broker signing: %s", err)
	}
	o.Signature = sig
	return nil
}

// availableInLineage walks the successor chain starting at id and returns
// the unique offer with no successor.
func availableInLineage(ctx context.Context, tx store.Store, id int64) (*store.Offer, error) {
	cur, err := tx.GetOffer(ctx, id)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	for {
		next, err := tx.SuccessorOf(ctx, cur.ID)
		if err != nil {
			return nil, classifyStoreErr(err)
		}
		if next == nil {
			return cur, nil
		}
		cur = next
	}
}

func classifyStoreErr(err error) error {
	var e *market.Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return market.Errorf(market.CodeNotFound, "%s", err)
	case errors.Is(err, store.ErrConflict):
		return market.Errorf(market.CodeConflict, "%s", err)
	default:
		return market.Errorf(market.CodeInternal, "%s", err)
	}
}

func specFromOffer(o *store.Offer) market.OfferSpecification {
	return market.OfferSpecification{
		IAID:              o.IAID,
		IsCore:            o.IsCore,
		Notbefore:         o.NotBefore.Unix(),
		Notafter:          o.NotAfter.Unix(),
		ReachablePaths:    o.ReachablePaths,
		QoSClass:          o.QoSClass,
		PricePerUnit:      o.PricePerUnit,
		BwProfile:         o.BwProfile,
		BrAddressTemplate: o.BrAddressTemplate,
		BrMTU:             o.BrMTU,
		BrLinkTo:          o.BrLinkTo,
		Signature:         o.Signature,
	}
}

func offerFromSpec(s market.OfferSpecification) *store.Offer {
	return &store.Offer{
		IAID:              s.IAID,
		IsCore:            s.IsCore,
		Signature:         s.Signature,
		NotBefore:         time.Unix(s.Notbefore, 0).UTC(),
		NotAfter:          time.Unix(s.Notafter, 0).UTC(),
		ReachablePaths:    s.ReachablePaths,
		QoSClass:          s.QoSClass,
		PricePerUnit:      s.PricePerUnit,
		BwProfile:         s.BwProfile,
		BrAddressTemplate: s.BrAddressTemplate,
		BrMTU:             s.BrMTU,
		BrLinkTo:          s.BrLinkTo,
	}
}

func contractProjection(c *store.Contract, po *store.PurchaseOrder, offer *store.Offer) market.Contract {
	return market.Contract{
		ContractID:        c.ID,
		ContractTimestamp: c.Timestamp.Unix(),
		ContractSignature: c.SignatureBroker,
		Offer:             specFromOffer(offer),
		BuyerIAID:         po.BuyerIAID,
		BuyerStartingOn:   po.StartingOn.Unix(),
		BuyerBwProfile:    po.BwProfile,
		BuyerSignature:    po.Signature,
		BrAddress:         c.BrAddress,
	}
}

// specBytesWithSignature renders the canonical bytes of a wire offer
// specification including its signature field.
func specBytesWithSignature(s *market.OfferSpecification) []byte {
	return serialize.OfferFields(
		s.IAID, s.Notbefore, s.Notafter, s.ReachablePaths, s.QoSClass,
		s.PricePerUnit, s.BwProfile, s.BrAddressTemplate, s.BrMTU, s.BrLinkTo,
		s.Signature,
	)
}

// specBytes renders the canonical bytes of a wire offer specification with
// an empty signature field.
func specBytes(s *market.OfferSpecification) []byte {
	stripped := *s
	stripped.Signature = nil
	return specBytesWithSignature(&stripped)
}
