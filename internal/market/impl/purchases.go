package impl

import (
	"bytes"
	"context"
	"time"

	"github.com/esdx-scion/esdx/internal/market"
	"github.com/esdx-scion/esdx/pkg/conversion"
	"github.com/esdx-scion/esdx/pkg/serialize"
	"github.com/esdx-scion/esdx/pkg/store"
)

// Purchase atomically sells a sub-profile of an offer. The whole step set
// runs under the process-wide purchase token and a store transaction, so
// exactly one purchase order can attach to any given offer and the lineage
// grows linearly.
func (m *MarketService) Purchase(ctx context.Context, req market.PurchaseRequest) (market.Contract, error) {
	select {
	case <-m.chPurchase:
	case <-ctx.Done():
		return market.Contract{}, market.Errorf(market.CodeInternal, "acquiring purchase token: %s", ctx.Err())
	}
	defer func() { m.chPurchase <- struct{}{} }()

	var ret market.Contract
	err := m.store.WithTx(ctx, func(tx store.Store) error {
		contract, err := m.purchase(ctx, tx, req)
		if err != nil {
			return err
		}
		ret = *contract
		return nil
	})
	if err != nil {
		return market.Contract{}, err
	}
	m.log.Info().
		Int64("contractId", ret.ContractID).
		Str("buyer", ret.BuyerIAID).
		Str("brAddress", ret.BrAddress).
		Msg("purchase completed")
	return ret, nil
}

func (m *MarketService) purchase(ctx context.Context, tx store.Store, req market.PurchaseRequest) (*market.Contract, error) {
	requestedID := req.OfferID
	if req.Offer != nil {
		requestedID = req.Offer.ID
	}

	// the available offer is the head of the lineage the buyer points at
	available, err := availableInLineage(ctx, tx, requestedID)
	if err != nil {
		return nil, err
	}

	// The buyer's signature is bound to the offer bytes the buyer saw; the
	// state machine operates on the available offer. With the newer request
	// form the two must match byte for byte.
	requestedBytes := available.SerializeToBytes()
	if req.Offer != nil {
		if !bytes.Equal(specBytesWithSignature(&req.Offer.Specs), available.SerializeToBytesWithSignature()) {
			return nil, market.Errorf(market.CodeOfferStale,
				"offer %d is not the currently available form of its lineage", req.Offer.ID)
		}
		requestedBytes = specBytes(&req.Offer.Specs)
	}

	startingOn := time.Unix(req.StartingOn, 0).UTC()
	residual, ok := available.Purchase(req.BwProfile, startingOn)
	if !ok {
		return nil, market.Errorf(market.CodeProfileUnsatisfiable,
			"offer does not contain the requested BW profile")
	}

	buyer, err := tx.GetAS(ctx, req.BuyerIAID)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	buyerCert, err := buyer.Certificate()
	if err != nil {
		return nil, market.Errorf(market.CodeInternal, "buyer certificate: %s", err)
	}
	poBytes := serialize.PurchaseOrderFields(requestedBytes, req.BuyerIAID, req.BwProfile, req.StartingOn)
	if err := buyerCert.VerifySignature(poBytes, req.Signature); err != nil {
		return nil, market.Errorf(market.CodeSignatureInvalid, "invalid purchase order signature: %s", err)
	}

	brAddress, err := findAvailableBrAddress(ctx, tx, available)
	if err != nil {
		return nil, err
	}

	po := &store.PurchaseOrder{
		OfferID:    available.ID,
		BuyerIAID:  req.BuyerIAID,
		Signature:  req.Signature,
		BwProfile:  req.BwProfile,
		StartingOn: startingOn,
	}
	if err := tx.InsertPurchaseOrder(ctx, po); err != nil {
		return nil, classifyStoreErr(err)
	}

	contract := &store.Contract{
		PurchaseOrderID: po.ID,
		Timestamp:       m.now().UTC().Truncate(time.Second),
		BrAddress:       brAddress,
	}
	key, err := tx.BrokerKey(ctx)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	contractBytes := serialize.ContractFields(poBytes, po.Signature, contract.Timestamp.Unix(), brAddress)
	contract.SignatureBroker, err = key.Sign(contractBytes)
	if err != nil {
		return nil, market.Errorf(market.CodeInternal, "signing contract: %s", err)
	}
	if err := tx.InsertContract(ctx, contract); err != nil {
		return nil, classifyStoreErr(err)
	}

	// derive the residual offer that supersedes the sold one
	successor := available.Clone()
	successor.BwProfile = residual
	successor.Deprecates = available.ID
	if err := m.signWithBroker(ctx, tx, successor); err != nil {
		return nil, err
	}
	if err := tx.InsertOffer(ctx, successor); err != nil {
		return nil, classifyStoreErr(err)
	}

	projection := contractProjection(contract, po, available)
	return &projection, nil
}

// findAvailableBrAddress allocates the next border router address from the
// offer's template by walking the lineage back to the most recently sold
// predecessor.
func findAvailableBrAddress(ctx context.Context, tx store.Store, offer *store.Offer) (string, error) {
	ip, minPort, maxPort, err := conversion.IPPortRangeFromStr(offer.BrAddressTemplate)
	if err != nil {
		return "", market.Errorf(market.CodeInvalidArgument, "bad br_address_template: %s", err)
	}
	port := minPort
	for id := offer.Deprecates; id != 0; {
		pred, err := tx.GetOffer(ctx, id)
		if err != nil {
			return "", classifyStoreErr(err)
		}
		po, err := tx.PurchaseOrderForOffer(ctx, pred.ID)
		if err != nil {
			return "", classifyStoreErr(err)
		}
		if po != nil {
			contract, err := tx.ContractForPurchaseOrder(ctx, po.ID)
			if err != nil {
				return "", classifyStoreErr(err)
			}
			if contract != nil {
				_, used, err := conversion.IPPortFromStr(contract.BrAddress)
				if err != nil {
					return "", market.Errorf(market.CodeInternal,
						"bad br_address in contract %d: %s", contract.ID, err)
				}
				port = used + 1
				break
			}
		}
		id = pred.Deprecates
	}
	if port > maxPort {
		return "", market.Errorf(market.CodeResourceExhausted,
			"cannot find a free port with template %s", offer.BrAddressTemplate)
	}
	return conversion.IPPortToStr(ip, port), nil
}
