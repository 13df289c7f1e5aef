package impl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/esdx-scion/esdx/internal/market"
	"github.com/esdx-scion/esdx/pkg/crypto"
	"github.com/esdx-scion/esdx/pkg/database"
	"github.com/esdx-scion/esdx/pkg/serialize"
	"github.com/esdx-scion/esdx/pkg/store"
	storeimpl "github.com/esdx-scion/esdx/pkg/store/impl"
	"github.com/esdx-scion/esdx/tests"
)

const (
	sellerIA = "1-ff00:0:110"
	buyerIA  = "1-ff00:0:111"
	otherIA  = "1-ff00:0:112"
)

type fixture struct {
	market     *MarketService
	store      store.Store
	sellerKey  *crypto.Key
	buyerKey   *crypto.Key
	otherKey   *crypto.Key
	brokerCert *crypto.Cert
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(tests.Sqlite3URL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := storeimpl.New(db)

	brokerKey, brokerCert, err := tests.NewIdentity("broker")
	require.NoError(t, err)
	brokerKeyPEM, err := brokerKey.PEM()
	require.NoError(t, err)
	require.NoError(t, s.SetBroker(ctx, &store.Broker{
		CertificatePEM: brokerCert.PEM(),
		KeyPEM:         brokerKeyPEM,
	}))

	f := &fixture{store: s, brokerCert: brokerCert}
	for _, client := range []struct {
		ia  string
		key **crypto.Key
	}{
		{ia: sellerIA, key: &f.sellerKey},
		{ia: buyerIA, key: &f.buyerKey},
		{ia: otherIA, key: &f.otherKey},
	} {
		key, cert, err := tests.NewIdentity(client.ia)
		require.NoError(t, err)
		as, err := store.NewAS(client.ia, cert, "")
		require.NoError(t, err)
		require.NoError(t, s.CreateAS(ctx, as, false))
		*client.key = key
	}

	f.market = NewMarketService(s)
	f.market.now = func() time.Time { return time.Unix(5000, 0).UTC() }
	return f
}

func sellerSpecs() market.OfferSpecification {
	return market.OfferSpecification{
		IAID:              sellerIA,
		Notbefore:         1000,
		Notafter:          1000 + 4*600,
		ReachablePaths:    "*",
		QoSClass:          1,
		PricePerUnit:      0.5,
		BwProfile:         "3,3,2,4",
		BrAddressTemplate: "10.1.1.1:50000-50010",
		BrMTU:             1500,
		BrLinkTo:          store.LinkToParent,
	}
}

// addOffer signs specs with the seller key and registers them.
func (f *fixture) addOffer(t *testing.T, specs market.OfferSpecification) market.Offer {
	t.Helper()
	sig, err := f.sellerKey.Sign(specBytes(&specs))
	require.NoError(t, err)
	specs.Signature = sig
	offer, err := f.market.AddOffer(context.Background(), specs)
	require.NoError(t, err)
	return offer
}

// buy purchases bwProfile of the given offer, signing as the buyer.
func (f *fixture) buy(t *testing.T, offer market.Offer, bwProfile string, startingOn int64) (market.Contract, error) {
	t.Helper()
	poBytes := serialize.PurchaseOrderFields(specBytes(&offer.Specs), buyerIA, bwProfile, startingOn)
	sig, err := f.buyerKey.Sign(poBytes)
	require.NoError(t, err)
	return f.market.Purchase(context.Background(), market.PurchaseRequest{
		Offer:      &offer,
		BuyerIAID:  buyerIA,
		Signature:  sig,
		BwProfile:  bwProfile,
		StartingOn: startingOn,
	})
}

func TestAddOffer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	offer := f.addOffer(t, sellerSpecs())
	require.NotZero(t, offer.ID)
	require.Equal(t, "3,3,2,4", offer.Specs.BwProfile)

	// the returned offer carries a broker signature over its canonical bytes
	require.NoError(t, f.brokerCert.VerifySignature(specBytes(&offer.Specs), offer.Specs.Signature))

	offers, err := f.market.ListOffers(context.Background())
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, offer.ID, offers[0].ID)
}

func TestAddOfferRejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// invalid offer
	specs := sellerSpecs()
	specs.BwProfile = "3,3"
	_, err := f.market.AddOffer(ctx, specs)
	require.Equal(t, market.CodeInvalidArgument, market.CodeOf(err))

	// unknown seller
	specs = sellerSpecs()
	specs.IAID = "1-ff00:0:113"
	_, err = f.market.AddOffer(ctx, specs)
	require.Equal(t, market.CodeNotFound, market.CodeOf(err))

	// signature by the wrong key
	specs = sellerSpecs()
	sig, err := f.buyerKey.Sign(specBytes(&specs))
	require.NoError(t, err)
	specs.Signature = sig
	_, err = f.market.AddOffer(ctx, specs)
	require.Equal(t, market.CodeSignatureInvalid, market.CodeOf(err))
}

func TestPurchase(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	offer := f.addOffer(t, sellerSpecs())

	contract, err := f.buy(t, offer, "1,1", 1000)
	require.NoError(t, err)
	require.NotZero(t, contract.ContractID)
	require.Equal(t, buyerIA, contract.BuyerIAID)
	require.Equal(t, "1,1", contract.BuyerBwProfile)
	require.Equal(t, int64(1000), contract.BuyerStartingOn)
	require.Equal(t, int64(5000), contract.ContractTimestamp)
	require.Equal(t, "10.1.1.1:50000", contract.BrAddress)

	// the broker signature covers the canonical contract bytes
	poBytes := serialize.PurchaseOrderFields(specBytes(&offer.Specs), buyerIA, "1,1", 1000)
	contractBytes := serialize.ContractFields(poBytes, contract.BuyerSignature, 5000, "10.1.1.1:50000")
	require.NoError(t, f.brokerCert.VerifySignature(contractBytes, contract.ContractSignature))

	// the sold offer is superseded by its residual
	offers, err := f.market.ListOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.NotEqual(t, offer.ID, offers[0].ID)
	require.Equal(t, "2,2,2,4", offers[0].Specs.BwProfile)
}

func TestPurchaseSecondBuyerGetsNextPort(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	offer := f.addOffer(t, sellerSpecs())
	_, err := f.buy(t, offer, "1,1", 1000)
	require.NoError(t, err)

	offers, err := f.market.ListOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 1)

	contract, err := f.buy(t, offers[0], "1", 1000+600)
	require.NoError(t, err)
	require.Equal(t, "10.1.1.1:50001", contract.BrAddress)

	offers, err = f.market.ListOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, "2,1,2,4", offers[0].Specs.BwProfile)
}

func TestPurchaseStaleOffer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	offer := f.addOffer(t, sellerSpecs())
	_, err := f.buy(t, offer, "1,1", 1000)
	require.NoError(t, err)

	// the first offer is deprecated now; a buyer still holding it is told so
	_, err = f.buy(t, offer, "1", 1000)
	require.Equal(t, market.CodeOfferStale, market.CodeOf(err))
}

func TestPurchaseConcurrentBuyersOneWinner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	offer := f.addOffer(t, sellerSpecs())

	// two buyers race for the same offer form; the purchase token serializes
	// them, the loser sees the lineage already advanced
	poBytes := serialize.PurchaseOrderFields(specBytes(&offer.Specs), buyerIA, "1", 1000)
	sig, err := f.buyerKey.Sign(poBytes)
	require.NoError(t, err)
	req := market.PurchaseRequest{
		Offer:      &offer,
		BuyerIAID:  buyerIA,
		Signature:  sig,
		BwProfile:  "1",
		StartingOn: 1000,
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.market.Purchase(ctx, req)
		}()
	}
	wg.Wait()

	var won, stale int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case market.CodeOf(err) == market.CodeOfferStale:
			stale++
		default:
			t.Fatalf("unexpected purchase error: %v", err)
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, 1, stale)

	// only the winner's deduction shows in the listed residual
	offers, err := f.market.ListOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, "2,3,2,4", offers[0].Specs.BwProfile)
}

func TestPurchaseByOfferID(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	offer := f.addOffer(t, sellerSpecs())

	// the older request form names the offer by id only; the signature is
	// bound to the currently available offer bytes
	poBytes := serialize.PurchaseOrderFields(specBytes(&offer.Specs), buyerIA, "1", 1000)
	sig, err := f.buyerKey.Sign(poBytes)
	require.NoError(t, err)
	contract, err := f.market.Purchase(ctx, market.PurchaseRequest{
		OfferID:    offer.ID,
		BuyerIAID:  buyerIA,
		Signature:  sig,
		BwProfile:  "1",
		StartingOn: 1000,
	})
	require.NoError(t, err)
	require.Equal(t, "10.1.1.1:50000", contract.BrAddress)
}

func TestPurchaseRejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	offer := f.addOffer(t, sellerSpecs())

	// more bandwidth than the offer has
	_, err := f.buy(t, offer, "4", 1000)
	require.Equal(t, market.CodeProfileUnsatisfiable, market.CodeOf(err))

	// start off the slot grid
	_, err = f.buy(t, offer, "1", 1001)
	require.Equal(t, market.CodeProfileUnsatisfiable, market.CodeOf(err))

	// signature by the wrong key
	poBytes := serialize.PurchaseOrderFields(specBytes(&offer.Specs), buyerIA, "1", 1000)
	sig, err := f.otherKey.Sign(poBytes)
	require.NoError(t, err)
	_, err = f.market.Purchase(ctx, market.PurchaseRequest{
		Offer:      &offer,
		BuyerIAID:  buyerIA,
		Signature:  sig,
		BwProfile:  "1",
		StartingOn: 1000,
	})
	require.Equal(t, market.CodeSignatureInvalid, market.CodeOf(err))

	// unknown offer
	_, err = f.market.Purchase(ctx, market.PurchaseRequest{
		OfferID:    9999,
		BuyerIAID:  buyerIA,
		Signature:  sig,
		BwProfile:  "1",
		StartingOn: 1000,
	})
	require.Equal(t, market.CodeNotFound, market.CodeOf(err))
}

func TestPurchaseEmptiedOfferStaysListed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	offer := f.addOffer(t, sellerSpecs())
	_, err := f.buy(t, offer, "3,3,2,4", 1000)
	require.NoError(t, err)

	offers, err := f.market.ListOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, "0,0,0,0", offers[0].Specs.BwProfile)

	// and nothing can be bought from it
	_, err = f.buy(t, offers[0], "1", 1000)
	require.Equal(t, market.CodeProfileUnsatisfiable, market.CodeOf(err))
}

func TestPurchaseIPv6Template(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	specs := sellerSpecs()
	specs.BrAddressTemplate = "[fd00::1]:50000-50010"
	offer := f.addOffer(t, specs)

	contract, err := f.buy(t, offer, "1", 1000)
	require.NoError(t, err)
	require.Equal(t, "[fd00::1]:50000", contract.BrAddress)
}

func TestPurchasePortExhaustion(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	specs := sellerSpecs()
	specs.BrAddressTemplate = "10.1.1.1:50000-50001"
	offer := f.addOffer(t, specs)

	_, err := f.buy(t, offer, "1", 1000)
	require.NoError(t, err)
	offers, err := f.market.ListOffers(ctx)
	require.NoError(t, err)
	_, err = f.buy(t, offers[0], "1", 1000)
	require.NoError(t, err)

	offers, err = f.market.ListOffers(ctx)
	require.NoError(t, err)
	_, err = f.buy(t, offers[0], "1", 1000)
	require.Equal(t, market.CodeResourceExhausted, market.CodeOf(err))
}

func TestGetContract(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	offer := f.addOffer(t, sellerSpecs())
	contract, err := f.buy(t, offer, "1,1", 1000)
	require.NoError(t, err)

	request := func(t *testing.T, ia string, key *crypto.Key, id int64) (market.Contract, error) {
		t.Helper()
		sig, err := key.Sign(serialize.GetContractRequestFields(id, ia))
		require.NoError(t, err)
		return f.market.GetContract(ctx, market.GetContractRequest{
			ContractID:         id,
			RequesterIAID:      ia,
			RequesterSignature: sig,
		})
	}

	// the buyer and the seller can fetch it
	got, err := request(t, buyerIA, f.buyerKey, contract.ContractID)
	require.NoError(t, err)
	require.Equal(t, contract, got)

	_, err = request(t, sellerIA, f.sellerKey, contract.ContractID)
	require.NoError(t, err)

	// any other AS cannot
	_, err = request(t, otherIA, f.otherKey, contract.ContractID)
	require.Equal(t, market.CodeForbidden, market.CodeOf(err))

	// a bad signature is rejected before anything is looked up
	sig, err := f.buyerKey.Sign([]byte("unrelated"))
	require.NoError(t, err)
	_, err = f.market.GetContract(ctx, market.GetContractRequest{
		ContractID:         contract.ContractID,
		RequesterIAID:      buyerIA,
		RequesterSignature: sig,
	})
	require.Equal(t, market.CodeSignatureInvalid, market.CodeOf(err))

	_, err = request(t, buyerIA, f.buyerKey, contract.ContractID+100)
	require.Equal(t, market.CodeNotFound, market.CodeOf(err))
}
