// Package store defines the marketplace entities, their invariants, and the
// persistence interface they live behind.
package store

import (
	"context"
	"time"

	"github.com/esdx-scion/esdx/pkg/crypto"
)

// BwPeriod is the length of one bandwidth profile slot. Offer lifespans are
// always a positive integer multiple of it.
const BwPeriod = 600 * time.Second

// Store is the persistent layer of the marketplace. All multi-row
// invariants are maintained inside a single transaction via WithTx.
type Store interface {
	// WithTx runs f inside a transaction. The transaction commits iff f
	// returns nil; otherwise every write performed by f is rolled back.
	WithTx(ctx context.Context, f func(tx Store) error) error

	CreateAS(ctx context.Context, as *AS, force bool) error
	GetAS(ctx context.Context, iaid string) (*AS, error)

	SetBroker(ctx context.Context, b *Broker) error
	GetBroker(ctx context.Context) (*Broker, error)
	RemoveBroker(ctx context.Context) error
	// BrokerKey and BrokerCert return the singleton broker's parsed key and
	// certificate. Implementations memoize them until the broker changes.
	BrokerKey(ctx context.Context) (*crypto.Key, error)
	BrokerCert(ctx context.Context) (*crypto.Cert, error)

	// InsertOffer persists a validated offer and fills in its id.
	InsertOffer(ctx context.Context, o *Offer) error
	GetOffer(ctx context.Context, id int64) (*Offer, error)
	// SuccessorOf returns the offer that deprecates the given one, or nil
	// if the offer is still available.
	SuccessorOf(ctx context.Context, id int64) (*Offer, error)
	// ListAvailableOffers returns every offer with no successor.
	ListAvailableOffers(ctx context.Context) ([]*Offer, error)
	// DeleteOffer always fails: offers are never deleted, they are needed
	// to verify existing and past contracts.
	DeleteOffer(ctx context.Context, id int64) error

	InsertPurchaseOrder(ctx context.Context, po *PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, id int64) (*PurchaseOrder, error)
	// PurchaseOrderForOffer returns the purchase order consuming the given
	// offer, or nil if the offer was never sold.
	PurchaseOrderForOffer(ctx context.Context, offerID int64) (*PurchaseOrder, error)

	InsertContract(ctx context.Context, c *Contract) error
	GetContract(ctx context.Context, id int64) (*Contract, error)
	// ContractForPurchaseOrder returns the contract minted for the given
	// purchase order, or nil if there is none.
	ContractForPurchaseOrder(ctx context.Context, poID int64) (*Contract, error)
}
