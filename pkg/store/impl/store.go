// Package impl provides the SQLite-backed Store.
package impl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/esdx-scion/esdx/pkg/database"
	"github.com/esdx-scion/esdx/pkg/store"
)

// queryable is satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLStore implements store.Store on a SQLite database.
type SQLStore struct {
	db    *database.SQLiteDB
	q     queryable
	cache *brokerCache
	log   zerolog.Logger
}

var _ store.Store = (*SQLStore)(nil)

// New returns a SQLStore backed by db.
func New(db *database.SQLiteDB) *SQLStore {
	return &SQLStore{
		db:    db,
		q:     db.DB,
		cache: &brokerCache{},
		log:   logger.With().Str("component", "store").Logger(),
	}
}

// WithTx runs f inside a transaction. Nested calls reuse the outer
// transaction.
func (s *SQLStore) WithTx(ctx context.Context, f func(tx store.Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return f(s)
	}
	txn, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("opening transaction: %s", err)
	}
	scoped := &SQLStore{db: s.db, q: txn, cache: s.cache, log: s.log}
	if err := f(scoped); err != nil {
		if rbErr := txn.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error().Err(rbErr).Msg("rolling back transaction")
		}
		return err
	}
	if err := txn.Commit(); err != nil {
		return mapSqliteError(err)
	}
	return nil
}

// CreateAS persists a new AS. With force, an existing row with the same
// IA is replaced.
func (s *SQLStore) CreateAS(ctx context.Context, as *store.AS, force bool) error {
	stmt := `INSERT INTO ases (iaid, certificate_pem, name) VALUES (?, ?, ?)`
	if force {
		stmt += ` ON CONFLICT (iaid) DO UPDATE SET certificate_pem = excluded.certificate_pem, name = excluded.name`
	}
	if _, err := s.q.ExecContext(ctx, stmt, as.IAID, as.CertificatePEM, as.Name); err != nil {
		return mapSqliteError(err)
	}
	return nil
}

// GetAS fetches an AS by its IA identifier.
func (s *SQLStore) GetAS(ctx context.Context, iaid string) (*store.AS, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT iaid, certificate_pem, name FROM ases WHERE iaid = ?`, iaid)
	as := &store.AS{}
	if err := row.Scan(&as.IAID, &as.CertificatePEM, &as.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("AS %s: %w", iaid, store.ErrNotFound)
		}
		return nil, fmt.Errorf("fetching AS %s: %s", iaid, err)
	}
	return as, nil
}

// SetBroker stores the singleton broker row and invalidates the cached key
// and certificate.
func (s *SQLStore) SetBroker(ctx context.Context, b *store.Broker) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO broker (id, certificate_pem, key_pem) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET certificate_pem = excluded.certificate_pem, key_pem = excluded.key_pem`,
		b.CertificatePEM, b.KeyPEM)
	if err != nil {
		return mapSqliteError(err)
	}
	s.cache.invalidate()
	return nil
}

// GetBroker fetches the singleton broker row.
func (s *SQLStore) GetBroker(ctx context.Context) (*store.Broker, error) {
	var count int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM broker`).Scan(&count); err != nil {
		return nil, fmt.Errorf("counting broker rows: %s", err)
	}
	if count > 1 {
		return nil, store.ErrBrokerInvariant
	}
	row := s.q.QueryRowContext(ctx, `SELECT certificate_pem, key_pem FROM broker WHERE id = 1`)
	b := &store.Broker{}
	if err := row.Scan(&b.CertificatePEM, &b.KeyPEM); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("broker: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("fetching broker: %s", err)
	}
	return b, nil
}

// RemoveBroker deletes the broker row and invalidates the cache.
func (s *SQLStore) RemoveBroker(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM broker`); err != nil {
		return mapSqliteError(err)
	}
	s.cache.invalidate()
	return nil
}

// InsertOffer persists a validated offer and fills in its id.
func (s *SQLStore) InsertOffer(ctx context.Context, o *store.Offer) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid offer: %w", err)
	}
	var deprecates interface{}
	if o.Deprecates != 0 {
		deprecates = o.Deprecates
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO offers (iaid, is_core, signature, notbefore, notafter, reachable_paths,
		                     qos_class, price_per_unit, bw_profile, br_address_template,
		                     br_mtu, br_link_to, deprecates)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.IAID, o.IsCore, o.Signature, o.NotBefore.Unix(), o.NotAfter.Unix(), o.ReachablePaths,
		o.QoSClass, o.PricePerUnit, o.BwProfile, o.BrAddressTemplate,
		o.BrMTU, o.BrLinkTo, deprecates)
	if err != nil {
		return mapSqliteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading offer id: %s", err)
	}
	o.ID = id
	return nil
}

const offerColumns = `id, iaid, is_core, signature, notbefore, notafter, reachable_paths,
	qos_class, price_per_unit, bw_profile, br_address_template, br_mtu, br_link_to,
	COALESCE(deprecates, 0)`

func scanOffer(row interface{ Scan(...interface{}) error }) (*store.Offer, error) {
	o := &store.Offer{}
	var notbefore, notafter int64
	err := row.Scan(&o.ID, &o.IAID, &o.IsCore, &o.Signature, &notbefore, &notafter,
		&o.ReachablePaths, &o.QoSClass, &o.PricePerUnit, &o.BwProfile,
		&o.BrAddressTemplate, &o.BrMTU, &o.BrLinkTo, &o.Deprecates)
	if err != nil {
		return nil, err
	}
	o.NotBefore = time.Unix(notbefore, 0).UTC()
	o.NotAfter = time.Unix(notafter, 0).UTC()
	return o, nil
}

// GetOffer fetches an offer by id.
func (s *SQLStore) GetOffer(ctx context.Context, id int64) (*store.Offer, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = ?`, id)
	o, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("offer %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("fetching offer %d: %s", id, err)
	}
	return o, nil
}

// SuccessorOf returns the offer deprecating the given one, or nil if there
// is none. The back edge is a lookup, not a stored pointer.
func (s *SQLStore) SuccessorOf(ctx context.Context, id int64) (*store.Offer, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE deprecates = ?`, id)
	o, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching successor of offer %d: %s", id, err)
	}
	return o, nil
}

// ListAvailableOffers returns every offer that no other offer deprecates.
func (s *SQLStore) ListAvailableOffers(ctx context.Context) ([]*store.Offer, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+offerColumns+` FROM offers o
		 WHERE NOT EXISTS (SELECT 1 FROM offers d WHERE d.deprecates = o.id)`)
	if err != nil {
		return nil, fmt.Errorf("listing available offers: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing offer rows")
		}
	}()
	var offers []*store.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning offer: %s", err)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating offers: %s", err)
	}
	return offers, nil
}

// DeleteOffer always fails. Offers are never deleted: past contracts must
// remain verifiable.
func (s *SQLStore) DeleteOffer(_ context.Context, id int64) error {
	return fmt.Errorf("logic error: not allowed to delete offer %d", id)
}

// InsertPurchaseOrder persists a purchase order and fills in its id.
func (s *SQLStore) InsertPurchaseOrder(ctx context.Context, po *store.PurchaseOrder) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO purchase_orders (offer_id, buyer_iaid, signature, bw_profile, starting_on)
		 VALUES (?, ?, ?, ?, ?)`,
		po.OfferID, po.BuyerIAID, po.Signature, po.BwProfile, po.StartingOn.Unix())
	if err != nil {
		return mapSqliteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading purchase order id: %s", err)
	}
	po.ID = id
	return nil
}

func scanPurchaseOrder(row interface{ Scan(...interface{}) error }) (*store.PurchaseOrder, error) {
	po := &store.PurchaseOrder{}
	var startingOn int64
	err := row.Scan(&po.ID, &po.OfferID, &po.BuyerIAID, &po.Signature, &po.BwProfile, &startingOn)
	if err != nil {
		return nil, err
	}
	po.StartingOn = time.Unix(startingOn, 0).UTC()
	return po, nil
}

// GetPurchaseOrder fetches a purchase order by id.
func (s *SQLStore) GetPurchaseOrder(ctx context.Context, id int64) (*store.PurchaseOrder, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, offer_id, buyer_iaid, signature, bw_profile, starting_on
		 FROM purchase_orders WHERE id = ?`, id)
	po, err := scanPurchaseOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("purchase order %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("fetching purchase order %d: %s", id, err)
	}
	return po, nil
}

// PurchaseOrderForOffer returns the purchase order consuming the offer, or
// nil if the offer was never sold.
func (s *SQLStore) PurchaseOrderForOffer(ctx context.Context, offerID int64) (*store.PurchaseOrder, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, offer_id, buyer_iaid, signature, bw_profile, starting_on
		 FROM purchase_orders WHERE offer_id = ?`, offerID)
	po, err := scanPurchaseOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching purchase order for offer %d: %s", offerID, err)
	}
	return po, nil
}

// InsertContract persists a contract and fills in its id.
func (s *SQLStore) InsertContract(ctx context.Context, c *store.Contract) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO contracts (purchase_order_id, timestamp, br_address, signature_broker)
		 VALUES (?, ?, ?, ?)`,
		c.PurchaseOrderID, c.Timestamp.Unix(), c.BrAddress, c.SignatureBroker)
	if err != nil {
		return mapSqliteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading contract id: %s", err)
	}
	c.ID = id
	return nil
}

func scanContract(row interface{ Scan(...interface{}) error }) (*store.Contract, error) {
	c := &store.Contract{}
	var ts int64
	err := row.Scan(&c.ID, &c.PurchaseOrderID, &ts, &c.BrAddress, &c.SignatureBroker)
	if err != nil {
		return nil, err
	}
	c.Timestamp = time.Unix(ts, 0).UTC()
	return c, nil
}

// GetContract fetches a contract by id.
func (s *SQLStore) GetContract(ctx context.Context, id int64) (*store.Contract, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, purchase_order_id, timestamp, br_address, signature_broker
		 FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contract %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("fetching contract %d: %s", id, err)
	}
	return c, nil
}

// ContractForPurchaseOrder returns the contract minted for the purchase
// order, or nil if there is none.
func (s *SQLStore) ContractForPurchaseOrder(ctx context.Context, poID int64) (*store.Contract, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, purchase_order_id, timestamp, br_address, signature_broker
		 FROM contracts WHERE purchase_order_id = ?`, poID)
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching contract for purchase order %d: %s", poID, err)
	}
	return c, nil
}

// mapSqliteError translates busy/locked/constraint failures into
// store.ErrConflict so callers can classify them as retryable.
func mapSqliteError(err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrConstraint:
			return fmt.Errorf("%w: %s", store.ErrConflict, err)
		}
	}
	return err
}
