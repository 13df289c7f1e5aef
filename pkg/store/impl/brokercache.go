package impl

import (
	"context"
	"fmt"
	"sync"

	"github.com/esdx-scion/esdx/pkg/crypto"
)

// brokerCache memoizes the parsed broker key and certificate. It is shared
// by every transactional copy of the store and reset on broker mutation.
type brokerCache struct {
	mu   sync.Mutex
	key  *crypto.Key
	cert *crypto.Cert
}

func (c *brokerCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key = nil
	c.cert = nil
}

// BrokerKey returns the broker's private key, loading it lazily.
func (s *SQLStore) BrokerKey(ctx context.Context) (*crypto.Key, error) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	if s.cache.key != nil {
		return s.cache.key, nil
	}
	b, err := s.GetBroker(ctx)
	if err != nil {
		return nil, err
	}
	key, err := crypto.ParseKey(b.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing broker key: %s", err)
	}
	s.cache.key = key
	return key, nil
}

// BrokerCert returns the broker's certificate, loading it lazily.
func (s *SQLStore) BrokerCert(ctx context.Context) (*crypto.Cert, error) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	if s.cache.cert != nil {
		return s.cache.cert, nil
	}
	b, err := s.GetBroker(ctx)
	if err != nil {
		return nil, err
	}
	cert, err := crypto.ParseCert(b.CertificatePEM)
	if err != nil {
		return nil, fmt.Errorf("parsing broker certificate: %s", err)
	}
	s.cache.cert = cert
	return cert, nil
}
