package store

import (
	"fmt"

	"github.com/esdx-scion/esdx/pkg/conversion"
	"github.com/esdx-scion/esdx/pkg/crypto"
)

// AS is a client of the marketplace: an autonomous system identified by its
// ISD-AS pair, holding the certificate its signatures verify against.
type AS struct {
	IAID           string
	CertificatePEM []byte
	Name           string
}

// NewAS builds an AS entity from a certificate, enforcing that the
// certificate's common name equals the IA identifier.
func NewAS(iaid string, cert *crypto.Cert, name string) (*AS, error) {
	if err := conversion.ValidateIA(iaid); err != nil {
		return nil, fmt.Errorf("not a valid IA value: %s", err)
	}
	if cn := cert.CommonName(); cn != iaid {
		return nil, fmt.Errorf("common name doesn't match iaid (%s != %s)", cn, iaid)
	}
	if name == "" {
		name = iaid
	}
	return &AS{
		IAID:           iaid,
		CertificatePEM: cert.PEM(),
		Name:           name,
	}, nil
}

// Certificate parses the stored PEM certificate.
func (a *AS) Certificate() (*crypto.Cert, error) {
	return crypto.ParseCert(a.CertificatePEM)
}
