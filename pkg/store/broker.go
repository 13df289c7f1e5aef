package store

// Broker is the marketplace authority. There is at most one broker row; it
// signs every derived offer and every contract.
type Broker struct {
	CertificatePEM []byte
	KeyPEM         []byte
}
