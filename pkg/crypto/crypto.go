// Package crypto wraps the RSA-PSS signature scheme used by the marketplace:
// SHA-256 digests, MGF1-SHA256, maximum salt length, and signatures carried
// in standard base64 on the wire and in the store.
package crypto

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidSignature is returned whenever a signature does not verify.
var ErrInvalidSignature = errors.New("invalid signature")

// Key is an RSA private key able to sign marketplace payloads.
type Key rsa.PrivateKey

// Cert is an X.509 certificate holding an RSA public key.
type Cert x509.Certificate

var pssOpts = rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: stdcrypto.SHA256}

// ParseKey parses a PEM encoded private key (PKCS#8 or PKCS#1).
func ParseKey(data []byte) (*Key, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("this does not look like a PEM private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return (*Key)(key), nil
	}
	keyGeneric, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing PEM key: %s", err)
	}
	key, ok := keyGeneric.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA private key but %T", keyGeneric)
	}
	return (*Key)(key), nil
}

// LoadKey reads and parses a PEM encoded private key from a file.
func LoadKey(filename string) (*Key, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("loading key: %s", err)
	}
	return ParseKey(data)
}

// ParseCert parses a PEM encoded X.509 certificate.
func ParseCert(data []byte) (*Cert, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("this does not look like a PEM certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing PEM certificate: %s", err)
	}
	if _, ok := cert.PublicKey.(*rsa.PublicKey); !ok {
		return nil, fmt.Errorf("certificate public key is not RSA but %T", cert.PublicKey)
	}
	return (*Cert)(cert), nil
}

// LoadCert reads and parses a PEM encoded certificate from a file.
func LoadCert(filename string) (*Cert, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("loading certificate: %s", err)
	}
	return ParseCert(data)
}

// Sign signs data and returns the signature encoded in standard base64.
func (k *Key) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, (*rsa.PrivateKey)(k), stdcrypto.SHA256, digest[:], &pssOpts)
	if err != nil {
		return nil, fmt.Errorf("signing: %s", err)
	}
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(sig)))
	base64.StdEncoding.Encode(encoded, sig)
	return encoded, nil
}

// PEM renders the private key in PKCS#8 PEM form.
func (k *Key) PEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey((*rsa.PrivateKey)(k))
	if err != nil {
		return nil, fmt.Errorf("marshaling key: %s", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// VerifySignature checks a base64 encoded RSA-PSS signature over data.
// It returns ErrInvalidSignature if the signature does not match.
func (c *Cert) VerifySignature(data, signature []byte) error {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(signature)))
	n, err := base64.StdEncoding.Decode(raw, signature)
	if err != nil {
		return ErrInvalidSignature
	}
	digest := sha256.Sum256(data)
	pub := c.PublicKey.(*rsa.PublicKey)
	if err := rsa.VerifyPSS(pub, stdcrypto.SHA256, digest[:], raw[:n], &pssOpts); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// CommonName returns the certificate subject's common name.
func (c *Cert) CommonName() string {
	return c.Subject.CommonName
}

// PEM renders the certificate in PEM form.
func (c *Cert) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})
}
