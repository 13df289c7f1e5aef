package crypto_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/esdx-scion/esdx/pkg/crypto"
	"github.com/esdx-scion/esdx/tests"
)

func TestSignVerify(t *testing.T) {
	t.Parallel()

	key, cert, err := tests.NewIdentity("1-ff00:0:110")
	require.NoError(t, err)

	data := []byte("ia:1-ff00:0:110")
	sig, err := key.Sign(data)
	require.NoError(t, err)

	// signatures travel base64 encoded
	_, err = base64.StdEncoding.DecodeString(string(sig))
	require.NoError(t, err)

	require.NoError(t, cert.VerifySignature(data, sig))
	require.Equal(t, "1-ff00:0:110", cert.CommonName())
}

func TestVerifyTampered(t *testing.T) {
	t.Parallel()

	key, cert, err := tests.NewIdentity("1-ff00:0:110")
	require.NoError(t, err)

	data := []byte("ia:1-ff00:0:110")
	sig, err := key.Sign(data)
	require.NoError(t, err)

	err = cert.VerifySignature([]byte("ia:1-ff00:0:111"), sig)
	require.ErrorIs(t, err, crypto.ErrInvalidSignature)

	err = cert.VerifySignature(data, []byte("not base64!!"))
	require.Error(t, err)
}

func TestVerifyWrongKey(t *testing.T) {
	t.Parallel()

	key, _, err := tests.NewIdentity("1-ff00:0:110")
	require.NoError(t, err)
	_, otherCert, err := tests.NewIdentity("1-ff00:0:110")
	require.NoError(t, err)

	data := []byte("some data")
	sig, err := key.Sign(data)
	require.NoError(t, err)

	err = otherCert.VerifySignature(data, sig)
	require.ErrorIs(t, err, crypto.ErrInvalidSignature)
}

func TestPEMRoundtrip(t *testing.T) {
	t.Parallel()

	key, cert, err := tests.NewIdentity("1-ff00:0:112")
	require.NoError(t, err)

	keyPEM, err := key.PEM()
	require.NoError(t, err)
	key2, err := crypto.ParseKey(keyPEM)
	require.NoError(t, err)

	cert2, err := crypto.ParseCert(cert.PEM())
	require.NoError(t, err)

	sig, err := key2.Sign([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, cert2.VerifySignature([]byte("data"), sig))
}
