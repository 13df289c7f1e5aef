package serialize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOfferFields(t *testing.T) {
	t.Parallel()

	got := OfferFields(
		"1-ff00:0:110", 1000, 2200, "*", 5, 10.5,
		"3,3", "10.1.1.1:50000-50010", 1500, "PARENT", nil,
	)
	want := "ia:1-ff00:0:11010002200reachable:*51.050000e+01" +
		"profile:3,3br_address_template:10.1.1.1:50000-50010" +
		"br_mtu:1500br_link_to:PARENTsignature:"
	require.Equal(t, want, string(got))

	// the signature field is appended verbatim
	got = OfferFields(
		"1-ff00:0:110", 1000, 2200, "*", 5, 10.5,
		"3,3", "10.1.1.1:50000-50010", 1500, "PARENT", []byte("c2ln"),
	)
	require.Equal(t, want+"c2ln", string(got))
}

func TestPurchaseOrderFields(t *testing.T) {
	t.Parallel()

	got := PurchaseOrderFields([]byte("OFFERBYTES"), "1-ff00:0:111", "1,1", 1000)
	want := "offer:OFFERBYTESbw_profile:1,1buyer:1-ff00:0:111starting_on:1000"
	require.Equal(t, want, string(got))
}

func TestContractFields(t *testing.T) {
	t.Parallel()

	got := ContractFields([]byte("POBYTES"), []byte("BUYERSIG"), 1234, "10.1.1.1:50000")
	want := "order:POBYTESsignature_buyer:BUYERSIGtimestamp:1234br_address:10.1.1.1:50000"
	require.Equal(t, want, string(got))
}

func TestGetContractRequestFields(t *testing.T) {
	t.Parallel()

	got := GetContractRequestFields(7, "1-ff00:0:111")
	want := "contract_id:7signature:requester_ia:1-ff00:0:111"
	require.Equal(t, want, string(got))
}
