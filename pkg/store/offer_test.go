package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validOffer() *Offer {
	t0 := time.Unix(1000, 0).UTC()
	return &Offer{
		IAID:              "1-ff00:0:110",
		NotBefore:         t0,
		NotAfter:          t0.Add(4 * BwPeriod),
		ReachablePaths:    "*",
		QoSClass:          1,
		PricePerUnit:      0.5,
		BwProfile:         "3,3,2,4",
		BrAddressTemplate: "10.1.1.1:50000-50010",
		BrMTU:             1500,
		BrLinkTo:          LinkToParent,
	}
}

func TestOfferValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validOffer().Validate())

	type testCase struct {
		name   string
		mutate func(o *Offer)
	}
	tests := []testCase{
		{name: "bad ia", mutate: func(o *Offer) { o.IAID = "1-ff00:0" }},
		{name: "notafter before notbefore", mutate: func(o *Offer) { o.NotAfter = o.NotBefore.Add(-BwPeriod) }},
		{name: "notafter equals notbefore", mutate: func(o *Offer) { o.NotAfter = o.NotBefore }},
		{name: "lifespan off the grid", mutate: func(o *Offer) { o.NotAfter = o.NotBefore.Add(BwPeriod + time.Second) }},
		{name: "profile too short", mutate: func(o *Offer) { o.BwProfile = "3,3" }},
		{name: "profile too long", mutate: func(o *Offer) { o.BwProfile = "3,3,2,4,5" }},
		{name: "profile not csv", mutate: func(o *Offer) { o.BwProfile = "3,x,2,4" }},
		{name: "negative slot", mutate: func(o *Offer) { o.BwProfile = "3,-1,2,4" }},
		{name: "bad template", mutate: func(o *Offer) { o.BrAddressTemplate = "10.1.1.1:50000" }},
		{name: "mtu too small", mutate: func(o *Offer) { o.BrMTU = 99 }},
		{name: "mtu too big", mutate: func(o *Offer) { o.BrMTU = 65535 }},
		{name: "bad link", mutate: func(o *Offer) { o.BrLinkTo = "SIBLING" }},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			o := validOffer()
			tc.mutate(o)
			require.Error(t, o.Validate())
		})
	}
}

func TestOfferPurchase(t *testing.T) {
	t.Parallel()

	o := validOffer()
	t0 := o.NotBefore

	// aligned purchase from the start
	residual, ok := o.Purchase("1,1,1,1", t0)
	require.True(t, ok)
	require.Equal(t, "2,2,1,3", residual)

	// shifted by two slots
	residual, ok = o.Purchase("2,4", t0.Add(2*BwPeriod))
	require.True(t, ok)
	require.Equal(t, "3,3,0,0", residual)

	// buying the whole profile empties it but succeeds
	residual, ok = o.Purchase("3,3,2,4", t0)
	require.True(t, ok)
	require.Equal(t, "0,0,0,0", residual)

	// a shorter profile than the remaining slots is fine
	residual, ok = o.Purchase("3", t0.Add(3*BwPeriod))
	require.True(t, ok)
	require.Equal(t, "3,3,2,1", residual)
}

func TestOfferPurchaseRejections(t *testing.T) {
	t.Parallel()

	o := validOffer()
	t0 := o.NotBefore

	type testCase struct {
		name     string
		profile  string
		starting time.Time
	}
	tests := []testCase{
		{name: "starts before the offer", profile: "1", starting: t0.Add(-BwPeriod)},
		{name: "start off the grid", profile: "1", starting: t0.Add(time.Second)},
		{name: "profile too long", profile: "1,1,1,1,1", starting: t0},
		{name: "profile too long after shift", profile: "1,1", starting: t0.Add(3 * BwPeriod)},
		{name: "slot exceeds available", profile: "1,4", starting: t0},
		{name: "negative slot", profile: "1,-1", starting: t0},
		{name: "zero total", profile: "0,0", starting: t0},
		{name: "bad profile", profile: "1,x", starting: t0},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			o := validOffer()
			_, ok := o.Purchase(tc.profile, tc.starting)
			require.False(t, ok)
		})
	}

	// the offer itself is untouched by failed purchases
	require.Equal(t, "3,3,2,4", o.BwProfile)
}

func TestOfferClone(t *testing.T) {
	t.Parallel()

	o := validOffer()
	o.ID = 42
	o.Deprecates = 41
	o.Signature = []byte("sig")

	c := o.Clone()
	require.Zero(t, c.ID)
	require.Zero(t, c.Deprecates)
	require.Equal(t, o.BwProfile, c.BwProfile)
	require.Equal(t, o.Signature, c.Signature)
}

func TestOfferSerializeToBytes(t *testing.T) {
	t.Parallel()

	o := validOffer()
	o.Signature = []byte("c2ln")
	plain := o.SerializeToBytes()
	signed := o.SerializeToBytesWithSignature()
	require.Equal(t, string(plain)+"c2ln", string(signed))
}
