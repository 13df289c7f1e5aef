// Package serialize renders the canonical byte encodings that signatures
// are computed over. The layouts are a wire compatibility contract: any
// change breaks every previously issued signature.
package serialize

import (
	"strconv"
)

// OfferFields returns the canonical encoding of an offer. The signature is
// appended verbatim at the end; when producing bytes to sign, callers pass
// an empty signature. notbefore and notafter are seconds since the UTC
// epoch. Note that is_core is deliberately absent from the canonical form,
// and that the price is rendered in scientific notation with a six digit
// mantissa.
func OfferFields(
	iaid string,
	notbefore, notafter int64,
	reachablePaths string,
	qosClass int32,
	pricePerUnit float64,
	bwProfile string,
	brAddressTemplate string,
	brMTU int32,
	brLinkTo string,
	signature []byte,
) []byte {
	s := "ia:" + iaid +
		strconv.FormatInt(notbefore, 10) +
		strconv.FormatInt(notafter, 10) +
		"reachable:" + reachablePaths +
		strconv.FormatInt(int64(qosClass), 10) +
		strconv.FormatFloat(pricePerUnit, 'e', 6, 64) +
		"profile:" + bwProfile +
		"br_address_template:" + brAddressTemplate +
		"br_mtu:" + strconv.FormatInt(int64(brMTU), 10) +
		"br_link_to:" + brLinkTo +
		"signature:"
	return append([]byte(s), signature...)
}

// PurchaseOrderFields returns the canonical encoding of a purchase order.
// offerBytes are the canonical bytes (with empty signature) of the offer the
// buyer saw; startingOn is in seconds since the UTC epoch.
func PurchaseOrderFields(offerBytes []byte, buyerIAID, bwProfile string, startingOn int64) []byte {
	return pairs(
		"offer:", offerBytes,
		"bw_profile:", []byte(bwProfile),
		"buyer:", []byte(buyerIAID),
		"starting_on:", []byte(strconv.FormatInt(startingOn, 10)),
	)
}

// ContractFields returns the canonical encoding of a contract: the purchase
// order bytes, the buyer signature (in its base64 wire form), the contract
// timestamp in seconds, and the allocated border router address.
func ContractFields(purchaseOrderBytes, buyerSignature []byte, timestamp int64, brAddress string) []byte {
	return pairs(
		"order:", purchaseOrderBytes,
		"signature_buyer:", buyerSignature,
		"timestamp:", []byte(strconv.FormatInt(timestamp, 10)),
		"br_address:", []byte(brAddress),
	)
}

// GetContractRequestFields returns the canonical encoding of a contract
// retrieval request. The signature field is always serialized empty.
func GetContractRequestFields(contractID int64, requesterIAID string) []byte {
	return pairs(
		"contract_id:", []byte(strconv.FormatInt(contractID, 10)),
		"signature:", nil,
		"requester_ia:", []byte(requesterIAID),
	)
}

// pairs concatenates label/value pairs, e.g. pairs("offer:", offerBytes).
func pairs(labeled ...interface{}) []byte {
	ret := make([]byte, 0, 256)
	for i := 0; i < len(labeled); i += 2 {
		ret = append(ret, labeled[i].(string)...)
		if v := labeled[i+1]; v != nil {
			ret = append(ret, v.([]byte)...)
		}
	}
	return ret
}
