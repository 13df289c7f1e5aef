// Package controllers holds the HTTP handlers of the broker surface.
package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/esdx-scion/esdx/internal/market"
	"github.com/esdx-scion/esdx/pkg/errors"
)

// MarketController provides the handlers of the marketplace operations.
type MarketController struct {
	market market.Market
}

// NewMarketController creates a new MarketController.
func NewMarketController(m market.Market) *MarketController {
	return &MarketController{market: m}
}

// ListOffers handles GET /offers. Returns every offer currently available
// for purchase.
func (c *MarketController) ListOffers(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	offers, err := c.market.ListOffers(r.Context())
	if err != nil {
		writeError(rw, r, err)
		return
	}
	_ = json.NewEncoder(rw).Encode(offers)
}

// AddOffer handles POST /offers. The body is a seller-signed offer
// specification; the response is the broker-signed offer made available.
func (c *MarketController) AddOffer(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	var specs market.OfferSpecification
	if err := json.NewDecoder(r.Body).Decode(&specs); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(rw).Encode(errors.ServiceError{Message: "invalid offer body"})
		return
	}
	offer, err := c.market.AddOffer(r.Context(), specs)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	_ = json.NewEncoder(rw).Encode(offer)
}

// Purchase handles POST /purchases. The body is a buyer-signed purchase
// request; the response is the minted contract.
func (c *MarketController) Purchase(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	var req market.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(rw).Encode(errors.ServiceError{Message: "invalid purchase body"})
		return
	}
	contract, err := c.market.Purchase(r.Context(), req)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	_ = json.NewEncoder(rw).Encode(contract)
}

// GetContract handles POST /contracts/{id}. The body carries the requester
// identity and its signature over the request.
func (c *MarketController) GetContract(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(rw).Encode(errors.ServiceError{Message: "invalid contract id in path"})
		return
	}
	var req market.GetContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(rw).Encode(errors.ServiceError{Message: "invalid contract request body"})
		return
	}
	req.ContractID = id
	contract, err := c.market.GetContract(r.Context(), req)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	_ = json.NewEncoder(rw).Encode(contract)
}

func writeError(rw http.ResponseWriter, r *http.Request, err error) {
	code := market.CodeOf(err)
	log.Ctx(r.Context()).
		Warn().
		Str("code", string(code)).
		Err(err).
		Msg("call to market failed")
	rw.WriteHeader(statusOf(code))
	_ = json.NewEncoder(rw).Encode(errors.ServiceError{Code: string(code), Message: err.Error()})
}

func statusOf(code market.Code) int {
	switch code {
	case market.CodeInvalidArgument, market.CodeProfileUnsatisfiable:
		return http.StatusBadRequest
	case market.CodeSignatureInvalid:
		return http.StatusUnauthorized
	case market.CodeForbidden:
		return http.StatusForbidden
	case market.CodeNotFound:
		return http.StatusNotFound
	case market.CodeOfferStale, market.CodeConflict, market.CodeResourceExhausted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
