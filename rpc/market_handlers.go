package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tokenmart/crypto"
	nativecommon "tokenmart/native/common"
	"tokenmart/native/market"
	"tokenmart/observability"
)

const (
	codeMarketInvalidParams = -32031
	codeMarketNotFound      = -32032
	codeMarketForbidden     = -32033
	codeMarketConflict      = -32034
	codeMarketInternal      = -32035
)

type marketListParams struct {
	Collection string `json:"collection"`
	AssetID    string `json:"assetId"`
	Price      string `json:"price"`
	Caller     string `json:"caller"`
}

type marketAssetParams struct {
	Collection string `json:"collection"`
	AssetID    string `json:"assetId"`
	Caller     string `json:"caller,omitempty"`
}

type marketSetPaymentTokenParams struct {
	Symbol string `json:"symbol"`
	Caller string `json:"caller"`
}

type listingJSON struct {
	Collection string `json:"collection"`
	AssetID    string `json:"assetId"`
	Seller     string `json:"seller"`
	Price      string `json:"price"`
	Active     bool   `json:"active"`
	CreatedAt  int64  `json:"createdAt"`
}

func listingToJSON(l *market.Listing) *listingJSON {
	if l == nil {
		return nil
	}
	return &listingJSON{
		Collection: common.BytesToAddress(l.Collection[:]).Hex(),
		AssetID:    l.TokenID.String(),
		Seller:     crypto.NewAddress(crypto.TMTPrefix, l.Seller[:]).String(),
		Price:      l.Price.String(),
		Active:     l.Active,
		CreatedAt:  l.CreatedAt,
	}
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	defer observeMarket("market_getListing", time.Now(), nil)
	var params marketAssetParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	collection, tokenID, rpcErr := parseAsset(params.Collection, params.AssetID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	listing, ok := s.engine.GetListing(collection, tokenID)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMarketNotFound, "not_found", "no active listing for asset")
		return
	}
	writeResult(w, req.ID, listingToJSON(listing))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var opErr error
	defer observeMarket("market_list", time.Now(), &opErr)
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketListParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	collection, tokenID, rpcErr := parseAsset(params.Collection, params.AssetID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	price, err := parsePositiveBigInt(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	listing, err := s.engine.List(collection, tokenID, price, caller)
	if err != nil {
		opErr = err
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, listingToJSON(listing))
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var opErr error
	defer observeMarket("market_purchase", time.Now(), &opErr)
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketAssetParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	collection, tokenID, rpcErr := parseAsset(params.Collection, params.AssetID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Purchase(collection, tokenID, caller); err != nil {
		opErr = err
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"purchased": true})
}

func (s *Server) handleDelist(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var opErr error
	defer observeMarket("market_delist", time.Now(), &opErr)
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketAssetParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	collection, tokenID, rpcErr := parseAsset(params.Collection, params.AssetID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Delist(collection, tokenID, caller); err != nil {
		opErr = err
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"delisted": true})
}

func (s *Server) handleSetPaymentToken(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var opErr error
	defer observeMarket("market_setPaymentToken", time.Now(), &opErr)
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketSetPaymentTokenParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	token, ok := s.paymentToken(params.Symbol)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", fmt.Sprintf("unknown payment token %q", params.Symbol))
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.SetPaymentToken(token, caller); err != nil {
		opErr = err
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func decodeSingleParam(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeMarketInvalidParams, Message: "invalid_params", Data: "exactly one parameter object expected"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeMarketInvalidParams, Message: "invalid_params", Data: err.Error()}
	}
	return nil
}

func parseAsset(rawCollection, rawAssetID string) ([20]byte, *big.Int, *RPCError) {
	trimmed := strings.TrimSpace(rawCollection)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, nil, &RPCError{Code: codeMarketInvalidParams, Message: "invalid_params", Data: "collection must be a 0x-prefixed hex address"}
	}
	var collection [20]byte
	copy(collection[:], common.HexToAddress(trimmed).Bytes())
	tokenID, ok := new(big.Int).SetString(strings.TrimSpace(rawAssetID), 10)
	if !ok || tokenID.Sign() < 0 {
		return [20]byte{}, nil, &RPCError{Code: codeMarketInvalidParams, Message: "invalid_params", Data: "assetId must be a non-negative decimal string"}
	}
	return collection, tokenID, nil
}

func parseBech32Address(raw string) ([20]byte, error) {
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, err
	}
	var out [20]byte
	copy(out[:], decoded.Bytes())
	return out, nil
}

func parsePositiveBigInt(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("amount must be a decimal string")
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func writeMarketError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, market.ErrNotListed):
		writeError(w, http.StatusNotFound, id, codeMarketNotFound, "not_found", err.Error())
	case errors.Is(err, market.ErrNotOwner),
		errors.Is(err, market.ErrNotSeller),
		errors.Is(err, market.ErrNotOperator),
		errors.Is(err, market.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, id, codeMarketForbidden, "forbidden", err.Error())
	case errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, id, codeMarketInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, market.ErrInsufficientBalance),
		errors.Is(err, market.ErrInsufficientAllowance),
		errors.Is(err, market.ErrProceedsTransfer),
		errors.Is(err, market.ErrFeeTransfer),
		errors.Is(err, market.ErrCustodyTransfer),
		errors.Is(err, market.ErrReentrantCall),
		errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusConflict, id, codeMarketConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeMarketInternal, "internal_error", err.Error())
	}
}

func observeMarket(method string, start time.Time, opErr *error) {
	outcome := "ok"
	if opErr != nil && *opErr != nil {
		outcome = "error"
	}
	observability.MarketMetrics().Observe(method, outcome, time.Since(start))
}
