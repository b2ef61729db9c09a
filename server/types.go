package server

import (
	"github.com/sig-0/dutyrates/storage/types"
	"github.com/sig-0/dutyrates/volatility"
)

type ResolveRequest struct {
	Queries []types.RateQuery `json:"queries"`
}

type BatchItem struct {
	Record *types.RateRecord `json:"record,omitempty"`
	Error  string            `json:"error,omitempty"`
}

type ResolveResponse struct {
	Results []BatchItem `json:"results"`
}

type TierResponse struct {
	Code        string          `json:"code"`
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Tier        volatility.Tier `json:"tier"`

	// CacheTTLSeconds mirrors tier.cache_ttl (nanoseconds) for clients
	CacheTTLSeconds int64 `json:"cache_ttl_seconds"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
