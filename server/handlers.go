package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sig-0/dutyrates/server/config"
	"github.com/sig-0/dutyrates/storage/types"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

var (
	errUnableToResolve = errors.New("unable to resolve rate")
	errInvalidBody     = errors.New("invalid request body")
	errEmptyBatch      = errors.New("no queries provided")
	errBatchTooLarge   = errors.New("too many queries")
)

// Rate resolves a single code on a lane
func (s *Server) Rate(w http.ResponseWriter, r *http.Request) {
	q := queryFromRequest(r)

	record, err := s.engine.Resolve(r.Context(), q)
	if err != nil {
		s.writeEngineError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, record)
}

// ResolveRates resolves a batch of independent queries.
// Per-query failures are reported inline, in input order
func (s *Server) ResolveRates(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest

	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, errEmptyBatch)

		return
	}

	if limit := s.maxBatchSize(); len(req.Queries) > limit {
		writeError(
			w,
			http.StatusBadRequest,
			fmt.Errorf("%w: %d > %d", errBatchTooLarge, len(req.Queries), limit),
		)

		return
	}

	results := s.engine.ResolveBatch(r.Context(), req.Queries)

	resp := &ResolveResponse{
		Results: make([]BatchItem, 0, len(results)),
	}

	for _, result := range results {
		item := BatchItem{
			Record: result.Record,
		}

		if result.Err != nil {
			item.Error = result.Err.Error()
		}

		resp.Results = append(resp.Results, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Reclassify forces research for a single query, overwriting its stable entry
func (s *Server) Reclassify(w http.ResponseWriter, r *http.Request) {
	var q types.RateQuery

	if err := decodeBody(w, r, &q); err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	record, err := s.engine.Reclassify(r.Context(), q)
	if err != nil {
		s.writeEngineError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, record)
}

// Tier returns the volatility tier of a lane, without resolving it
func (s *Server) Tier(w http.ResponseWriter, r *http.Request) {
	q := queryFromRequest(r)

	tier, err := s.engine.Classify(q)
	if err != nil {
		s.writeEngineError(w, err)

		return
	}

	code, _ := types.ParseCode(q.Code) // already validated by Classify
	origin, _ := types.ParseCountry(q.Origin)
	destination, _ := types.ParseCountry(q.Destination)

	writeJSON(w, http.StatusOK, &TierResponse{
		Code:            code.String(),
		Origin:          origin.String(),
		Destination:     destination.String(),
		Tier:            tier,
		CacheTTLSeconds: int64(tier.CacheTTL.Seconds()),
	})
}

func (s *Server) maxBatchSize() int {
	if s.config == nil || s.config.EngineConfig == nil || s.config.EngineConfig.MaxBatchSize <= 0 {
		return config.DefaultMaxBatchSize
	}

	return s.config.EngineConfig.MaxBatchSize
}

// writeEngineError maps engine errors to statuses. Only malformed input is
// expected here, the engine degrades every other failure into the record
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, types.ErrInvalidCode) || errors.Is(err, types.ErrInvalidCountry) {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	s.logger.Error(
		"unable to resolve rate",
		"err", err,
	)

	writeError(w, http.StatusInternalServerError, errUnableToResolve)
}

// queryFromRequest builds a query from the {code} route param and the query string
func queryFromRequest(r *http.Request) types.RateQuery {
	values := r.URL.Query()

	q := types.RateQuery{
		Code:        chi.URLParam(r, "code"),
		Origin:      values.Get("origin"),
		Destination: values.Get("destination"),
	}

	if productContext := strings.TrimSpace(values.Get("context")); productContext != "" {
		q.ProductContext = &productContext
	}

	return q
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errInvalidBody, err)
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // Fine to ignore
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := &ErrorResponse{
		Error: err.Error(),
	}

	writeJSON(w, status, resp)
}
