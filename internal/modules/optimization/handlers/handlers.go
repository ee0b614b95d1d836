// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const contentTypeMsgpack = "application/msgpack"

// maxBodyBytes caps request bodies; inline price histories dominate the size.
const maxBodyBytes = 32 << 20

// PriceSource loads aligned price history for a set of tickers.
type PriceSource interface {
	LoadPortfolioData(ctx context.Context, tickers []string, lookbackDays int) (optimization.PortfolioDataInput, error)
}

// Defaults are the server-side fallbacks for optional request fields.
type Defaults struct {
	RiskFreeRate    float64
	LookbackDays    int
	FrontierPoints  int
	FrontierWorkers int
}

// Handler handles optimization HTTP requests
type Handler struct {
	optimizer *optimization.Optimizer
	prices    PriceSource
	defaults  Defaults
	log       zerolog.Logger
}

// NewHandler creates a new optimization handler. prices may be nil, in which
// case requests must carry inline data.
func NewHandler(optimizer *optimization.Optimizer, prices PriceSource, defaults Defaults, log zerolog.Logger) *Handler {
	if defaults.LookbackDays <= 0 {
		defaults.LookbackDays = optimization.TradingDaysPerYear
	}
	return &Handler{
		optimizer: optimizer,
		prices:    prices,
		defaults:  defaults,
		log:       log.With().Str("handler", "optimization").Logger(),
	}
}

var methodDescriptions = map[optimization.Method]string{
	optimization.MethodMeanVariance:   "Minimum variance, optionally subject to a minimum expected return",
	optimization.MethodRiskParity:     "Equalize each asset's share of portfolio variance",
	optimization.MethodMinVariance:    "Global minimum variance portfolio",
	optimization.MethodMaxSharpe:      "Maximize excess return per unit of volatility",
	optimization.MethodBlackLitterman: "Minimum variance with returns blended from equilibrium and investor views",
}

// HandleGetMethods handles GET /api/optimizer/methods
func (h *Handler) HandleGetMethods(w http.ResponseWriter, r *http.Request) {
	type method struct {
		Name        string `json:"name" msgpack:"name"`
		Description string `json:"description" msgpack:"description"`
	}
	methods := make([]method, 0, len(methodDescriptions))
	for _, m := range optimization.AllMethods() {
		methods = append(methods, method{Name: string(m), Description: methodDescriptions[m]})
	}
	h.writeResponse(w, r, http.StatusOK, map[string]interface{}{"methods": methods})
}

// HandleOptimize handles POST /api/optimizer/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !h.decode(w, r, &req) {
		return
	}

	data, cfg, err := h.prepare(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.optimizer.Optimize(r.Context(), data, cfg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := OptimizeResponse{Result: out}
	if req.Capital > 0 {
		resp.Allocation = out.Allocation(req.Capital)
	}
	h.writeResponse(w, r, http.StatusOK, resp)
}

// HandleFrontier handles POST /api/optimizer/frontier
func (h *Handler) HandleFrontier(w http.ResponseWriter, r *http.Request) {
	var req FrontierRequest
	if !h.decode(w, r, &req) {
		return
	}

	data, cfg, err := h.prepare(r.Context(), req.OptimizeRequest)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.optimizer.EfficientFrontier(r.Context(), data, cfg, h.frontierOptions(req, nil))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResponse(w, r, http.StatusOK, out)
}

func (h *Handler) frontierOptions(req FrontierRequest, onPoint func(optimization.FrontierPoint)) optimization.FrontierOptions {
	opts := optimization.FrontierOptions{
		Points:  req.Points,
		Workers: req.Workers,
		OnPoint: onPoint,
	}
	if opts.Points == 0 {
		opts.Points = h.defaults.FrontierPoints
	}
	if opts.Workers == 0 {
		opts.Workers = h.defaults.FrontierWorkers
	}
	return opts
}

// prepare resolves the price history and builds the domain config.
func (h *Handler) prepare(ctx context.Context, req OptimizeRequest) (optimization.PortfolioDataInput, optimization.OptimizationConfig, error) {
	var data optimization.PortfolioDataInput

	cfg, err := req.Config.ToConfig(h.defaults.RiskFreeRate)
	if err != nil {
		return data, cfg, err
	}

	switch {
	case req.Data != nil:
		data, err = req.Data.ToInput()
	case len(req.Tickers) > 0:
		if h.prices == nil {
			return data, cfg, &optimization.ValidationError{Field: "data", Message: "no price history configured; send data inline"}
		}
		lookback := req.LookbackDays
		if lookback == 0 {
			lookback = h.defaults.LookbackDays
		}
		tickers := make([]string, len(req.Tickers))
		for i, t := range req.Tickers {
			tickers[i] = strings.ToUpper(strings.TrimSpace(t))
		}
		data, err = h.prices.LoadPortfolioData(ctx, tickers, lookback)
	default:
		err = &optimization.ValidationError{Field: "data", Message: "either data or tickers is required"}
	}
	return data, cfg, err
}

// decode reads and validates the request body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), contentTypeMsgpack) {
		err = msgpack.NewDecoder(body).Decode(v)
	} else {
		dec := json.NewDecoder(body)
		dec.DisallowUnknownFields()
		err = dec.Decode(v)
	}
	if err != nil {
		h.writeResponse(w, r, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid request body: " + err.Error(),
		})
		return false
	}

	if err := validate.StructCtx(r.Context(), v); err != nil {
		h.writeResponse(w, r, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "request failed validation",
			Fields:  fieldErrors(err),
		})
		return false
	}
	return true
}

// statusFor maps domain error kinds to HTTP status codes.
func statusFor(err error) int {
	switch optimization.ErrorKind(err) {
	case "validation_error":
		return http.StatusBadRequest
	case "convergence_failure":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := optimization.ErrorKind(err)

	evt := h.log.Warn()
	if status >= http.StatusInternalServerError {
		evt = h.log.Error()
	}
	evt.Err(err).Str("kind", kind).Int("status", status).Str("path", r.URL.Path).Msg("Optimization request failed")

	msg := err.Error()
	if kind == "internal_error" && !errors.Is(err, context.Canceled) {
		msg = "internal error"
	}
	h.writeResponse(w, r, status, ErrorResponse{Error: kind, Message: msg})
}

// writeResponse encodes as MessagePack when the client asks for it, JSON otherwise.
func (h *Handler) writeResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if strings.Contains(r.Header.Get("Accept"), contentTypeMsgpack) {
		w.Header().Set("Content-Type", contentTypeMsgpack)
		w.WriteHeader(status)
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(data); err != nil {
			h.log.Error().Err(err).Msg("Failed to encode MessagePack response")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
