// Package server exposes the optimizer, catalog and history over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/haroldofalcao/optinutri/internal/catalog"
	"github.com/haroldofalcao/optinutri/internal/history"
	"github.com/haroldofalcao/optinutri/internal/optimizer"
	"github.com/haroldofalcao/optinutri/pkg/constants"
	"github.com/haroldofalcao/optinutri/pkg/optimization"
)

// Header names understood or set by the API.
const (
	HeaderUser      = "X-User"
	HeaderCache     = "X-Cache"
	HeaderHistoryID = "X-History-ID"
)

// Optimizer runs one optimization call.
type Optimizer interface {
	Optimize(ctx context.Context, req optimizer.Request) optimization.Result
}

type handler struct {
	logger        *zap.Logger
	optimizer     Optimizer
	catalog       *catalog.Catalog
	history       history.Store
	cache         *gocache.Cache
	limiter       *rate.Limiter
	maxUploadSize int64
	version       string
}

type formulasResponse struct {
	Formulas      []optimization.Formula `json:"formulas"`
	EmulsionTypes []string               `json:"emulsion_types"`
	Routes        []string               `json:"routes"`
}

type historyResponse struct {
	User    string          `json:"user"`
	Entries []history.Entry `json:"entries"`
}

// NewHandler constructs the HTTP handler that serves the optimization API.
// A nil catalog lists no formulas and a nil store keeps history in memory.
func NewHandler(logger *zap.Logger, opt Optimizer, cat *catalog.Catalog, store history.Store, cfg *Config) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := defaultConfig()
	if cfg != nil {
		normalized := *cfg
		if err := normalized.normalize(); err != nil {
			logger.Warn("invalid server configuration, using defaults",
				zap.String("op", "server.NewHandler"),
				zap.Error(err),
			)
		} else {
			settings = &normalized
		}
	}
	if cat == nil {
		cat, _ = catalog.New(nil)
	}
	if store == nil {
		store = history.NewMemoryStore(constants.DefaultHistoryEntries)
	}

	h := &handler{
		logger:        logger,
		optimizer:     opt,
		catalog:       cat,
		history:       store,
		cache:         gocache.New(settings.CacheTTL, 2*settings.CacheTTL),
		limiter:       rate.NewLimiter(rate.Limit(settings.RateLimit), settings.Burst),
		maxUploadSize: settings.UploadSizeBytes(),
		version:       settings.Version,
	}

	mux := http.NewServeMux()

	// Optimization endpoint
	mux.HandleFunc("/api/optimize", h.handleOptimize)

	// Catalog listing with optional filters
	mux.HandleFunc("/api/formulas", h.handleFormulas)

	// Per-user history
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/history/", h.handleHistoryEntry)

	// Version endpoint for client metadata
	mux.HandleFunc("/api/version", h.handleVersion)

	return mux
}

func (h *handler) handleOptimize(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleOptimize"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	if !h.limiter.Allow() {
		h.respondErrorWithOp(w, http.StatusTooManyRequests, "rate limit exceeded, retry later", op)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	var req optimizer.Request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request exceeds limit of %d bytes", h.maxUploadSize), op)
			return
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err), op)
		return
	}

	key, err := cacheKey(req)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to encode request: %v", err), op)
		return
	}

	var result optimization.Result
	if cached, ok := h.cache.Get(key); ok {
		result = cached.(optimization.Result)
		result.Duration = 0
		w.Header().Set(HeaderCache, "HIT")
	} else {
		result = h.optimizer.Optimize(r.Context(), req)
		if cacheable(r.Context(), result) {
			h.cache.Set(key, result, gocache.DefaultExpiration)
		}
		w.Header().Set(HeaderCache, "MISS")
	}

	user := requestUser(r)
	id, err := h.history.Save(r.Context(), history.Entry{
		User:        user,
		CreatedAt:   time.Now().UTC(),
		Constraints: req.Constraints,
		SelectedIDs: req.SelectedIDs,
		Result:      result,
	})
	if err != nil {
		h.logger.Warn("failed to save history entry",
			zap.String("op", op),
			zap.String("user", user),
			zap.Error(err),
		)
	} else {
		w.Header().Set(HeaderHistoryID, id)
	}

	h.logger.Info("optimization request served",
		zap.String("op", op),
		zap.String("user", user),
		zap.String("status", string(result.Status)),
		zap.String("cache", w.Header().Get(HeaderCache)),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// cacheable reports whether result may be replayed to later requests. Errors
// and partial analyses are never cached, nor is anything computed for a
// request whose context is already done.
func cacheable(ctx context.Context, result optimization.Result) bool {
	if ctx.Err() != nil {
		return false
	}
	return result.Status != optimization.StatusError && !result.Partial
}

func (h *handler) handleFormulas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	h.writeJSON(w, http.StatusOK, formulasResponse{
		Formulas:      h.catalog.Filter(nil, query.Get("emulsion"), query.Get("via")),
		EmulsionTypes: h.catalog.EmulsionTypes(),
		Routes:        h.catalog.Routes(),
	})
}

func (h *handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleHistory"
	user := requestUser(r)

	switch r.Method {
	case http.MethodGet:
		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw), op)
				return
			}
			limit = n
		}
		entries, err := h.history.List(r.Context(), user, limit)
		if err != nil {
			h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to list history: %v", err), op)
			return
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		h.writeJSON(w, http.StatusOK, historyResponse{User: user, Entries: entries})
	case http.MethodDelete:
		if err := h.history.Clear(r.Context(), user); err != nil {
			h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to clear history: %v", err), op)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleHistoryEntry"
	if r.Method != http.MethodDelete {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/history/"), "/")
	if id == "" {
		h.respondErrorWithOp(w, http.StatusBadRequest, "missing history entry id", op)
		return
	}

	if err := h.history.Delete(r.Context(), requestUser(r), id); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			h.respondErrorWithOp(w, http.StatusNotFound, err.Error(), op)
			return
		}
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to delete history entry: %v", err), op)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

// requestUser reads the caller from the X-User header, falling back to the
// user query parameter.
func requestUser(r *http.Request) string {
	if user := strings.TrimSpace(r.Header.Get(HeaderUser)); user != "" {
		return user
	}
	if user := strings.TrimSpace(r.URL.Query().Get("user")); user != "" {
		return user
	}
	return constants.DefaultUser
}

// cacheKey is the canonical JSON of the request; map keys are sorted by
// encoding/json.
func cacheKey(req optimizer.Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
