package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"forgechain/crypto"
	"forgechain/gateway/middleware"
	"forgechain/native/assets"
	"forgechain/native/referral"
	"forgechain/native/store"
	"forgechain/native/vault"
	"forgechain/observability"
)

// Catalog exposes the typed-asset records the gateway lists.
type Catalog interface {
	Types() ([]*assets.TypeRecord, error)
}

// Gateway serves read-only economy queries over HTTP.
type Gateway struct {
	logger  *slog.Logger
	tree    *referral.Tree
	vault   *vault.Vault
	store   *store.Store
	boxes   Catalog
	keys    Catalog
	limiter *middleware.RateLimiter
	metrics *observability.GatewayMetrics
}

// New wires a gateway over the economy engines.
func New(logger *slog.Logger, tree *referral.Tree, vlt *vault.Vault, st *store.Store, boxes, keys Catalog, limit middleware.RateLimit) *Gateway {
	return &Gateway{
		logger:  logger,
		tree:    tree,
		vault:   vlt,
		store:   st,
		boxes:   boxes,
		keys:    keys,
		limiter: middleware.NewRateLimiter(limit),
		metrics: observability.Gateway(),
	}
}

// Router builds the chi route tree.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(g.limiter.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/vault/share/{address}", g.instrument("vault_share", g.holderShare))
		r.Get("/referral/chain/{address}", g.instrument("referral_chain", g.referralChain))
		r.Get("/catalog/boxes", g.instrument("catalog_boxes", g.listTypes(func() Catalog { return g.boxes })))
		r.Get("/catalog/keys", g.instrument("catalog_keys", g.listTypes(func() Catalog { return g.keys })))
		r.Get("/catalog/prices/{typeId}", g.instrument("catalog_price", g.typePrice))
	})
	return r
}

func (g *Gateway) instrument(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, req)
		g.metrics.Requests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		g.metrics.Latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && g.logger != nil {
		g.logger.Warn("encode response", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, status int, err error) {
	g.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathAddress(req *http.Request) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(chi.URLParam(req, "address"))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func (g *Gateway) holderShare(w http.ResponseWriter, req *http.Request) {
	holder, err := pathAddress(req)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, err)
		return
	}
	share, err := g.vault.HolderShare(holder)
	if err != nil {
		g.writeError(w, http.StatusInternalServerError, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"address": chi.URLParam(req, "address"),
		"share":   share,
	})
}

type chainEntry struct {
	Parent string `json:"parent,omitempty"`
	Weight uint64 `json:"weight"`
}

func (g *Gateway) referralChain(w http.ResponseWriter, req *http.Request) {
	child, err := pathAddress(req)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, err)
		return
	}
	chain, err := g.tree.Chain(child)
	if err != nil {
		g.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]chainEntry, len(chain))
	for i, entry := range chain {
		out[i].Weight = entry.Weight
		if entry.Parent != ([20]byte{}) {
			out[i].Parent = crypto.NewAddress(crypto.ForgePrefix, entry.Parent[:]).String()
		}
	}
	g.writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) listTypes(source func() Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		catalog := source()
		if catalog == nil {
			g.writeJSON(w, http.StatusOK, []any{})
			return
		}
		records, err := catalog.Types()
		if err != nil {
			g.writeError(w, http.StatusInternalServerError, err)
			return
		}
		g.writeJSON(w, http.StatusOK, records)
	}
}

func (g *Gateway) typePrice(w http.ResponseWriter, req *http.Request) {
	typeID, err := strconv.ParseUint(chi.URLParam(req, "typeId"), 10, 64)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := g.store.Price(typeID)
	if err != nil {
		g.writeError(w, http.StatusInternalServerError, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"typeId": typeID,
		"price":  price.String(),
	})
}

// Serve blocks serving the gateway until the listener fails.
func (g *Gateway) Serve(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           g.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if g.logger != nil {
		g.logger.Info("gateway listening", "addr", addr)
	}
	return server.ListenAndServe()
}
