// Package router wires the HTTP surface of the broker.
package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/esdx-scion/esdx/internal/market"
	marketimpl "github.com/esdx-scion/esdx/internal/market/impl"
	"github.com/esdx-scion/esdx/internal/router/controllers"
	"github.com/esdx-scion/esdx/internal/router/middlewares"
	"github.com/esdx-scion/esdx/pkg/store"
)

// ConfiguredRouter returns a fully configured Router that can be used as an
// http handler.
func ConfiguredRouter(s store.Store, maxRPI uint64, rateLimInterval time.Duration) (*Router, error) {
	var marketService market.Market = marketimpl.NewMarketService(s)
	marketService, err := marketimpl.NewInstrumentedMarket(marketService)
	if err != nil {
		return nil, fmt.Errorf("instrumenting market: %s", err)
	}
	marketController := controllers.NewMarketController(marketService)
	infraController := controllers.NewInfraController()

	// General router configuration.
	router := NewRouter()
	router.Use(middlewares.CORS, middlewares.TraceID, middlewares.ClientIP)

	rateLim, err := middlewares.RateLimitController(middlewares.RateLimiterConfig{
		MaxRPI:   maxRPI,
		Interval: rateLimInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("creating rate limit controller middleware: %s", err)
	}

	// Marketplace configuration.
	router.Get("/offers", marketController.ListOffers, middlewares.WithLogging, middlewares.OtelHTTP("ListOffers"), rateLim)            // nolint
	router.Post("/offers", marketController.AddOffer, middlewares.WithLogging, middlewares.OtelHTTP("AddOffer"), rateLim)               // nolint
	router.Post("/purchases", marketController.Purchase, middlewares.WithLogging, middlewares.OtelHTTP("Purchase"), rateLim)            // nolint
	router.Post("/contracts/{id}", marketController.GetContract, middlewares.WithLogging, middlewares.OtelHTTP("GetContract"), rateLim) // nolint

	router.Get("/version", infraController.Version, middlewares.WithLogging, middlewares.OtelHTTP("Version"), rateLim) // nolint

	// Health endpoint configuration.
	router.Get("/healthz", healthHandler)
	router.Get("/health", healthHandler)

	return router, nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Router provides a nice api around mux.Router.
type Router struct {
	r *mux.Router
}

// NewRouter is a Mux HTTP router constructor.
func NewRouter() *Router {
	r := mux.NewRouter()
	r.PathPrefix("/").Methods(http.MethodOptions) // accept OPTIONS on all routes and do nothing
	return &Router{r: r}
}

// Get creates a subroute on the specified URI that only accepts GET. You can provide specific middlewares.
func (r *Router) Get(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodGet)
	sub.Use(mid...)
}

// Post creates a subroute on the specified URI that only accepts POST. You can provide specific middlewares.
func (r *Router) Post(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodPost)
	sub.Use(mid...)
}

// Use adds middlewares to all routes. Should be used when a middleware should be executed on all routes (e.g. CORS).
func (r *Router) Use(mid ...mux.MiddlewareFunc) {
	r.r.Use(mid...)
}

// Handler returns the configured router http handler.
func (r *Router) Handler() http.Handler {
	return r.r
}
