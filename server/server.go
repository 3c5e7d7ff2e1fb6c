package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/chainshopapp/chainshop/internal/config"
	"github.com/chainshopapp/chainshop/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)

	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")

	// Public authentication routes
	r.HandleFunc("/register_customer", h.RegisterCustomer).Methods("POST").Name("auth.register_customer")
	r.HandleFunc("/register_courier", h.RegisterCourier).Methods("POST").Name("auth.register_courier")
	r.HandleFunc("/login", h.Login).Methods("POST").Name("auth.login")
	r.HandleFunc("/delete", h.Authenticated(h.DeleteAccount)).Methods("POST").Name("auth.delete")

	// Customer routes
	r.HandleFunc("/search", h.Authenticated(h.Search)).Methods("GET").Name("customer.search")
	r.HandleFunc("/order", h.Authenticated(h.PlaceOrder)).Methods("POST").Name("customer.order")
	r.HandleFunc("/status", h.Authenticated(h.OrderStatus)).Methods("GET").Name("customer.status")
	r.HandleFunc("/delivered", h.Authenticated(h.Delivered)).Methods("POST").Name("customer.delivered")
	r.HandleFunc("/generate_invoice", h.Authenticated(h.GenerateInvoice)).Methods("POST").Name("customer.generate_invoice")

	// Courier routes
	r.HandleFunc("/orders_to_deliver", h.Authenticated(h.OrdersToDeliver)).Methods("GET").Name("courier.orders_to_deliver")
	r.HandleFunc("/pick_up_order", h.Authenticated(h.PickUpOrder)).Methods("POST").Name("courier.pick_up_order")

	// Owner routes
	r.HandleFunc("/update", h.Authenticated(h.UpdateCatalog)).Methods("POST").Name("owner.update")
	r.HandleFunc("/product_statistics", h.Authenticated(h.ProductStatistics)).Methods("GET").Name("owner.product_statistics")
	r.HandleFunc("/category_statistics", h.Authenticated(h.CategoryStatistics)).Methods("GET").Name("owner.category_statistics")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Not found."}`))
	})

	return r
}
