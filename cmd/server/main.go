package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/TechieJoe/laundromart-Order/internal/auth"
	"github.com/TechieJoe/laundromart-Order/internal/config"
	"github.com/TechieJoe/laundromart-Order/internal/consumer"
	"github.com/TechieJoe/laundromart-Order/internal/db"
	"github.com/TechieJoe/laundromart-Order/internal/gateway"
	"github.com/TechieJoe/laundromart-Order/internal/model"
	"github.com/TechieJoe/laundromart-Order/internal/store"
	"github.com/TechieJoe/laundromart-Order/internal/usecase"
	"github.com/TechieJoe/laundromart-Order/internal/worker"
)

type createOrderRequest struct {
	Orders     []model.LineItem `json:"orders"`
	GrandTotal decimal.Decimal  `json:"grandTotal"`
	Metadata   map[string]any   `json:"metadata"`
	OrderID    string           `json:"orderId"`
	Reference  string           `json:"reference"`
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Unable to load config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("Unable to apply schema: %v", err)
	}
	log.Println("Connected to PostgreSQL")

	orders := store.NewPostgres(pool)
	verifier := auth.NewClient(cfg.AuthServiceURL)
	paystack := gateway.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.PaystackCallbackURL)
	orderService := usecase.NewOrderService(orders, verifier, paystack)

	// Notification relay: RabbitMQ when configured, in-process otherwise.
	var publisher worker.Publisher
	if cfg.RabbitURL != "" {
		pub, err := worker.NewRabbitMQPublisher(cfg.RabbitURL, cfg.NotificationQueue)
		if err != nil {
			log.Fatalf("Unable to connect to RabbitMQ: %v", err)
		}
		defer pub.Close()
		publisher = pub
	} else {
		publisher = worker.NewInMemoryBus(consumer.NewNotificationDispatcher(orders))
	}
	processor := worker.NewOutboxProcessor(orders, publisher)
	go processor.Start(ctx)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		result, err := orderService.CreateOrder(r.Context(), bearerToken(r), usecase.CreateOrderInput{
			LineItems:  req.Orders,
			GrandTotal: req.GrandTotal,
			Metadata:   req.Metadata,
			OrderID:    req.OrderID,
			Reference:  req.Reference,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	})

	r.Get("/orders", func(w http.ResponseWriter, r *http.Request) {
		notifications, err := orderService.GetOrders(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, notifications)
	})

	r.Get("/payments/verify/{reference}", func(w http.ResponseWriter, r *http.Request) {
		outcome, err := orderService.VerifyPayment(r.Context(), chi.URLParam(r, "reference"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	})

	// The gateway redelivers on any non-2xx, so this route answers 200
	// even for rejected payloads.
	r.Post("/webhooks/paystack", func(w http.ResponseWriter, r *http.Request) {
		var event usecase.WebhookEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			writeJSON(w, http.StatusOK, usecase.WebhookResult{Success: false, Message: "Invalid payload"})
			return
		}
		writeJSON(w, http.StatusOK, orderService.ProcessWebhook(r.Context(), event))
	})

	log.Printf("Server starting on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, usecase.ErrEmptyOrder), errors.Is(err, usecase.ErrInvalidTotals):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrDuplicateReference):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, usecase.ErrGatewayInitialization):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		log.Printf("Request failed: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
