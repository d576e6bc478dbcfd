// Package server provides HTTP server initialization and lifecycle management
// for the Scanloom scene API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/scanloom/scanloom/internal/config"
	"github.com/scanloom/scanloom/internal/storage"
	scansync "github.com/scanloom/scanloom/internal/sync"
)

// Routes builds the API route table for the given handlers and hub.
// Exposed separately from Start so tests can drive it with httptest.
func Routes(h *SceneHandlers, hub *scansync.Hub) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/scans/{scanID}/measurements", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListMeasurements(w, r)
		case http.MethodPost:
			h.CreateMeasurement(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/measurements/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetMeasurement(w, r)
		case http.MethodPatch:
			h.UpdateMeasurement(w, r)
		case http.MethodDelete:
			h.DeleteMeasurement(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/scans/{scanID}/annotations", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListAnnotations(w, r)
		case http.MethodPost:
			h.CreateAnnotation(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/scans/{scanID}/annotations/nearest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.NearestAnnotations(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/annotations/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetAnnotation(w, r)
		case http.MethodPatch:
			h.UpdateAnnotation(w, r)
		case http.MethodDelete:
			h.DeleteAnnotation(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/annotations/{id}/replies", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.CreateReply(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/annotations/{id}/replies/{replyID}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			h.UpdateReply(w, r)
		case http.MethodDelete:
			h.DeleteReply(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/scans/{scanID}/views", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListSavedViews(w, r)
		case http.MethodPost:
			h.CreateSavedView(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/views/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			h.UpdateSavedView(w, r)
		case http.MethodDelete:
			h.DeleteSavedView(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Health endpoint, used by monitoring. No rate limit concerns here since
	// the limiter wraps the whole mux in Start.
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// WebSocket change feed.
	mux.Handle("/ws", hub)

	return mux
}

// Start initializes and starts the HTTP server. All handler writes go
// through the given change writer, so the breaker and write throttle sit
// between the API and the store.
// Returns the actual address being listened on (useful for testing with
// port 0) and the Hub for wiring change event broadcasts.
func Start(ctx context.Context, cfg *config.Config, store storage.SceneStore, writer ChangeWriter) (string, *scansync.Hub, error) {
	hub := scansync.NewHub()
	go hub.Run()

	handlers := NewSceneHandlers(store, writer, hub)
	mux := Routes(handlers, hub)

	rateLimiter := NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	handler := RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		hub.Stop()
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		hub.Stop()
	}()

	return actualAddr, hub, nil
}
