// Package api exposes the coordinator over HTTP and WebSocket: transaction
// approval, soft-cancel lookup, configuration discovery and the per-chain
// event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/coordinator"
)

const maxBodyBytes = 1 << 20

// Server handles REST API and WebSocket connections.
type Server struct {
	engine *coordinator.Engine
	hub    *Hub
	router *mux.Router
	http   *http.Server
}

// NewServer wires the engine behind the HTTP surface. The hub is shared
// with the engine's broadcaster so approvals stream to subscribers.
func NewServer(engine *coordinator.Engine, hub *Hub) *Server {
	s := &Server{
		engine: engine,
		hub:    hub,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v2 := s.router.PathPrefix("/v2").Subrouter()
	v2.HandleFunc("/request_transaction", s.handleRequestTransaction).Methods("POST")
	v2.HandleFunc("/soft_cancels", s.handleSoftCancels).Methods("POST")
	v2.HandleFunc("/configuration", s.handleConfiguration).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped route tree.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Chain-Id"},
	})
	return c.Handler(s.router)
}

// Start runs the hub and serves until the listener fails or Shutdown is
// called.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.http = &http.Server{Addr: addr, Handler: s.Handler()}
	log.Printf("[api] server starting on %s", addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests. Requests inside the selective delay
// window finish signing and persisting regardless.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleRequestTransaction(w http.ResponseWriter, r *http.Request) {
	chainID, rerr := s.chainID(r)
	if rerr != nil {
		respondRequestError(w, rerr)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req coordinator.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondValidation(w, coordinator.CodeSchemaInvalid, "body", "malformed JSON: "+err.Error())
		return
	}

	resp, err := s.engine.RequestTransaction(r.Context(), chainID, &req)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if resp.Cancel != nil {
		respondJSON(w, http.StatusOK, resp.Cancel)
		return
	}
	respondJSON(w, http.StatusOK, resp.Fill)
}

func (s *Server) handleSoftCancels(w http.ResponseWriter, r *http.Request) {
	chainID, rerr := s.chainID(r)
	if rerr != nil {
		respondRequestError(w, rerr)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req SoftCancelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondValidation(w, coordinator.CodeSchemaInvalid, "body", "malformed JSON: "+err.Error())
		return
	}
	hashes := make([]common.Hash, len(req.OrderHashes))
	for i, raw := range req.OrderHashes {
		if !strings.HasPrefix(raw, "0x") || len(raw) != 66 {
			respondValidation(w, coordinator.CodeSchemaInvalid, "orderHashes",
				"order hashes must be 0x-prefixed 32-byte hex strings")
			return
		}
		hashes[i] = common.HexToHash(raw)
	}

	cancelled, err := s.engine.SoftCancels(chainID, hashes)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	out := make([]string, len(cancelled))
	for i, h := range cancelled {
		out[i] = h.Hex()
	}
	respondJSON(w, http.StatusOK, SoftCancelsResponse{OrderHashes: out})
}

func (s *Server) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ConfigurationResponse{
		ExpirationDurationSeconds: int64(s.engine.ApprovalDuration().Seconds()),
		SelectiveDelayMs:          s.engine.SelectiveDelay().Milliseconds(),
		SupportedChainIds:         s.engine.ChainIDs(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// chainID resolves the target chain: query parameter, then X-Chain-Id
// header, then the sole configured chain.
func (s *Server) chainID(r *http.Request) (int64, *coordinator.RequestError) {
	raw := r.URL.Query().Get("chainId")
	if raw == "" {
		raw = r.Header.Get("X-Chain-Id")
	}
	if raw == "" {
		ids := s.engine.ChainIDs()
		if len(ids) == 1 {
			return ids[0], nil
		}
		return 0, &coordinator.RequestError{
			Code:   coordinator.CodeSchemaInvalid,
			Status: http.StatusBadRequest,
			Field:  "chainId",
			Reason: "chainId is required when more than one chain is served",
		}
	}
	chainID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &coordinator.RequestError{
			Code:   coordinator.CodeSchemaInvalid,
			Status: http.StatusBadRequest,
			Field:  "chainId",
			Reason: "chainId must be a decimal integer",
		}
	}
	return chainID, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondRequestError(w http.ResponseWriter, rerr *coordinator.RequestError) {
	env := errorEnvelope{Code: string(rerr.Code), Reason: rerr.Reason}
	if rerr.Status < http.StatusInternalServerError && (rerr.Field != "" || len(rerr.Entities) > 0) {
		env.ValidationErrors = []validationError{{
			Field:    rerr.Field,
			Code:     string(rerr.Code),
			Reason:   rerr.Reason,
			Entities: rerr.Entities,
		}}
	}
	respondJSON(w, rerr.Status, env)
}

func respondValidation(w http.ResponseWriter, code coordinator.ErrorCode, field, reason string) {
	respondRequestError(w, &coordinator.RequestError{
		Code:   code,
		Status: http.StatusBadRequest,
		Field:  field,
		Reason: reason,
	})
}

func respondEngineError(w http.ResponseWriter, err error) {
	var rerr *coordinator.RequestError
	if errors.As(err, &rerr) {
		respondRequestError(w, rerr)
		return
	}
	log.Printf("[api] internal error: %v", err)
	respondJSON(w, http.StatusInternalServerError, errorEnvelope{
		Code:   string(coordinator.CodeInternalError),
		Reason: "unexpected failure handling the request",
	})
}
