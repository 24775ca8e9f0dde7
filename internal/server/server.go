// Package server hosts the market's network surfaces: a gRPC endpoint with
// health and reflection services, and an HTTP/JSON gateway serving the query
// views.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/observability"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/query"
)

// Server wraps the gRPC server and the HTTP gateway mux.
type Server struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	queryService  *query.Service
	healthChecker *observability.HealthChecker
	healthServer  *health.Server
	log           zerolog.Logger
}

// New creates a server with health and reflection registered on the gRPC
// side and the query routes mounted on the gateway mux.
func New(grpcAddr, httpAddr string, qs *query.Service, hc *observability.HealthChecker, log zerolog.Logger) *Server {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &Server{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		queryService:  qs,
		healthChecker: hc,
		healthServer:  healthServer,
		log:           log,
	}
}

// StartGRPC starts the gRPC server. Blocking.
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("grpc server shutting down")
		s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		s.grpcServer.GracefulStop()
	}()

	s.log.Info().Str("addr", s.grpcAddr).Msg("grpc server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway starts the HTTP/JSON surface. Blocking.
func (s *Server) StartHTTPGateway(ctx context.Context) error {
	mux := runtime.NewServeMux()
	if err := s.registerQueryRoutes(mux); err != nil {
		return fmt.Errorf("register query routes: %w", err)
	}

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
	httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: httpMux,
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("http gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpAddr).Msg("http gateway listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) registerQueryRoutes(mux *runtime.ServeMux) error {
	routes := []struct {
		pattern string
		handler runtime.HandlerFunc
	}{
		{"/v1/market", s.handleMarket},
		{"/v1/accounts/{address}", s.handleAccount},
		{"/v1/insurance", s.handlePool},
		{"/v1/receipts", s.handleReceipts},
		{"/v1/funding-rate", s.handleFundingRate},
		{"/v1/insurance-funding-rate", s.handleInsuranceFundingRate},
	}
	for _, r := range routes {
		if err := mux.HandlePath(http.MethodGet, r.pattern, r.handler); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	now := time.Now().Unix()
	if v := r.URL.Query().Get("at"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid at parameter: %w", err))
			return
		}
		now = parsed
	}
	view, err := s.queryService.Market(now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleAccount(w http.ResponseWriter, _ *http.Request, pathParams map[string]string) {
	view, err := s.queryService.Account(pathParams["address"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handlePool(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	writeJSON(w, s.queryService.Pool())
}

func (s *Server) handleReceipts(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	writeJSON(w, s.queryService.Receipts())
}

func (s *Server) handleFundingRate(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	writeJSON(w, s.queryService.FundingRate())
}

func (s *Server) handleInsuranceFundingRate(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	writeJSON(w, s.queryService.InsuranceFundingRate())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
