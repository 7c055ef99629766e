package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ticket_ledger/internal/canonical"
	"ticket_ledger/internal/ledger"
	"ticket_ledger/internal/model"
	"ticket_ledger/internal/utils/log"
)

type (
	PartyStore interface {
		GetByName(ctx context.Context, name string) (*model.Party, error)
		GetByPublicID(ctx context.Context, publicID string) (*model.Party, error)
		Create(ctx context.Context, party *model.Party) error
	}

	HttpServer struct {
		addr    string
		ledger  *ledger.Service
		parties PartyStore
		encoder canonical.Encoder
		hub     *Hub
	}
)

func NewHttpServer(addr string, svc *ledger.Service, parties PartyStore, encoder canonical.Encoder, hub *Hub) *HttpServer {
	return &HttpServer{
		addr:    addr,
		ledger:  svc,
		parties: parties,
		encoder: encoder,
		hub:     hub,
	}
}

func (s *HttpServer) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.HandleInitWS()).Methods(http.MethodGet)

	r.HandleFunc("/parties", s.CreateParty()).Methods(http.MethodPost)
	r.HandleFunc("/parties/{name}", s.GetParty()).Methods(http.MethodGet)
	r.HandleFunc("/parties/{name}/messages", s.GetPartyMessages()).Methods(http.MethodGet)

	t := r.PathPrefix("/tickets/{ticketId}").Subrouter()
	t.HandleFunc("/messages", s.AppendMessage()).Methods(http.MethodPost)
	t.HandleFunc("/messages", s.GetChain()).Methods(http.MethodGet)
	t.HandleFunc("/messages/{id}", s.GetMessage()).Methods(http.MethodGet)
	t.HandleFunc("/messages/{id}/open", s.OpenMessage()).Methods(http.MethodPost)
	t.HandleFunc("/root", s.GetRoot()).Methods(http.MethodGet)
	t.HandleFunc("/state", s.GetState()).Methods(http.MethodGet)
	t.HandleFunc("/proofs/{digest}", s.GetProof()).Methods(http.MethodGet)
	t.HandleFunc("/verify", s.Verify()).Methods(http.MethodPost)

	r.HandleFunc("/messages/{id}/verification", s.SetVerification()).Methods(http.MethodPut)
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// closes every notification socket.
func (s *HttpServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info("ledger server listening", zap.String("addr", s.addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.hub.Close()
	return srv.Shutdown(shutdownCtx)
}
