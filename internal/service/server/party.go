package server

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ticket_ledger/internal/cryptographic/dh"
	"ticket_ledger/internal/ledger"
	"ticket_ledger/internal/model"
	"ticket_ledger/internal/utils/log"
)

type (
	createPartyRequest struct {
		Name string `json:"name"`
		// Optional hex secret generated client side; the gateway mints one
		// when absent.
		Secret string `json:"secret,omitempty"`
	}

	createPartyResponse struct {
		*model.Party
		// Set only when the gateway generated the secret.
		Secret string `json:"secret,omitempty"`
	}
)

func (s *HttpServer) CreateParty() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req createPartyRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, "create party", err)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, "create party", fmt.Errorf("%w: name is required", errBadRequest))
			return
		}

		var (
			secret   []byte
			publicID string
			err      error
			minted   bool
		)
		if req.Secret != "" {
			if secret, err = hex.DecodeString(strings.TrimPrefix(req.Secret, "0x")); err != nil {
				writeError(w, "create party", fmt.Errorf("%w: secret: %v", errBadRequest, err))
				return
			}
			publicID, err = dh.PublicID(secret)
		} else {
			secret, publicID, err = dh.NewParty()
			minted = true
		}
		if err != nil {
			writeError(w, "create party", err)
			return
		}

		party := &model.Party{
			Name:      req.Name,
			PublicID:  publicID,
			Secret:    secret,
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		}
		if err := s.parties.Create(ctx, party); err != nil {
			writeError(w, "create party", err)
			return
		}
		log.Info("party created", zap.String("name", party.Name), zap.String("publicId", party.PublicID))

		resp := createPartyResponse{Party: party}
		if minted {
			resp.Secret = hex.EncodeToString(secret)
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func (s *HttpServer) GetParty() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		party, err := s.partyByName(r, mux.Vars(r)["name"])
		if err != nil {
			writeError(w, "get party", err)
			return
		}
		writeJSON(w, http.StatusOK, party)
	}
}

func (s *HttpServer) GetPartyMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		party, err := s.partyByName(r, mux.Vars(r)["name"])
		if err != nil {
			writeError(w, "list party messages", err)
			return
		}

		tickets, err := s.ledger.MessagesForParty(r.Context(), party.PublicID)
		if err != nil {
			writeError(w, "list party messages", err)
			return
		}
		if tickets == nil {
			tickets = []ledger.TicketMessages{}
		}
		writeJSON(w, http.StatusOK, tickets)
	}
}

func (s *HttpServer) partyByName(r *http.Request, name string) (*model.Party, error) {
	party, err := s.parties.GetByName(r.Context(), name)
	if err != nil {
		return nil, err
	}
	if party == nil {
		return nil, fmt.Errorf("%w: %s", errPartyNotFound, name)
	}
	return party, nil
}
