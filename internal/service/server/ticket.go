package server

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"ticket_ledger/internal/cryptographic/envelope"
	"ticket_ledger/internal/cryptographic/hash"
	"ticket_ledger/internal/ledger"
	"ticket_ledger/internal/model"
)

// newTicket in the path asks the gateway to open a fresh ticket.
const newTicket = "new"

type (
	appendRequest struct {
		MessageType string          `json:"messageType"`
		Document    json.RawMessage `json:"document"`
		ParentID    *string         `json:"parentId"`
		Recipients  []string        `json:"recipients"`
	}

	chainResponse struct {
		TicketID string           `json:"ticketId"`
		Messages []*model.Message `json:"messages"`
	}

	stateResponse struct {
		TicketID   string            `json:"ticketId"`
		State      model.TicketState `json:"state"`
		Commitment *model.Commitment `json:"commitment,omitempty"`
	}

	// openRequest carries the caller's own hex secret. The public id it
	// derives to must be a recipient of the message.
	openRequest struct {
		Secret string `json:"secret"`
	}

	verifyRequest struct {
		Digest hash.Hash   `json:"digest"`
		Proof  []hash.Hash `json:"proof"`
		Root   *hash.Hash  `json:"root,omitempty"`
	}

	verificationRequest struct {
		State model.VerificationState `json:"state"`
	}
)

// AppendMessage canonicalises the document, seals it for the named
// recipients and appends it to the ticket chain.
func (s *HttpServer) AppendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req appendRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, "append message", err)
			return
		}

		ticketID := mux.Vars(r)["ticketId"]
		if ticketID == newTicket {
			if req.ParentID != nil {
				writeError(w, "append message", fmt.Errorf("%w: a new ticket starts with a root message", errBadRequest))
				return
			}
			ticketID = uuid.NewString()
		}

		plaintext, err := s.encoder.Encode(req.Document, req.MessageType)
		if err != nil {
			writeError(w, "append message", err)
			return
		}

		recipients, err := s.resolveRecipients(r, req.Recipients)
		if err != nil {
			writeError(w, "append message", err)
			return
		}

		msg, err := s.ledger.AppendMessage(ctx, ledger.AppendRequest{
			TicketID:    ticketID,
			Plaintext:   plaintext,
			ParentID:    req.ParentID,
			Recipients:  recipients,
			MessageType: req.MessageType,
		})
		if err != nil {
			writeError(w, "append message", err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func (s *HttpServer) resolveRecipients(r *http.Request, names []string) ([]envelope.Recipient, error) {
	seen := make(map[string]bool, len(names))
	out := make([]envelope.Recipient, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		party, err := s.partyByName(r, name)
		if err != nil {
			return nil, err
		}
		out = append(out, envelope.Recipient{PublicID: party.PublicID, Secret: party.Secret})
	}
	return out, nil
}

func (s *HttpServer) GetChain() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketID := mux.Vars(r)["ticketId"]
		ordered, err := s.ledger.ChainOrder(r.Context(), ticketID)
		if err != nil {
			writeError(w, "get chain", err)
			return
		}
		writeJSON(w, http.StatusOK, chainResponse{TicketID: ticketID, Messages: ordered})
	}
}

func (s *HttpServer) GetMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		msg, err := s.ledger.Message(r.Context(), vars["ticketId"], vars["id"])
		if err != nil {
			writeError(w, "get message", err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

// OpenMessage decrypts a message for a caller that proves it holds a
// recipient's secret and returns the canonical document. A party name is
// never enough: the gateway does not open messages with secrets it keeps.
func (s *HttpServer) OpenMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		var req openRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, "open message", err)
			return
		}
		if req.Secret == "" {
			writeError(w, "open message", fmt.Errorf("%w: secret required", envelope.ErrNotAuthorized))
			return
		}
		secret, err := hex.DecodeString(req.Secret)
		if err != nil {
			writeError(w, "open message", fmt.Errorf("%w: secret: %v", errBadRequest, err))
			return
		}

		msg, err := s.ledger.Message(r.Context(), vars["ticketId"], vars["id"])
		if err != nil {
			writeError(w, "open message", err)
			return
		}

		plaintext, err := envelope.Open(envelope.FromMessage(msg), secret)
		if err != nil {
			writeError(w, "open message", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(plaintext)
	}
}

func (s *HttpServer) GetRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.ledger.Root(r.Context(), mux.Vars(r)["ticketId"])
		if err != nil {
			writeError(w, "get root", err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func (s *HttpServer) GetState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketID := mux.Vars(r)["ticketId"]
		state, c, err := s.ledger.TicketState(r.Context(), ticketID)
		if err != nil {
			writeError(w, "get state", err)
			return
		}
		writeJSON(w, http.StatusOK, stateResponse{TicketID: ticketID, State: state, Commitment: c})
	}
}

func (s *HttpServer) GetProof() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		digest, err := hash.Parse(vars["digest"])
		if err != nil {
			writeError(w, "get proof", err)
			return
		}

		proof, err := s.ledger.Proof(r.Context(), vars["ticketId"], digest)
		if err != nil {
			writeError(w, "get proof", err)
			return
		}
		writeJSON(w, http.StatusOK, proof)
	}
}

func (s *HttpServer) Verify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, "verify", err)
			return
		}

		res, err := s.ledger.Verify(r.Context(), mux.Vars(r)["ticketId"], req.Digest, req.Proof, req.Root)
		if err != nil {
			writeError(w, "verify", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *HttpServer) SetVerification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verificationRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, "set verification", err)
			return
		}

		if err := s.ledger.SetVerification(r.Context(), mux.Vars(r)["id"], req.State); err != nil {
			writeError(w, "set verification", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
