package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"ticket_ledger/internal/canonical"
	"ticket_ledger/internal/cryptographic/dh"
	"ticket_ledger/internal/cryptographic/envelope"
	"ticket_ledger/internal/cryptographic/hash"
	"ticket_ledger/internal/ledger"
	"ticket_ledger/internal/ledger/chain"
	"ticket_ledger/internal/ledger/merkle"
	"ticket_ledger/internal/model"
	"ticket_ledger/internal/utils/log"
)

var (
	errBadRequest       = errors.New("bad request")
	errPartyNotFound    = errors.New("party not found")
	errAlreadyConnected = errors.New("party already connected")
	errChallengeFailed  = errors.New("challenge failed")
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusOf maps an error kind to an HTTP status and a stable code clients
// can branch on.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found"
	case errors.Is(err, ledger.ErrMessageNotFound):
		return http.StatusNotFound, "message_not_found"
	case errors.Is(err, merkle.ErrLeafNotFound):
		return http.StatusNotFound, "leaf_not_found"
	case errors.Is(err, errPartyNotFound):
		return http.StatusNotFound, "party_not_found"

	case errors.Is(err, chain.ErrMultipleRoots):
		return http.StatusConflict, "multiple_roots"
	case errors.Is(err, ledger.ErrDuplicateDigest):
		return http.StatusConflict, "duplicate_digest"
	case errors.Is(err, model.ErrDuplicateName):
		return http.StatusConflict, "duplicate_name"
	case errors.Is(err, errAlreadyConnected):
		return http.StatusConflict, "already_connected"

	case errors.Is(err, chain.ErrNoRoot):
		return http.StatusUnprocessableEntity, "no_root"
	case errors.Is(err, chain.ErrOrphan):
		return http.StatusUnprocessableEntity, "orphan"
	case errors.Is(err, chain.ErrDuplicateID):
		return http.StatusUnprocessableEntity, "duplicate_id"
	case errors.Is(err, canonical.ErrUnknownSchema):
		return http.StatusUnprocessableEntity, "unknown_schema"
	case errors.Is(err, canonical.ErrInvalidDocument):
		return http.StatusUnprocessableEntity, "invalid_document"

	case errors.Is(err, envelope.ErrNotAuthorized):
		return http.StatusForbidden, "not_authorized"

	case errors.Is(err, envelope.ErrNoRecipients):
		return http.StatusBadRequest, "no_recipients"
	case errors.Is(err, ledger.ErrInvalidTicket),
		errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, hash.ErrInvalidHash),
		errors.Is(err, dh.ErrInvalidSecret),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"

	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error(op+" failed", zap.Error(err))
		msg = op + " failed"
	} else {
		log.Debug(op+" rejected", zap.String("code", code), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
