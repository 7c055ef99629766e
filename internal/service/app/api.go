package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ticket_ledger/internal/cryptographic/dh"
	"ticket_ledger/internal/cryptographic/hash"
	"ticket_ledger/internal/ledger"
	"ticket_ledger/internal/model"
)

type (
	// Client talks to a ledger gateway over HTTP.
	Client struct {
		base *url.URL
		http *http.Client
	}

	// APIError is a non 2xx answer from the gateway.
	APIError struct {
		Status  int    `json:"-"`
		Code    string `json:"code"`
		Message string `json:"error"`
	}

	PartyInfo struct {
		Name     string `json:"name"`
		PublicID string `json:"publicId"`
		// Only present when the gateway generated the secret.
		Secret string `json:"secret,omitempty"`
	}

	AppendRequest struct {
		MessageType string          `json:"messageType"`
		Document    json.RawMessage `json:"document"`
		ParentID    *string         `json:"parentId"`
		Recipients  []string        `json:"recipients"`
	}

	TicketState struct {
		TicketID   string            `json:"ticketId"`
		State      model.TicketState `json:"state"`
		Commitment *model.Commitment `json:"commitment,omitempty"`
	}
)

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %d %s: %s", e.Status, e.Code, e.Message)
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ledger url: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: u, http: httpClient}, nil
}

func (c *Client) CreateParty(ctx context.Context, name, secretHex string) (*PartyInfo, error) {
	body := map[string]string{"name": name}
	if secretHex != "" {
		body["secret"] = secretHex
	}
	return call[PartyInfo](ctx, c, http.MethodPost, "/parties", body)
}

func (c *Client) GetParty(ctx context.Context, name string) (*PartyInfo, error) {
	return call[PartyInfo](ctx, c, http.MethodGet, "/parties/"+url.PathEscape(name), nil)
}

func (c *Client) PartyMessages(ctx context.Context, name string) ([]ledger.TicketMessages, error) {
	out, err := call[[]ledger.TicketMessages](ctx, c, http.MethodGet, "/parties/"+url.PathEscape(name)+"/messages", nil)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

// Append posts a document to a ticket; ticketID "new" opens a fresh one.
func (c *Client) Append(ctx context.Context, ticketID string, req AppendRequest) (*model.Message, error) {
	return call[model.Message](ctx, c, http.MethodPost, ticketPath(ticketID, "messages"), req)
}

func (c *Client) Chain(ctx context.Context, ticketID string) ([]*model.Message, error) {
	out, err := call[struct {
		Messages []*model.Message `json:"messages"`
	}](ctx, c, http.MethodGet, ticketPath(ticketID, "messages"), nil)
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) Message(ctx context.Context, ticketID, id string) (*model.Message, error) {
	return call[model.Message](ctx, c, http.MethodGet, ticketPath(ticketID, "messages", id), nil)
}

func (c *Client) Root(ctx context.Context, ticketID string) (*model.Commitment, error) {
	return call[model.Commitment](ctx, c, http.MethodGet, ticketPath(ticketID, "root"), nil)
}

func (c *Client) State(ctx context.Context, ticketID string) (*TicketState, error) {
	return call[TicketState](ctx, c, http.MethodGet, ticketPath(ticketID, "state"), nil)
}

func (c *Client) Proof(ctx context.Context, ticketID string, digest hash.Hash) (*model.Proof, error) {
	return call[model.Proof](ctx, c, http.MethodGet, ticketPath(ticketID, "proofs", digest.Hex()), nil)
}

func (c *Client) Verify(ctx context.Context, ticketID string, digest hash.Hash, siblings []hash.Hash, root *hash.Hash) (*model.VerifyResult, error) {
	body := struct {
		Digest hash.Hash   `json:"digest"`
		Proof  []hash.Hash `json:"proof"`
		Root   *hash.Hash  `json:"root,omitempty"`
	}{digest, siblings, root}

	return call[model.VerifyResult](ctx, c, http.MethodPost, ticketPath(ticketID, "verify"), body)
}

func (c *Client) SetVerification(ctx context.Context, messageID string, state model.VerificationState) error {
	body := map[string]model.VerificationState{"state": state}
	return c.do(ctx, http.MethodPut, "/messages/"+url.PathEscape(messageID)+"/verification", body, nil)
}

// Dial opens the notification socket of a party and answers the gateway's
// challenge with secret.
func (c *Client) Dial(ctx context.Context, publicID string, secret []byte) (*websocket.Conn, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"publicId": []string{publicID}}.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, decodeError(resp)
		}
		return nil, err
	}

	if err := answerChallenge(ctx, conn, secret); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func answerChallenge(ctx context.Context, conn *websocket.Conn, secret []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
		defer conn.SetReadDeadline(time.Time{})
		defer conn.SetWriteDeadline(time.Time{})
	}

	var ch dh.Challenge
	if err := conn.ReadJSON(&ch); err != nil {
		return fmt.Errorf("read challenge: %w", err)
	}
	a, err := ch.Answer(secret)
	if err != nil {
		return fmt.Errorf("answer challenge: %w", err)
	}
	if err := conn.WriteJSON(a); err != nil {
		return fmt.Errorf("answer challenge: %w", err)
	}
	return nil
}

func ticketPath(ticketID string, parts ...string) string {
	segs := []string{"", "tickets", url.PathEscape(ticketID)}
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return strings.Join(segs, "/")
}

func call[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	var out T
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	e := &APIError{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(e); err != nil {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}
