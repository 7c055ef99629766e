package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ticket_ledger/internal/cryptographic/dh"
	"ticket_ledger/internal/metrics"
	"ticket_ledger/internal/model"
	"ticket_ledger/internal/utils/log"
)

const (
	writeWait = 5 * time.Second
	// handshakeWait bounds how long a new socket has to answer its challenge.
	handshakeWait = 10 * time.Second
)

type (
	// Inbox parks notifications for parties without an open socket.
	Inbox interface {
		Put(ctx context.Context, publicID string, notifications ...*model.Notification) error
		Drain(ctx context.Context, publicID string) ([]*model.Notification, error)
	}

	peer struct {
		conn *websocket.Conn
		// gorilla connections allow one concurrent writer.
		mu sync.Mutex
	}

	// Hub tracks one notification socket per party and implements
	// ledger.Notifier.
	Hub struct {
		mu     sync.Mutex
		mapper map[string]*peer
		inbox  Inbox
	}
)

func NewHub(inbox Inbox) *Hub {
	return &Hub{
		mapper: make(map[string]*peer),
		inbox:  inbox,
	}
}

func (p *peer) write(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLocked(v)
}

func (p *peer) writeLocked(v any) error {
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(v)
}

// Notify tells every recipient of msg that it was appended.
func (h *Hub) Notify(ctx context.Context, msg *model.Message) {
	n := &model.Notification{
		TicketID:  msg.TicketID,
		MessageID: msg.ID,
		Digest:    msg.Digest.Hex(),
	}
	for _, id := range msg.RecipientIDs() {
		h.deliver(ctx, id, n)
	}
}

func (h *Hub) deliver(ctx context.Context, publicID string, n *model.Notification) {
	if p := h.peer(publicID); p != nil {
		err := p.write(n)
		if err == nil {
			return
		}
		log.Debug("notification socket write failed", zap.String("publicId", publicID), zap.Error(err))
		h.drop(publicID, p)
	}
	h.park(ctx, publicID, n)
}

func (h *Hub) park(ctx context.Context, publicID string, notifications ...*model.Notification) {
	if h.inbox == nil {
		log.Warn("notification dropped, no inbox configured", zap.String("publicId", publicID))
		return
	}
	if err := h.inbox.Put(context.WithoutCancel(ctx), publicID, notifications...); err != nil {
		log.Error("PutNotifications failed", zap.String("publicId", publicID), zap.Error(err))
		return
	}
	metrics.NotificationsQueued.Add(float64(len(notifications)))
}

func (h *Hub) peer(publicID string) *peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mapper[publicID]
}

func (h *Hub) Connected(publicID string) bool {
	return h.peer(publicID) != nil
}

// register publishes a peer with its write lock held. Live notifications
// for the party queue behind that lock until flush has sent the parked ones.
func (h *Hub) register(publicID string, conn *websocket.Conn) (*peer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.mapper[publicID]; ok {
		return nil, fmt.Errorf("%w: %s", errAlreadyConnected, publicID)
	}
	p := &peer{conn: conn}
	p.mu.Lock()
	h.mapper[publicID] = p
	metrics.ConnectedParties.Inc()
	return p, nil
}

func (h *Hub) drop(publicID string, p *peer) {
	h.mu.Lock()
	if h.mapper[publicID] == p {
		delete(h.mapper, publicID)
		metrics.ConnectedParties.Dec()
	}
	h.mu.Unlock()

	p.conn.Close()
}

// Close disconnects every party.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := h.mapper
	h.mapper = make(map[string]*peer)
	h.mu.Unlock()

	for _, p := range peers {
		metrics.ConnectedParties.Dec()
		p.conn.Close()
	}
}

// flush forwards everything parked while the party was away and releases
// the write lock taken by register.
func (h *Hub) flush(ctx context.Context, publicID string, p *peer) error {
	defer p.mu.Unlock()

	if h.inbox == nil {
		return nil
	}
	pending, err := h.inbox.Drain(ctx, publicID)
	if err != nil {
		return err
	}

	for i, n := range pending {
		if err := p.writeLocked(n); err != nil {
			h.drop(publicID, p)
			h.park(ctx, publicID, pending[i:]...)
			return err
		}
	}
	return nil
}

// challenge makes the socket prove it holds the secret behind publicID.
// Without it anyone could subscribe as any party and drain its inbox.
func challenge(conn *websocket.Conn, publicID string) error {
	c, err := dh.NewChallenge(publicID)
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(c); err != nil {
		return fmt.Errorf("send challenge: %w", err)
	}

	var a dh.Answer
	conn.SetReadDeadline(time.Now().Add(handshakeWait))
	if err := conn.ReadJSON(&a); err != nil {
		return fmt.Errorf("read answer: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if !c.Accepts(&a) {
		return errChallengeFailed
	}
	return nil
}

func (s *HttpServer) HandleInitWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		publicID := r.URL.Query().Get("publicId")
		if publicID == "" {
			writeError(w, "connect", fmt.Errorf("%w: publicId cannot be empty", errBadRequest))
			return
		}

		party, err := s.parties.GetByPublicID(r.Context(), publicID)
		if err != nil {
			writeError(w, "connect", err)
			return
		}
		if party == nil {
			writeError(w, "connect", fmt.Errorf("%w: %s", errPartyNotFound, publicID))
			return
		}
		if s.hub.Connected(publicID) {
			writeError(w, "connect", fmt.Errorf("%w: %s", errAlreadyConnected, party.Name))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("websocket upgrade failed", zap.Error(err))
			return
		}

		if err := challenge(conn, publicID); err != nil {
			log.Warn("notification socket rejected", zap.String("name", party.Name), zap.Error(err))
			reject(conn, errChallengeFailed.Error())
			return
		}

		p, err := s.hub.register(publicID, conn)
		if err != nil {
			reject(conn, errAlreadyConnected.Error())
			return
		}
		log.Info("party connected", zap.String("name", party.Name))

		go s.hub.readLoop(publicID, p)

		if err := s.hub.flush(context.WithoutCancel(r.Context()), publicID, p); err != nil {
			log.Error("forward notifications failed", zap.String("publicId", publicID), zap.Error(err))
		}
	}
}

func reject(conn *websocket.Conn, reason string) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(writeWait))
	conn.Close()
}

// readLoop only watches for the peer going away; past the challenge parties
// never send on the notification socket.
func (h *Hub) readLoop(publicID string, p *peer) {
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			log.Debug("notification socket closed", zap.String("publicId", publicID), zap.Error(err))
			h.drop(publicID, p)
			return
		}
	}
}
