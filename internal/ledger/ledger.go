// Package ledger keeps the verifiable message chain of every ticket.
//
// A ticket moves from empty to open with its first (root) message and stays
// open for further appends. Asking for a root additionally marks it
// committed; that is advisory metadata for whoever anchors the root
// externally, the chain keeps accepting messages.
//
// Operations on one ticket are serialised by a per ticket lock. Sealing,
// which is the expensive part of an append, happens before the lock is
// taken. Snapshots (ordered chain, tree, root) are recomputed from the store
// on every call and never cached as mutable state.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"ticket_ledger/internal/cryptographic/envelope"
	"ticket_ledger/internal/cryptographic/hash"
	"ticket_ledger/internal/cryptographic/signature"
	"ticket_ledger/internal/ledger/chain"
	"ticket_ledger/internal/ledger/merkle"
	"ticket_ledger/internal/metrics"
	"ticket_ledger/internal/model"
	"ticket_ledger/internal/utils/log"
)

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrInvalidTicket   = errors.New("ticket id is required")
	ErrInvalidState    = errors.New("invalid verification state")
	ErrMessageNotFound = model.ErrNotFound
	ErrDuplicateDigest = model.ErrDuplicateDigest
)

type (
	// Store persists sealed messages. Lists come back in insertion order.
	Store interface {
		Append(ctx context.Context, msg *model.Message) error
		ListByTicket(ctx context.Context, ticketID string) ([]*model.Message, error)
		ListByRecipient(ctx context.Context, publicID string) ([]*model.Message, error)
		SetVerification(ctx context.Context, id string, state model.VerificationState) error
	}

	CommitmentCache interface {
		SaveCommitment(ctx context.Context, c *model.Commitment) error
		GetCommitment(ctx context.Context, ticketID string) (*model.Commitment, error)
	}

	Notifier interface {
		Notify(ctx context.Context, msg *model.Message)
	}

	AppendRequest struct {
		TicketID    string
		Plaintext   []byte
		ParentID    *string
		Recipients  []envelope.Recipient
		MessageType string
	}

	TicketMessages struct {
		TicketID string           `json:"ticketId"`
		Messages []*model.Message `json:"messages"`
	}

	Service struct {
		store    Store
		sealer   *envelope.Sealer
		cache    CommitmentCache
		signer   *signature.Signer
		notifier Notifier
		locks    *ticketLocks
		now      func() time.Time
	}

	Option func(*Service)
)

func WithSealer(s *envelope.Sealer) Option {
	return func(svc *Service) { svc.sealer = s }
}

func WithCommitmentCache(c CommitmentCache) Option {
	return func(svc *Service) { svc.cache = c }
}

func WithSigner(s *signature.Signer) Option {
	return func(svc *Service) { svc.signer = s }
}

func WithNotifier(n Notifier) Option {
	return func(svc *Service) { svc.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		sealer: envelope.New(),
		locks:  newTicketLocks(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AppendMessage seals the plaintext for the recipients and appends it to the
// ticket chain. The first message of a ticket must be a root; every later one
// must name a parent already in the chain. Nothing is written when sealing or
// validation fails.
func (s *Service) AppendMessage(ctx context.Context, req AppendRequest) (*model.Message, error) {
	if req.TicketID == "" {
		return nil, ErrInvalidTicket
	}

	start := time.Now()
	sealed, err := s.sealer.Seal(req.Plaintext, req.Recipients)
	metrics.SealDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AppendFailures.WithLabelValues("crypto").Inc()
		return nil, fmt.Errorf("seal message: %w", err)
	}

	msg := &model.Message{
		TicketID:      req.TicketID,
		ParentID:      req.ParentID,
		Digest:        sealed.Digest,
		Ciphertext:    sealed.Ciphertext,
		IV:            sealed.IV,
		RecipientKeys: sealed.RecipientKeys,
		Verification:  model.Unverified,
		MessageType:   req.MessageType,
		CreatedAt:     s.now().UTC(),
	}

	// Once sealed the append runs to completion even if the caller goes away.
	if err := s.appendLocked(context.WithoutCancel(ctx), msg); err != nil {
		metrics.AppendFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	metrics.MessagesAppended.WithLabelValues(req.MessageType).Inc()
	log.Info("message appended",
		zap.String("ticket", msg.TicketID),
		zap.String("id", msg.ID),
		zap.Stringer("digest", msg.Digest),
		zap.Int("recipients", len(msg.RecipientKeys)),
	)

	if s.notifier != nil {
		s.notifier.Notify(ctx, msg)
	}
	return msg, nil
}

func (s *Service) appendLocked(ctx context.Context, msg *model.Message) error {
	unlock := s.locks.Lock(msg.TicketID)
	defer unlock()

	existing, err := s.store.ListByTicket(ctx, msg.TicketID)
	if err != nil {
		return err
	}

	if err := checkParent(existing, msg); err != nil {
		return err
	}
	for _, m := range existing {
		if m.Digest == msg.Digest {
			return fmt.Errorf("%w: %s already stored as %s", ErrDuplicateDigest, msg.Digest, m.ID)
		}
	}

	return s.store.Append(ctx, msg)
}

func checkParent(existing []*model.Message, msg *model.Message) error {
	if len(existing) == 0 {
		if msg.ParentID != nil {
			return fmt.Errorf("%w: first message of ticket %s references parent %s",
				chain.ErrNoRoot, msg.TicketID, *msg.ParentID)
		}
		return nil
	}

	if msg.ParentID == nil {
		return fmt.Errorf("%w: ticket %s already has a root", chain.ErrMultipleRoots, msg.TicketID)
	}
	for _, m := range existing {
		if m.ID == *msg.ParentID {
			return nil
		}
	}
	return fmt.Errorf("%w: parent %s is not in ticket %s", chain.ErrOrphan, *msg.ParentID, msg.TicketID)
}

// ChainOrder returns the ticket's messages in chain order.
func (s *Service) ChainOrder(ctx context.Context, ticketID string) ([]*model.Message, error) {
	unlock := s.locks.Lock(ticketID)
	defer unlock()

	return s.orderLocked(ctx, ticketID)
}

func (s *Service) orderLocked(ctx context.Context, ticketID string) ([]*model.Message, error) {
	messages, err := s.store.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
	}
	return chain.Order(messages)
}

// snapshot orders the chain and builds its tree under the ticket lock.
func (s *Service) snapshot(ctx context.Context, ticketID string) ([]*model.Message, *merkle.Tree, error) {
	unlock := s.locks.Lock(ticketID)
	defer unlock()

	ordered, err := s.orderLocked(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}

	digests := make([]hash.Hash, len(ordered))
	for i, m := range ordered {
		digests[i] = m.Digest
	}
	tree, err := merkle.Build(digests)
	if err != nil {
		return nil, nil, err
	}

	metrics.CommitmentsBuilt.Inc()
	metrics.ChainLength.Observe(float64(tree.Size()))
	return ordered, tree, nil
}

// Root computes the current commitment of the ticket, signs it when a signer
// is configured and records it as the last committed root.
func (s *Service) Root(ctx context.Context, ticketID string) (*model.Commitment, error) {
	_, tree, err := s.snapshot(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	c := &model.Commitment{
		TicketID:    ticketID,
		Root:        tree.Root(),
		Size:        tree.Size(),
		CommittedAt: s.now().UTC().Truncate(time.Second),
	}
	if s.signer != nil {
		s.signer.SignCommitment(c)
	}

	if s.cache != nil {
		if err := s.cache.SaveCommitment(ctx, c); err != nil {
			log.Warn("cache commitment failed", zap.String("ticket", ticketID), zap.Error(err))
		}
	}
	return c, nil
}

// Proof returns the inclusion proof of digest against the current root.
func (s *Service) Proof(ctx context.Context, ticketID string, digest hash.Hash) (*model.Proof, error) {
	_, tree, err := s.snapshot(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	siblings, err := tree.Prove(digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in ticket %s", err, digest, ticketID)
	}

	return &model.Proof{
		TicketID: ticketID,
		Digest:   digest,
		Root:     tree.Root(),
		Siblings: siblings,
	}, nil
}

// Verify checks an inclusion proof. With externalRoot set the proof is
// checked against that anchored value rather than the locally recomputed
// root, so a tampered local store cannot vouch for itself.
//
// The outcome is recorded on the matching message only when the submitted
// siblings are the ledger's own path for the digest. Any other proof is
// checked and reported but leaves the stored state alone, so an arbitrary
// caller cannot flip a verified message to failed.
func (s *Service) Verify(ctx context.Context, ticketID string, digest hash.Hash, siblings []hash.Hash, externalRoot *hash.Hash) (*model.VerifyResult, error) {
	ordered, tree, err := s.snapshot(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	res := &model.VerifyResult{
		Root:      tree.Root(),
		LocalRoot: tree.Root(),
	}
	if externalRoot != nil {
		res.Root = *externalRoot
		res.RootMismatch = *externalRoot != res.LocalRoot
	}
	res.Valid = merkle.Verify(res.Root, digest, siblings)

	result := "invalid"
	if res.Valid {
		result = "valid"
	}
	metrics.Verifications.WithLabelValues(result).Inc()

	if res.RootMismatch {
		log.Warn("local root differs from anchored root",
			zap.String("ticket", ticketID),
			zap.Stringer("local", res.LocalRoot),
			zap.Stringer("anchored", res.Root),
		)
	}

	own, err := tree.Prove(digest)
	if err != nil || !slices.Equal(own, siblings) {
		return res, nil
	}

	for _, m := range ordered {
		if m.Digest != digest {
			continue
		}
		state := model.Failed
		if res.Valid {
			state = model.Verified
		}
		if err := s.store.SetVerification(ctx, m.ID, state); err != nil {
			return nil, err
		}
		res.MessageID = m.ID
		res.State = state
		break
	}
	return res, nil
}

// SetVerification records a verification outcome reached elsewhere, e.g.
// against an on-chain root.
func (s *Service) SetVerification(ctx context.Context, messageID string, state model.VerificationState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	return s.store.SetVerification(ctx, messageID, state)
}

// Message returns one sealed message of a ticket.
func (s *Service) Message(ctx context.Context, ticketID, messageID string) (*model.Message, error) {
	messages, err := s.store.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
	}
	for _, m := range messages {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: message %s in ticket %s", ErrMessageNotFound, messageID, ticketID)
}

// TicketState reports empty, open or committed together with the last
// committed root, if any.
func (s *Service) TicketState(ctx context.Context, ticketID string) (model.TicketState, *model.Commitment, error) {
	messages, err := s.store.ListByTicket(ctx, ticketID)
	if err != nil {
		return "", nil, err
	}
	if len(messages) == 0 {
		return model.TicketEmpty, nil, nil
	}
	if s.cache == nil {
		return model.TicketOpen, nil, nil
	}

	c, err := s.cache.GetCommitment(ctx, ticketID)
	if err != nil {
		return "", nil, err
	}
	if c == nil {
		return model.TicketOpen, nil, nil
	}
	return model.TicketCommitted, c, nil
}

// MessagesForParty lists the messages that name publicID as a recipient,
// grouped by ticket in order of first appearance.
func (s *Service) MessagesForParty(ctx context.Context, publicID string) ([]TicketMessages, error) {
	messages, err := s.store.ListByRecipient(ctx, publicID)
	if err != nil {
		return nil, err
	}

	var out []TicketMessages
	pos := make(map[string]int)
	for _, m := range messages {
		i, ok := pos[m.TicketID]
		if !ok {
			i = len(out)
			pos[m.TicketID] = i
			out = append(out, TicketMessages{TicketID: m.TicketID})
		}
		out[i].Messages = append(out[i].Messages, m)
	}
	return out, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, chain.ErrNoRoot), errors.Is(err, chain.ErrMultipleRoots), errors.Is(err, chain.ErrOrphan):
		return "chain"
	case errors.Is(err, ErrDuplicateDigest):
		return "duplicate"
	default:
		return "store"
	}
}
