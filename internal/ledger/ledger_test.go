package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket_ledger/internal/cryptographic/dh"
	"ticket_ledger/internal/cryptographic/envelope"
	"ticket_ledger/internal/cryptographic/hash"
	"ticket_ledger/internal/cryptographic/signature"
	"ticket_ledger/internal/ledger"
	"ticket_ledger/internal/ledger/chain"
	"ticket_ledger/internal/ledger/merkle"
	"ticket_ledger/internal/model"
	"ticket_ledger/internal/repository/message"
)

type memCache struct {
	mu sync.Mutex
	m  map[string]*model.Commitment
}

func (c *memCache) SaveCommitment(ctx context.Context, cm *model.Commitment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]*model.Commitment)
	}
	c.m[cm.TicketID] = cm
	return nil
}

func (c *memCache) GetCommitment(ctx context.Context, ticketID string) (*model.Commitment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[ticketID], nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []*model.Message
}

func (n *recordingNotifier) Notify(ctx context.Context, msg *model.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

type brokenStore struct {
	*message.MemoryRepo
	err error
}

func (b *brokenStore) ListByTicket(ctx context.Context, ticketID string) ([]*model.Message, error) {
	return nil, b.err
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func party(t *testing.T) envelope.Recipient {
	t.Helper()
	secret, _, err := dh.NewParty()
	require.NoError(t, err)
	r, err := envelope.RecipientFromSecret(secret)
	require.NoError(t, err)
	return r
}

func appendMsg(t *testing.T, svc *ledger.Service, ticket string, parent *model.Message, body string, to ...envelope.Recipient) *model.Message {
	t.Helper()
	req := ledger.AppendRequest{TicketID: ticket, Plaintext: []byte(body), Recipients: to}
	if parent != nil {
		id := parent.ID
		req.ParentID = &id
	}
	m, err := svc.AppendMessage(context.Background(), req)
	require.NoError(t, err)
	return m
}

func TestAppend_LinearChainAndRoot(t *testing.T) {
	ctx := context.Background()
	store := message.NewMemoryRepo()
	svc := ledger.NewService(store)
	bank := party(t)

	m1 := appendMsg(t, svc, "t1", nil, "pain.001", bank)
	m2 := appendMsg(t, svc, "t1", m1, "fxtr.014", bank)
	m3 := appendMsg(t, svc, "t1", m2, "pacs.002", bank)
	assert.Equal(t, model.Unverified, m3.Verification)
	assert.Equal(t, hash.Keccak256([]byte("pacs.002")), m3.Digest)

	ordered, err := svc.ChainOrder(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{m1.ID, m2.ID, m3.ID}, chain.IDs(ordered))

	r1, err := svc.Root(ctx, "t1")
	require.NoError(t, err)
	r2, err := svc.Root(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, r1.Root, r2.Root)
	assert.Equal(t, 3, r1.Size)

	tree, err := merkle.Build([]hash.Hash{m1.Digest, m2.Digest, m3.Digest})
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), r1.Root)

	appendMsg(t, svc, "t1", m3, "camt.054", bank)
	r3, err := svc.Root(ctx, "t1")
	require.NoError(t, err)
	assert.NotEqual(t, r1.Root, r3.Root)
	assert.Equal(t, 4, r3.Size)
}

func TestAppend_StoredMessageOpensForRecipientsOnly(t *testing.T) {
	ctx := context.Background()
	svc := ledger.NewService(message.NewMemoryRepo())
	bankA, bankB, outsider := party(t), party(t), party(t)

	m := appendMsg(t, svc, "t1", nil, "confidential", bankA, bankB)

	stored, err := svc.Message(ctx, "t1", m.ID)
	require.NoError(t, err)

	for _, p := range []envelope.Recipient{bankA, bankB} {
		plain, err := envelope.Open(envelope.FromMessage(stored), p.Secret)
		require.NoError(t, err)
		assert.Equal(t, "confidential", string(plain))
	}
	_, err = envelope.Open(envelope.FromMessage(stored), outsider.Secret)
	assert.ErrorIs(t, err, envelope.ErrNotAuthorized)
}

func TestAppend_ChainViolationsWriteNothing(t *testing.T) {
	ctx := context.Background()
	store := message.NewMemoryRepo()
	svc := ledger.NewService(store)
	bank := party(t)
	ghost := "ghost"

	_, err := svc.AppendMessage(ctx, ledger.AppendRequest{TicketID: "t1", Plaintext: []byte("a"), ParentID: &ghost, Recipients: []envelope.Recipient{bank}})
	assert.ErrorIs(t, err, chain.ErrNoRoot)

	root := appendMsg(t, svc, "t1", nil, "root", bank)

	_, err = svc.AppendMessage(ctx, ledger.AppendRequest{TicketID: "t1", Plaintext: []byte("second root"), Recipients: []envelope.Recipient{bank}})
	assert.ErrorIs(t, err, chain.ErrMultipleRoots)

	_, err = svc.AppendMessage(ctx, ledger.AppendRequest{TicketID: "t1", Plaintext: []byte("orphan"), ParentID: &ghost, Recipients: []envelope.Recipient{bank}})
	assert.ErrorIs(t, err, chain.ErrOrphan)

	_, err = svc.AppendMessage(ctx, ledger.AppendRequest{TicketID: "t1", Plaintext: []byte("root"), ParentID: &root.ID, Recipients: []envelope.Recipient{bank}})
	assert.ErrorIs(t, err, ledger.ErrDuplicateDigest)

	_, err = svc.AppendMessage(ctx, ledger.AppendRequest{Plaintext: []byte("x"), Recipients: []envelope.Recipient{bank}})
	assert.ErrorIs(t, err, ledger.ErrInvalidTicket)

	list, err := store.ListByTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAppend_CryptoFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := message.NewMemoryRepo()

	svc := ledger.NewService(store)
	_, err := svc.AppendMessage(ctx, ledger.AppendRequest{TicketID: "t1", Plaintext: []byte("x")})
	assert.ErrorIs(t, err, envelope.ErrNoRecipients)

	svc = ledger.NewService(store, ledger.WithSealer(envelope.New(envelope.WithRand(emptyReader{}))))
	_, err = svc.AppendMessage(ctx, ledger.AppendRequest{TicketID: "t1", Plaintext: []byte("x"), Recipients: []envelope.Recipient{party(t)}})
	assert.ErrorIs(t, err, envelope.ErrRandomnessUnavailable)

	state, _, err := svc.TicketState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TicketEmpty, state)
}

func TestProofAndVerify(t *testing.T) {
	ctx := context.Background()
	store := message.NewMemoryRepo()
	svc := ledger.NewService(store)
	bank := party(t)

	m1 := appendMsg(t, svc, "t1", nil, "one", bank)
	m2 := appendMsg(t, svc, "t1", m1, "two", bank)
	m3 := appendMsg(t, svc, "t1", m2, "three", bank)

	for _, m := range []*model.Message{m1, m2, m3} {
		proof, err := svc.Proof(ctx, "t1", m.Digest)
		require.NoError(t, err)
		assert.True(t, merkle.Verify(proof.Root, m.Digest, proof.Siblings))

		res, err := svc.Verify(ctx, "t1", m.Digest, proof.Siblings, nil)
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.False(t, res.RootMismatch)
		assert.Equal(t, m.ID, res.MessageID)
		assert.Equal(t, model.Verified, res.State)
	}

	proof, err := svc.Proof(ctx, "t1", m1.Digest)
	require.NoError(t, err)
	bad := append([]hash.Hash(nil), proof.Siblings...)
	bad[0][0] ^= 1
	res, err := svc.Verify(ctx, "t1", m1.Digest, bad, nil)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Empty(t, res.State)

	list, err := store.ListByTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.Verified, list[0].Verification)
	assert.Equal(t, model.Verified, list[1].Verification)

	_, err = svc.Proof(ctx, "t1", hash.Keccak256([]byte("absent")))
	assert.ErrorIs(t, err, merkle.ErrLeafNotFound)

	res, err = svc.Verify(ctx, "t1", hash.Keccak256([]byte("absent")), proof.Siblings, nil)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Empty(t, res.MessageID)
}

func TestVerify_ForeignProofLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	store := message.NewMemoryRepo()
	svc := ledger.NewService(store)
	bank := party(t)

	m1 := appendMsg(t, svc, "t1", nil, "one", bank)
	appendMsg(t, svc, "t1", m1, "two", bank)

	proof, err := svc.Proof(ctx, "t1", m1.Digest)
	require.NoError(t, err)
	res, err := svc.Verify(ctx, "t1", m1.Digest, proof.Siblings, nil)
	require.NoError(t, err)
	require.Equal(t, model.Verified, res.State)

	for _, junk := range [][]hash.Hash{{{}}, nil, append(proof.Siblings, proof.Siblings...)} {
		res, err = svc.Verify(ctx, "t1", m1.Digest, junk, nil)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Empty(t, res.MessageID)
		assert.Empty(t, res.State)
	}

	stored, err := svc.Message(ctx, "t1", m1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Verified, stored.Verification)
}

func TestVerify_AgainstExternalRoot(t *testing.T) {
	ctx := context.Background()
	svc := ledger.NewService(message.NewMemoryRepo())
	bank := party(t)

	m1 := appendMsg(t, svc, "t1", nil, "one", bank)
	m2 := appendMsg(t, svc, "t1", m1, "two", bank)

	anchored, err := svc.Root(ctx, "t1")
	require.NoError(t, err)
	oldProof, err := svc.Proof(ctx, "t1", m2.Digest)
	require.NoError(t, err)

	appendMsg(t, svc, "t1", m2, "three", bank)

	// The chain grew after anchoring: the old proof still holds against the
	// anchored root even though the local root moved on.
	res, err := svc.Verify(ctx, "t1", m2.Digest, oldProof.Siblings, &anchored.Root)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.True(t, res.RootMismatch)
	assert.Equal(t, anchored.Root, res.Root)
	assert.NotEqual(t, anchored.Root, res.LocalRoot)

	// A locally valid proof does not pass against a foreign anchored root.
	current, err := svc.Proof(ctx, "t1", m2.Digest)
	require.NoError(t, err)
	foreign := hash.Keccak256([]byte("someone else's root"))
	res, err = svc.Verify(ctx, "t1", m2.Digest, current.Siblings, &foreign)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.True(t, res.RootMismatch)
	assert.Equal(t, model.Failed, res.State)
}

func TestTicketStateAndSignedCommitment(t *testing.T) {
	ctx := context.Background()
	cache := &memCache{}
	signer, err := signature.NewSignerFromSeed(make([]byte, 32))
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := ledger.NewService(message.NewMemoryRepo(),
		ledger.WithCommitmentCache(cache),
		ledger.WithSigner(signer),
		ledger.WithClock(func() time.Time { return now }),
	)
	bank := party(t)

	state, _, err := svc.TicketState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TicketEmpty, state)

	m1 := appendMsg(t, svc, "t1", nil, "one", bank)
	state, _, err = svc.TicketState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TicketOpen, state)

	c, err := svc.Root(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, signature.VerifyCommitment(signer.PublicKey(), c))
	assert.Equal(t, now, c.CommittedAt)

	state, cached, err := svc.TicketState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TicketCommitted, state)
	assert.Equal(t, c.Root, cached.Root)

	// Committed is advisory: appends keep working.
	appendMsg(t, svc, "t1", m1, "two", bank)
	state, _, err = svc.TicketState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TicketCommitted, state)
}

func TestReadsOnUnknownTicket(t *testing.T) {
	ctx := context.Background()
	svc := ledger.NewService(message.NewMemoryRepo())

	_, err := svc.Root(ctx, "nope")
	assert.ErrorIs(t, err, ledger.ErrTicketNotFound)
	_, err = svc.ChainOrder(ctx, "nope")
	assert.ErrorIs(t, err, ledger.ErrTicketNotFound)
	_, err = svc.Proof(ctx, "nope", hash.Hash{})
	assert.ErrorIs(t, err, ledger.ErrTicketNotFound)
	_, err = svc.Verify(ctx, "nope", hash.Hash{}, nil, nil)
	assert.ErrorIs(t, err, ledger.ErrTicketNotFound)
	_, err = svc.Message(ctx, "nope", "1")
	assert.ErrorIs(t, err, ledger.ErrTicketNotFound)
}

func TestStoreErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	svc := ledger.NewService(&brokenStore{MemoryRepo: message.NewMemoryRepo(), err: boom})

	_, err := svc.Root(ctx, "t1")
	assert.ErrorIs(t, err, boom)

	_, err = svc.AppendMessage(ctx, ledger.AppendRequest{TicketID: "t1", Plaintext: []byte("x"), Recipients: []envelope.Recipient{party(t)}})
	assert.ErrorIs(t, err, boom)
}

func TestSetVerification(t *testing.T) {
	ctx := context.Background()
	store := message.NewMemoryRepo()
	svc := ledger.NewService(store)
	m := appendMsg(t, svc, "t1", nil, "one", party(t))

	require.NoError(t, svc.SetVerification(ctx, m.ID, model.Verified))
	assert.ErrorIs(t, svc.SetVerification(ctx, m.ID, "maybe"), ledger.ErrInvalidState)
	assert.ErrorIs(t, svc.SetVerification(ctx, "999", model.Verified), ledger.ErrMessageNotFound)

	got, err := svc.Message(ctx, "t1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Verified, got.Verification)

	_, err = svc.Message(ctx, "t1", "999")
	assert.ErrorIs(t, err, ledger.ErrMessageNotFound)
}

func TestNotifierAndMessagesForParty(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	svc := ledger.NewService(message.NewMemoryRepo(), ledger.WithNotifier(n))
	bankA, bankB := party(t), party(t)

	a1 := appendMsg(t, svc, "t1", nil, "a1", bankA, bankB)
	appendMsg(t, svc, "t2", nil, "b1", bankB)
	appendMsg(t, svc, "t1", a1, "a2", bankB)

	require.Len(t, n.msgs, 3)
	assert.Equal(t, []string{bankA.PublicID, bankB.PublicID}, n.msgs[0].RecipientIDs())

	groups, err := svc.MessagesForParty(ctx, bankB.PublicID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "t1", groups[0].TicketID)
	assert.Len(t, groups[0].Messages, 2)
	assert.Equal(t, "t2", groups[1].TicketID)

	groups, err = svc.MessagesForParty(ctx, bankA.PublicID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Messages, 1)
}

func TestConcurrentAppendsKeepSingleRoot(t *testing.T) {
	ctx := context.Background()
	svc := ledger.NewService(message.NewMemoryRepo())
	bank := party(t)

	const n = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		roots   int
		rejects int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AppendMessage(ctx, ledger.AppendRequest{
				TicketID:   "race",
				Plaintext:  []byte(fmt.Sprintf("root candidate %d", i)),
				Recipients: []envelope.Recipient{bank},
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				roots++
			} else if errors.Is(err, chain.ErrMultipleRoots) {
				rejects++
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, roots)
	assert.Equal(t, n-1, rejects)

	ordered, err := svc.ChainOrder(ctx, "race")
	require.NoError(t, err)
	root := ordered[0]

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := root.ID
			_, err := svc.AppendMessage(ctx, ledger.AppendRequest{
				TicketID:   "race",
				Plaintext:  []byte(fmt.Sprintf("reply %d", i)),
				ParentID:   &id,
				Recipients: []envelope.Recipient{bank},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	ordered, err = svc.ChainOrder(ctx, "race")
	require.NoError(t, err)
	assert.Len(t, ordered, n+1)

	c, err := svc.Root(ctx, "race")
	require.NoError(t, err)
	for _, m := range ordered {
		p, err := svc.Proof(ctx, "race", m.Digest)
		require.NoError(t, err)
		assert.True(t, merkle.Verify(c.Root, m.Digest, p.Siblings))
	}
}
