package message

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ticket_ledger/internal/cryptographic/hash"
	"ticket_ledger/internal/model"
)

type (
	MessageRepo struct {
		collection *mongo.Collection
		counters   *mongo.Collection
	}

	counterDoc struct {
		ID  string `bson:"_id"`
		Seq int64  `bson:"seq"`
	}

	recipientKeyDoc struct {
		PublicID   string `bson:"public_id"`
		WrappedKey []byte `bson:"wrapped_key"`
		IV         []byte `bson:"iv"`
		Salt       []byte `bson:"salt"`
	}

	messageDoc struct {
		ID            primitive.ObjectID `bson:"_id,omitempty"`
		TicketID      string             `bson:"ticket_id"`
		Seq           int64              `bson:"seq"`
		ParentID      *string            `bson:"parent_id"`
		Digest        string             `bson:"digest"`
		Ciphertext    []byte             `bson:"ciphertext"`
		IV            []byte             `bson:"iv"`
		RecipientKeys []recipientKeyDoc  `bson:"recipient_keys"`
		Verification  string             `bson:"verification"`
		MessageType   string             `bson:"message_type,omitempty"`
		CreatedAt     time.Time          `bson:"created_at"`
	}
)

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{
		collection: db.Collection("messages"),
		counters:   db.Collection("counters"),
	}
}

// seqCounter names the counters document that orders message inserts.
const seqCounter = "messages"

// EnsureIndexes creates the lookup indexes and the per ticket digest
// uniqueness constraint.
func (r *MessageRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ticket_id", Value: 1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "recipient_keys.public_id", Value: 1}}},
		{
			Keys:    bson.D{{Key: "ticket_id", Value: 1}, {Key: "digest", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	return err
}

func (r *MessageRepo) Append(ctx context.Context, msg *model.Message) error {
	seq, err := r.nextSeq(ctx)
	if err != nil {
		return err
	}

	doc := toDoc(msg)
	doc.Seq = seq
	res, err := r.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", model.ErrDuplicateDigest, msg.Digest)
	}
	if err != nil {
		return err
	}

	msg.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return nil
}

// nextSeq draws the next value of a counter shared by every gateway
// process. ObjectIDs minted by different processes within one second do
// not sort by arrival, so insertion order is carried by seq instead.
func (r *MessageRepo) nextSeq(ctx context.Context) (int64, error) {
	var c counterDoc
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": seqCounter},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("next message seq: %w", err)
	}
	return c.Seq, nil
}

// ListByTicket returns the ticket's messages in insertion order.
func (r *MessageRepo) ListByTicket(ctx context.Context, ticketID string) ([]*model.Message, error) {
	return r.find(ctx, bson.M{"ticket_id": ticketID})
}

func (r *MessageRepo) ListByRecipient(ctx context.Context, publicID string) ([]*model.Message, error) {
	return r.find(ctx, bson.M{"recipient_keys.public_id": publicID})
}

func (r *MessageRepo) SetVerification(ctx context.Context, id string, state model.VerificationState) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: message %s", model.ErrNotFound, id)
	}

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"verification": string(state)}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: message %s", model.ErrNotFound, id)
	}
	return nil
}

func (r *MessageRepo) find(ctx context.Context, filter bson.M) ([]*model.Message, error) {
	cur, err := r.collection.Find(ctx, filter, findInOrder())
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]*model.Message, 0, len(docs))
	for i := range docs {
		m, err := fromDoc(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// findInOrder sorts by seq. _id breaks ties for documents written before
// seq existed, which all carry zero.
func findInOrder() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}})
}

func toDoc(m *model.Message) *messageDoc {
	keys := make([]recipientKeyDoc, 0, len(m.RecipientKeys))
	for _, rk := range m.RecipientKeys {
		keys = append(keys, recipientKeyDoc{
			PublicID:   rk.PublicID,
			WrappedKey: rk.WrappedKey,
			IV:         rk.IV,
			Salt:       rk.Salt,
		})
	}
	return &messageDoc{
		TicketID:      m.TicketID,
		ParentID:      m.ParentID,
		Digest:        m.Digest.Hex(),
		Ciphertext:    m.Ciphertext,
		IV:            m.IV,
		RecipientKeys: keys,
		Verification:  string(m.Verification),
		MessageType:   m.MessageType,
		CreatedAt:     m.CreatedAt,
	}
}

func fromDoc(d *messageDoc) (*model.Message, error) {
	digest, err := hash.Parse(d.Digest)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", d.ID.Hex(), err)
	}

	keys := make([]model.RecipientKey, 0, len(d.RecipientKeys))
	for _, rk := range d.RecipientKeys {
		keys = append(keys, model.RecipientKey{
			PublicID:   rk.PublicID,
			WrappedKey: rk.WrappedKey,
			IV:         rk.IV,
			Salt:       rk.Salt,
		})
	}
	return &model.Message{
		ID:            d.ID.Hex(),
		TicketID:      d.TicketID,
		ParentID:      d.ParentID,
		Digest:        digest,
		Ciphertext:    d.Ciphertext,
		IV:            d.IV,
		RecipientKeys: keys,
		Verification:  model.VerificationState(d.Verification),
		MessageType:   d.MessageType,
		CreatedAt:     d.CreatedAt,
	}, nil
}
