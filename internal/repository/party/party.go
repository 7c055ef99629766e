package party

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ticket_ledger/internal/model"
)

type (
	PartyRepo struct {
		collection *mongo.Collection
	}
)

func NewPartyRepo(db *mongo.Database) *PartyRepo {
	return &PartyRepo{
		collection: db.Collection("parties"),
	}
}

func (r *PartyRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "public_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	return err
}

// GetByName returns nil, nil when no party has that name.
func (r *PartyRepo) GetByName(ctx context.Context, name string) (*model.Party, error) {
	return r.findOne(ctx, bson.M{"name": name})
}

func (r *PartyRepo) GetByPublicID(ctx context.Context, publicID string) (*model.Party, error) {
	return r.findOne(ctx, bson.M{"public_id": publicID})
}

func (r *PartyRepo) Create(ctx context.Context, party *model.Party) error {
	_, err := r.collection.InsertOne(ctx, party)
	if mongo.IsDuplicateKeyError(err) {
		return model.ErrDuplicateName
	}
	return err
}

func (r *PartyRepo) findOne(ctx context.Context, filter bson.M) (*model.Party, error) {
	var party model.Party
	err := r.collection.FindOne(ctx, filter).Decode(&party)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &party, nil
}
