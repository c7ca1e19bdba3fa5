package mongox

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrOrderExists = errors.New("order already exists")

type orderDoc struct {
	ID        string       `bson:"_id"`
	UserID    string       `bson:"userId"`
	Status    string       `bson:"status"`
	Version   int          `bson:"version"`
	CreatedAt time.Time    `bson:"createdAt"`
	Order     orders.Order `bson:"order"`
}

func toDoc(o *orders.Order) orderDoc {
	return orderDoc{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    string(o.Status),
		Version:   o.Version,
		CreatedAt: o.CreatedAt,
		Order:     *o,
	}
}

type OrderStore struct {
	coll *mongo.Collection
}

func NewOrderStore(db *mongo.Database) *OrderStore {
	return &OrderStore{coll: db.Collection(CollectionOrders)}
}

func (s *OrderStore) Insert(ctx context.Context, o *orders.Order) error {
	_, err := s.coll.InsertOne(ctx, toDoc(o))
	if mongo.IsDuplicateKeyError(err) {
		return ErrOrderExists
	}
	return err
}

func (s *OrderStore) Get(ctx context.Context, id string) (*orders.Order, error) {
	var doc orderDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc.Order, nil
}

func (s *OrderStore) List(ctx context.Context, userID string, limit int) ([]orders.Order, error) {
	filter := bson.M{}
	if userID != "" {
		filter["userId"] = userID
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []orders.Order{}
	for cur.Next(ctx) {
		var doc orderDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.Order)
	}
	return out, cur.Err()
}

func (s *OrderStore) Update(ctx context.Context, o *orders.Order, expectedVersion int) error {
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": o.ID, "version": expectedVersion}, toDoc(o))
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": o.ID})
	if err != nil {
		return err
	}
	if n == 0 {
		return orders.ErrOrderNotFound
	}
	return orders.ErrVersionConflict
}
