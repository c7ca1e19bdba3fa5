package mongox

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/stock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type productDoc struct {
	ID        string               `bson:"_id"`
	Name      string               `bson:"name"`
	Stock     int                  `bson:"stock"`
	Variants  []stock.VariantGroup `bson:"variants"`
	UpdatedAt time.Time            `bson:"updatedAt"`
}

func (d productDoc) product() *stock.Product {
	return &stock.Product{ID: d.ID, Name: d.Name, Stock: d.Stock, Variants: d.Variants, UpdatedAt: d.UpdatedAt}
}

// Ledger keeps one document per product. Reserve is a single
// findOneAndUpdate whose filter is the stock precondition.
type Ledger struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewLedger(db *mongo.Database) *Ledger {
	return &Ledger{coll: db.Collection(CollectionProducts), now: func() time.Time { return time.Now().UTC() }}
}

func deltaUpdate(r stock.Reservation, delta int, now time.Time) (bson.M, []any) {
	inc := bson.M{"stock": delta}
	var filters []any
	if r.Variant != "" {
		inc["variants.$[].options.$[opt].stock"] = delta
		filters = []any{bson.M{"opt.name": r.Variant}}
	}
	return bson.M{"$inc": inc, "$set": bson.M{"updatedAt": now}}, filters
}

func (l *Ledger) Reserve(ctx context.Context, r stock.Reservation) (*stock.Product, error) {
	if r.Quantity <= 0 {
		return nil, stock.ErrNoMatch
	}
	filter := bson.M{"_id": r.ProductID, "stock": bson.M{"$gte": r.Quantity}}
	if r.Variant != "" {
		filter["variants"] = bson.M{"$elemMatch": bson.M{
			"options": bson.M{"$elemMatch": bson.M{"name": r.Variant, "stock": bson.M{"$gte": r.Quantity}}},
		}}
	}
	update, arrayFilters := deltaUpdate(r, -r.Quantity, l.now())

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if arrayFilters != nil {
		opts.SetArrayFilters(options.ArrayFilters{Filters: arrayFilters})
	}

	var doc productDoc
	err := l.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, stock.ErrNoMatch
	}
	if err != nil {
		return nil, err
	}
	return doc.product(), nil
}

func (l *Ledger) Release(ctx context.Context, r stock.Reservation) error {
	update, arrayFilters := deltaUpdate(r, r.Quantity, l.now())
	opts := options.Update()
	if arrayFilters != nil {
		opts.SetArrayFilters(options.ArrayFilters{Filters: arrayFilters})
	}
	filter := bson.M{"_id": r.ProductID}
	if r.Variant != "" {
		filter["variants.options.name"] = r.Variant
	}
	res, err := l.coll.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := l.coll.CountDocuments(ctx, bson.M{"_id": r.ProductID})
	if err != nil {
		return err
	}
	if n == 0 {
		return stock.ErrNotFound
	}
	return stock.ErrOptionNotFound
}

func (l *Ledger) Get(ctx context.Context, productID string) (*stock.Product, error) {
	var doc productDoc
	err := l.coll.FindOne(ctx, bson.M{"_id": productID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, stock.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.product(), nil
}

func (l *Ledger) Put(ctx context.Context, p stock.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	variants := p.Variants
	if variants == nil {
		variants = []stock.VariantGroup{}
	}
	doc := productDoc{ID: p.ID, Name: p.Name, Stock: p.Stock, Variants: variants, UpdatedAt: l.now()}
	_, err := l.coll.ReplaceOne(ctx, bson.M{"_id": p.ID}, doc, options.Replace().SetUpsert(true))
	return err
}
