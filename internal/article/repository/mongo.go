package repository

import (
	"context"
	"fmt"

	"github.com/osmbc/articles/internal/article"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo stores articles in a MongoDB collection keyed by numeric _id.
// Ids come from a counters collection; updates are replaces filtered on
// the expected version.
type MongoRepo struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	col := db.Collection("article")
	ctx := context.Background()
	// wildcard text index backs FullTextSearch; blog index backs container queries
	col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "$**", Value: "text"}}},
		{Keys: bson.D{{Key: "blog", Value: 1}}},
	})
	return &MongoRepo{col: col, counters: db.Collection("counters")}
}

func (m *MongoRepo) nextID(ctx context.Context) (int64, error) {
	var res struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := m.counters.FindOneAndUpdate(ctx, bson.M{"_id": article.Table}, bson.M{"$inc": bson.M{"seq": 1}}, opts).Decode(&res)
	if err != nil {
		return 0, fmt.Errorf("next article id: %w", err)
	}
	return res.Seq, nil
}

func (m *MongoRepo) Get(ctx context.Context, id int64) (*article.Article, error) {
	var a article.Article
	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, article.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (m *MongoRepo) Put(ctx context.Context, a *article.Article) error {
	if a.ID == 0 {
		id, err := m.nextID(ctx)
		if err != nil {
			return err
		}
		rec := *a
		rec.ID = id
		rec.Version = 1
		if _, err := m.col.InsertOne(ctx, &rec); err != nil {
			return err
		}
		a.ID, a.Version = rec.ID, rec.Version
		return nil
	}
	rec := *a
	rec.Version = a.Version + 1
	res, err := m.col.ReplaceOne(ctx, bson.M{"_id": a.ID, "version": a.Version}, &rec)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := m.col.CountDocuments(ctx, bson.M{"_id": a.ID})
		if err != nil {
			return err
		}
		if n == 0 {
			return article.ErrNotFound
		}
		return article.ErrVersionConflict
	}
	a.Version = rec.Version
	return nil
}

func sortDoc(o article.Order) bson.D {
	field := o.Field
	if field == "" || field == "id" {
		field = "_id"
	}
	dir := 1
	if o.Desc {
		dir = -1
	}
	if field == "_id" {
		return bson.D{{Key: field, Value: dir}}
	}
	return bson.D{{Key: field, Value: dir}, {Key: "_id", Value: 1}}
}

func (m *MongoRepo) Find(ctx context.Context, q article.Query, o article.Order) ([]*article.Article, error) {
	filter := bson.M{}
	for k, v := range q {
		filter[k] = v
	}
	return m.find(ctx, filter, o)
}

func (m *MongoRepo) find(ctx context.Context, filter bson.M, o article.Order) ([]*article.Article, error) {
	cur, err := m.col.Find(ctx, filter, options.Find().SetSort(sortDoc(o)))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*article.Article{}
	for cur.Next(ctx) {
		var a article.Article
		if err := cur.Decode(&a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, cur.Err()
}

func (m *MongoRepo) FindOne(ctx context.Context, q article.Query) (*article.Article, error) {
	filter := bson.M{}
	for k, v := range q {
		filter[k] = v
	}
	var a article.Article
	err := m.col.FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})).Decode(&a)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, article.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FullTextSearch runs a phrase query so the whole text (usually a URL) must
// appear in one of the indexed attributes.
func (m *MongoRepo) FullTextSearch(ctx context.Context, text string, o article.Order) ([]*article.Article, error) {
	return m.find(ctx, bson.M{"$text": bson.M{"$search": `"` + text + `"`}}, o)
}

func (m *MongoRepo) Distinct(ctx context.Context, field string) ([]string, error) {
	vals, err := m.col.Distinct(ctx, field, bson.M{field: bson.M{"$nin": bson.A{nil, ""}}})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}
