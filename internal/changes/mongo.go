package changes

import (
	"context"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLog stores records in the "changes" collection.
type MongoLog struct {
	col *mongo.Collection
}

func NewMongoLog(col *mongo.Collection) *MongoLog {
	col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "table", Value: 1}, {Key: "oid", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "property", Value: 1}}},
	})
	return &MongoLog{col: col}
}

func (m *MongoLog) Append(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := m.col.InsertOne(ctx, r)
	return err
}

func (m *MongoLog) Get(ctx context.Context, id string) (*Record, error) {
	var r Record
	if err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (m *MongoLog) Find(ctx context.Context, f Filter) ([]*Record, error) {
	filter := bson.M{}
	if f.Table != "" {
		filter["table"] = f.Table
	}
	if f.ObjectID != 0 {
		filter["oid"] = f.ObjectID
	}
	if f.User != "" {
		filter["user"] = f.User
	}
	if f.Property != "" {
		filter["property"] = f.Property
	}
	if f.Blog != "" {
		filter["blog"] = f.Blog
	}
	if f.Date != "" {
		from, to, err := dateRange(f.Date)
		if err != nil {
			return nil, err
		}
		filter["timestamp"] = bson.M{"$gte": from, "$lt": to}
	}
	dir := -1
	if f.Ascending {
		dir = 1
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: dir}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Record{}
	for cur.Next(ctx) {
		var r Record
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}
