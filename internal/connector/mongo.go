package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"webdsl/internal/config"
	"webdsl/pkg/wire"
)

// MongoConnector serves a MongoDB deployment. Requests without a database use the
// connection name as database.
type MongoConnector struct {
	name   string
	client *mongo.Client
}

// NewMongo creates the client. The driver connects lazily; call Ping to verify.
func NewMongo(ctx context.Context, cfg config.DBConnConfig) (*MongoConnector, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mongo %s: host is required", cfg.Name)
	}
	opts := options.Client().
		ApplyURI(fmt.Sprintf("mongodb://%s:%d/", cfg.Host, cfg.Port)).
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)
	if cfg.User != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.User,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo %s: %w", cfg.Name, err)
	}
	return &MongoConnector{name: cfg.Name, client: client}, nil
}

func (m *MongoConnector) Kind() string { return KindMongo }

func (m *MongoConnector) collection(db, coll string) (*mongo.Collection, error) {
	if coll == "" {
		return nil, fmt.Errorf("%w: collection is required", ErrInvalidRequest)
	}
	if db == "" {
		db = m.name
	}
	return m.client.Database(db).Collection(coll), nil
}

// Query runs find(filter) and returns the documents with ObjectIDs as hex strings.
func (m *MongoConnector) Query(ctx context.Context, req wire.DBQueryRequest) (any, error) {
	coll, err := m.collection(req.Database, req.Collection)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, toFilter(req.Filter))
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = normalize(d)
	}
	return out, nil
}

// Modify applies an insert, update ($set on every match) or delete (every match).
func (m *MongoConnector) Modify(ctx context.Context, req wire.DBModifyRequest) (wire.ModifyResult, error) {
	coll, err := m.collection(req.Database, req.Collection)
	if err != nil {
		return wire.ModifyResult{}, err
	}

	out := wire.ModifyResult{Status: wire.StatusSuccess}
	switch strings.ToLower(req.Modification) {
	case wire.ModInsert:
		if len(req.NewData) == 0 {
			return wire.ModifyResult{}, fmt.Errorf("%w: new_data is required for insert", ErrInvalidRequest)
		}
		res, err := coll.InsertOne(ctx, bson.M(req.NewData))
		if err != nil {
			return wire.ModifyResult{}, err
		}
		out.Affected = 1
		out.InsertedID = normalize(res.InsertedID)
	case wire.ModUpdate:
		if len(req.NewData) == 0 {
			return wire.ModifyResult{}, fmt.Errorf("%w: new_data is required for update", ErrInvalidRequest)
		}
		res, err := coll.UpdateMany(ctx, toFilter(req.Filter), bson.M{"$set": bson.M(req.NewData)})
		if err != nil {
			return wire.ModifyResult{}, err
		}
		out.Affected = res.ModifiedCount
	case wire.ModDelete:
		res, err := coll.DeleteMany(ctx, toFilter(req.Filter))
		if err != nil {
			return wire.ModifyResult{}, err
		}
		out.Affected = res.DeletedCount
	default:
		return wire.ModifyResult{}, fmt.Errorf("%w: unknown modification %q", ErrInvalidRequest, req.Modification)
	}
	return out, nil
}

func (m *MongoConnector) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *MongoConnector) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// toFilter turns a JSON filter into bson. A hex string under _id matches an ObjectID.
func toFilter(f map[string]any) bson.M {
	out := bson.M{}
	for k, v := range f {
		if s, ok := v.(string); ok && k == "_id" {
			if oid, err := primitive.ObjectIDFromHex(s); err == nil {
				out[k] = oid
				continue
			}
		}
		out[k] = v
	}
	return out
}

// normalize converts driver values into plain JSON friendly values.
func normalize(v any) any {
	switch x := v.(type) {
	case bson.M:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case map[string]any:
		return normalize(bson.M(x))
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	case []any:
		return normalize(bson.A(x))
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.Decimal128:
		return x.String()
	}
	return v
}
