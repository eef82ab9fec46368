package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
)

// MongoStore implements Backend on MongoDB Atlas. Similarity search uses $vectorSearch
// pre-filtered by user and deletion flag, so the index must declare both as filter fields.
type MongoStore struct {
	client      *mongo.Client
	collection  *mongo.Collection
	vectorIndex string
	dimension   int
}

var _ Backend = (*MongoStore)(nil)

const mongoCloseTimeout = 5 * time.Second

func NewMongoStore(ctx context.Context, uri, database, collection string, dimension int) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	if dimension <= 0 {
		dimension = 768
	}
	return &MongoStore{
		client:      client,
		collection:  client.Database(database).Collection(collection),
		vectorIndex: "journal_vector_index",
		dimension:   dimension,
	}, nil
}

func (ms *MongoStore) Insert(ctx context.Context, m model.Memory) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	_, err := ms.collection.InsertOne(ctx, newMongoEntry(m))
	return err
}

func (ms *MongoStore) Get(ctx context.Context, id string) (model.Memory, error) {
	if ms == nil || ms.collection == nil {
		return model.Memory{}, ErrNotFound
	}
	var doc mongoEntry
	err := ms.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Memory{}, ErrNotFound
	}
	if err != nil {
		return model.Memory{}, err
	}
	return doc.toMemory(), nil
}

func (ms *MongoStore) Nearest(ctx context.Context, userID string, query []float32, limit int) ([]Candidate, error) {
	if ms == nil || ms.collection == nil || limit <= 0 || len(query) == 0 {
		return nil, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: ms.vectorIndex},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: float64Embedding(query)},
			{Key: "numCandidates", Value: int64(limit * 10)},
			{Key: "limit", Value: int64(limit)},
			{Key: "filter", Value: bson.D{
				{Key: "user_id", Value: userID},
				{Key: "deleted", Value: false},
			}},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
	cursor, err := ms.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Candidate
	for cursor.Next(ctx) {
		var doc struct {
			mongoEntry `bson:",inline"`
			Score      float64 `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, Candidate{Memory: doc.toMemory(), Distance: distanceFromVectorScore(doc.Score)})
	}
	return out, cursor.Err()
}

func (ms *MongoStore) List(ctx context.Context, f Filter) ([]model.Memory, error) {
	if ms == nil || ms.collection == nil {
		return nil, nil
	}
	dir := 1
	if f.Newest {
		dir = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: dir}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cursor, err := ms.collection.Find(ctx, mongoFilter(f), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	out := make([]model.Memory, 0)
	for cursor.Next(ctx) {
		var doc mongoEntry
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toMemory())
	}
	return out, cursor.Err()
}

func (ms *MongoStore) Count(ctx context.Context, f Filter) (int, error) {
	if ms == nil || ms.collection == nil {
		return 0, nil
	}
	n, err := ms.collection.CountDocuments(ctx, mongoFilter(f))
	return int(n), err
}

func (ms *MongoStore) SoftDelete(ctx context.Context, id string) (bool, error) {
	if ms == nil || ms.collection == nil {
		return false, nil
	}
	res, err := ms.collection.UpdateOne(ctx,
		bson.M{"_id": id, "deleted": false},
		bson.M{"$set": bson.M{"deleted": true, "deleted_at": time.Now().UTC()}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (ms *MongoStore) SoftDeleteMatching(ctx context.Context, f Filter) (int, error) {
	if ms == nil || ms.collection == nil {
		return 0, nil
	}
	res, err := ms.collection.UpdateMany(ctx, mongoFilter(f),
		bson.M{"$set": bson.M{"deleted": true, "deleted_at": time.Now().UTC()}})
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

// CreateSchema creates the timeline index and the Atlas vector search index.
func (ms *MongoStore) CreateSchema(ctx context.Context, _ string) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	_, err := ms.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "deleted", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("user_timeline"),
	})
	if err != nil {
		return err
	}
	cmd := bson.D{
		{Key: "createSearchIndexes", Value: ms.collection.Name()},
		{Key: "indexes", Value: bson.A{bson.D{
			{Key: "name", Value: ms.vectorIndex},
			{Key: "type", Value: "vectorSearch"},
			{Key: "definition", Value: bson.D{{Key: "fields", Value: bson.A{
				bson.D{{Key: "type", Value: "vector"}, {Key: "path", Value: "embedding"}, {Key: "numDimensions", Value: ms.dimension}, {Key: "similarity", Value: "cosine"}},
				bson.D{{Key: "type", Value: "filter"}, {Key: "path", Value: "user_id"}},
				bson.D{{Key: "type", Value: "filter"}, {Key: "path", Value: "deleted"}},
			}}}},
		}}},
	}
	return ms.collection.Database().RunCommand(ctx, cmd).Err()
}

// Close releases the underlying MongoDB client.
func (ms *MongoStore) Close() error {
	if ms == nil || ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

type mongoEntry struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	SessionID    string    `bson:"session_id"`
	Text         string    `bson:"text"`
	Topics       []string  `bson:"topics,omitempty"`
	Mood         string    `bson:"mood,omitempty"`
	LanguageCode string    `bson:"language_code,omitempty"`
	Embedding    []float64 `bson:"embedding,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	Deleted      bool      `bson:"deleted"`
}

func newMongoEntry(m model.Memory) mongoEntry {
	return mongoEntry{
		ID:           m.ID,
		UserID:       m.UserID,
		SessionID:    m.SessionID,
		Text:         m.Text,
		Topics:       m.Topics,
		Mood:         m.Mood,
		LanguageCode: m.LanguageCode,
		Embedding:    float64Embedding(m.Embedding),
		CreatedAt:    m.CreatedAt.UTC(),
		Deleted:      m.Deleted,
	}
}

func (doc mongoEntry) toMemory() model.Memory {
	return model.Memory{
		ID:           doc.ID,
		UserID:       doc.UserID,
		SessionID:    doc.SessionID,
		Text:         doc.Text,
		Topics:       doc.Topics,
		Mood:         doc.Mood,
		LanguageCode: doc.LanguageCode,
		Embedding:    float32Embedding(doc.Embedding),
		CreatedAt:    doc.CreatedAt.UTC(),
		Deleted:      doc.Deleted,
	}
}

func mongoFilter(f Filter) bson.M {
	filter := bson.M{"user_id": f.UserID, "deleted": false}
	created := bson.M{}
	if !f.Start.IsZero() {
		created["$gte"] = f.Start.UTC()
	}
	if !f.End.IsZero() {
		created["$lte"] = f.End.UTC()
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	return filter
}

// distanceFromVectorScore inverts Atlas' cosine score, which is (1 + cos) / 2.
func distanceFromVectorScore(score float64) float64 {
	return 1 - (2*score - 1)
}

func float64Embedding(vec []float32) []float64 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

func float32Embedding(vec []float64) []float32 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
