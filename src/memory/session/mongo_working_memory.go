package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoWorkingMemory keeps one document per session with a capped message array.
type MongoWorkingMemory struct {
	client   *mongo.Client
	coll     *mongo.Collection
	capacity int
}

type mongoConversation struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Messages  []Message `bson:"messages"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoWorkingMemory connects to uri and uses database/collection for sessions.
func NewMongoWorkingMemory(ctx context.Context, uri, database, collection string, capacity int) (*MongoWorkingMemory, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MongoWorkingMemory{client: client, coll: client.Database(database).Collection(collection), capacity: capacity}, nil
}

func (m *MongoWorkingMemory) GetOrCreate(ctx context.Context, sessionID, userID string) error {
	if m == nil || m.coll == nil {
		return errors.New("mongo working memory is not initialised")
	}
	_, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$setOnInsert": bson.M{"user_id": userID, "messages": bson.A{}, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sessionID, err)
	}
	return nil
}

func (m *MongoWorkingMemory) Append(ctx context.Context, sessionID, role, content string) error {
	if m == nil || m.coll == nil {
		return errors.New("mongo working memory is not initialised")
	}
	res, err := m.coll.UpdateOne(ctx, bson.M{"_id": sessionID}, appendUpdate(Message{Role: role, Content: content, At: time.Now().UTC()}, m.capacity))
	if err != nil {
		return fmt.Errorf("append to %s: %w", sessionID, err)
	}
	if res.MatchedCount == 0 {
		return ErrUnknownSession
	}
	return nil
}

func (m *MongoWorkingMemory) Messages(ctx context.Context, sessionID string, maxTurns int) ([]Message, error) {
	if m == nil || m.coll == nil {
		return nil, nil
	}
	var doc mongoConversation
	err := m.coll.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return tail(doc.Messages, maxTurns), nil
}

func (m *MongoWorkingMemory) Delete(ctx context.Context, sessionID string) error {
	if m == nil || m.coll == nil {
		return nil
	}
	if _, err := m.coll.DeleteOne(ctx, bson.M{"_id": sessionID}); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// Close disconnects the client.
func (m *MongoWorkingMemory) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

// appendUpdate pushes msg and keeps only the newest capacity messages.
func appendUpdate(msg Message, capacity int) bson.M {
	return bson.M{
		"$push": bson.M{"messages": bson.M{"$each": bson.A{msg}, "$slice": -capacity}},
		"$set":  bson.M{"updated_at": msg.At},
	}
}
