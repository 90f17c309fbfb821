package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kitalumni/alumnichat/internal/store"
)

const (
	ChatCollectionName = "chats"
	UserCollectionName = "users"
)

// Options configures the Mongo connection.
type Options struct {
	URI            string
	Database       string
	AppName        string
	MinPoolSize    uint64
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

type chatDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Sender    string             `bson:"sender"`
	Receiver  string             `bson:"receiver"`
	Message   string             `bson:"message"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

// MongoStore implements store.Store on top of the chats and users collections.
type MongoStore struct {
	client *mongo.Client
	chats  *mongo.Collection
	users  *mongo.Collection
	log    *zerolog.Logger
	now    func() time.Time
}

var _ store.Store = (*MongoStore)(nil)

// New connects to MongoDB, verifies the connection and ensures indexes.
func New(ctx context.Context, opts Options, logger *zerolog.Logger) (*MongoStore, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	clientOptions := options.Client().ApplyURI(opts.URI)
	if opts.AppName != "" {
		clientOptions.SetAppName(opts.AppName)
	}
	if opts.MinPoolSize > 0 {
		clientOptions.SetMinPoolSize(opts.MinPoolSize)
	}
	if opts.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.ConnectTimeout > 0 {
		clientOptions.SetConnectTimeout(opts.ConnectTimeout)
	}
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.Debug().Str("address", evt.Address).Msg("mongo connection created")
			case event.ConnectionClosed:
				logger.Debug().Str("address", evt.Address).Str("reason", evt.Reason).Msg("mongo connection closed")
			}
		},
	})

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(opts.Database)
	s := &MongoStore{
		client: client,
		chats:  db.Collection(ChatCollectionName),
		users:  db.Collection(UserCollectionName),
		log:    logger,
		now:    time.Now,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.chats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("chats_pair_created_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("create chat indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Append inserts a chat document and returns it with the generated ObjectID.
func (s *MongoStore) Append(ctx context.Context, sender, receiver, body string) (*store.ChatMessage, error) {
	if sender == "" || receiver == "" {
		return nil, store.ErrEmptyID
	}

	// Mongo keeps millisecond precision; truncate so the returned record matches what is stored.
	now := s.now().UTC().Truncate(time.Millisecond)
	doc := chatDocument{
		ID:        primitive.NewObjectID(),
		Sender:    sender,
		Receiver:  receiver,
		Message:   body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.chats.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("unique key conflicts: %w", err)
		}
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	return doc.toChatMessage(), nil
}

// History returns the latest messages between two users in chronological order.
func (s *MongoStore) History(ctx context.Context, userA, userB string, limit int) ([]store.ChatMessage, error) {
	if userA == "" || userB == "" {
		return nil, store.ErrEmptyID
	}

	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "sender", Value: userA}, {Key: "receiver", Value: userB}},
		bson.D{{Key: "sender", Value: userB}, {Key: "receiver", Value: userA}},
	}}}
	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(store.NormalizeLimit(limit)))

	startTime := time.Now()
	cursor, err := s.chats.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("find chats: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []chatDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode chats: %w", err)
	}
	s.log.Debug().Dur("cost", time.Since(startTime)).Int("count", len(docs)).Msg("chat history query")

	messages := make([]store.ChatMessage, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- {
		messages = append(messages, *docs[i].toChatMessage())
	}
	return messages, nil
}

// SetOnline updates isOnline on the user document. A missing user is not an error.
func (s *MongoStore) SetOnline(ctx context.Context, userID string, online bool) error {
	if userID == "" {
		return store.ErrEmptyID
	}

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "isOnline", Value: online},
		{Key: "updatedAt", Value: s.now().UTC()},
	}}}
	result, err := s.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: userKey(userID)}}, update)
	if err != nil {
		return fmt.Errorf("update user online flag: %w", err)
	}

	s.log.Debug().
		Str("user_id", userID).
		Bool("online", online).
		Int64("matched", result.MatchedCount).
		Msg("user online flag updated")
	return nil
}

// IsOnline reads isOnline from the user document.
func (s *MongoStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, store.ErrEmptyID
	}

	var doc struct {
		IsOnline bool `bson:"isOnline"`
	}
	err := s.users.FindOne(ctx, bson.D{{Key: "_id", Value: userKey(userID)}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("find user: %w", err)
	}
	return doc.IsOnline, nil
}

// ResetOnline marks every user offline.
func (s *MongoStore) ResetOnline(ctx context.Context) (int64, error) {
	result, err := s.users.UpdateMany(ctx,
		bson.D{{Key: "isOnline", Value: true}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "isOnline", Value: false}}}},
	)
	if err != nil {
		return 0, fmt.Errorf("reset online flags: %w", err)
	}
	return result.ModifiedCount, nil
}

// userKey matches ObjectID-keyed user documents and falls back to plain string ids.
func userKey(userID string) any {
	if oid, err := primitive.ObjectIDFromHex(userID); err == nil {
		return oid
	}
	return userID
}

func (d chatDocument) toChatMessage() *store.ChatMessage {
	return &store.ChatMessage{
		ID:        d.ID.Hex(),
		Sender:    d.Sender,
		Receiver:  d.Receiver,
		Body:      d.Message,
		CreatedAt: d.CreatedAt,
	}
}
