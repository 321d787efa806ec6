// Package mongostore keeps messages and users in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userDoc struct {
	ID         string `bson:"_id"`
	FullName   string `bson:"fullName"`
	Email      string `bson:"email,omitempty"`
	ProfilePic string `bson:"profilePic,omitempty"`
}

type messageDoc struct {
	ID                 string    `bson:"_id"`
	SenderID           string    `bson:"senderId"`
	ReceiverID         string    `bson:"receiverId"`
	Text               *string   `bson:"text"`
	Image              *string   `bson:"image"`
	CreatedAt          time.Time `bson:"createdAt"`
	DeletedFor         []string  `bson:"deletedFor"`
	DeletedForEveryone bool      `bson:"deletedForEveryone"`
}

type Store struct {
	client   *mongo.Client
	messages *mongo.Collection
	users    *mongo.Collection
}

var messageIndexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "receiverId", Value: 1}, {Key: "createdAt", Value: 1}}},
}

func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	db := client.Database(database)
	s := &Store{client: client, messages: db.Collection("messages"), users: db.Collection("users")}
	if _, err := s.messages.Indexes().CreateMany(ctx, messageIndexes); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: indexes: %w", err)
	}
	log.Info().Str("module", "store.mongo").Str("database", database).Msg("store ready")
	return s, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Save(ctx context.Context, m *domain.Message) error {
	if _, err := s.messages.InsertOne(ctx, toDoc(m)); err != nil {
		return fmt.Errorf("mongostore: save message: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	var doc messageDoc
	err := s.messages.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: find message: %w", err)
	}
	m := fromDoc(doc)
	return &m, nil
}

// UpdateDeletionMarkers uses $addToSet so repeated hides stay a set.
func (s *Store) UpdateDeletionMarkers(ctx context.Context, id domain.MessageID, d domain.DeletionMarkers) (*domain.Message, error) {
	update := bson.M{}
	if d.HideFor != "" {
		update["$addToSet"] = bson.M{"deletedFor": string(d.HideFor)}
	}
	if d.ForEveryone {
		update["$set"] = bson.M{"deletedForEveryone": true}
	}
	if len(update) == 0 {
		return s.FindByID(ctx, id)
	}
	var doc messageDoc
	err := s.messages.FindOneAndUpdate(ctx, bson.M{"_id": string(id)}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: update markers: %w", err)
	}
	m := fromDoc(doc)
	return &m, nil
}

func (s *Store) ListConversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"senderId": string(a), "receiverId": string(b)},
		bson.M{"senderId": string(b), "receiverId": string(a)},
	}}
	cur, err := s.messages.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list conversation: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: decode conversation: %w", err)
	}
	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDoc(d))
	}
	return out, nil
}

func (s *Store) ListUsersExcept(ctx context.Context, self domain.UserID) ([]domain.User, error) {
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$ne": string(self)}},
		options.Find().SetProjection(bson.M{"password": 0}).SetSort(bson.D{{Key: "fullName", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: decode users: %w", err)
	}
	out := make([]domain.User, 0, len(docs))
	for _, u := range docs {
		out = append(out, domain.User{ID: domain.UserID(u.ID), FullName: u.FullName, Email: u.Email, ProfilePic: u.ProfilePic})
	}
	return out, nil
}

func toDoc(m *domain.Message) messageDoc {
	d := messageDoc{
		ID:                 string(m.ID),
		SenderID:           string(m.SenderID),
		ReceiverID:         string(m.ReceiverID),
		Text:               m.Text,
		Image:              m.Image,
		CreatedAt:          m.CreatedAt,
		DeletedFor:         make([]string, 0, len(m.DeletedFor)),
		DeletedForEveryone: m.DeletedForEveryone,
	}
	for _, u := range m.DeletedFor {
		d.DeletedFor = append(d.DeletedFor, string(u))
	}
	return d
}

func fromDoc(d messageDoc) domain.Message {
	m := domain.Message{
		ID:                 domain.MessageID(d.ID),
		SenderID:           domain.UserID(d.SenderID),
		ReceiverID:         domain.UserID(d.ReceiverID),
		Text:               d.Text,
		Image:              d.Image,
		CreatedAt:          d.CreatedAt.UTC(),
		DeletedFor:         make([]domain.UserID, 0, len(d.DeletedFor)),
		DeletedForEveryone: d.DeletedForEveryone,
	}
	for _, u := range d.DeletedFor {
		m.DeletedFor = append(m.DeletedFor, domain.UserID(u))
	}
	return m
}
