// Package mongo keeps accounts and the access log in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"selco.dev/staffauth/internal/auth"
)

const (
	accountsCollection  = "accounts"
	accessLogCollection = "access_log"
	emailIndexName      = "accounts_email_key"
)

type accountDoc struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Email        string        `bson:"email"`
	PasswordHash string        `bson:"passwordHash"`
	Class        string        `bson:"class"`
	Status       string        `bson:"status"`
	Name         string        `bson:"name"`
	Department   string        `bson:"department"`
	JobTitle     string        `bson:"jobTitle"`
	NationalID   string        `bson:"nationalId,omitempty"`
	CreatedAt    time.Time     `bson:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt"`
}

type accessDoc struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	ActorID    string        `bson:"actorId,omitempty"`
	Email      string        `bson:"email"`
	Action     string        `bson:"action"`
	Success    bool          `bson:"success"`
	Reason     string        `bson:"reason"`
	IP         string        `bson:"ip"`
	UserAgent  string        `bson:"userAgent"`
	OccurredAt time.Time     `bson:"occurredAt"`
}

// Store implements the account and audit stores over one database.
type Store struct {
	client   *mongo.Client
	accounts *mongo.Collection
	access   *mongo.Collection
}

var (
	_ auth.AccountStore = (*Store)(nil)
	_ auth.AuditStore   = (*Store)(nil)
)

// Open connects to uri and ensures the unique email index exists.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	s := New(client, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		accounts: db.Collection(accountsCollection),
		access:   db.Collection(accessLogCollection),
	}
}

// EnsureIndexes creates the unique email index that arbitrates concurrent
// registrations.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(emailIndexName),
	})
	if err != nil {
		return fmt.Errorf("mongo create email index: %w", err)
	}
	_, err = s.access.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}, {Key: "occurredAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo create access log index: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	var doc accountDoc
	err := s.accounts.FindOne(ctx, bson.D{{Key: "email", Value: email}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromAccountDoc(doc), nil
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	n, err := s.accounts.CountDocuments(ctx, bson.D{{Key: "email", Value: email}}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Save(ctx context.Context, acc *auth.Account) error {
	doc, err := toAccountDoc(acc)
	if err != nil {
		return err
	}
	if acc.ID == "" {
		doc.ID = bson.NewObjectID()
		if _, err := s.accounts.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return auth.ErrAlreadyExists
			}
			return err
		}
		acc.ID = doc.ID.Hex()
		return nil
	}
	res, err := s.accounts.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: doc.ID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "email", Value: doc.Email},
			{Key: "passwordHash", Value: doc.PasswordHash},
			{Key: "class", Value: doc.Class},
			{Key: "status", Value: doc.Status},
			{Key: "name", Value: doc.Name},
			{Key: "department", Value: doc.Department},
			{Key: "jobTitle", Value: doc.JobTitle},
			{Key: "nationalId", Value: doc.NationalID},
			{Key: "updatedAt", Value: doc.UpdatedAt},
		}}},
	)
	if mongo.IsDuplicateKeyError(err) {
		return auth.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) Append(ctx context.Context, entry *auth.AccessLogEntry) error {
	doc := toAccessDoc(entry)
	doc.ID = bson.NewObjectID()
	if _, err := s.access.InsertOne(ctx, doc); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = doc.ID.Hex()
	}
	return nil
}

func toAccountDoc(acc *auth.Account) (accountDoc, error) {
	doc := accountDoc{
		Email:        acc.Email,
		PasswordHash: acc.PasswordHash,
		Class:        string(acc.Class),
		Status:       string(acc.Status),
		Name:         acc.Profile.Name,
		Department:   acc.Profile.Department,
		JobTitle:     acc.Profile.JobTitle,
		NationalID:   acc.Profile.NationalID,
		CreatedAt:    acc.CreatedAt.UTC(),
		UpdatedAt:    acc.UpdatedAt.UTC(),
	}
	if acc.ID != "" {
		id, err := bson.ObjectIDFromHex(acc.ID)
		if err != nil {
			return accountDoc{}, fmt.Errorf("%w: account id %q", auth.ErrInvalidInput, acc.ID)
		}
		doc.ID = id
	}
	return doc, nil
}

func fromAccountDoc(doc accountDoc) *auth.Account {
	return &auth.Account{
		ID:           doc.ID.Hex(),
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Class:        auth.Class(doc.Class),
		Status:       auth.Status(doc.Status),
		Profile: auth.Profile{
			Name:       doc.Name,
			Department: doc.Department,
			JobTitle:   doc.JobTitle,
			NationalID: doc.NationalID,
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func toAccessDoc(entry *auth.AccessLogEntry) accessDoc {
	return accessDoc{
		ActorID:    entry.ActorID,
		Email:      entry.Email,
		Action:     entry.Action,
		Success:    entry.Success,
		Reason:     string(entry.Reason),
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		OccurredAt: entry.OccurredAt.UTC(),
	}
}
