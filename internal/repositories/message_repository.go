package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"project-chat/internal/models"
)

const messageCollection = "messages"

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines persistence for project chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	AddDeliveredTo(ctx context.Context, messageID, userID string) error
	AddReadBy(ctx context.Context, messageID, userID string) error
	SetReactions(ctx context.Context, messageID string, reactions []models.Reaction) error
	ListConversationMessages(ctx context.Context, conversationID string, limit int64) ([]models.Message, error)
}

type messageDocument struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	ConversationID  string             `bson:"conversation_id"`
	Sender          models.Sender      `bson:"sender"`
	Body            string             `bson:"message"`
	ParentMessageID *string            `bson:"parent_message_id"`
	Reactions       []models.Reaction  `bson:"reactions"`
	DeliveredTo     []string           `bson:"delivered_to"`
	ReadBy          []string           `bson:"read_by"`
	CreatedAt       time.Time          `bson:"created_at"`
}

func (d messageDocument) toModel() models.Message {
	msg := models.Message{
		ID:              d.ID.Hex(),
		ConversationID:  d.ConversationID,
		Sender:          d.Sender,
		Body:            d.Body,
		ParentMessageID: d.ParentMessageID,
		Reactions:       d.Reactions,
		DeliveredTo:     d.DeliveredTo,
		ReadBy:          d.ReadBy,
		CreatedAt:       d.CreatedAt,
		Persisted:       true,
	}
	if msg.Reactions == nil {
		msg.Reactions = []models.Reaction{}
	}
	if msg.DeliveredTo == nil {
		msg.DeliveredTo = []string{}
	}
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	return msg
}

// MessageRepo is a MongoDB-backed repository.
type MessageRepo struct {
	db *mongo.Database
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) collection() *mongo.Collection {
	return r.db.Collection(messageCollection)
}

// CreateMessage stores a message and returns it with its assigned id.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	doc := messageDocument{
		ConversationID:  msg.ConversationID,
		Sender:          msg.Sender,
		Body:            msg.Body,
		ParentMessageID: msg.ParentMessageID,
		Reactions:       []models.Reaction{},
		DeliveredTo:     []string{},
		ReadBy:          []string{},
		// BSON dates carry millisecond precision.
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	res, err := r.collection().InsertOne(ctx, doc)
	if err != nil {
		return models.Message{}, err
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return models.Message{}, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	doc.ID = id
	return doc.toModel(), nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	id, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return models.Message{}, ErrMessageNotFound
	}

	var doc messageDocument
	err = r.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return doc.toModel(), nil
}

// AddDeliveredTo adds userID to the delivered set.
func (r *MessageRepo) AddDeliveredTo(ctx context.Context, messageID, userID string) error {
	return r.update(ctx, messageID, bson.M{"$addToSet": bson.M{"delivered_to": userID}})
}

// AddReadBy adds userID to the read set.
func (r *MessageRepo) AddReadBy(ctx context.Context, messageID, userID string) error {
	return r.update(ctx, messageID, bson.M{"$addToSet": bson.M{"read_by": userID}})
}

// SetReactions replaces the reaction list.
func (r *MessageRepo) SetReactions(ctx context.Context, messageID string, reactions []models.Reaction) error {
	if reactions == nil {
		reactions = []models.Reaction{}
	}
	return r.update(ctx, messageID, bson.M{"$set": bson.M{"reactions": reactions}})
}

func (r *MessageRepo) update(ctx context.Context, messageID string, update bson.M) error {
	id, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return ErrMessageNotFound
	}
	res, err := r.collection().UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ListConversationMessages returns the latest limit messages, oldest first.
func (r *MessageRepo) ListConversationMessages(ctx context.Context, conversationID string, limit int64) ([]models.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection().Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	msgs := make([]models.Message, len(docs))
	for i, doc := range docs {
		msgs[len(docs)-1-i] = doc.toModel()
	}
	return msgs, nil
}
