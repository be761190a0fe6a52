package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ActivityColName   = "request_activity"
	ActivityRetention = 365 * 24 * time.Hour
)

// RequestActivity is one audit line of the request workflow.
type RequestActivity struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RequestID  string             `bson:"request_id" json:"request_id"`
	Action     string             `bson:"action" json:"action"`
	FromStage  RequestStage       `bson:"from_stage,omitempty" json:"from_stage,omitempty"`
	ToStage    RequestStage       `bson:"to_stage,omitempty" json:"to_stage,omitempty"`
	ActorID    string             `bson:"actor_id,omitempty" json:"actor_id,omitempty"`
	ActorEmail string             `bson:"actor_email,omitempty" json:"actor_email,omitempty"`
	Note       string             `bson:"note,omitempty" json:"note,omitempty"`
	At         time.Time          `bson:"at" json:"at"`
	ExpiresAt  time.Time          `bson:"expires_at" json:"-"`
}

type ActivityRepo interface {
	RecordActivity(ctx context.Context, activity *RequestActivity) error
	ListActivity(ctx context.Context, requestID uuid.UUID, limit int) ([]*RequestActivity, error)
	EnsureIndexes(ctx context.Context) error
}

func (mdb *MongodbRepo) GetCollection(ctx context.Context, colName string) (*mongo.Collection, error) {
	if mdb.mongodbClient == nil {
		return nil, fmt.Errorf("mongodb client is not initialized")
	}
	return mdb.mongodbClient.Database(mdb.dbName).Collection(colName), nil
}

// EnsureIndexes creates the TTL and lookup indexes of the activity log.
func (mdb *MongodbRepo) EnsureIndexes(ctx context.Context) error {
	col, err := mdb.GetCollection(ctx, ActivityColName)
	if err != nil {
		return fmt.Errorf("error getting collection: %v", err)
	}

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetExpireAfterSeconds(0).
				SetName("expires_at_ttl"),
		},
		{
			Keys: bson.D{
				{Key: "request_id", Value: 1},
				{Key: "at", Value: -1},
			},
			Options: options.Index().SetName("request_at_idx"),
		},
	}

	if _, err := col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("error creating indexes: %v", err)
	}
	return nil
}

func (mdb *MongodbRepo) RecordActivity(ctx context.Context, activity *RequestActivity) error {
	col, err := mdb.GetCollection(ctx, ActivityColName)
	if err != nil {
		return fmt.Errorf("error getting collection: %v", err)
	}

	if activity.At.IsZero() {
		activity.At = time.Now()
	}
	activity.ExpiresAt = activity.At.Add(ActivityRetention)
	if activity.ID.IsZero() {
		activity.ID = primitive.NewObjectID()
	}

	if _, err := col.InsertOne(ctx, activity); err != nil {
		return fmt.Errorf("error inserting request activity: %v", err)
	}
	return nil
}

// ListActivity returns the newest entries first.
func (mdb *MongodbRepo) ListActivity(ctx context.Context, requestID uuid.UUID, limit int) ([]*RequestActivity, error) {
	col, err := mdb.GetCollection(ctx, ActivityColName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection: %v", err)
	}
	if limit <= 0 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := col.Find(ctx, bson.M{"request_id": requestID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding request activity: %v", err)
	}
	defer cursor.Close(ctx)

	var out []*RequestActivity
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding request activity: %v", err)
	}
	return out, nil
}

// NoopActivityRepo is used when no MongoDB is configured.
type NoopActivityRepo struct{}

func (NoopActivityRepo) RecordActivity(context.Context, *RequestActivity) error { return nil }

func (NoopActivityRepo) ListActivity(context.Context, uuid.UUID, int) ([]*RequestActivity, error) {
	return []*RequestActivity{}, nil
}

func (NoopActivityRepo) EnsureIndexes(context.Context) error { return nil }
