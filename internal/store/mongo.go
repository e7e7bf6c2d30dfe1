package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/meeting"
)

// Mongo stores one document per meeting.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// OpenMongo connects to uri and checks the server is reachable.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if uri == "" {
		return nil, apperrors.New(apperrors.CodeConfig, "store.mongo_uri is required")
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodePersistence, "connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, apperrors.Wrap(err, apperrors.CodePersistence, "ping mongo")
	}
	return &Mongo{client: client, coll: client.Database(database).Collection(MeetingsCollection)}, nil
}

// Save upserts rec with $set of the ordered document.
func (m *Mongo) Save(ctx context.Context, rec meeting.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	filter := bson.D{{Key: "meeting_title", Value: rec.Title}, {Key: "date", Value: rec.Date}}
	update := bson.D{{Key: "$set", Value: Document(rec)}}
	if _, err := m.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return saveError(err, "mongo", rec)
	}
	return nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// Document renders rec with fields in storage order.
func Document(rec meeting.Record) bson.D {
	fields := rec.Fields()
	doc := make(bson.D, 0, len(fields))
	for _, f := range fields {
		doc = append(doc, bson.E{Key: f.Name, Value: f.Value})
	}
	return doc
}
