package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"civicfix/pkg/apperror"
	"civicfix/pkg/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	complaintsCollection = "complaints"
	countersCollection   = "counters"

	complaintSeq = "complaint_id"
	commentSeq   = "comment_id"
)

var _ ComplaintRepository = (*MongoComplaintRepository)(nil)

// MongoComplaintRepository stores complaints in MongoDB. Integer ids come from a
// counters collection so the JSON shape matches the in-memory store.
type MongoComplaintRepository struct {
	db  *mongo.Database
	now func() time.Time
}

func NewMongoComplaintRepository(db *mongo.Database) *MongoComplaintRepository {
	return &MongoComplaintRepository{db: db, now: time.Now}
}

func (r *MongoComplaintRepository) complaints() *mongo.Collection {
	return r.db.Collection(complaintsCollection)
}

// EnsureSeed inserts the demo dataset into an empty collection and aligns the counters.
func (r *MongoComplaintRepository) EnsureSeed(ctx context.Context) error {
	n, err := r.complaints().CountDocuments(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to count complaints: %w", err)
	}
	if n > 0 {
		return nil
	}

	seed := SeedComplaints()
	docs := make([]interface{}, len(seed))
	var maxID, maxComment int64
	for i, c := range seed {
		docs[i] = c
		maxID = max(maxID, c.ID)
		for _, cm := range c.Comments {
			maxComment = max(maxComment, cm.ID)
		}
	}
	if _, err := r.complaints().InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to seed complaints: %w", err)
	}

	counters := r.db.Collection(countersCollection)
	for name, v := range map[string]int64{complaintSeq: maxID, commentSeq: maxComment} {
		_, err := counters.UpdateOne(ctx,
			bson.M{"_id": name},
			bson.M{"$max": bson.M{"seq": v}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("failed to seed counter %s: %w", name, err)
		}
	}
	return nil
}

func (r *MongoComplaintRepository) nextSeq(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := r.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s: %w", name, err)
	}
	return doc.Seq, nil
}

func listQuery(f ListFilter) bson.M {
	q := bson.M{}
	if f.Status != "" && f.Status != "all" {
		q["status"] = f.Status
	}
	if f.Category != "" && f.Category != "all" {
		q["category"] = f.Category
	}
	if f.Location != "" {
		q["location.address"] = bson.M{"$regex": regexp.QuoteMeta(f.Location), "$options": "i"}
	}
	return q
}

func (r *MongoComplaintRepository) find(ctx context.Context, q bson.M) ([]models.Complaint, error) {
	cursor, err := r.complaints().Find(ctx, q, options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch complaints: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.Complaint{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode complaints: %w", err)
	}
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out, nil
}

func (r *MongoComplaintRepository) List(ctx context.Context, filter ListFilter) ([]models.Complaint, error) {
	return r.find(ctx, listQuery(filter))
}

func (r *MongoComplaintRepository) ListByReporter(ctx context.Context, userID int64) ([]models.Complaint, error) {
	return r.find(ctx, bson.M{"reported_by.id": userID})
}

func (r *MongoComplaintRepository) GetByID(ctx context.Context, id int64) (models.Complaint, error) {
	var c models.Complaint
	err := r.complaints().FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Complaint{}, errComplaintNotFound
	}
	if err != nil {
		return models.Complaint{}, fmt.Errorf("failed to fetch complaint: %w", err)
	}
	return c.Clone(), nil
}

func (r *MongoComplaintRepository) Create(ctx context.Context, in models.NewComplaint) (models.Complaint, error) {
	in = in.Normalized()
	if err := models.Validate(in); err != nil {
		return models.Complaint{}, err
	}
	id, err := r.nextSeq(ctx, complaintSeq)
	if err != nil {
		return models.Complaint{}, err
	}

	c := newRecord(in, id, r.now().UTC().Truncate(time.Millisecond))
	if _, err := r.complaints().InsertOne(ctx, c); err != nil {
		return models.Complaint{}, fmt.Errorf("failed to save complaint: %w", err)
	}
	return c, nil
}

func (r *MongoComplaintRepository) Update(ctx context.Context, id int64, patch models.ComplaintPatch) (models.Complaint, error) {
	patch = patch.Normalized()
	if err := models.Validate(patch); err != nil {
		return models.Complaint{}, err
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return models.Complaint{}, err
	}
	patch.Apply(&current)
	current.UpdatedAt = touch(current, r.now().Truncate(time.Millisecond))

	var updated models.Complaint
	err = r.complaints().FindOneAndReplace(ctx,
		bson.M{"_id": id},
		current,
		options.FindOneAndReplace().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Complaint{}, errComplaintNotFound
	}
	if err != nil {
		return models.Complaint{}, fmt.Errorf("failed to update complaint: %w", err)
	}
	return updated.Clone(), nil
}

func (r *MongoComplaintRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.complaints().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete complaint: %w", err)
	}
	if res.DeletedCount == 0 {
		return errComplaintNotFound
	}
	return nil
}

func (r *MongoComplaintRepository) AddComment(ctx context.Context, id int64, text, author string) (models.Complaint, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Complaint{}, apperror.Validation("comment text is required")
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return models.Complaint{}, err
	}
	commentID, err := r.nextSeq(ctx, commentSeq)
	if err != nil {
		return models.Complaint{}, err
	}

	now := r.now().UTC().Truncate(time.Millisecond)
	comment := models.Comment{ID: commentID, Text: text, Author: author, Timestamp: now}

	var updated models.Complaint
	err = r.complaints().FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$push": bson.M{"comments": comment},
			"$set":  bson.M{"updated_at": touch(current, now)},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Complaint{}, errComplaintNotFound
	}
	if err != nil {
		return models.Complaint{}, fmt.Errorf("failed to add comment: %w", err)
	}
	return updated.Clone(), nil
}
