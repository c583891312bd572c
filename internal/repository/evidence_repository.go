package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicseva/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrEvidenceNotFound = errors.New("evidence document not found")

const evidenceCollection = "evidence"

// EvidenceRepository keeps one document per complaint holding its ordered
// list of file descriptors. The document is created lazily on first upload.
type EvidenceRepository struct {
	col *mongo.Collection
}

func NewEvidenceRepository(db *mongo.Database) *EvidenceRepository {
	return &EvidenceRepository{col: db.Collection(evidenceCollection)}
}

// Create inserts the evidence document for a complaint with its first files.
func (r *EvidenceRepository) Create(ctx context.Context, complaintID uint, files []models.EvidenceFile) (*models.EvidenceDocument, error) {
	now := time.Now()
	doc := models.EvidenceDocument{
		ComplaintID: complaintID,
		Files:       files,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create evidence document: %w", err)
	}
	return &doc, nil
}

func (r *EvidenceRepository) FindByComplaintID(ctx context.Context, complaintID uint) (*models.EvidenceDocument, error) {
	var doc models.EvidenceDocument
	err := r.col.FindOne(ctx, bson.M{"complaintId": complaintID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEvidenceNotFound
		}
		return nil, fmt.Errorf("failed to fetch evidence document: %w", err)
	}
	return &doc, nil
}

// AddFiles appends descriptors, creating the document if it does not exist.
// Existing descriptors are never disturbed.
func (r *EvidenceRepository) AddFiles(ctx context.Context, complaintID uint, files []models.EvidenceFile) (*models.EvidenceDocument, error) {
	now := time.Now()
	filter := bson.M{"complaintId": complaintID}
	update := bson.M{
		"$push": bson.M{"files": bson.M{"$each": files}},
		"$set":  bson.M{"updatedAt": now},
		"$setOnInsert": bson.M{
			"complaintId": complaintID,
			"createdAt":   now,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := r.col.UpdateOne(ctx, filter, update, opts); err != nil {
		return nil, fmt.Errorf("failed to add evidence files: %w", err)
	}
	return r.FindByComplaintID(ctx, complaintID)
}

// DeleteFile removes one descriptor by file id. The stored bytes are left
// untouched.
func (r *EvidenceRepository) DeleteFile(ctx context.Context, complaintID uint, fileID string) error {
	filter := bson.M{"complaintId": complaintID}
	update := bson.M{
		"$pull": bson.M{"files": bson.M{"fileId": fileID}},
		"$set":  bson.M{"updatedAt": time.Now()},
	}
	result, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to delete evidence file: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrEvidenceNotFound
	}
	return nil
}

// DeleteByComplaintID removes the whole evidence document. Missing documents
// are fine; evidence is always optional.
func (r *EvidenceRepository) DeleteByComplaintID(ctx context.Context, complaintID uint) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"complaintId": complaintID})
	if err != nil {
		return fmt.Errorf("failed to delete evidence document: %w", err)
	}
	return nil
}

// GetFileCount returns the number of descriptors, zero when no document
// exists.
func (r *EvidenceRepository) GetFileCount(ctx context.Context, complaintID uint) (int, error) {
	doc, err := r.FindByComplaintID(ctx, complaintID)
	if err != nil {
		if errors.Is(err, ErrEvidenceNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return len(doc.Files), nil
}
