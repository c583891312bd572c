package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EvidenceFile is one uploaded file descriptor. The bytes themselves live in
// object storage; deleting a descriptor never touches them.
type EvidenceFile struct {
	FileID      string    `bson:"fileId" json:"fileId"`
	FileName    string    `bson:"fileName" json:"fileName"`
	ContentType string    `bson:"contentType" json:"contentType"`
	Size        int64     `bson:"size" json:"size"`
	ObjectKey   string    `bson:"objectKey" json:"objectKey"`
	URL         string    `bson:"url" json:"url"`
	UploadedAt  time.Time `bson:"uploadedAt" json:"uploadedAt"`
}

// EvidenceDocument holds all evidence descriptors of one complaint. It is
// created lazily on first upload and is never required to exist.
type EvidenceDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ComplaintID uint               `bson:"complaintId" json:"complaintId"`
	Files       []EvidenceFile     `bson:"files" json:"files"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}
