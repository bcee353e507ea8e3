package models

// File is the document-store metadata record for an artifact a worker uploaded to the blob
// store. The document store, not the blob store, is authoritative for a file's existence.
type File struct {
	ID          FileID `firestore:"-"`
	RunID       RunID  `firestore:"-"`
	Name        string `firestore:"name"`
	StoragePath string `firestore:"storagePath"`
	MimeType    string `firestore:"mimeType"`
	SizeBytes   int64  `firestore:"sizeBytes"`
	StepID      string `firestore:"stepId"`
	CreatedAt   Time   `firestore:"createdAt,serverTimestamp"`
}
