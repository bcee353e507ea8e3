package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ResourceKind identifies the type of a resource.
type ResourceKind string

const (
	RunResourceKind   ResourceKind = "run"
	StepResourceKind  ResourceKind = "step"
	EventResourceKind ResourceKind = "event"
	InputResourceKind ResourceKind = "input"
	FileResourceKind  ResourceKind = "file"
)

// ResourceID is a globally unique identifier tagged with its kind. Its string form is the
// bare UUID, e.g. "3a9c..."; the kind is not part of it.
type ResourceID struct {
	kind ResourceKind
	id   uuid.UUID
}

func NewResourceID(kind ResourceKind) ResourceID {
	return ResourceID{kind: kind, id: uuid.New()}
}

func ResourceIDFromString(kind ResourceKind, s string) (ResourceID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ResourceID{}, fmt.Errorf("error parsing %s id %q: %w", kind, s, err)
	}
	return ResourceID{kind: kind, id: id}, nil
}

func (r ResourceID) Kind() ResourceKind {
	return r.kind
}

func (r ResourceID) String() string {
	if r.id == uuid.Nil {
		return ""
	}
	return r.id.String()
}

func (r ResourceID) Valid() bool {
	return r.id != uuid.Nil
}

func (r ResourceID) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", r.String())), nil
}

func (r *ResourceID) UnmarshalJSON(data []byte) error {
	s := string(data)
	s = s[1 : len(s)-1] // strip quotes
	if s == "" {
		*r = ResourceID{}
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	r.id = id
	return nil
}

// Value implements driver.Valuer so IDs can be used directly as Firestore document field values.
func (r ResourceID) Value() (driver.Value, error) {
	return r.String(), nil
}

// OrgID identifies an organization that owns runs, playbooks and secrets.
type OrgID string

func (o OrgID) String() string { return string(o) }
func (o OrgID) Valid() bool    { return o != "" }

// RunID identifies a single playbook run.
type RunID struct{ ResourceID }

func NewRunID() RunID { return RunID{ResourceID: NewResourceID(RunResourceKind)} }

func RunIDFromString(s string) (RunID, error) {
	id, err := ResourceIDFromString(RunResourceKind, s)
	return RunID{ResourceID: id}, err
}

// EventID identifies a single append-only event document.
type EventID struct{ ResourceID }

func NewEventID() EventID { return EventID{ResourceID: NewResourceID(EventResourceKind)} }

// InputID identifies a single user-submitted input document.
type InputID struct{ ResourceID }

func NewInputID() InputID { return InputID{ResourceID: NewResourceID(InputResourceKind)} }

// FileID identifies a single artifact metadata document.
type FileID struct{ ResourceID }

func NewFileID() FileID { return FileID{ResourceID: NewResourceID(FileResourceKind)} }
