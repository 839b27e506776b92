package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// PageID is a value object representing a unique page identifier
type PageID struct {
	value string
}

// NewPageID creates a new random PageID
func NewPageID() PageID {
	return PageID{value: uuid.New().String()}
}

// NewPageIDFromString creates a PageID from an existing string
func NewPageIDFromString(id string) (PageID, error) {
	if id == "" {
		return PageID{}, errors.New("page ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return PageID{}, errors.New("page ID must be a valid UUID")
	}
	return PageID{value: id}, nil
}

// String returns the string representation of the PageID
func (id PageID) String() string {
	return id.value
}

// Equals compares two PageIDs by value
func (id PageID) Equals(other PageID) bool {
	return id.value == other.value
}

// IsZero reports whether the PageID is unset
func (id PageID) IsZero() bool {
	return id.value == ""
}

// WorkspaceID is a value object representing a unique workspace identifier
type WorkspaceID struct {
	value string
}

// NewWorkspaceID creates a new random WorkspaceID
func NewWorkspaceID() WorkspaceID {
	return WorkspaceID{value: uuid.New().String()}
}

// NewWorkspaceIDFromString creates a WorkspaceID from an existing string
func NewWorkspaceIDFromString(id string) (WorkspaceID, error) {
	if id == "" {
		return WorkspaceID{}, errors.New("workspace ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return WorkspaceID{}, errors.New("workspace ID must be a valid UUID")
	}
	return WorkspaceID{value: id}, nil
}

// String returns the string representation of the WorkspaceID
func (id WorkspaceID) String() string {
	return id.value
}

// Equals compares two WorkspaceIDs by value
func (id WorkspaceID) Equals(other WorkspaceID) bool {
	return id.value == other.value
}

// IsZero reports whether the WorkspaceID is unset
func (id WorkspaceID) IsZero() bool {
	return id.value == ""
}
