package models

import (
	"time"
)

// Edition lifecycle states.
const (
	StateDraft       = "draft"
	StatePublished   = "published"
	StateUnpublished = "unpublished"
	StateSuperseded  = "superseded"
)

// Update types accepted on a content mutation.
const (
	UpdateTypeMajor = "major"
	UpdateTypeMinor = "minor"
	UpdateTypeLinks = "links"
)

// UpdateTypeBulkReindex is a broadcast-only routing token. Bulk
// resynchronization stamps it on requeued editions so subscribers do not
// re-alert users over content that has not changed.
const UpdateTypeBulkReindex = "bulk.reindex"

// DefaultLocale is used when a mutation request omits the locale.
const DefaultLocale = "en"

// EmptyBasePathFormats lists schema names whose editions are allowed to
// exist without a base path.
var EmptyBasePathFormats = []string{"contact", "government"}

// BasePathRequired reports whether the given schema requires a base path.
func BasePathRequired(schemaName string) bool {
	for _, f := range EmptyBasePathFormats {
		if f == schemaName {
			return false
		}
	}
	return true
}

// Document is the identity anchor for one piece of content in one locale,
// across all of its edition history. LockVersion is a monotonic counter
// incremented on every edition transition; it survives publish/unpublish/
// redraft cycles and is the optimistic-concurrency token for callers.
type Document struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	ContentID   string `gorm:"type:char(36);not null;index:idx_content_id_locale,unique"`
	Locale      string `gorm:"size:12;not null;default:en;index:idx_content_id_locale,unique"`
	LockVersion uint64 `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Editions    []Edition
}

// Edition is one versioned instance of a document's content and lifecycle
// state. At most one edition per document is in state draft and at most one
// in state published at any time.
type Edition struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement"`
	DocumentID        uint64 `gorm:"not null;index"`
	Document          Document
	State             string `gorm:"size:16;not null;index"`
	UserFacingVersion uint64 `gorm:"not null;default:0"`
	BasePath          string `gorm:"size:255;index"`
	UpdateType        string `gorm:"size:16"`
	SchemaName        string `gorm:"size:64;not null"`
	DocumentType      string `gorm:"size:64"`
	PublishingApp     string `gorm:"size:64"`
	LastEditedAt      *time.Time
	Details           JSON           `gorm:"type:json"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Links             []Link
	AccessLimit       *AccessLimit
}

// Live reports whether the edition may be sent to the live content store.
func (e *Edition) Live() bool {
	return e.State == StatePublished || e.State == StateUnpublished
}

// Link is a directed, typed edge from an edition to another content item.
// Uniqueness is (edition, link_type, target_content_id).
type Link struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	EditionID       uint64 `gorm:"not null;index:idx_edition_link,unique"`
	LinkType        string `gorm:"size:64;not null;index:idx_edition_link,unique;index"`
	TargetContentID string `gorm:"type:char(36);not null;index:idx_edition_link,unique;index"`
	Position        int    `gorm:"not null;default:0"`
	CreatedAt       time.Time
}

// AccessLimit restricts who can view a draft edition. 0-or-1 per edition;
// absence means unrestricted.
type AccessLimit struct {
	ID            uint64         `gorm:"primaryKey;autoIncrement"`
	EditionID     uint64         `gorm:"not null;uniqueIndex"`
	Users         JSON           `gorm:"type:json"`
	AuthBypassIDs JSON           `gorm:"type:json"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PathReservation records which publishing application owns a base path.
type PathReservation struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	BasePath      string `gorm:"size:255;not null;uniqueIndex"`
	PublishingApp string `gorm:"size:64;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Redirect records a forwarding entry created when a published item's base
// path changes.
type Redirect struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	ContentID     string `gorm:"type:char(36);not null;index"`
	Locale        string `gorm:"size:12;not null"`
	OldBasePath   string `gorm:"size:255;not null;index"`
	NewBasePath   string `gorm:"size:255;not null"`
	PublishingApp string `gorm:"size:64"`
	CreatedAt     time.Time
}

// TableName overrides the table name for Document
func (Document) TableName() string {
	return "documents"
}

// TableName overrides the table name for Edition
func (Edition) TableName() string {
	return "editions"
}

// TableName overrides the table name for Link
func (Link) TableName() string {
	return "links"
}

// TableName overrides the table name for AccessLimit
func (AccessLimit) TableName() string {
	return "access_limits"
}

// TableName overrides the table name for PathReservation
func (PathReservation) TableName() string {
	return "path_reservations"
}

// TableName overrides the table name for Redirect
func (Redirect) TableName() string {
	return "redirects"
}
