package queries

import (
	"gorm.io/gorm"
)

// EditionsClient paginates editions joined with their documents. States, when
// non-empty, restricts the relation to the given lifecycle states.
type EditionsClient struct {
	DB     *gorm.DB
	States []string
}

// EditionsKey is the fixed ordering key for edition pagination.
var EditionsKey = []KeyField{{Name: "id", Column: "editions.id"}}

func (c EditionsClient) Query() *gorm.DB {
	q := c.DB.Table("editions").
		Joins("JOIN documents ON documents.id = editions.document_id")
	if len(c.States) > 0 {
		q = q.Where("editions.state IN ?", c.States)
	}
	return q
}

func (c EditionsClient) Fields() []string {
	return []string{
		"documents.content_id AS content_id",
		"documents.locale AS locale",
		"editions.state AS state",
		"editions.base_path AS base_path",
		"editions.user_facing_version AS user_facing_version",
		"editions.updated_at AS updated_at",
	}
}

// DependentsClient paginates link rows pointing at a target content item,
// joined through to the owning edition and document. LinkTypes carries the
// dependency fallback order; empty means any link type.
type DependentsClient struct {
	DB              *gorm.DB
	TargetContentID string
	LinkTypes       []string
}

// DependentsKey is the fixed ordering key for dependency fan-out pagination.
var DependentsKey = []KeyField{{Name: "id", Column: "links.id"}}

func (c DependentsClient) Query() *gorm.DB {
	q := c.DB.Table("links").
		Joins("JOIN editions ON editions.id = links.edition_id").
		Joins("JOIN documents ON documents.id = editions.document_id").
		Where("links.target_content_id = ?", c.TargetContentID)
	if len(c.LinkTypes) > 0 {
		q = q.Where("links.link_type IN ?", c.LinkTypes)
	}
	return q
}

func (c DependentsClient) Fields() []string {
	return []string{
		"documents.content_id AS content_id",
		"documents.locale AS locale",
		"editions.id AS edition_id",
		"editions.state AS state",
	}
}
