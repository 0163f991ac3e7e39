package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DocumentVersion = "1.0"
	DefaultTitle    = "AI Governance Policy"
)

// Policy is the persisted policy document. Sections are stored as JSON.
type Policy struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	TenantID    uuid.UUID      `gorm:"type:char(36);not null;index:idx_policies_tenant_created,priority:1"`
	ClientName  string         `gorm:"type:text;not null"`
	Title       string         `gorm:"type:text;not null"`
	Industry    string         `gorm:"type:text;not null"`
	Version     string         `gorm:"type:text;not null"`
	Sections    datatypes.JSON `gorm:"type:json;not null"`
	PageCount   int            `gorm:"not null"`
	GeneratedAt time.Time      `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_policies_tenant_created,priority:2"`
	// JobID is the worker job that produced the policy. Nil for synchronous generation.
	JobID *string `gorm:"type:text"`
}

func (Policy) TableName() string { return "policies" }

type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

// Document is a generated policy as returned to callers.
type Document struct {
	ID          snowflake.ID `json:"id"`
	TenantID    uuid.UUID    `json:"tenantId"`
	ClientName  string       `json:"clientName"`
	Title       string       `json:"title"`
	Industry    string       `json:"industry"`
	Version     string       `json:"version"`
	Sections    []Section    `json:"sections"`
	GeneratedAt time.Time    `json:"generatedAt"`
	PageCount   int          `json:"pageCount"`
	JobID       string       `json:"jobId,omitempty"`
}

// WordCount counts whitespace separated words across all sections.
func (d *Document) WordCount() int {
	total := 0
	for _, s := range d.Sections {
		total += len(strings.Fields(s.Content))
	}
	return total
}
