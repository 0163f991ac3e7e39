package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	policydomain "github.com/jamesbarnes665/compliGenie-backend/internal/policy/domain"
	"github.com/jamesbarnes665/compliGenie-backend/pkg/db/pagination"
	"gorm.io/gorm"
)

const policyColumns = `id, tenant_id, client_name, title, industry, version, sections, page_count, generated_at, created_at, job_id`

type repo struct{}

func Provide() policydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, policy *policydomain.Policy) error {
	return db.WithContext(ctx).Create(policy).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, id snowflake.ID) (*policydomain.Policy, error) {
	var policy policydomain.Policy
	err := db.WithContext(ctx).Raw(
		`SELECT `+policyColumns+` FROM policies WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&policy).Error
	if err != nil {
		return nil, err
	}
	if policy.ID == 0 {
		return nil, nil
	}
	return &policy, nil
}

// List returns up to page.Limit()+1 rows newest first so the caller can tell
// whether another page exists.
func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, page pagination.Pagination) ([]policydomain.Policy, error) {
	stmt := db.WithContext(ctx).
		Model(&policydomain.Policy{}).
		Where("tenant_id = ?", tenantID)

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		stmt = stmt.Where(
			"((created_at < ?) OR (created_at = ? AND id < ?))",
			cursor.CreatedAt,
			cursor.CreatedAt,
			cursorID,
		)
	}

	var policies []policydomain.Policy
	err := stmt.
		Order("created_at desc, id desc").
		Limit(page.Limit() + 1).
		Find(&policies).Error
	if err != nil {
		return nil, err
	}
	return policies, nil
}

func (r *repo) FindByJobID(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, jobID string) (*policydomain.Policy, error) {
	var policy policydomain.Policy
	err := db.WithContext(ctx).Raw(
		`SELECT `+policyColumns+` FROM policies WHERE tenant_id = ? AND job_id = ?`,
		tenantID,
		jobID,
	).Scan(&policy).Error
	if err != nil {
		return nil, err
	}
	if policy.ID == 0 {
		return nil, nil
	}
	return &policy, nil
}
