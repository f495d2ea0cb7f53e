package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

// CatalogRepository reads groups, tasks and variants maintained by course tooling.
type CatalogRepository interface {
	GetGroup(ctx context.Context, id int) (models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	GetTask(ctx context.Context, id int) (models.Task, error)
	GetVariant(ctx context.Context, id int) (models.Variant, error)
	GetStudent(ctx context.Context, id uint) (models.Student, error)
}

// NewCatalogRepository constructs the catalog reader.
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

type catalogRepository struct {
	db *gorm.DB
}

func (r *catalogRepository) GetGroup(ctx context.Context, id int) (models.Group, error) {
	var group models.Group
	if err := r.db.WithContext(ctx).First(&group, id).Error; err != nil {
		return models.Group{}, translate("get group", err)
	}
	return group, nil
}

func (r *catalogRepository) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := r.db.WithContext(ctx).Order("title ASC").Find(&groups).Error; err != nil {
		return nil, translate("list groups", err)
	}
	return groups, nil
}

func (r *catalogRepository) GetTask(ctx context.Context, id int) (models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Preload("Block").First(&task, id).Error; err != nil {
		return models.Task{}, translate("get task", err)
	}
	return task, nil
}

func (r *catalogRepository) GetVariant(ctx context.Context, id int) (models.Variant, error) {
	var variant models.Variant
	if err := r.db.WithContext(ctx).First(&variant, id).Error; err != nil {
		return models.Variant{}, translate("get variant", err)
	}
	return variant, nil
}

func (r *catalogRepository) GetStudent(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, translate("get student", err)
	}
	return student, nil
}
