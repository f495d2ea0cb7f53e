package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/events"
	"github.com/noah-isme/gema-grader/internal/models"
)

const (
	staticTaskID = 7
	randomTaskID = 8
	closedTaskID = 9
	testVariant  = 3
	testGroup    = 1
	otherGroup   = 2
)

func setupGraderDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))

	past := time.Now().Add(-time.Hour)
	openBlock, closedBlock := 1, 2
	require.NoError(t, db.Create(&[]models.Group{{ID: testGroup, Title: "G-101"}, {ID: otherGroup, Title: "G-102"}}).Error)
	require.NoError(t, db.Create(&[]models.TaskBlock{{ID: openBlock, Title: "Loops"}, {ID: closedBlock, Title: "Strings", Deadline: &past}}).Error)
	require.NoError(t, db.Create(&[]models.Task{
		{ID: staticTaskID, Formulation: "sum two numbers", Type: models.TaskTypeStatic, BlockID: &openBlock},
		{ID: randomTaskID, Formulation: "exam task", Type: models.TaskTypeRandom},
		{ID: closedTaskID, Formulation: "reverse a string", Type: models.TaskTypeStatic, BlockID: &closedBlock},
	}).Error)
	require.NoError(t, db.Create(&models.Variant{ID: testVariant}).Error)
	require.NoError(t, db.Create(&[]models.Student{
		{ID: 11, Name: "Teacher", Email: "teacher@example.com", Teacher: true},
		{ID: 12, Name: "Student", Email: "student@example.com"},
	}).Error)
	return db
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.StatusEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event events.StatusEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) published() []events.StatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.StatusEvent(nil), p.events...)
}
