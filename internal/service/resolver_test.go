package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

func TestResolverStaticTaskKeepsIdentity(t *testing.T) {
	resolver := NewResolver(nil, nil, NewSeededPermutation(map[string][]int{"final": {1, 2, 3}}, 4))
	group := models.Group{ID: 1, Title: "G-101"}
	task := models.Task{ID: 7, Type: models.TaskTypeStatic}

	for _, seed := range []*models.FinalSeed{nil, {GroupID: 1, Seed: 99, Active: false}} {
		external := resolver.Resolve(group, task, 3, seed)
		require.Equal(t, models.ExternalTask{GroupID: 1, GroupTitle: "G-101", TaskID: 7, VariantID: 3, Active: true}, external)
	}
}

func TestResolverRandomTaskWithoutSeedIsInactive(t *testing.T) {
	resolver := NewResolver(nil, nil, nil)
	external := resolver.Resolve(models.Group{ID: 1, Title: "G-101"}, models.Task{ID: 8, Type: models.TaskTypeRandom}, 3, nil)

	require.False(t, external.Active)
	require.Equal(t, 8, external.TaskID)
	require.Equal(t, "G-101", external.GroupTitle)
}

func TestResolverSeededMappingIsDeterministic(t *testing.T) {
	finalTasks := map[string][]int{"final-a": {101, 102, 103, 104}, "final-b": {201, 202, 203, 204}}
	resolver := NewResolver(nil, nil, NewSeededPermutation(finalTasks, 5))
	group := models.Group{ID: 1, Title: "G-101"}
	seed := &models.FinalSeed{GroupID: 1, Seed: 424242, Active: true}

	for variant := 1; variant <= 6; variant++ {
		seen := map[int]bool{}
		var title string
		for taskID := 1; taskID <= 4; taskID++ {
			task := models.Task{ID: taskID, Type: models.TaskTypeRandom}
			first := resolver.Resolve(group, task, variant, seed)
			second := resolver.Resolve(group, task, variant, seed)
			require.Equal(t, first, second)
			require.True(t, first.Active)
			require.Contains(t, finalTasks, first.GroupTitle)
			require.Contains(t, finalTasks[first.GroupTitle], first.TaskID)
			require.GreaterOrEqual(t, first.VariantID, 1)
			require.LessOrEqual(t, first.VariantID, 5)

			if title == "" {
				title = first.GroupTitle
			}
			require.Equal(t, title, first.GroupTitle, "one variant draws every task from one final set")
			require.False(t, seen[first.TaskID], "distinct tasks map to distinct external tasks")
			seen[first.TaskID] = true
		}
	}

	ended := resolver.Resolve(group, models.Task{ID: 1, Type: models.TaskTypeRandom}, 1, &models.FinalSeed{Seed: 424242, Active: false})
	require.False(t, ended.Active)
}

func TestResolverResolveKeyLoadsCatalog(t *testing.T) {
	db := setupGraderDB(t)
	store := repository.NewStore(db)
	resolver := NewResolver(store.Catalog(), store.Seeds(), nil)
	ctx := context.Background()

	resolved, err := resolver.ResolveKey(ctx, models.SubmissionKey{TaskID: staticTaskID, VariantID: testVariant, GroupID: testGroup})
	require.NoError(t, err)
	require.Equal(t, "G-101", resolved.External.GroupTitle)
	require.True(t, resolved.External.Active)
	require.NotNil(t, resolved.Task.Block)

	_, err = resolver.ResolveKey(ctx, models.SubmissionKey{TaskID: staticTaskID, VariantID: 99, GroupID: testGroup})
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = resolver.ResolveKey(ctx, models.SubmissionKey{TaskID: 404, VariantID: testVariant, GroupID: testGroup})
	require.ErrorIs(t, err, repository.ErrNotFound)
}
