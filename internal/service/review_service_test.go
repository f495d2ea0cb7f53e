package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

type reviewFixture struct {
	store     repository.Store
	review    ReviewService
	publisher *recordingPublisher
}

func newReviewFixture(t *testing.T, workerDisabled bool) reviewFixture {
	t.Helper()
	store := repository.NewStore(setupGraderDB(t))
	publisher := &recordingPublisher{}
	resolver := NewResolver(store.Catalog(), store.Seeds(), nil)
	applier := NewVerdictApplier(store, publisher, zerolog.Nop())
	return reviewFixture{
		store:     store,
		review:    NewReviewService(store, resolver, applier, publisher, ReviewConfig{WorkerDisabled: workerDisabled}, zerolog.Nop()),
		publisher: publisher,
	}
}

func (f reviewFixture) submit(t *testing.T, key models.SubmissionKey, code string) models.Message {
	t.Helper()
	ctx := context.Background()
	message, err := f.store.Messages().Submit(ctx, key, code, "1.2.3.4")
	require.NoError(t, err)
	_, err = f.store.Statuses().SubmitTask(ctx, key, code, "1.2.3.4")
	require.NoError(t, err)
	return message
}

func TestReviewServiceRefusesVerdictsWhileWorkerRuns(t *testing.T) {
	fixture := newReviewFixture(t, false)
	key := models.SubmissionKey{TaskID: staticTaskID, VariantID: testVariant, GroupID: testGroup}
	message := fixture.submit(t, key, "x")

	_, err := fixture.review.NextPending(context.Background(), testGroup)
	require.ErrorIs(t, err, ErrReviewDisabled)

	_, err = fixture.review.Accept(context.Background(), message.ID, testGroup, 11)
	require.ErrorIs(t, err, ErrReviewDisabled)
}

func TestReviewServiceAcceptAppliesVerdictWithoutChecker(t *testing.T) {
	fixture := newReviewFixture(t, true)
	ctx := context.Background()
	key := models.SubmissionKey{TaskID: staticTaskID, VariantID: testVariant, GroupID: testGroup}
	older := fixture.submit(t, key, "v1")
	fixture.submit(t, key, "v2")

	item, err := fixture.review.NextPending(ctx, testGroup)
	require.NoError(t, err)
	require.Equal(t, older.ID, item.MessageID)
	require.Equal(t, "G-101", item.External.GroupTitle)
	require.Equal(t, models.StatusSubmitted, item.Status)

	_, err = fixture.review.NextPending(ctx, otherGroup)
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = fixture.review.Accept(ctx, older.ID, otherGroup, 11)
	require.ErrorIs(t, err, ErrGroupMismatch)

	status, err := fixture.review.Accept(ctx, older.ID, testGroup, 11)
	require.NoError(t, err)
	require.Equal(t, models.StatusChecked, status.Status)

	stored, err := fixture.review.Get(ctx, older.ID)
	require.NoError(t, err)
	require.True(t, stored.Processed)

	checks, err := fixture.store.Checks().ListByMessage(ctx, older.ID)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	require.Equal(t, models.CheckSourceReview, checks[0].Source)
	require.NotNil(t, checks[0].ReviewerID)

	_, err = fixture.review.Accept(ctx, older.ID, testGroup, 11)
	require.ErrorIs(t, err, ErrMessageProcessed)

	next, err := fixture.review.NextPending(ctx, testGroup)
	require.NoError(t, err)
	require.Equal(t, "v2", next.Code)
	require.Len(t, fixture.publisher.published(), 1)
}

func TestReviewServiceRejectSanitizesComment(t *testing.T) {
	fixture := newReviewFixture(t, true)
	ctx := context.Background()
	key := models.SubmissionKey{TaskID: staticTaskID, VariantID: testVariant, GroupID: testGroup}
	message := fixture.submit(t, key, "x")

	status, err := fixture.review.Reject(ctx, message.ID, testGroup, 11, `<script>alert(1)</script>off by one`)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, status.Status)
	require.Equal(t, "off by one", status.Output)

	second := fixture.submit(t, key, "y")
	status, err = fixture.review.Reject(ctx, second.ID, testGroup, 11, "")
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, status.Status)
	require.Empty(t, status.Output)
}

func TestReviewServiceVerifyAndUnverify(t *testing.T) {
	fixture := newReviewFixture(t, false)
	ctx := context.Background()
	key := models.SubmissionKey{TaskID: staticTaskID, VariantID: testVariant, GroupID: testGroup}
	fixture.submit(t, key, "x")

	_, err := fixture.review.Verify(ctx, key, 11)
	require.ErrorIs(t, err, models.ErrInvalidTransition, "a submitted record cannot be verified")

	_, err = fixture.store.Statuses().UpdateStatus(ctx, key, models.StatusUpdate{Event: models.EventCheckPassed})
	require.NoError(t, err)

	verified, err := fixture.review.Verify(ctx, key, 11)
	require.NoError(t, err)
	require.Equal(t, models.StatusVerified, verified.Status)
	require.NotNil(t, verified.ReviewerID)
	require.Equal(t, uint(11), *verified.ReviewerID)
	require.NotNil(t, verified.ReviewedAt)

	unverified, err := fixture.review.Unverify(ctx, key, 11)
	require.NoError(t, err)
	require.Equal(t, models.StatusChecked, unverified.Status)
	require.Nil(t, unverified.ReviewerID)

	_, err = fixture.review.Unverify(ctx, key, 11)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestReviewServiceRefusesRegisteredNonTeachers(t *testing.T) {
	fixture := newReviewFixture(t, true)
	ctx := context.Background()
	key := models.SubmissionKey{TaskID: staticTaskID, VariantID: testVariant, GroupID: testGroup}
	message := fixture.submit(t, key, "x")

	_, err := fixture.review.Accept(ctx, message.ID, testGroup, 12)
	require.ErrorIs(t, err, ErrNotReviewer)

	_, err = fixture.review.Verify(ctx, key, 12)
	require.ErrorIs(t, err, ErrNotReviewer)

	status, err := fixture.review.Accept(ctx, message.ID, testGroup, 404)
	require.NoError(t, err, "accounts unknown to the grader are managed elsewhere")
	require.Equal(t, models.StatusChecked, status.Status)
}

func TestReviewServiceQueueViewsAndAchievements(t *testing.T) {
	fixture := newReviewFixture(t, true)
	ctx := context.Background()
	key := models.SubmissionKey{TaskID: staticTaskID, VariantID: testVariant, GroupID: testGroup}
	first := fixture.submit(t, key, "v1")
	second := fixture.submit(t, key, "v2")

	items, err := fixture.review.Pending(ctx, testGroup)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, first.ID, items[0].MessageID)
	require.Equal(t, second.ID, items[1].MessageID)
	require.Equal(t, "G-101", items[1].External.GroupTitle)

	empty, err := fixture.review.Pending(ctx, otherGroup)
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = fixture.review.Pending(ctx, 404)
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = fixture.review.Reject(ctx, second.ID, testGroup, 11, "off by one")
	require.NoError(t, err)

	checks, err := fixture.review.Checks(ctx, second.ID, testGroup)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	require.Equal(t, models.StatusFailed, checks[0].Status)
	require.Equal(t, models.CheckSourceReview, checks[0].Source)

	_, err = fixture.review.Checks(ctx, second.ID, otherGroup)
	require.ErrorIs(t, err, ErrGroupMismatch)

	_, err = fixture.review.SetAchievements(ctx, key, []int{1}, 12)
	require.ErrorIs(t, err, ErrNotReviewer)

	record, err := fixture.review.SetAchievements(ctx, key, []int{1}, 11)
	require.NoError(t, err)
	require.Equal(t, []int{1}, []int(record.Achievements))

	_, err = fixture.review.SetAchievements(ctx, models.SubmissionKey{TaskID: staticTaskID, VariantID: testVariant, GroupID: otherGroup}, []int{0}, 11)
	require.ErrorIs(t, err, repository.ErrNotFound)

	boards, err := fixture.review.Overview(ctx)
	require.NoError(t, err)
	require.Len(t, boards, 2)
	require.Equal(t, testGroup, boards[0].GroupID)
	require.Len(t, boards[0].Entries, 1)
	require.Equal(t, models.StatusFailed, boards[0].Entries[0].Status)
	require.Empty(t, boards[1].Entries)
}
