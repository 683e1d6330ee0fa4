package service

import (
	"context"
	"testing"
	"time"

	"chai-builder-go/internal/config"
	"chai-builder-go/internal/model"
	"chai-builder-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingNotifier 记录收到的索引通知，用于断言写路径有发通知。
type recordingNotifier struct {
	changed []string
}

func (n *recordingNotifier) ProjectChanged(conversationID string) {
	n.changed = append(n.changed, conversationID)
}

func newProjectTestService(t *testing.T) (ProjectService, repository.ProjectRepository, *recordingNotifier) {
	t.Helper()
	db := openTestDB(t)
	repo := repository.NewProjectRepository(db, nil)
	notifier := &recordingNotifier{}
	svc := NewProjectService(repo, notifier, config.ElasticsearchConfig{IndexName: "public_projects"}, config.MinIOConfig{})
	return svc, repo, notifier
}

func ownerUser(id uint, role, subscription string) *model.User {
	return &model.User{ID: id, Role: role, SubscriptionStatus: subscription}
}

func TestListPublic_ExcludesPrivateAndChats(t *testing.T) {
	svc, repo, _ := newProjectTestService(t)

	public := &model.Project{ConversationID: "c-public", Type: model.TypeProject, Title: "Public", Visibility: model.VisibilityPublic}
	private := &model.Project{ConversationID: "c-private", Type: model.TypeProject, Title: "Private", Visibility: model.VisibilityPrivate}
	chat := &model.Project{ConversationID: "c-chat", Type: model.TypeChat, Visibility: model.VisibilityPublic}
	require.NoError(t, repo.Create(public))
	require.NoError(t, repo.Create(private))
	require.NoError(t, repo.Create(chat))

	results, err := svc.ListPublic(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c-public", results[0].ConversationID)
}

func TestChangeVisibility_PremiumGate(t *testing.T) {
	svc, repo, notifier := newProjectTestService(t)

	project := &model.Project{ConversationID: "c-1", Type: model.TypeProject, Owner: "7", Visibility: model.VisibilityPublic}
	require.NoError(t, repo.Create(project))

	// 免费用户不能设为私有
	free := ownerUser(7, model.RoleNormal, model.SubscriptionFree)
	_, err := svc.ChangeVisibility(free, "c-1", model.VisibilityPrivate)
	require.ErrorIs(t, err, ErrPremiumRequired)

	// premium 角色但订阅已回落为 free 同样拒绝
	lapsed := ownerUser(7, model.RolePremium, model.SubscriptionFree)
	_, err = svc.ChangeVisibility(lapsed, "c-1", model.VisibilityPrivate)
	require.ErrorIs(t, err, ErrPremiumRequired)

	// 付费 premium 用户可以
	paid := ownerUser(7, model.RolePremium, model.SubscriptionPaid)
	updated, err := svc.ChangeVisibility(paid, "c-1", model.VisibilityPrivate)
	require.NoError(t, err)
	assert.Equal(t, model.VisibilityPrivate, updated.Visibility)
	assert.Contains(t, notifier.changed, "c-1")

	// 设回公开不需要付费
	_, err = svc.ChangeVisibility(free, "c-1", model.VisibilityPublic)
	require.NoError(t, err)
}

func TestChangeVisibility_OwnerOnly(t *testing.T) {
	svc, repo, _ := newProjectTestService(t)

	project := &model.Project{ConversationID: "c-1", Type: model.TypeProject, Owner: "7"}
	require.NoError(t, repo.Create(project))

	stranger := ownerUser(8, model.RolePremium, model.SubscriptionPaid)
	_, err := svc.ChangeVisibility(stranger, "c-1", model.VisibilityPrivate)
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestChangeVisibility_GuestProjectClaimable(t *testing.T) {
	svc, repo, _ := newProjectTestService(t)

	project := &model.Project{ConversationID: "c-1", Type: model.TypeProject, Owner: model.OwnerGuest}
	require.NoError(t, repo.Create(project))

	paid := ownerUser(8, model.RolePremium, model.SubscriptionPaid)
	updated, err := svc.ChangeVisibility(paid, "c-1", model.VisibilityPrivate)
	require.NoError(t, err)
	assert.Equal(t, model.VisibilityPrivate, updated.Visibility)
}

func TestChangeVisibility_BadValue(t *testing.T) {
	svc, _, _ := newProjectTestService(t)
	_, err := svc.ChangeVisibility(ownerUser(1, model.RoleNormal, model.SubscriptionFree), "c-1", "friends-only")
	require.ErrorIs(t, err, ErrBadVisibility)
}

func TestUpdateMetadata_AppliesOnlyProvidedFields(t *testing.T) {
	svc, repo, notifier := newProjectTestService(t)

	project := &model.Project{
		ConversationID: "c-1", Type: model.TypeProject, Owner: "7",
		Title: "Old Title", Description: "Old description", Thumbnail: "old.png",
	}
	require.NoError(t, repo.Create(project))

	title := "New Title"
	updated, err := svc.UpdateMetadata(ownerUser(7, model.RoleNormal, model.SubscriptionFree), "c-1", MetadataUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "New Title", updated.Title)
	assert.Equal(t, "Old description", updated.Description)
	assert.Equal(t, "old.png", updated.Thumbnail)
	assert.Contains(t, notifier.changed, "c-1")
}

func TestUpdateMetadata_NotOwner(t *testing.T) {
	svc, repo, _ := newProjectTestService(t)

	project := &model.Project{ConversationID: "c-1", Type: model.TypeProject, Owner: "7"}
	require.NoError(t, repo.Create(project))

	title := "Hijacked"
	_, err := svc.UpdateMetadata(ownerUser(9, model.RoleNormal, model.SubscriptionFree), "c-1", MetadataUpdate{Title: &title})
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestUpvote_IncrementsCount(t *testing.T) {
	svc, repo, notifier := newProjectTestService(t)

	project := &model.Project{ConversationID: "c-1", Type: model.TypeProject, Owner: "7"}
	require.NoError(t, repo.Create(project))

	count, counted, err := svc.Upvote(context.Background(), ownerUser(9, model.RoleNormal, model.SubscriptionFree), "c-1")
	require.NoError(t, err)
	assert.True(t, counted)
	assert.Equal(t, 1, count)
	assert.Contains(t, notifier.changed, "c-1")
}

func TestUpvote_MissingProject(t *testing.T) {
	svc, _, _ := newProjectTestService(t)
	_, _, err := svc.Upvote(context.Background(), ownerUser(9, model.RoleNormal, model.SubscriptionFree), "nope")
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestGetByConversationID_NotFound(t *testing.T) {
	svc, _, _ := newProjectTestService(t)
	_, err := svc.GetByConversationID("missing")
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestListPublic_NewestFirst(t *testing.T) {
	svc, repo, _ := newProjectTestService(t)

	older := &model.Project{ConversationID: "c-old", Type: model.TypeProject, Title: "Old", Visibility: model.VisibilityPublic,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := &model.Project{ConversationID: "c-new", Type: model.TypeProject, Title: "New", Visibility: model.VisibilityPublic,
		CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, repo.Create(older))
	require.NoError(t, repo.Create(newer))

	results, err := svc.ListPublic(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c-new", results[0].ConversationID)
}
