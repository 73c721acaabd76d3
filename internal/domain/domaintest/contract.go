package domaintest

import (
	"context"
	"testing"
	"time"

	"github.com/nfrund/relaychat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AccountRepositoryContract exercises the behaviour every domain.AccountRepository
// implementation must share. newRepo must return an empty store.
func AccountRepositoryContract(t *testing.T, newRepo func(t *testing.T) domain.AccountRepository) {
	ctx := context.Background()

	t.Run("create assigns id and timestamps", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, &domain.Account{Username: "alice", PasswordHash: "h", Role: domain.RoleMember, Active: true})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "alice", created.Username)
		assert.Equal(t, "h", created.PasswordHash)
		assert.WithinDuration(t, time.Now(), created.CreatedAt, time.Minute)

		byID, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Username, byID.Username)

		byName, err := repo.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byName.ID)
	})

	t.Run("duplicate username", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, &domain.Account{Username: "bob", Role: domain.RoleMember, Active: true})
		require.NoError(t, err)
		_, err = repo.Create(ctx, &domain.Account{Username: "bob", Role: domain.RoleMember, Active: true})
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})

	t.Run("missing account", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindByID(ctx, "does-not-exist")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = repo.FindByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = repo.Update(ctx, "does-not-exist", domain.AccountPatch{Active: boolPtr(false)})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("count list and admin lookup", func(t *testing.T) {
		repo := newRepo(t)
		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		hasAdmin, err := repo.HasAdmin(ctx)
		require.NoError(t, err)
		assert.False(t, hasAdmin)

		_, err = repo.Create(ctx, &domain.Account{Username: "root", Role: domain.RoleAdmin, Active: true})
		require.NoError(t, err)
		_, err = repo.Create(ctx, &domain.Account{Username: "carol", Role: domain.RoleMember, Active: true})
		require.NoError(t, err)

		n, err = repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		hasAdmin, err = repo.HasAdmin(ctx)
		require.NoError(t, err)
		assert.True(t, hasAdmin)

		list, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		names := []string{list[0].Username, list[1].Username}
		assert.ElementsMatch(t, []string{"root", "carol"}, names)
	})

	t.Run("update role and active flag", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, &domain.Account{Username: "dave", Role: domain.RoleMember, Active: true})
		require.NoError(t, err)

		admin := domain.RoleAdmin
		updated, err := repo.Update(ctx, created.ID, domain.AccountPatch{Role: &admin, Active: boolPtr(false)})
		require.NoError(t, err)
		assert.Equal(t, domain.RoleAdmin, updated.Role)
		assert.False(t, updated.Active)
		assert.Equal(t, "dave", updated.Username)

		reloaded, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleAdmin, reloaded.Role)
		assert.False(t, reloaded.Active)
	})
}

// MessageRepositoryContract exercises the behaviour every domain.MessageRepository
// implementation must share. newRepo must return an empty store.
func MessageRepositoryContract(t *testing.T, newRepo func(t *testing.T) domain.MessageRepository) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		repo := newRepo(t)
		msg, err := repo.Create(ctx, "hi", "a1")
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, "hi", msg.Content)
		assert.Equal(t, "a1", msg.SenderID)

		found, err := repo.FindByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, msg.ID, found.ID)
		assert.Equal(t, "hi", found.Content)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		repo := newRepo(t)
		msg, err := repo.Create(ctx, "bye", "a1")
		require.NoError(t, err)

		existed, err := repo.Delete(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = repo.Delete(ctx, msg.ID)
		require.NoError(t, err)
		assert.False(t, existed)

		_, err = repo.FindByID(ctx, msg.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("delete unknown id", func(t *testing.T) {
		repo := newRepo(t)
		existed, err := repo.Delete(ctx, "never-existed")
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("list oldest first", func(t *testing.T) {
		repo := newRepo(t)
		for _, content := range []string{"one", "two", "three"} {
			_, err := repo.Create(ctx, content, "a1")
			require.NoError(t, err)
			time.Sleep(2 * time.Millisecond)
		}
		list, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "one", list[0].Content)
		assert.Equal(t, "three", list[2].Content)
	})
}

func boolPtr(b bool) *bool { return &b }
