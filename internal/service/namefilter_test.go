package service

import (
	"context"
	"testing"

	"github.com/mherren/voxbot/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestNameFilterValidateFirstMatchWins(t *testing.T) {
	ctx := context.Background()
	filters := NewNameFilterManager(repository.NewInMemoryFilterRepository(), nil)

	_, err := filters.AddFilter(ctx, "guild-1", "bad")
	require.NoError(t, err)
	_, err = filters.AddFilter(ctx, "guild-1", "badger")
	require.NoError(t, err)

	err = filters.Validate("guild-1", "badger den")
	var rejected *NameRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "bad", rejected.Pattern)

	require.NoError(t, filters.Validate("guild-1", "quiet corner"))
	require.NoError(t, filters.Validate("guild-2", "badger den"))
}

func TestNameFilterValidateCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	filters := NewNameFilterManager(repository.NewInMemoryFilterRepository(), nil)

	_, err := filters.AddFilter(ctx, "guild-1", "^forbidden$")
	require.NoError(t, err)

	require.Error(t, filters.Validate("guild-1", "FORBIDDEN"))
	require.Error(t, filters.Validate("guild-1", "Forbidden"))
}

func TestNameFilterValidateDeterministic(t *testing.T) {
	ctx := context.Background()
	filters := NewNameFilterManager(repository.NewInMemoryFilterRepository(), nil)

	_, err := filters.AddFilter(ctx, "guild-1", "x+")
	require.NoError(t, err)
	_, err = filters.AddFilter(ctx, "guild-1", "xx")
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		err := filters.Validate("guild-1", "xxx")
		var rejected *NameRejectedError
		require.ErrorAs(t, err, &rejected)
		require.Equal(t, "x+", rejected.Pattern)
	}
}

func TestNameFilterAddToggles(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryFilterRepository()
	filters := NewNameFilterManager(repo, nil)

	added, err := filters.AddFilter(ctx, "guild-1", "spam")
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, []string{"spam"}, filters.ListFilters("guild-1"))

	added, err = filters.AddFilter(ctx, "guild-1", "spam")
	require.NoError(t, err)
	require.False(t, added)
	require.Empty(t, filters.ListFilters("guild-1"))
	require.NoError(t, filters.Validate("guild-1", "spam party"))

	stored, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, stored["guild-1"])
}

func TestNameFilterRejectsInvalidPattern(t *testing.T) {
	filters := NewNameFilterManager(repository.NewInMemoryFilterRepository(), nil)

	_, err := filters.AddFilter(context.Background(), "guild-1", "(unclosed")
	require.Error(t, err)
	require.Empty(t, filters.ListFilters("guild-1"))
}

func TestNameFilterLoadAllSkipsBadPatterns(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryFilterRepository()
	require.NoError(t, repo.Save(ctx, "guild-1", []string{"(broken", "fine"}))

	filters := NewNameFilterManager(repo, nil)
	require.NoError(t, filters.LoadAll(ctx))

	require.Equal(t, []string{"fine"}, filters.ListFilters("guild-1"))
	require.Error(t, filters.Validate("guild-1", "fine name"))
}
