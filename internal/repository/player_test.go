package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/pingpong-backend/internal/apperror"
	"github.com/rocketscienceinc/pingpong-backend/internal/entity"
	"github.com/rocketscienceinc/pingpong-backend/testing/suite"
)

func TestPlayerRepository_CreateOrUpdate(t *testing.T) {
	ctx, st := suite.New(t)

	playerRepo := NewPlayerRepository(st.Storage)

	// Given: a freshly logged-in player
	player := entity.NewPlayer("conn-123", "Alice")

	// When: CreateOrUpdate is called
	err := playerRepo.CreateOrUpdate(ctx, player)

	// Then: no error should be returned, and the player is stored
	require.NoError(t, err)

	// When: the entry is overwritten with a new name
	player.Name = "Alice the Second"
	require.NoError(t, playerRepo.CreateOrUpdate(ctx, player))

	// Then: the stored entry reflects the replacement
	stored, err := playerRepo.GetByID(ctx, player.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice the Second", stored.Name)
}

func TestPlayerRepository_GetByID(t *testing.T) {
	t.Run("GetByID_Success", func(t *testing.T) {
		ctx, st := suite.New(t)

		playerRepo := NewPlayerRepository(st.Storage)

		// Given: a stored player with a score and room reference
		player := entity.NewPlayer("conn-123", "Alice")
		player.Score = 4
		player.RoomID = "room-1"
		require.NoError(t, playerRepo.CreateOrUpdate(ctx, player))

		// When: GetByID is called with the existing id
		retrievedPlayer, err := playerRepo.GetByID(ctx, player.ID)

		// Then: the retrieved player should match the saved player
		require.NoError(t, err)
		require.Equal(t, player, retrievedPlayer)
	})

	t.Run("GetByID_NotFound", func(t *testing.T) {
		ctx, st := suite.New(t)

		playerRepo := NewPlayerRepository(st.Storage)

		// When: GetByID is called with a non-existent id
		retrievedPlayer, err := playerRepo.GetByID(ctx, "conn-missing")

		// Then: an ErrPlayerNotFound error should be returned
		require.Error(t, err)
		assert.ErrorIs(t, err, apperror.ErrPlayerNotFound)
		assert.Nil(t, retrievedPlayer)
	})
}

func TestPlayerRepository_DeleteByID(t *testing.T) {
	ctx, st := suite.New(t)

	playerRepo := NewPlayerRepository(st.Storage)

	// Given: a stored player
	player := entity.NewPlayer("conn-123", "Alice")
	require.NoError(t, playerRepo.CreateOrUpdate(ctx, player))

	// When: the registry entry is deleted
	require.NoError(t, playerRepo.DeleteByID(ctx, player.ID))

	// Then: the player is gone
	_, err := playerRepo.GetByID(ctx, player.ID)
	assert.ErrorIs(t, err, apperror.ErrPlayerNotFound)
}
