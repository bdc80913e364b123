package usecase

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/pingpong-backend/internal/apperror"
	"github.com/rocketscienceinc/pingpong-backend/internal/entity"
	"github.com/rocketscienceinc/pingpong-backend/internal/repository"
)

type recordedEvent struct {
	name    string
	payload any
}

// fakeNotifier mimics the transport surface: events reach only open
// connections, probes answer with whatever failure was injected.
type fakeNotifier struct {
	mu        sync.Mutex
	events    map[string][]recordedEvent
	connected map[string]bool
	probeErr  map[string]error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		events:    make(map[string][]recordedEvent),
		connected: make(map[string]bool),
		probeErr:  make(map[string]error),
	}
}

func (that *fakeNotifier) Emit(playerID, event string, payload any) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.connected[playerID] {
		return
	}

	that.events[playerID] = append(that.events[playerID], recordedEvent{name: event, payload: payload})
}

func (that *fakeNotifier) Probe(_ context.Context, playerID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.probeErr[playerID]
}

func (that *fakeNotifier) CloseConnection(playerID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.connected[playerID] = false
}

func (that *fakeNotifier) IsConnected(playerID string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.connected[playerID]
}

func (that *fakeNotifier) connect(playerID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.connected[playerID] = true
}

func (that *fakeNotifier) failProbe(playerID string, err error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.probeErr[playerID] = err
}

func (that *fakeNotifier) eventsFor(playerID, event string) []recordedEvent {
	that.mu.Lock()
	defer that.mu.Unlock()

	var matched []recordedEvent
	for _, recorded := range that.events[playerID] {
		if recorded.name == event {
			matched = append(matched, recorded)
		}
	}

	return matched
}

func newTestManager(t *testing.T) (context.Context, *MatchManager, *fakeNotifier, repository.PlayerRepository, repository.RoomRepository) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	playerRepo := repository.NewPlayerRepository(client)
	roomRepo := repository.NewRoomRepository(client)

	manager := NewMatchManager(logger, playerRepo, roomRepo)
	notifier := newFakeNotifier()
	manager.AttachNotifier(notifier)

	return context.Background(), manager, notifier, playerRepo, roomRepo
}

func TestMatchManager_Login(t *testing.T) {
	t.Run("a lone player waits without being paired", func(t *testing.T) {
		ctx, manager, notifier, _, roomRepo := newTestManager(t)
		notifier.connect("c1")

		// When: a single player logs in
		alice, err := manager.Login(ctx, "c1", "Alice")
		require.NoError(t, err)

		// Then: the player sits in a waiting room and no pairing fired
		assert.True(t, alice.InRoom())
		assert.Empty(t, notifier.eventsFor("c1", EventInRoom))

		room, err := roomRepo.GetAccepting(ctx)
		require.NoError(t, err)
		assert.True(t, room.IsWaiting())
		assert.Len(t, room.Players, 1)
	})

	t.Run("the second login fills the room and pairs both", func(t *testing.T) {
		ctx, manager, notifier, playerRepo, roomRepo := newTestManager(t)
		notifier.connect("c1")
		notifier.connect("c2")

		// When: two players log in in sequence
		_, err := manager.Login(ctx, "c1", "Alice")
		require.NoError(t, err)
		_, err = manager.Login(ctx, "c2", "Bob")
		require.NoError(t, err)

		// Then: a single room holds both
		alice, err := playerRepo.GetByID(ctx, "c1")
		require.NoError(t, err)
		bob, err := playerRepo.GetByID(ctx, "c2")
		require.NoError(t, err)
		require.Equal(t, alice.RoomID, bob.RoomID)

		room, err := roomRepo.GetByID(ctx, alice.RoomID)
		require.NoError(t, err)
		assert.True(t, room.IsOngoing())
		assert.Len(t, room.Players, entity.MaxPlayers)

		// Then: pairing is symmetric
		aliceOpponent, err := manager.ResolveOpponent(ctx, "c1")
		require.NoError(t, err)
		bobOpponent, err := manager.ResolveOpponent(ctx, "c2")
		require.NoError(t, err)
		assert.Equal(t, "c2", aliceOpponent.ID)
		assert.Equal(t, "c1", bobOpponent.ID)

		// Then: both got inRoom and the other's name
		require.Len(t, notifier.eventsFor("c1", EventInRoom), 1)
		require.Len(t, notifier.eventsFor("c2", EventInRoom), 1)
		assert.Equal(t, NamePayload{Name: "Bob"}, notifier.eventsFor("c1", EventOpponentName)[0].payload)
		assert.Equal(t, NamePayload{Name: "Alice"}, notifier.eventsFor("c2", EventOpponentName)[0].payload)
	})

	t.Run("a long login name is truncated", func(t *testing.T) {
		ctx, manager, notifier, _, _ := newTestManager(t)
		notifier.connect("c1")

		longName := strings.Repeat("n", entity.MaxNameLength+10)

		player, err := manager.Login(ctx, "c1", longName)
		require.NoError(t, err)

		assert.Len(t, []rune(player.Name), entity.MaxNameLength)
	})
}

func TestMatchManager_CapacityInvariant(t *testing.T) {
	ctx, manager, notifier, playerRepo, roomRepo := newTestManager(t)

	// Given: five players logging in back to back
	ids := []string{"c1", "c2", "c3", "c4", "c5"}
	for i, id := range ids {
		notifier.connect(id)
		_, err := manager.Login(ctx, id, "Player"+string(rune('A'+i)))
		require.NoError(t, err)
	}

	// Then: pairing is strictly fill-then-open: (c1,c2), (c3,c4), c5 waiting
	pairs := map[string]string{"c1": "c2", "c2": "c1", "c3": "c4", "c4": "c3"}
	for id, want := range pairs {
		opponent, err := manager.ResolveOpponent(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, opponent.ID)
	}

	_, err := manager.ResolveOpponent(ctx, "c5")
	assert.ErrorIs(t, err, apperror.ErrNoOpponent)

	// Then: no room ever holds more than two players
	for _, id := range ids {
		player, err := playerRepo.GetByID(ctx, id)
		require.NoError(t, err)
		require.True(t, player.InRoom())

		room, err := roomRepo.GetByID(ctx, player.RoomID)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(room.Players), entity.MaxPlayers)
	}
}

func TestMatchManager_OpponentScored(t *testing.T) {
	ctx, manager, notifier, playerRepo, roomRepo := newTestManager(t)
	notifier.connect("c1")
	notifier.connect("c2")

	_, err := manager.Login(ctx, "c1", "Alice")
	require.NoError(t, err)
	_, err = manager.Login(ctx, "c2", "Bob")
	require.NoError(t, err)

	alice, err := playerRepo.GetByID(ctx, "c1")
	require.NoError(t, err)
	firstRoomID := alice.RoomID

	// When: Alice reports six times that her opponent scored against her
	for i := 0; i < entity.WinningScore-1; i++ {
		require.NoError(t, manager.OpponentScored(ctx, "c1"))
	}

	// Then: the credit went to Bob, each side seeing its own perspective
	aliceScores := notifier.eventsFor("c1", EventScores)
	bobScores := notifier.eventsFor("c2", EventScores)
	require.Len(t, aliceScores, entity.WinningScore-1)
	require.Len(t, bobScores, entity.WinningScore-1)
	assert.Equal(t, ScoresPayload{Self: 0, Opponent: 6}, aliceScores[len(aliceScores)-1].payload)
	assert.Equal(t, ScoresPayload{Self: 6, Opponent: 0}, bobScores[len(bobScores)-1].payload)

	// Then: six points do not end the room
	room, err := roomRepo.GetByID(ctx, firstRoomID)
	require.NoError(t, err)
	assert.True(t, room.IsOngoing())
	assert.Empty(t, notifier.eventsFor("c1", EventCancelGame))

	// When: the seventh point lands
	require.NoError(t, manager.OpponentScored(ctx, "c1"))

	// Then: the room is gone and both sides were told
	_, err = roomRepo.GetByID(ctx, firstRoomID)
	assert.ErrorIs(t, err, apperror.ErrRoomNotFound)
	require.Len(t, notifier.eventsFor("c1", EventCancelGame), 1)
	require.Len(t, notifier.eventsFor("c2", EventCancelGame), 1)

	lastNames := notifier.eventsFor("c1", EventOpponentName)
	assert.Equal(t, NamePayload{Name: NoOpponentName}, lastNames[len(lastNames)-1].payload)

	// Then: both still-connected players were re-queued together into a
	// fresh room with scores reset
	alice, err = playerRepo.GetByID(ctx, "c1")
	require.NoError(t, err)
	bob, err := playerRepo.GetByID(ctx, "c2")
	require.NoError(t, err)

	require.True(t, alice.InRoom())
	assert.Equal(t, alice.RoomID, bob.RoomID)
	assert.NotEqual(t, firstRoomID, alice.RoomID)
	assert.Equal(t, 0, alice.Score)
	assert.Equal(t, 0, bob.Score)

	require.Len(t, notifier.eventsFor("c1", EventInRoom), 2)
	require.Len(t, notifier.eventsFor("c2", EventInRoom), 2)
}

func TestMatchManager_LeaveRoom(t *testing.T) {
	t.Run("a player outside any room is still notified and re-queued once", func(t *testing.T) {
		ctx, manager, notifier, playerRepo, roomRepo := newTestManager(t)
		notifier.connect("c9")

		// Given: a registered player that never entered matchmaking
		zoe := entity.NewPlayer("c9", "Zoe")
		require.NoError(t, playerRepo.CreateOrUpdate(ctx, zoe))

		// When: the player leaves a room it is not in
		require.NoError(t, manager.LeaveRoom(ctx, "c9"))

		// Then: exactly one teardown notification and one re-queue happened
		require.Len(t, notifier.eventsFor("c9", EventCancelGame), 1)

		zoe, err := playerRepo.GetByID(ctx, "c9")
		require.NoError(t, err)
		require.True(t, zoe.InRoom())

		room, err := roomRepo.GetByID(ctx, zoe.RoomID)
		require.NoError(t, err)
		assert.True(t, room.IsWaiting())
		assert.Len(t, room.Players, 1)
	})

	t.Run("a closed connection is never re-queued", func(t *testing.T) {
		ctx, manager, _, playerRepo, _ := newTestManager(t)

		// Given: a registered player whose connection was never opened
		zoe := entity.NewPlayer("c9", "Zoe")
		require.NoError(t, playerRepo.CreateOrUpdate(ctx, zoe))

		// When: the player leaves
		require.NoError(t, manager.LeaveRoom(ctx, "c9"))

		// Then: no re-queue happened
		zoe, err := playerRepo.GetByID(ctx, "c9")
		require.NoError(t, err)
		assert.False(t, zoe.InRoom())
	})

	t.Run("leaving an ongoing room ends it for both", func(t *testing.T) {
		ctx, manager, notifier, playerRepo, _ := newTestManager(t)
		notifier.connect("c1")
		notifier.connect("c2")

		_, err := manager.Login(ctx, "c1", "Alice")
		require.NoError(t, err)
		_, err = manager.Login(ctx, "c2", "Bob")
		require.NoError(t, err)

		alice, err := playerRepo.GetByID(ctx, "c1")
		require.NoError(t, err)
		firstRoomID := alice.RoomID

		// When: one side leaves
		require.NoError(t, manager.LeaveRoom(ctx, "c1"))

		// Then: both were torn down and re-paired in a fresh room
		require.Len(t, notifier.eventsFor("c1", EventCancelGame), 1)
		require.Len(t, notifier.eventsFor("c2", EventCancelGame), 1)

		alice, err = playerRepo.GetByID(ctx, "c1")
		require.NoError(t, err)
		assert.NotEqual(t, firstRoomID, alice.RoomID)
	})
}

func TestMatchManager_LivenessCascade(t *testing.T) {
	ctx, manager, notifier, playerRepo, roomRepo := newTestManager(t)
	notifier.connect("c1")
	notifier.connect("c2")

	_, err := manager.Login(ctx, "c1", "Alice")
	require.NoError(t, err)
	_, err = manager.Login(ctx, "c2", "Bob")
	require.NoError(t, err)

	alice, err := playerRepo.GetByID(ctx, "c1")
	require.NoError(t, err)
	firstRoomID := alice.RoomID

	// Given: Bob's connection stops answering heartbeats
	notifier.failProbe("c2", apperror.ErrHeartbeatTimeout)

	// When: the disconnect signal refreshes the whole room
	manager.Disconnect(ctx, "c2")

	// Then: the dead peer is deleted outright
	_, err = playerRepo.GetByID(ctx, "c2")
	assert.ErrorIs(t, err, apperror.ErrPlayerNotFound)
	assert.False(t, notifier.IsConnected("c2"))

	// Then: the room is gone and the survivor was reset and re-queued alone
	_, err = roomRepo.GetByID(ctx, firstRoomID)
	assert.ErrorIs(t, err, apperror.ErrRoomNotFound)

	alice, err = playerRepo.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, alice.Score)
	require.True(t, alice.InRoom())
	assert.NotEqual(t, firstRoomID, alice.RoomID)

	newRoom, err := roomRepo.GetByID(ctx, alice.RoomID)
	require.NoError(t, err)
	assert.True(t, newRoom.IsWaiting())
	assert.Len(t, newRoom.Players, 1)

	require.Len(t, notifier.eventsFor("c1", EventCancelGame), 1)

	_, err = manager.ResolveOpponent(ctx, "c1")
	assert.ErrorIs(t, err, apperror.ErrNoOpponent)
}

func TestMatchManager_Rename(t *testing.T) {
	ctx, manager, notifier, _, _ := newTestManager(t)
	notifier.connect("c1")
	notifier.connect("c2")

	_, err := manager.Login(ctx, "c1", "Alice")
	require.NoError(t, err)
	_, err = manager.Login(ctx, "c2", "Bob")
	require.NoError(t, err)

	// When: a paired player renames itself; names set after login are not
	// truncated again
	newName := strings.Repeat("A", entity.MaxNameLength+5)
	require.NoError(t, manager.Rename(ctx, "c1", newName))

	// Then: the room's embedded copy follows the registry entry
	opponent, err := manager.ResolveOpponent(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, newName, opponent.Name)
}

func TestMatchManager_Disconnect_LonePlayer(t *testing.T) {
	ctx, manager, notifier, playerRepo, roomRepo := newTestManager(t)
	notifier.connect("c1")

	_, err := manager.Login(ctx, "c1", "Alice")
	require.NoError(t, err)

	alice, err := playerRepo.GetByID(ctx, "c1")
	require.NoError(t, err)
	waitingRoomID := alice.RoomID

	// Given: the lone waiting player drops; its probe now fails
	notifier.failProbe("c1", apperror.ErrConnectionClosed)

	// When: the transport reports the disconnect
	manager.Disconnect(ctx, "c1")

	// Then: the player and its waiting room are cleaned up
	_, err = playerRepo.GetByID(ctx, "c1")
	assert.ErrorIs(t, err, apperror.ErrPlayerNotFound)

	_, err = roomRepo.GetByID(ctx, waitingRoomID)
	assert.ErrorIs(t, err, apperror.ErrRoomNotFound)
}
