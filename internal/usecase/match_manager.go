package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/pingpong-backend/internal/apperror"
	"github.com/rocketscienceinc/pingpong-backend/internal/entity"
	"github.com/rocketscienceinc/pingpong-backend/internal/pkg"
)

type playerRepo interface {
	CreateOrUpdate(ctx context.Context, player *entity.Player) error
	GetByID(ctx context.Context, id string) (*entity.Player, error)
	DeleteByID(ctx context.Context, id string) error
}

type roomRepo interface {
	CreateOrUpdate(ctx context.Context, room *entity.Room) error
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	DeleteByID(ctx context.Context, id string) error

	GetAccepting(ctx context.Context) (*entity.Room, error)
	GetAcceptingID(ctx context.Context) (string, error)
	SetAccepting(ctx context.Context, roomID string) error
	ClearAccepting(ctx context.Context) error
}

// Notifier - the transport surface the match manager drives: best-effort
// event emission, the bounded heartbeat probe, and connection teardown.
// Emitting to a closed connection is a no-op.
type Notifier interface {
	Emit(playerID, event string, payload any)
	Probe(ctx context.Context, playerID string) error
	CloseConnection(playerID string)
	IsConnected(playerID string) bool
}

// MatchManager owns the player registry, the room registry and the
// accepting-room pointer. Every mutation goes through its mutex: exported
// methods take the lock, unexported helpers assume it is held, so the
// teardown -> re-queue -> allocate chain never re-enters the lock.
type MatchManager struct {
	logger *slog.Logger

	playerRepo playerRepo
	roomRepo   roomRepo

	notifier Notifier

	mu sync.Mutex
}

func NewMatchManager(logger *slog.Logger, playerRepo playerRepo, roomRepo roomRepo) *MatchManager {
	return &MatchManager{
		logger: logger,

		playerRepo: playerRepo,
		roomRepo:   roomRepo,
	}
}

// AttachNotifier - binds the transport layer. Must be called before any
// client traffic is handled.
func (that *MatchManager) AttachNotifier(notifier Notifier) {
	that.notifier = notifier
}

// Login - registers a player for the connection and puts it into
// matchmaking. Any stale registry entry for the same id is replaced.
func (that *MatchManager) Login(ctx context.Context, playerID, name string) (*entity.Player, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player := entity.NewPlayer(playerID, name)
	if err := that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to register player: %w", err)
	}

	that.logger.Info("player logged in", "playerID", player.ID, "name", player.Name)

	that.enqueue(ctx, player)

	return player, nil
}

// Rename - overwrites the display name. Names set after login are not
// truncated again.
func (that *MatchManager) Rename(ctx context.Context, playerID, name string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, err := that.playerRepo.GetByID(ctx, playerID)
	if err != nil {
		return fmt.Errorf("failed to get player by id: %w", err)
	}

	player.Name = name
	if err = that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	if !player.InRoom() {
		return nil
	}

	// keep the room's embedded copy in sync
	room, err := that.roomRepo.GetByID(ctx, player.RoomID)
	if err != nil {
		return nil
	}

	for _, occupant := range room.Players {
		if occupant.ID == player.ID {
			occupant.Name = name
		}
	}

	if err = that.roomRepo.CreateOrUpdate(ctx, room); err != nil {
		that.logger.Error("failed to update room", "roomID", room.ID, "error", err)
	}

	return nil
}

// LeaveRoom - detaches a player from its session. Leaving an ongoing room
// ends it for both occupants; a player already outside any room is still
// notified and re-queued while its connection is open.
func (that *MatchManager) LeaveRoom(ctx context.Context, playerID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, err := that.playerRepo.GetByID(ctx, playerID)
	if err != nil {
		return fmt.Errorf("failed to get player by id: %w", err)
	}

	if player.InRoom() {
		room, roomErr := that.roomRepo.GetByID(ctx, player.RoomID)
		if roomErr == nil {
			that.endRoom(ctx, room)
			return nil
		}
	}

	that.leaveRoom(ctx, player)

	return nil
}

// Disconnect - reacts to the transport's close signal. A paired player's
// loss refreshes the whole room, which cascades teardown to the surviving
// occupant too; a lone player is simply dropped from the registry.
func (that *MatchManager) Disconnect(ctx context.Context, playerID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, err := that.playerRepo.GetByID(ctx, playerID)
	if err != nil {
		if !errors.Is(err, apperror.ErrPlayerNotFound) {
			that.logger.Error("failed to get player by id", "playerID", playerID, "error", err)
		}
		return
	}

	if player.InRoom() {
		room, roomErr := that.roomRepo.GetByID(ctx, player.RoomID)
		if roomErr == nil {
			that.refreshRoom(ctx, room)
			return
		}
	}

	that.deletePlayer(ctx, player)
}

// OpponentScored - handles the "my opponent just scored against me" event:
// the credit goes to the SENDER'S opponent. Both sides get a scores update
// from their own perspective; the room ends when the incremented score
// reaches the winning threshold.
func (that *MatchManager) OpponentScored(ctx context.Context, playerID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, opponent, room, err := that.pairing(ctx, playerID)
	if err != nil {
		return err
	}

	opponent.Score++

	if err = that.playerRepo.CreateOrUpdate(ctx, opponent); err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	if err = that.roomRepo.CreateOrUpdate(ctx, room); err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}

	that.notifier.Emit(opponent.ID, EventScores, ScoresPayload{Self: opponent.Score, Opponent: player.Score})
	that.notifier.Emit(player.ID, EventScores, ScoresPayload{Self: player.Score, Opponent: opponent.Score})

	that.logger.Info("score updated", "roomID", room.ID, "playerID", opponent.ID, "score", opponent.Score)

	if opponent.Score >= entity.WinningScore {
		that.logger.Info("win condition reached", "roomID", room.ID, "winnerID", opponent.ID)
		that.endRoom(ctx, room)
	}

	return nil
}

// ResolveOpponent - resolves the relay target for a paired player.
func (that *MatchManager) ResolveOpponent(ctx context.Context, playerID string) (*entity.Player, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	_, opponent, _, err := that.pairing(ctx, playerID)
	if err != nil {
		return nil, err
	}

	return opponent, nil
}

// pairing - loads the player's room and resolves both sides of the pairing
// from the room's embedded occupants, so score mutations land on the copy
// that gets persisted with the room.
func (that *MatchManager) pairing(ctx context.Context, playerID string) (*entity.Player, *entity.Player, *entity.Room, error) {
	registered, err := that.playerRepo.GetByID(ctx, playerID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get player by id: %w", err)
	}

	if !registered.InRoom() {
		return nil, nil, nil, apperror.ErrNotInRoom
	}

	room, err := that.roomRepo.GetByID(ctx, registered.RoomID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get room by id: %w", err)
	}

	var player *entity.Player
	for _, occupant := range room.Players {
		if occupant.ID == playerID {
			player = occupant
		}
	}
	if player == nil {
		return nil, nil, nil, apperror.ErrNotInRoom
	}

	opponent, err := room.Opponent(playerID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to resolve opponent: %w", err)
	}

	return player, opponent, room, nil
}

// enqueue - the allocator: fill the single accepting room, opening a new one
// when none exists or the current one is full. The room is liveness-checked
// before the add so a newcomer is never paired against a dead peer.
func (that *MatchManager) enqueue(ctx context.Context, player *entity.Player) {
	room := that.acceptingRoom(ctx)

	that.refreshRoom(ctx, room)
	if room.IsFinished() {
		// the sweep evicted a stale occupant and tore the room down
		room = that.newAcceptingRoom(ctx)
	}

	if err := room.AddPlayer(player); err != nil {
		that.logger.Warn("adding to full room", "roomID", room.ID, "playerID", player.ID)
		return
	}

	if err := that.roomRepo.CreateOrUpdate(ctx, room); err != nil {
		that.logger.Error("failed to update room", "roomID", room.ID, "error", err)
	}

	if err := that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		that.logger.Error("failed to update player", "playerID", player.ID, "error", err)
	}

	that.logger.Info("player queued", "playerID", player.ID, "roomID", room.ID)

	if room.IsOngoing() {
		that.setupRoom(room)
	}
}

func (that *MatchManager) acceptingRoom(ctx context.Context) *entity.Room {
	room, err := that.roomRepo.GetAccepting(ctx)
	if err == nil && !room.IsFull() && !room.IsFinished() {
		return room
	}

	if err != nil && !errors.Is(err, apperror.ErrRoomNotFound) {
		that.logger.Error("failed to load accepting room", "error", err)
	}

	return that.newAcceptingRoom(ctx)
}

func (that *MatchManager) newAcceptingRoom(ctx context.Context) *entity.Room {
	room := entity.NewRoom(pkg.GenerateRoomID())

	if err := that.roomRepo.CreateOrUpdate(ctx, room); err != nil {
		that.logger.Error("failed to create room", "roomID", room.ID, "error", err)
	}

	if err := that.roomRepo.SetAccepting(ctx, room.ID); err != nil {
		that.logger.Error("failed to adopt accepting room", "roomID", room.ID, "error", err)
	}

	that.logger.Info("opened new room", "roomID", room.ID)

	return room
}

// setupRoom - tells each occupant it is in-room and who it is facing. This
// runs exactly once per room, on the fill that made it ongoing.
func (that *MatchManager) setupRoom(room *entity.Room) {
	for _, player := range room.Players {
		opponent, err := room.Opponent(player.ID)
		if err != nil {
			that.logger.Error("failed to resolve opponent", "roomID", room.ID, "playerID", player.ID, "error", err)
			continue
		}

		that.notifier.Emit(player.ID, EventInRoom, nil)
		that.notifier.Emit(player.ID, EventOpponentName, NamePayload{Name: opponent.Name})
	}

	that.logger.Info("room is ready", "roomID", room.ID)
}

// refreshRoom - liveness sweep over the occupants. One dead peer ends the
// session for everyone: failed probes delete their players, then the whole
// room is torn down and the survivors re-queued.
func (that *MatchManager) refreshRoom(ctx context.Context, room *entity.Room) {
	var failed []*entity.Player
	for _, player := range room.Players {
		if err := that.notifier.Probe(ctx, player.ID); err != nil {
			that.logger.Warn("heartbeat failed", "playerID", player.ID, "error", err)
			failed = append(failed, player)
		}
	}

	if len(failed) == 0 {
		return
	}

	for _, player := range failed {
		that.deletePlayer(ctx, player)
	}

	that.endRoom(ctx, room)
}

// endRoom - the sole transition into finished: every occupant is detached
// and independently re-queued by its own leaveRoom, so a just-ended room's
// players may immediately seed a new one.
func (that *MatchManager) endRoom(ctx context.Context, room *entity.Room) {
	occupants := room.End()

	if err := that.roomRepo.DeleteByID(ctx, room.ID); err != nil {
		that.logger.Error("failed to delete room", "roomID", room.ID, "error", err)
	}

	if acceptingID, err := that.roomRepo.GetAcceptingID(ctx); err == nil && acceptingID == room.ID {
		if err = that.roomRepo.ClearAccepting(ctx); err != nil {
			that.logger.Error("failed to clear accepting room", "error", err)
		}
	}

	that.logger.Info("room ended", "roomID", room.ID)

	for _, player := range occupants {
		that.leaveRoom(ctx, player)
	}
}

// leaveRoom - per-player detach: reset state, notify the client, and
// re-queue it if the connection is still open. Closed connections are never
// re-queued.
func (that *MatchManager) leaveRoom(ctx context.Context, player *entity.Player) {
	player.LeaveRoom()

	that.notifier.Emit(player.ID, EventCancelGame, nil)
	that.notifier.Emit(player.ID, EventOpponentName, NamePayload{Name: NoOpponentName})

	if !that.notifier.IsConnected(player.ID) {
		return
	}

	if err := that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		that.logger.Error("failed to update player", "playerID", player.ID, "error", err)
		return
	}

	that.enqueue(ctx, player)
}

// deletePlayer - forcibly closes the connection and removes the registry
// entry.
func (that *MatchManager) deletePlayer(ctx context.Context, player *entity.Player) {
	that.notifier.CloseConnection(player.ID)

	if err := that.playerRepo.DeleteByID(ctx, player.ID); err != nil {
		that.logger.Error("failed to delete player", "playerID", player.ID, "error", err)
	}

	that.logger.Info("player deleted", "playerID", player.ID)
}
