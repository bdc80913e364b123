package entity

import (
	"github.com/rocketscienceinc/pingpong-backend/internal/apperror"
)

const (
	StatusFinished = "finished"
	StatusOngoing  = "ongoing"
	StatusWaiting  = "waiting"
)

const (
	// MaxPlayers - a room holds exactly two paddles, never more.
	MaxPlayers = 2

	// WinningScore - first player to reach this score wins the room.
	WinningScore = 7
)

// Room - a two-player game session. It moves waiting -> ongoing when the
// second player is added and ongoing -> finished when End is called; a
// finished room is deleted and never reused.
type Room struct {
	ID      string    `json:"id"`
	Status  string    `json:"status"`
	Players []*Player `json:"players,omitempty"`
}

func NewRoom(id string) *Room {
	return &Room{
		ID:     id,
		Status: StatusWaiting,
	}
}

// AddPlayer - appends a player to the room. Adding to a full room returns
// ErrRoomFull; re-adding a current occupant is a no-op. Filling the second
// slot is the only transition from waiting to ongoing.
func (that *Room) AddPlayer(player *Player) error {
	if that.HasPlayer(player.ID) {
		player.RoomID = that.ID
		return nil
	}

	if that.IsFull() {
		return apperror.ErrRoomFull
	}

	that.Players = append(that.Players, player)
	player.RoomID = that.ID

	if that.IsFull() {
		that.Status = StatusOngoing
	}

	return nil
}

// Opponent - resolves the other occupant for the given player.
func (that *Room) Opponent(playerID string) (*Player, error) {
	if !that.HasPlayer(playerID) {
		return nil, apperror.ErrNotInRoom
	}

	for _, player := range that.Players {
		if player.ID != playerID {
			return player, nil
		}
	}

	return nil, apperror.ErrNoOpponent
}

// End - detaches every occupant, resets their scores and marks the room
// finished. It returns the former occupants so the caller can notify and
// re-queue them.
func (that *Room) End() []*Player {
	occupants := that.Players
	that.Players = nil
	that.Status = StatusFinished

	for _, player := range occupants {
		player.LeaveRoom()
	}

	return occupants
}

func (that *Room) HasPlayer(id string) bool {
	for _, player := range that.Players {
		if player.ID == id {
			return true
		}
	}

	return false
}

func (that *Room) IsFull() bool {
	return len(that.Players) >= MaxPlayers
}

func (that *Room) IsFinished() bool {
	return that.Status == StatusFinished
}

func (that *Room) IsOngoing() bool {
	return that.Status == StatusOngoing
}

func (that *Room) IsWaiting() bool {
	return that.Status == StatusWaiting
}
