package entity

// MaxNameLength - display names longer than this are cut down at login.
const MaxNameLength = 40

// Player - a connected client. The opponent is not stored on the player;
// it is resolved through the player's room at use time (see Room.Opponent).
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	RoomID string `json:"room_id,omitempty"`
}

func NewPlayer(id, name string) *Player {
	return &Player{
		ID:   id,
		Name: TruncateName(name),
	}
}

// TruncateName - enforces the login name limit. Names set later via setName
// are taken as-is.
func TruncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= MaxNameLength {
		return name
	}

	return string(runes[:MaxNameLength])
}

func (that *Player) InRoom() bool {
	return that.RoomID != ""
}

// LeaveRoom - clears the room reference and resets the score. Safe to call on
// a player that is already outside any room.
func (that *Player) LeaveRoom() {
	that.RoomID = ""
	that.Score = 0
}
