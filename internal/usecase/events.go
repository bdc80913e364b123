package usecase

// Event names emitted towards clients by the match manager. The transport
// layer owns the relayed gameplay events; these are the session-control ones.
const (
	EventCancelGame   = "cancelGame"
	EventOpponentName = "opponentName"
	EventInRoom       = "inRoom"
	EventScores       = "scores"
)

// NoOpponentName is sent with opponentName when a pairing is torn down.
const NoOpponentName = "not present"

type NamePayload struct {
	Name string `json:"name"`
}

// ScoresPayload is always written from the receiver's own perspective.
type ScoresPayload struct {
	Self     int `json:"self"`
	Opponent int `json:"opponent"`
}
