package websocket

import "encoding/json"

// Message is the wire envelope. Payload stays a json.RawMessage so relayed
// gameplay payloads pass through to the opponent byte-for-byte.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound actions.
const (
	actionLogin             = "login"
	actionSetName           = "setName"
	actionLeave             = "leave"
	actionPong              = "pong"
	actionPaddleHit         = "paddleHit"
	actionPaddleSpeedChange = "paddleSpeedChange"
	actionStartGame         = "startGame"
	actionOpponentScored    = "opponentScored"
	actionPaddlePosition    = "paddlePosition"
)

// Outbound actions. Relayed events keep their inbound name except for the
// two renames the game clients already depend on: opponentScored goes out as
// "scored" and paddlePosition goes out as "paddingPosition".
const (
	actionPing            = "ping"
	actionScored          = "scored"
	actionPaddingPosition = "paddingPosition"
)

// relayActions maps each gameplay event to the name it is forwarded under.
var relayActions = map[string]string{
	actionPaddleHit:         actionPaddleHit,
	actionPaddleSpeedChange: actionPaddleSpeedChange,
	actionStartGame:         actionStartGame,
	actionOpponentScored:    actionScored,
	actionPaddlePosition:    actionPaddingPosition,
}

type namePayload struct {
	Name string `json:"name"`
}

type errorPayload struct {
	Error string `json:"error"`
}
