package websocket

import (
	"context"
	"encoding/json"
	"fmt"
)

func (that *Server) handleLogin(ctx context.Context, conn *connection, msg *Message) error {
	log := that.logger.With("method", "handleLogin")

	var payload namePayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	if _, err := that.matches.Login(ctx, conn.playerID, payload.Name); err != nil {
		log.Error("failed to log in player", "playerID", conn.playerID, "error", err)
		return that.sendErrorResponse(conn, msg.Action, "failed to log in")
	}

	return nil
}

func (that *Server) handleSetName(ctx context.Context, conn *connection, msg *Message) error {
	log := that.logger.With("method", "handleSetName")

	var payload namePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if err := that.matches.Rename(ctx, conn.playerID, payload.Name); err != nil {
		log.Error("failed to rename player", "playerID", conn.playerID, "error", err)
		return that.sendErrorResponse(conn, msg.Action, "failed to set name")
	}

	return nil
}

// handleLeave - the client-side leave button is not wired up yet; the event
// is accepted and logged so clients don't get unknown-action noise.
func (that *Server) handleLeave(_ context.Context, conn *connection, _ *Message) error {
	that.logger.Info("leave received", "playerID", conn.playerID)
	return nil
}

// relayHandler - verbatim pass-through of a gameplay event to the sender's
// opponent, with no interpretation or buffering. opponentScored additionally
// drives the room's score and win-condition logic.
func (that *Server) relayHandler(inbound, outbound string) func(context.Context, *connection, *Message) error {
	return func(ctx context.Context, conn *connection, msg *Message) error {
		opponent, err := that.matches.ResolveOpponent(ctx, conn.playerID)
		if err != nil {
			return fmt.Errorf("failed to resolve opponent: %w", err)
		}

		if opponentConn, ok := that.getConnection(opponent.ID); ok {
			if err = opponentConn.send(Message{Action: outbound, Payload: msg.Payload}); err != nil {
				that.logger.Error("failed to relay event", "action", outbound, "playerID", opponent.ID, "error", err)
			}
		}

		if inbound != actionOpponentScored {
			return nil
		}

		if err = that.matches.OpponentScored(ctx, conn.playerID); err != nil {
			return fmt.Errorf("failed to handle score: %w", err)
		}

		return nil
	}
}

func (that *Server) sendErrorResponse(conn *connection, action, errorMsg string) error {
	raw, err := json.Marshal(errorPayload{Error: errorMsg})
	if err != nil {
		return fmt.Errorf("failed to marshal error payload: %w", err)
	}

	if err = conn.send(Message{Action: action, Payload: raw}); err != nil {
		return fmt.Errorf("failed to send error response: %w", err)
	}

	return nil
}
