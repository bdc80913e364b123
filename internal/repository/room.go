package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/pingpong-backend/internal/apperror"
	"github.com/rocketscienceinc/pingpong-backend/internal/entity"
)

// acceptingRoomKey holds the id of the single room currently open for
// matchmaking. At most one room is ever waiting for a second player.
const acceptingRoomKey = "room:accepting"

type RoomRepository interface {
	CreateOrUpdate(ctx context.Context, room *entity.Room) error
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	DeleteByID(ctx context.Context, id string) error

	GetAccepting(ctx context.Context) (*entity.Room, error)
	GetAcceptingID(ctx context.Context) (string, error)
	SetAccepting(ctx context.Context, roomID string) error
	ClearAccepting(ctx context.Context) error
}

type dbRoom struct {
	client *redis.Client
}

func NewRoomRepository(client *redis.Client) RoomRepository {
	return &dbRoom{
		client: client,
	}
}

func (that *dbRoom) CreateOrUpdate(ctx context.Context, room *entity.Room) error {
	roomJSON, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	roomKey := "room:" + room.ID
	err = that.client.Set(ctx, roomKey, roomJSON, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set room: %w", err)
	}

	return nil
}

func (that *dbRoom) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	roomKey := "room:" + id

	response, err := that.client.Get(ctx, roomKey).Result()

	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrRoomNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get room by ID: %w", err)
	}

	var existingRoom entity.Room
	if err = json.Unmarshal([]byte(response), &existingRoom); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}

	return &existingRoom, nil
}

func (that *dbRoom) DeleteByID(ctx context.Context, id string) error {
	roomKey := "room:" + id

	if err := that.client.Del(ctx, roomKey).Err(); err != nil {
		return fmt.Errorf("failed to delete room by ID: %w", err)
	}

	return nil
}

// GetAccepting - resolves the currently accepting room. A missing or
// dangling pointer yields ErrRoomNotFound.
func (that *dbRoom) GetAccepting(ctx context.Context) (*entity.Room, error) {
	roomID, err := that.GetAcceptingID(ctx)
	if err != nil {
		return nil, err
	}

	return that.GetByID(ctx, roomID)
}

func (that *dbRoom) GetAcceptingID(ctx context.Context) (string, error) {
	roomID, err := that.client.Get(ctx, acceptingRoomKey).Result()

	if errors.Is(err, redis.Nil) {
		return "", apperror.ErrRoomNotFound
	}

	if err != nil {
		return "", fmt.Errorf("failed to get accepting room id: %w", err)
	}

	return roomID, nil
}

func (that *dbRoom) SetAccepting(ctx context.Context, roomID string) error {
	if err := that.client.Set(ctx, acceptingRoomKey, roomID, 0).Err(); err != nil {
		return fmt.Errorf("failed to set accepting room id: %w", err)
	}

	return nil
}

func (that *dbRoom) ClearAccepting(ctx context.Context) error {
	if err := that.client.Del(ctx, acceptingRoomKey).Err(); err != nil {
		return fmt.Errorf("failed to clear accepting room id: %w", err)
	}

	return nil
}
