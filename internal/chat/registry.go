package chat

import (
	"context"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"kvchat/internal/crypto"
	"kvchat/internal/kv"
	"kvchat/internal/models"
)

// ListRooms returns every registered room in creation order.
func (c *Client) ListRooms(ctx context.Context) ([]string, error) {
	raw, _, err := c.get(ctx, roomsKey)
	if err != nil {
		return nil, err
	}
	return splitList(raw), nil
}

func (c *Client) RoomExists(ctx context.Context, room string) (bool, error) {
	rooms, err := c.ListRooms(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(rooms, room), nil
}

// CreateRoom registers room with creator as its only member. The room
// private key is kept in creator's local key store and never written to the
// shared store.
func (c *Client) CreateRoom(ctx context.Context, creator, room string) error {
	if err := c.checkLocalUser(creator); err != nil {
		return err
	}
	if err := validateName("room name", room); err != nil {
		return err
	}

	pub, priv, err := c.engine.GenerateKeyPair()
	if err != nil {
		return err
	}
	encodedPub := crypto.MarshalPublicKey(pub)

	if c.txn != nil {
		err = c.commitLoop(ctx, "create room", func() (kv.Condition, []kv.KeyValue, error) {
			raw, present, err := c.get(ctx, roomsKey)
			if err != nil {
				return kv.Condition{}, nil, err
			}
			rooms := splitList(raw)
			if slices.Contains(rooms, room) {
				return kv.Condition{}, nil, ErrDuplicateRoom.WithDetails(room)
			}
			return kv.Matches(roomsKey, raw, present), []kv.KeyValue{
				{Key: roomsKey, Value: joinList(append(rooms, room))},
				{Key: numMessagesKey(room), Value: "0"},
				{Key: membersKey(room), Value: creator},
				{Key: numMembersKey(room), Value: "1"},
				{Key: roomPublicKeyKey(room), Value: encodedPub},
			}, nil
		})
	} else {
		err = c.createRoomOrdered(ctx, creator, room, encodedPub)
	}
	if err != nil {
		return err
	}

	if err := c.keys.SaveRoomKey(room, priv); err != nil {
		return err
	}
	c.cachePublicKey(room, pub)
	c.logger.Info("Room created", zap.String("room", room), zap.String("creator", creator))
	return nil
}

func (c *Client) createRoomOrdered(ctx context.Context, creator, room, encodedPub string) error {
	rooms, err := c.ListRooms(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(rooms, room) {
		return ErrDuplicateRoom.WithDetails(room)
	}
	return c.putAll(ctx,
		kv.KeyValue{Key: roomsKey, Value: joinList(append(rooms, room))},
		kv.KeyValue{Key: numMessagesKey(room), Value: "0"},
		kv.KeyValue{Key: membersKey(room), Value: creator},
		kv.KeyValue{Key: numMembersKey(room), Value: "1"},
		kv.KeyValue{Key: roomPublicKeyKey(room), Value: encodedPub},
	)
}

// RemoveRoom drops room from the registry. Its members, keys and messages
// stay in the store.
func (c *Client) RemoveRoom(ctx context.Context, room string) error {
	remove := func(rooms []string) ([]string, error) {
		i := slices.Index(rooms, room)
		if i < 0 {
			return nil, ErrRoomNotFound.WithDetails(room)
		}
		return slices.Delete(rooms, i, i+1), nil
	}

	var err error
	if c.txn != nil {
		err = c.commitLoop(ctx, "remove room", func() (kv.Condition, []kv.KeyValue, error) {
			raw, present, err := c.get(ctx, roomsKey)
			if err != nil {
				return kv.Condition{}, nil, err
			}
			rooms, err := remove(splitList(raw))
			if err != nil {
				return kv.Condition{}, nil, err
			}
			return kv.Matches(roomsKey, raw, present), []kv.KeyValue{{Key: roomsKey, Value: joinList(rooms)}}, nil
		})
	} else {
		var rooms []string
		rooms, err = c.ListRooms(ctx)
		if err == nil {
			rooms, err = remove(rooms)
		}
		if err == nil {
			err = c.put(ctx, roomsKey, joinList(rooms))
		}
	}
	if err != nil {
		return err
	}
	c.forgetPublicKey(room)
	c.logger.Info("Room removed", zap.String("room", room))
	return nil
}

// ListMembers returns the members of room in join order.
func (c *Client) ListMembers(ctx context.Context, room string) ([]string, error) {
	raw, _, err := c.get(ctx, membersKey(room))
	if err != nil {
		return nil, err
	}
	return splitList(raw), nil
}

// MemberCount reads the published member counter, which lags the member list
// while a join is in flight.
func (c *Client) MemberCount(ctx context.Context, room string) (int, error) {
	key := numMembersKey(room)
	raw, ok, err := c.get(ctx, key)
	if err != nil {
		return 0, err
	}
	return parseCount(key, raw, ok)
}

func (c *Client) IsMember(ctx context.Context, room, user string) (bool, error) {
	members, err := c.ListMembers(ctx, room)
	if err != nil {
		return false, err
	}
	return slices.Contains(members, user), nil
}

// RoomInfo gathers the public metadata of a registered room.
func (c *Client) RoomInfo(ctx context.Context, room string) (models.RoomInfo, error) {
	exists, err := c.RoomExists(ctx, room)
	if err != nil {
		return models.RoomInfo{}, err
	}
	if !exists {
		return models.RoomInfo{}, ErrRoomNotFound.WithDetails(room)
	}
	members, err := c.ListMembers(ctx, room)
	if err != nil {
		return models.RoomInfo{}, err
	}
	count, err := c.Count(ctx, room)
	if err != nil {
		return models.RoomInfo{}, err
	}
	pub, _, err := c.get(ctx, roomPublicKeyKey(room))
	if err != nil {
		return models.RoomInfo{}, err
	}
	return models.RoomInfo{
		Name:         room,
		Members:      members,
		MessageCount: count,
		PublicKey:    pub,
	}, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
