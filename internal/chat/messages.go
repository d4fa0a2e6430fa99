package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kvchat/internal/crypto"
	"kvchat/internal/kv"
	"kvchat/internal/models"
)

// Append encrypts text under the room public key and adds it to the room log
// as author. It returns the index the message was stored under.
func (c *Client) Append(ctx context.Context, room, author, text string) (int, error) {
	if err := validateName("author", author); err != nil {
		return 0, err
	}
	pub, err := c.roomPublicKey(ctx, room)
	if err != nil {
		return 0, err
	}
	encKey, ct, err := crypto.HybridEncrypt([]byte(text), pub)
	if err != nil {
		return 0, err
	}
	payload := func(index int) []kv.KeyValue {
		return []kv.KeyValue{
			{Key: messageKey(room, index), Value: hexString(ct)},
			{Key: messageAESKeyKey(room, index), Value: hexString(encKey)},
			{Key: messageAuthorKey(room, index), Value: author},
		}
	}

	var index int
	if c.txn != nil {
		err = c.commitLoop(ctx, "append", func() (kv.Condition, []kv.KeyValue, error) {
			countKey := numMessagesKey(room)
			raw, present, err := c.get(ctx, countKey)
			if err != nil {
				return kv.Condition{}, nil, err
			}
			index, err = parseCount(countKey, raw, present)
			if err != nil {
				return kv.Condition{}, nil, err
			}
			puts := append(payload(index), kv.KeyValue{Key: countKey, Value: itoa(index + 1)})
			return kv.Matches(countKey, raw, present), puts, nil
		})
	} else {
		index, err = c.Count(ctx, room)
		if err == nil {
			// readers trust the counter, so it is published after the payload
			puts := append(payload(index), kv.KeyValue{Key: numMessagesKey(room), Value: itoa(index + 1)})
			err = c.putAll(ctx, puts...)
		}
	}
	if err != nil {
		return 0, err
	}
	c.logger.Debug("Message appended", zap.String("room", room), zap.Int("index", index), zap.String("author", author))
	return index, nil
}

// Read fetches and decrypts entry index of the room log.
func (c *Client) Read(ctx context.Context, room string, index int) (models.Message, error) {
	if index < 0 {
		return models.Message{}, ErrMessageNotFound.WithDetails(room + "/" + itoa(index))
	}
	count, err := c.Count(ctx, room)
	if err != nil {
		return models.Message{}, err
	}
	if index >= count {
		return models.Message{}, ErrMessageNotFound.WithDetails(room + "/" + itoa(index))
	}
	priv, err := c.roomPrivateKey(room)
	if err != nil {
		return models.Message{}, err
	}

	fields := []string{messageKey(room, index), messageAESKeyKey(room, index), messageAuthorKey(room, index)}
	values := make([]string, len(fields))
	for i, key := range fields {
		v, ok, err := c.get(ctx, key)
		if err != nil {
			return models.Message{}, err
		}
		if !ok {
			return models.Message{}, ErrMessageNotFound.WithDetails(key)
		}
		values[i] = v
	}

	ct, err := decodeHex(fields[0], values[0])
	if err != nil {
		return models.Message{}, ErrDecryptionIntegrity.WithDetails(fields[0]).Wrap(err)
	}
	encKey, err := decodeHex(fields[1], values[1])
	if err != nil {
		return models.Message{}, ErrDecryptionIntegrity.WithDetails(fields[1]).Wrap(err)
	}
	plaintext, err := crypto.HybridDecrypt(encKey, ct, priv)
	if err != nil {
		return models.Message{}, ErrDecryptionIntegrity.WithDetails(fields[0]).Wrap(err)
	}

	return models.Message{
		Room:      room,
		Index:     index,
		Author:    values[2],
		Text:      string(plaintext),
		Timestamp: time.Now().UnixMicro(),
	}, nil
}

// Count returns the number of messages in the room log, zero for a room
// that never had one.
func (c *Client) Count(ctx context.Context, room string) (int, error) {
	key := numMessagesKey(room)
	raw, ok, err := c.get(ctx, key)
	if err != nil {
		return 0, err
	}
	return parseCount(key, raw, ok)
}
