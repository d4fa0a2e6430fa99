package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"kvchat/internal/crypto"
	"kvchat/internal/kv"
	"kvchat/internal/models"
	"kvchat/internal/profile"
)

// JoinRequestText is the admin message announcing a join request.
func JoinRequestText(user string) string {
	return fmt.Sprintf("User %s would like to join! Please type \"!%s\" to accept", user, user)
}

// AcceptedText is the admin message recording an approval.
func AcceptedText(user, approver string) string {
	return fmt.Sprintf("User %s accepted by %s.", user, approver)
}

// RequestJoin lists user as a member of room and publishes a fresh personal
// public key for approvers to encrypt the room private key to. The personal
// private key is kept in the pending slot of the local key store.
func (c *Client) RequestJoin(ctx context.Context, user, room string) error {
	if err := c.checkLocalUser(user); err != nil {
		return err
	}
	exists, err := c.RoomExists(ctx, room)
	if err != nil {
		return err
	}
	if !exists {
		return ErrRoomNotFound.WithDetails(room)
	}
	members, err := c.ListMembers(ctx, room)
	if err != nil {
		return err
	}
	if slices.Contains(members, user) {
		return ErrAlreadyMember.WithDetails(user + " in " + room)
	}

	pub, priv, err := c.engine.GenerateKeyPair()
	if err != nil {
		return err
	}
	if err := c.keys.SavePendingKey(room, priv); err != nil {
		return err
	}
	encodedPub := crypto.MarshalPublicKey(pub)

	if c.txn != nil {
		err = c.commitLoop(ctx, "request join", func() (kv.Condition, []kv.KeyValue, error) {
			raw, present, err := c.get(ctx, membersKey(room))
			if err != nil {
				return kv.Condition{}, nil, err
			}
			members := splitList(raw)
			if slices.Contains(members, user) {
				return kv.Condition{}, nil, ErrAlreadyMember.WithDetails(user + " in " + room)
			}
			members = append(members, user)
			return kv.Matches(membersKey(room), raw, present), []kv.KeyValue{
				{Key: userPublicKeyKey(room, user), Value: encodedPub},
				{Key: userEncryptedPrivateKeyKey(room, user), Value: grantSentinel},
				{Key: membersKey(room), Value: joinList(members)},
				{Key: numMembersKey(room), Value: itoa(len(members))},
			}, nil
		})
	} else {
		err = c.requestJoinOrdered(ctx, user, room, encodedPub)
	}
	if err != nil {
		// no request was published, so the pending key is useless
		if dropErr := c.keys.DropPendingKey(room); dropErr != nil {
			c.logger.Warn("Failed to drop pending key", zap.String("room", room), zap.Error(dropErr))
		}
		return err
	}
	c.logger.Info("Join requested", zap.String("room", room), zap.String("user", user))
	return nil
}

func (c *Client) requestJoinOrdered(ctx context.Context, user, room, encodedPub string) error {
	if err := c.putAll(ctx,
		kv.KeyValue{Key: userPublicKeyKey(room, user), Value: encodedPub},
		kv.KeyValue{Key: userEncryptedPrivateKeyKey(room, user), Value: grantSentinel},
	); err != nil {
		return err
	}
	// re-read to narrow the window against concurrent joiners
	members, err := c.ListMembers(ctx, room)
	if err != nil {
		return err
	}
	if slices.Contains(members, user) {
		return ErrAlreadyMember.WithDetails(user + " in " + room)
	}
	members = append(members, user)
	// the counter is what pollers watch, so it goes last
	return c.putAll(ctx,
		kv.KeyValue{Key: membersKey(room), Value: joinList(members)},
		kv.KeyValue{Key: numMembersKey(room), Value: itoa(len(members))},
	)
}

// Approve encrypts the local copy of the room private key for candidate.
// It is a no-op when candidate has not published a personal key.
func (c *Client) Approve(ctx context.Context, candidate, room string) error {
	if err := validateName("username", candidate); err != nil {
		return err
	}
	roomPriv, err := c.roomPrivateKey(room)
	if err != nil {
		return err
	}

	pubKey := userPublicKeyKey(room, candidate)
	raw, ok, err := c.get(ctx, pubKey)
	if err != nil {
		return err
	}
	if !ok {
		c.logger.Debug("Approval skipped, candidate has no public key",
			zap.String("room", room), zap.String("candidate", candidate))
		return nil
	}
	candidatePub, err := crypto.ParsePublicKey(raw)
	if err != nil {
		return ErrMalformedValue.WithDetails(pubKey).Wrap(err)
	}

	pemBytes, err := crypto.MarshalPrivateKey(roomPriv)
	if err != nil {
		return err
	}
	encKey, ct, err := crypto.HybridEncrypt(pemBytes, candidatePub)
	if err != nil {
		return err
	}
	puts := []kv.KeyValue{
		{Key: userEncryptedAESKeyKey(room, candidate), Value: hexString(encKey)},
		// the slot the candidate polls goes last
		{Key: userEncryptedPrivateKeyKey(room, candidate), Value: hexString(ct)},
	}

	if c.txn != nil {
		ok, err := c.txn.CommitIf(ctx, kv.Equals(pubKey, raw), puts...)
		if err != nil {
			return ErrStoreUnavailable.WithDetails("commit " + pubKey).Wrap(err)
		}
		if !ok {
			return ErrConflict.WithDetails("candidate key changed during approval")
		}
	} else if err := c.putAll(ctx, puts...); err != nil {
		return err
	}
	c.logger.Info("Member approved", zap.String("room", room), zap.String("candidate", candidate))
	return nil
}

// ApproveListed approves candidate only if they are in the member list and
// then records the approval in the room log. It reports whether the
// candidate was listed.
func (c *Client) ApproveListed(ctx context.Context, approver, candidate, room string) (bool, error) {
	listed, err := c.IsMember(ctx, room, candidate)
	if err != nil || !listed {
		return false, err
	}
	if err := c.Approve(ctx, candidate, room); err != nil {
		return true, err
	}
	if _, err := c.Append(ctx, room, models.AdminAuthor, AcceptedText(candidate, approver)); err != nil {
		return true, err
	}
	return true, nil
}

// AwaitGrant waits until an approver fills user's encrypted private key slot
// for room, then stores the decrypted room private key locally. The wait is
// bounded only by ctx; the result tells a deadline apart from cancellation.
func (c *Client) AwaitGrant(ctx context.Context, user, room string) (models.GrantResult, error) {
	if err := c.checkLocalUser(user); err != nil {
		return models.Cancelled, err
	}
	personal, err := c.keys.PendingKey(room)
	if errors.Is(err, profile.ErrKeyNotFound) {
		return models.Cancelled, ErrKeyUnavailable.WithDetails("no pending join request for " + room)
	}
	if err != nil {
		return models.Cancelled, err
	}

	ticker := time.NewTicker(c.joinPollInterval)
	defer ticker.Stop()
	for {
		granted, err := c.tryReceiveGrant(ctx, user, room, personal)
		if err != nil {
			if ctx.Err() != nil {
				return waitResult(ctx), nil
			}
			return models.Cancelled, err
		}
		if granted {
			c.logger.Info("Join granted", zap.String("room", room), zap.String("user", user))
			return models.Granted, nil
		}

		select {
		case <-ctx.Done():
			return waitResult(ctx), nil
		case <-ticker.C:
		}
	}
}

func waitResult(ctx context.Context) models.GrantResult {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.TimedOut
	}
	return models.Cancelled
}

func (c *Client) tryReceiveGrant(ctx context.Context, user, room string, personal crypto.PrivateKey) (bool, error) {
	slotKey := userEncryptedPrivateKeyKey(room, user)
	slot, ok, err := c.get(ctx, slotKey)
	if err != nil {
		return false, err
	}
	if !ok || slot == grantSentinel {
		return false, nil
	}

	aesKey := userEncryptedAESKeyKey(room, user)
	encKeyHex, ok, err := c.get(ctx, aesKey)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrMalformedValue.WithDetails(aesKey + " missing")
	}
	ct, err := decodeHex(slotKey, slot)
	if err != nil {
		return false, err
	}
	encKey, err := decodeHex(aesKey, encKeyHex)
	if err != nil {
		return false, err
	}

	pemBytes, err := crypto.HybridDecrypt(encKey, ct, personal)
	if err != nil {
		return false, ErrDecryptionIntegrity.WithDetails("room key grant").Wrap(err)
	}
	roomPriv, err := crypto.ParsePrivateKey(pemBytes)
	if err != nil {
		return false, ErrDecryptionIntegrity.WithDetails("room key grant").Wrap(err)
	}
	if err := c.keys.SaveRoomKey(room, roomPriv); err != nil {
		return false, err
	}
	if err := c.keys.DropPendingKey(room); err != nil {
		c.logger.Warn("Failed to drop pending key", zap.String("room", room), zap.Error(err))
	}
	return true, nil
}

// Join requests membership and waits for approval. A request left pending
// by an earlier session is resumed, and a member already holding the room
// key is granted immediately.
func (c *Client) Join(ctx context.Context, user, room string) (models.GrantResult, error) {
	err := c.RequestJoin(ctx, user, room)
	if errors.Is(err, ErrAlreadyMember) {
		if c.keys.HasRoomKey(room) {
			return models.Granted, nil
		}
		if _, perr := c.keys.PendingKey(room); perr != nil {
			return models.Cancelled, err
		}
		c.logger.Info("Resuming pending join", zap.String("room", room), zap.String("user", user))
	} else if err != nil {
		return models.Cancelled, err
	}
	return c.AwaitGrant(ctx, user, room)
}

// JoinState reports how far user's membership of room has progressed
// according to the store.
func (c *Client) JoinState(ctx context.Context, user, room string) (models.JoinState, error) {
	members, err := c.ListMembers(ctx, room)
	if err != nil {
		return models.Unregistered, err
	}
	i := slices.Index(members, user)
	switch {
	case i < 0:
		return models.Unregistered, nil
	case i == 0:
		// the creator holds the key from the start
		return models.Approved, nil
	}

	slot, ok, err := c.get(ctx, userEncryptedPrivateKeyKey(room, user))
	if err != nil {
		return models.Unregistered, err
	}
	_, hasPub, err := c.get(ctx, userPublicKeyKey(room, user))
	if err != nil {
		return models.Unregistered, err
	}
	switch {
	case !ok || !hasPub:
		return models.Requested, nil
	case slot == grantSentinel:
		return models.ApprovalPending, nil
	default:
		return models.Approved, nil
	}
}
