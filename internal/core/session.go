package core

// bindIdentity registers c as the live connection of userID and announces it.
// Persisting the online flag is best effort: a store failure is returned for
// logging after the registry update and the broadcast have happened.
func (h *Hub) bindIdentity(c *Client, userID string) error {
	if userID == "" {
		return coreError(ErrCodeMissingIdentity, "user id is required", ErrMissingIdentity)
	}

	switch c.State() {
	case StateClosed:
		return coreError(ErrCodeSessionClosed, "session closed", ErrSessionClosed)
	case StateBound:
		if c.UserID() == userID {
			return nil
		}
		return coreError(ErrCodeAlreadyBound, "session already bound to "+c.UserID(), ErrAlreadyBound)
	}

	var previous *Client
	if err := h.do(func() { previous = h.registry.Set(userID, c) }); err != nil {
		return coreError(ErrCodeUnavailable, "register presence", err)
	}
	c.bind(userID)

	if previous != nil && previous != c {
		h.log.Info().
			Str("user_id", userID).
			Str("client_id", c.ID).
			Str("replaced_client_id", previous.ID).
			Msg("presence entry replaced")
		if h.opts.EvictReplacedSessions {
			previous.Deliver(&Event{Kind: EventSessionReplaced, User: userID})
		}
	}

	persistErr := h.setOnline(userID, true)

	if err := h.publish(statusEvent(userID, true)); err != nil {
		return coreError(ErrCodeUnavailable, "broadcast presence", err)
	}
	if persistErr != nil {
		return coreError(ErrCodePersistenceFailed, "persist online flag", persistErr)
	}
	return nil
}

// sendMessage persists a direct message, forwards it to the receiver when online
// and acknowledges it to the sender. Nothing is delivered if persistence fails.
func (h *Hub) sendMessage(c *Client, cmd *Command) error {
	state := c.State()
	if state == StateClosed {
		return coreError(ErrCodeSessionClosed, "session closed", ErrSessionClosed)
	}

	from := cmd.From
	bound := c.UserID()
	if h.opts.RequireBoundSender {
		if state != StateBound {
			return coreError(ErrCodeNotBound, "send user-online before sending messages", ErrNotBound)
		}
		if from != "" && from != bound {
			return coreError(ErrCodeBadRequest, "sender does not match bound user", ErrBadRequest)
		}
	}
	if from == "" {
		from = bound
	}
	if from == "" || cmd.To == "" {
		return coreError(ErrCodeBadRequest, "sender and receiver are required", ErrBadRequest)
	}

	text := cmd.Text
	if h.opts.Moderator != nil {
		text = h.opts.Moderator.Censor(text)
	}

	ctx, cancel := h.withTimeout(h.ctx)
	defer cancel()

	record, err := h.messages.Append(ctx, from, cmd.To, text)
	if err != nil {
		return coreError(ErrCodePersistenceFailed, "persist message", err)
	}
	msg := messageFromStore(record)

	var receiver *Client
	if err := h.do(func() { receiver, _ = h.registry.Get(cmd.To) }); err != nil {
		return coreError(ErrCodeUnavailable, "resolve receiver", err)
	}

	logEvent := h.log.Debug().
		Str("chat_id", msg.ID).
		Str("from", msg.From).
		Str("to", msg.To).
		Bool("receiver_online", receiver != nil)
	if receiver != nil && !receiver.Deliver(&Event{Kind: EventReceiveMessage, Message: msg}) {
		logEvent = logEvent.Bool("receiver_dropped", true)
	}
	if !c.Deliver(&Event{Kind: EventMessageSent, Message: msg}) {
		logEvent = logEvent.Bool("ack_dropped", true)
	}
	logEvent.Msg("message sent")

	return nil
}

// closeSession removes c from the registry and, if it still owned a presence
// entry, announces the user offline.
func (h *Hub) closeSession(c *Client) error {
	var (
		userID string
		found  bool
	)
	err := h.do(func() {
		h.broadcaster.Unsubscribe(c)
		userID, found = h.registry.RemoveByHandle(c)
	})
	c.close()
	if err != nil {
		return coreError(ErrCodeUnavailable, "deregister presence", err)
	}

	h.log.Debug().Str("client_id", c.ID).Str("user_id", userID).Bool("was_present", found).Msg("client closed")
	if !found {
		return nil
	}

	persistErr := h.setOnline(userID, false)

	if err := h.publish(statusEvent(userID, false)); err != nil {
		return coreError(ErrCodeUnavailable, "broadcast presence", err)
	}
	if persistErr != nil {
		return coreError(ErrCodePersistenceFailed, "persist offline flag", persistErr)
	}
	return nil
}

func (h *Hub) setOnline(userID string, online bool) error {
	if h.users == nil {
		return nil
	}
	ctx, cancel := h.withTimeout(h.ctx)
	defer cancel()
	return h.users.SetOnline(ctx, userID, online)
}
