// Package hub is the websocket client for the lock backend. It exposes the
// two narrow contracts everything else is built on: an id-matched
// request/response command channel and a push-event subscription for pull
// progress. The hub's own storage and retry behavior stay opaque behind it.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marcus/lk/internal/models"
	"github.com/marcus/lk/internal/snapshot"
)

// Sentinel errors for common command failure classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("slot not found")
	// ErrSlotOccupied means the slot holds a code the hub does not recognize;
	// the caller must confirm before retrying with the override flag.
	ErrSlotOccupied = errors.New("slot occupied by unknown code")
	ErrClosed       = errors.New("hub connection closed")
)

const (
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 15 * time.Second
)

// Client is a connected hub session.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex // serializes writes to the websocket

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan frame
	subs    map[int64]chan SyncProgress
	nextSub int64
	closed  bool
	readErr error

	done chan struct{}
}

// Dial connects to the hub, performs the token auth handshake, and starts
// the read loop.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}

	if err := authenticate(conn, token); err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn:    conn,
		pending: make(map[int64]chan frame),
		subs:    make(map[int64]chan SyncProgress),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func authenticate(conn *websocket.Conn, token string) error {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var hello frame
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read auth challenge: %w", err)
	}
	if hello.Type != frameAuthRequired {
		return fmt.Errorf("unexpected handshake frame %q", hello.Type)
	}
	if err := conn.WriteJSON(frame{Type: frameAuth, AccessToken: token}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	var reply frame
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	switch reply.Type {
	case frameAuthOK:
		return nil
	case frameAuthInvalid:
		return fmt.Errorf("%w: hub rejected token", ErrUnauthorized)
	default:
		return fmt.Errorf("unexpected auth reply %q", reply.Type)
	}
}

// Close tears down the connection and releases the event subscription.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		for id, ch := range c.subs {
			close(ch)
			delete(c.subs, id)
		}
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		switch f.Type {
		case frameResult:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			if ok {
				delete(c.pending, f.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case frameEvent:
			var ev SyncProgress
			if err := json.Unmarshal(f.Event, &ev); err != nil {
				slog.Warn("undecodable hub event", "err", err)
				continue
			}
			c.mu.Lock()
			for _, ch := range c.subs {
				select {
				case ch <- ev:
				default: // slow consumer, drop rather than stall the reader
				}
			}
			c.mu.Unlock()
		default:
			slog.Debug("ignoring hub frame", "type", f.Type)
		}
	}
}

// Call invokes a named operation and waits for its result frame.
func (c *Client) Call(ctx context.Context, op string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", op, err)
		}
		raw = data
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan frame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.writeFrame(frame{ID: id, Type: frameCall, Op: op, Params: raw}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("send %s: %w", op, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case f, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if f.Success != nil && !*f.Success {
			return nil, resultError(op, f.Error)
		}
		return f.Result, nil
	}
}

func resultError(op string, we *wireError) error {
	if we == nil {
		return &CommandError{Op: op, Code: "unknown_error"}
	}
	switch we.Code {
	case "slot_occupied":
		return fmt.Errorf("%w: %s", ErrSlotOccupied, we.Message)
	case "unauthorized":
		return fmt.Errorf("%w: %s", ErrUnauthorized, we.Message)
	case "not_found":
		return fmt.Errorf("%w: %s", ErrNotFound, we.Message)
	default:
		return &CommandError{Op: op, Code: we.Code, Message: we.Message}
	}
}

func (c *Client) writeFrame(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(f)
}

// Subscribe registers for pull-progress events. The returned cancel func
// must be called when the consumer is done.
func (c *Client) Subscribe(ctx context.Context) (<-chan SyncProgress, func(), error) {
	if _, err := c.Call(ctx, "subscribe_sync_progress", nil); err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	ch := make(chan SyncProgress, 32)
	c.subs[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
		c.mu.Unlock()
	}
	return ch, cancel, nil
}

// Slots fetches the entity snapshot read model: the hub's last-reported view
// of every occupied slot.
func (c *Client) Slots(ctx context.Context) (snapshot.Snapshot, error) {
	raw, err := c.Call(ctx, OpGetSlots, nil)
	if err != nil {
		return nil, err
	}
	var byKey map[string]models.SlotView
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	out := make(snapshot.Snapshot, len(byKey))
	for key, view := range byKey {
		n, err := strconv.Atoi(key)
		if err != nil || !models.ValidSlot(n) {
			slog.Warn("ignoring slot with invalid key", "key", key)
			continue
		}
		out[n] = view
	}
	return out, nil
}

// SetUserCode writes a slot's code, name, and type to the backend entity.
// override retries past the slot-occupied protection after user confirmation.
func (c *Client) SetUserCode(ctx context.Context, slot int, code, name string, codeType models.CodeType, override bool) error {
	_, err := c.Call(ctx, OpSetUserCode, setCodeParams{
		Slot: slot, Code: code, Name: name, CodeType: codeType, Override: override,
	})
	return err
}

// ClearUserCode removes a slot from the backend entity.
func (c *Client) ClearUserCode(ctx context.Context, slot int) error {
	_, err := c.Call(ctx, OpClearUserCode, slotParams{Slot: slot})
	return err
}

// SetUserSchedule sets or clears a slot's validity window.
func (c *Client) SetUserSchedule(ctx context.Context, slot int, sched models.Schedule) error {
	params := scheduleParams{Slot: slot}
	if sched.Start != nil {
		s := sched.Start.Format(time.RFC3339)
		params.Start = &s
	}
	if sched.End != nil {
		e := sched.End.Format(time.RFC3339)
		params.End = &e
	}
	_, err := c.Call(ctx, OpSetUserSchedule, params)
	return err
}

// SetUsageLimit sets or clears a slot's maximum use count.
func (c *Client) SetUsageLimit(ctx context.Context, slot int, maxUses *int) error {
	_, err := c.Call(ctx, OpSetUsageLimit, usageLimitParams{Slot: slot, MaxUses: maxUses})
	return err
}

// SetUserStatus enables or disables a slot.
func (c *Client) SetUserStatus(ctx context.Context, slot int, enabled bool) error {
	_, err := c.Call(ctx, OpSetUserStatus, statusParams{Slot: slot, Enabled: enabled})
	return err
}

// PushCode writes a slot's cached code and status to the physical lock.
func (c *Client) PushCode(ctx context.Context, slot int) error {
	_, err := c.Call(ctx, OpPushCodeToLock, slotParams{Slot: slot})
	return err
}

// PullCodes asks the hub to read every slot from the physical lock into the
// backend entity. Progress arrives on the event subscription; the call
// returns when the hub reports the scan finished.
func (c *Client) PullCodes(ctx context.Context) error {
	_, err := c.Call(ctx, OpPullCodesFromLock, nil)
	return err
}

// ResetUsageCount zeroes a slot's usage counter.
func (c *Client) ResetUsageCount(ctx context.Context, slot int) error {
	_, err := c.Call(ctx, OpResetUsageCount, slotParams{Slot: slot})
	return err
}

// ClearLocalCache asks the hub to drop its own cached view of the entity.
func (c *Client) ClearLocalCache(ctx context.Context) error {
	_, err := c.Call(ctx, OpClearLocalCache, nil)
	return err
}

// Done is closed when the connection's read loop exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the read-loop error after Done is closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}
