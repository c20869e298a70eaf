package server

import (
	"log"
	"sync"
	"time"

	"github.com/chitchat-backend/chitchat-server/internal/stats"
)

// defaultTypingTimeout bounds a typing episode with no renewals.
const defaultTypingTimeout = 10 * time.Second

type typingKey struct {
	conversationId string
	userId         string
}

type typingEntry struct {
	displayName string
	renewedAt   time.Time
	timer       *time.Timer
	// gen is drawn from the tracker-wide sequence, never reused across
	// episodes, so a fired-but-not-yet-run callback from a dead episode can
	// never match a live entry
	gen uint64
}

// TypingTracker is the per-(conversation, user) typing state machine. An
// entry exists only while its timer is armed; expiry or an explicit stop
// broadcasts userStoppedTyping exactly once per episode.
type TypingTracker struct {
	mu      sync.Mutex
	entries map[typingKey]*typingEntry
	genSeq  uint64
	timeout time.Duration
	bc      *Broadcaster
	stats   stats.StatsProvider
	log     *log.Logger
}

func NewTypingTracker(bc *Broadcaster, su stats.StatsProvider, logger *log.Logger) *TypingTracker {
	return &TypingTracker{
		entries: make(map[typingKey]*typingEntry),
		timeout: defaultTypingTimeout,
		bc:      bc,
		stats:   su,
		log:     logger,
	}
}

// HandleTyping starts a typing episode, broadcasting userTyping to the room
// excluding the originating connection. If an episode is already running the
// timer is re-armed without re-broadcasting.
func (t *TypingTracker) HandleTyping(conversationId, userId, displayName string, origin *Client) {
	key := typingKey{conversationId: conversationId, userId: userId}

	t.mu.Lock()
	if e, ok := t.entries[key]; ok {
		t.genSeq++
		e.gen = t.genSeq
		e.renewedAt = time.Now()
		gen := e.gen
		e.timer.Stop()
		e.timer = time.AfterFunc(t.timeout, func() { t.expire(key, gen) })
		t.mu.Unlock()
		return
	}

	t.genSeq++
	e := &typingEntry{
		displayName: displayName,
		renewedAt:   time.Now(),
		gen:         t.genSeq,
	}
	gen := e.gen
	e.timer = time.AfterFunc(t.timeout, func() { t.expire(key, gen) })
	t.entries[key] = e
	t.mu.Unlock()

	t.stats.Incr(stats.TypingEntries)
	t.bc.ToRoom(conversationId, newServerEvent(EventUserTyping, UserTypingPayload{
		ConversationId: conversationId,
		UserId:         userId,
		Username:       displayName,
	}), origin)
}

// HandleStopTyping ends an episode explicitly. It is a no-op if no entry
// exists, which also absorbs the race against a concurrent expiry.
func (t *TypingTracker) HandleStopTyping(conversationId, userId string) {
	key := typingKey{conversationId: conversationId, userId: userId}

	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		t.mu.Unlock()
		return
	}
	e.timer.Stop()
	delete(t.entries, key)
	t.mu.Unlock()

	t.stats.Decr(stats.TypingEntries)
	t.broadcastStop(key, e.displayName)
}

// StopAllForUser cancels every episode of a disconnecting user.
func (t *TypingTracker) StopAllForUser(userId string) {
	t.mu.Lock()
	var stopped []typingKey
	names := make(map[typingKey]string)
	for key, e := range t.entries {
		if key.userId != userId {
			continue
		}
		e.timer.Stop()
		delete(t.entries, key)
		stopped = append(stopped, key)
		names[key] = e.displayName
	}
	t.mu.Unlock()

	for _, key := range stopped {
		t.stats.Decr(stats.TypingEntries)
		t.broadcastStop(key, names[key])
	}
}

func (t *TypingTracker) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok || e.gen != gen {
		// the episode ended or was renewed before this expiry ran
		t.mu.Unlock()
		return
	}
	delete(t.entries, key)
	t.mu.Unlock()

	t.stats.Decr(stats.TypingEntries)
	t.broadcastStop(key, e.displayName)
}

func (t *TypingTracker) broadcastStop(key typingKey, displayName string) {
	t.bc.ToRoom(key.conversationId, newServerEvent(EventUserStoppedTyping, UserTypingPayload{
		ConversationId: key.conversationId,
		UserId:         key.userId,
		Username:       displayName,
	}), nil)
}

func (t *TypingTracker) activeEntries() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}
