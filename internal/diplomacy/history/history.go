// Package history records the append-only diplomatic event log.
package history

import (
	"context"
	"log"
	"time"

	"github.com/lumalyte/guilds/internal/diplomacy/domain"
	"github.com/lumalyte/guilds/internal/diplomacy/storage"
	"github.com/lumalyte/guilds/internal/platform/id"
)

// Event types recorded by the diplomacy services.
const (
	EventAllianceRequested = "alliance.requested"
	EventAllianceAccepted  = "alliance.accepted"
	EventTruceRequested    = "truce.requested"
	EventTruceAccepted     = "truce.accepted"
	EventRequestRejected   = "request.rejected"
	EventRequestCancelled  = "request.cancelled"
	EventRequestExpired    = "request.expired"
	EventRelationBroken    = "relation.broken"
	EventWarDeclared       = "war.declared"
	EventWarAccepted       = "war.accepted"
	EventWarRejected       = "war.rejected"
	EventWarEnded          = "war.ended"
	EventWarExpired        = "war.expired"
	EventWarDrawn          = "war.drawn"
	EventPeaceProposed     = "peace.proposed"
	EventPeaceAccepted     = "peace.accepted"
	EventPeaceRejected     = "peace.rejected"
)

// Recorder appends diplomatic events. Recording is best effort: failures are
// logged and never surfaced to the operation that produced the event.
type Recorder struct {
	store storage.HistoryStore
	clock func() time.Time
	newID func() (string, error)
}

// NewRecorder constructs an event recorder.
func NewRecorder(store storage.HistoryStore, clock func() time.Time, newID func() (string, error)) *Recorder {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Recorder{
		store: store,
		clock: clock,
		newID: newID,
	}
}

// Record appends one event for a guild pair.
func (r *Recorder) Record(ctx context.Context, guildA, guildB, eventType, detail string) {
	if r == nil || r.store == nil {
		return
	}
	pairA, pairB, err := domain.PairKey(guildA, guildB)
	if err != nil {
		log.Printf("history: skip %s event: %v", eventType, err)
		return
	}
	entryID, err := r.newID()
	if err != nil {
		log.Printf("history: skip %s event: %v", eventType, err)
		return
	}
	entry := storage.HistoryEntry{
		ID:         entryID,
		GuildA:     pairA,
		GuildB:     pairB,
		EventType:  eventType,
		Detail:     detail,
		OccurredAt: r.clock().UTC(),
	}
	if err := r.store.AppendHistory(ctx, entry); err != nil {
		log.Printf("history: append %s event: %v", eventType, err)
	}
}

// ListByGuild returns the guild's events, most recent first.
func (r *Recorder) ListByGuild(ctx context.Context, guildID string, limit int) ([]storage.HistoryEntry, error) {
	return r.store.ListHistoryByGuild(ctx, guildID, limit)
}

// ListByPair returns the pair's events, most recent first.
func (r *Recorder) ListByPair(ctx context.Context, guildA, guildB string, limit int) ([]storage.HistoryEntry, error) {
	return r.store.ListHistoryByPair(ctx, guildA, guildB, limit)
}

// ListByType returns the guild's events of one type, most recent first.
func (r *Recorder) ListByType(ctx context.Context, guildID, eventType string, limit int) ([]storage.HistoryEntry, error) {
	return r.store.ListHistoryByType(ctx, guildID, eventType, limit)
}
