// Package storage defines persistence contracts for the diplomacy services.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/lumalyte/guilds/internal/diplomacy/domain"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a uniqueness or compare-and-set violation.
	ErrConflict = errors.New("conflicting record")
	// ErrRelationConflict indicates the pair's current relation no longer
	// permits the transition a write would commit.
	ErrRelationConflict = errors.New("conflicting relation")
)

// RelationStore persists pairwise guild relations. Implementations key rows
// by the canonical pair ordering from domain.PairKey.
type RelationStore interface {
	// GetRelation returns the relation for a canonical pair.
	// Returns ErrNotFound when no row exists.
	GetRelation(ctx context.Context, guildA, guildB string) (domain.Relation, error)

	// UpsertRelation writes the relation for its pair, replacing any
	// existing row.
	UpsertRelation(ctx context.Context, relation domain.Relation) error

	// DeleteRelation removes the pair's row. The bool reports whether a
	// row existed.
	DeleteRelation(ctx context.Context, guildA, guildB string) (bool, error)

	// DeleteRelationIfExpired removes the pair's row only while its
	// expiry is at or before now. The bool reports whether a row was
	// removed; racing callers get at most one true.
	DeleteRelationIfExpired(ctx context.Context, guildA, guildB string, now time.Time) (bool, error)

	// ListRelationsByGuild returns every relation involving the guild.
	ListRelationsByGuild(ctx context.Context, guildID string) ([]domain.Relation, error)

	// ListRelationsByType returns the guild's relations of one type.
	ListRelationsByType(ctx context.Context, guildID string, relationType domain.RelationType) ([]domain.Relation, error)
}

// RequestStore persists diplomatic requests.
type RequestStore interface {
	// CreateRequest inserts a pending request. Returns ErrConflict when a
	// pending request already exists for the same (from, to, type).
	CreateRequest(ctx context.Context, request domain.DiplomaticRequest) error

	// GetRequest returns a request by id. Returns ErrNotFound when absent.
	GetRequest(ctx context.Context, requestID string) (domain.DiplomaticRequest, error)

	// ResolveRequest moves a PENDING request to a terminal status.
	// Returns ErrConflict when the request is no longer pending.
	ResolveRequest(ctx context.Context, requestID string, status domain.RequestStatus, respondedAt time.Time) error

	// AcceptRequest commits the PENDING→ACCEPTED transition and the
	// resulting relation in one transaction. Returns ErrConflict when the
	// request is no longer pending, and ErrRelationConflict when the
	// pair's relation changed since the request was sent and no longer
	// allows the transition.
	AcceptRequest(ctx context.Context, requestID string, respondedAt time.Time, relation domain.Relation) error

	// ExpireRequests moves every PENDING request past its deadline to
	// EXPIRED and returns the affected requests.
	ExpireRequests(ctx context.Context, now time.Time) ([]domain.DiplomaticRequest, error)

	// ListRequestsTo returns pending requests addressed to the guild.
	ListRequestsTo(ctx context.Context, guildID string) ([]domain.DiplomaticRequest, error)

	// ListRequestsFrom returns pending requests sent by the guild.
	ListRequestsFrom(ctx context.Context, guildID string) ([]domain.DiplomaticRequest, error)
}

// WarStore persists wars, their objectives, and wagers.
type WarStore interface {
	// CreateWar inserts a proposed war with its objectives. Returns
	// ErrConflict when a live war already exists for the pair.
	CreateWar(ctx context.Context, war domain.War) error

	// GetWar returns a war with its objectives. Returns ErrNotFound when
	// absent.
	GetWar(ctx context.Context, warID string) (domain.War, error)

	// LiveWarForPair returns the PROPOSED or ACTIVE war between two
	// guilds, if any. Returns ErrNotFound when none exists.
	LiveWarForPair(ctx context.Context, guildA, guildB string) (domain.War, error)

	// CountLiveWars returns how many PROPOSED or ACTIVE wars involve the
	// guild.
	CountLiveWars(ctx context.Context, guildID string) (int, error)

	// ActivateWar commits PROPOSED→ACTIVE, the ENEMY relation, and the
	// optional wager in one transaction. Returns ErrConflict when the war
	// is no longer proposed.
	ActivateWar(ctx context.Context, warID string, acceptedAt time.Time, relation domain.Relation, wager *domain.WarWager) error

	// TerminateWar commits a live war to ENDED exactly once. Returns
	// ErrConflict when the war already ended.
	TerminateWar(ctx context.Context, warID string, endedAt time.Time, winnerGuildID string, reason domain.EndReason) error

	// BumpObjective adds delta to the matching objective's progress and
	// returns the updated objective. Returns ErrNotFound when the war has
	// no such objective for that holder.
	BumpObjective(ctx context.Context, warID, holderGuildID string, objectiveType domain.ObjectiveType, delta int64) (domain.WarObjective, error)

	// GetWager returns the wager for a war. Returns ErrNotFound when the
	// war has none.
	GetWager(ctx context.Context, warID string) (domain.WarWager, error)

	// ResolveWager moves an OPEN wager to its terminal status. Returns
	// ErrConflict when already resolved.
	ResolveWager(ctx context.Context, warID string, status domain.WagerStatus, winnerGuildID string, resolvedAt time.Time) error

	// ExpireProposedWars ends PROPOSED wars past their acceptance
	// deadline and returns them.
	ExpireProposedWars(ctx context.Context, now time.Time) ([]domain.War, error)

	// ExpireActiveWars ends ACTIVE wars past their duration as draws and
	// returns them.
	ExpireActiveWars(ctx context.Context, now time.Time) ([]domain.War, error)

	// ListWarsByGuild returns the guild's wars, most recent first,
	// bounded by limit when positive.
	ListWarsByGuild(ctx context.Context, guildID string, limit int) ([]domain.War, error)
}

// PeaceStore persists peace agreements.
type PeaceStore interface {
	// CreateAgreement inserts a pending agreement. Returns ErrConflict
	// when the war already has a pending agreement.
	CreateAgreement(ctx context.Context, agreement domain.PeaceAgreement) error

	// GetAgreement returns an agreement by id. Returns ErrNotFound when
	// absent.
	GetAgreement(ctx context.Context, agreementID string) (domain.PeaceAgreement, error)

	// ResolveAgreement moves a PENDING agreement to a terminal status.
	// Returns ErrConflict when no longer pending.
	ResolveAgreement(ctx context.Context, agreementID string, status domain.PeaceStatus, resolvedAt time.Time) error

	// AcceptAgreement commits PENDING→ACCEPTED, the war's termination,
	// and the relation outcome in one transaction. settle runs inside the
	// transaction boundary; a settle error aborts the whole commit.
	// relation and breakRelation describe the post-peace relation policy:
	// a non-nil relation is upserted, breakRelation deletes the pair row.
	AcceptAgreement(ctx context.Context, agreementID string, resolvedAt time.Time, war domain.War, relation *domain.Relation, breakRelation bool, settle func(ctx context.Context) error) error

	// ExpireAgreements moves PENDING agreements past their deadline to
	// EXPIRED and returns them.
	ExpireAgreements(ctx context.Context, now time.Time) ([]domain.PeaceAgreement, error)
}

// HistoryStore persists the append-only diplomatic event log.
type HistoryStore interface {
	// AppendHistory records one diplomatic event.
	AppendHistory(ctx context.Context, entry HistoryEntry) error

	// ListHistoryByGuild returns the guild's events, most recent first,
	// bounded by limit when positive.
	ListHistoryByGuild(ctx context.Context, guildID string, limit int) ([]HistoryEntry, error)

	// ListHistoryByPair returns the pair's events, most recent first,
	// bounded by limit when positive.
	ListHistoryByPair(ctx context.Context, guildA, guildB string, limit int) ([]HistoryEntry, error)

	// ListHistoryByType returns the guild's events of one event type, most
	// recent first, bounded by limit when positive.
	ListHistoryByType(ctx context.Context, guildID, eventType string, limit int) ([]HistoryEntry, error)
}

// HistoryEntry is one event in the diplomatic log. GuildA sorts before
// GuildB, matching relation pair ordering.
type HistoryEntry struct {
	ID         string
	GuildA     string
	GuildB     string
	EventType  string
	Detail     string
	OccurredAt time.Time
}
