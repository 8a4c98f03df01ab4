package domain

import (
	"strings"
	"time"

	apperrors "github.com/lumalyte/guilds/internal/errors"
)

// RelationType describes the diplomatic state between two guilds.
type RelationType int

const (
	// RelationNone is the implicit default state and is never persisted.
	RelationNone RelationType = iota
	// RelationAlly indicates the guilds are allied.
	RelationAlly
	// RelationEnemy indicates the guilds are hostile.
	RelationEnemy
	// RelationTruce indicates a time-bounded suspension of hostilities.
	RelationTruce
)

// String returns the canonical storage token for the relation type.
func (t RelationType) String() string {
	switch t {
	case RelationAlly:
		return "ALLY"
	case RelationEnemy:
		return "ENEMY"
	case RelationTruce:
		return "TRUCE"
	default:
		return "NONE"
	}
}

// ParseRelationType maps a storage token back to a relation type.
func ParseRelationType(raw string) (RelationType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "NONE":
		return RelationNone, nil
	case "ALLY":
		return RelationAlly, nil
	case "ENEMY":
		return RelationEnemy, nil
	case "TRUCE":
		return RelationTruce, nil
	default:
		return RelationNone, apperrors.WithMetadata(apperrors.CodeRelationInvalidType,
			"unknown relation type", map[string]string{"type": raw})
	}
}

// Relation is the current diplomatic state between an unordered pair of
// guilds. GuildA always sorts before GuildB so (A,B) and (B,A) address the
// same record.
type Relation struct {
	GuildA        string
	GuildB        string
	Type          RelationType
	EstablishedAt time.Time
	UpdatedAt     time.Time
	ExpiresAt     *time.Time // truce only
}

// PairKey returns the canonical ordering for a guild pair.
func PairKey(a, b string) (string, string, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return "", "", apperrors.New(apperrors.CodeRelationSelf, "both guild ids are required")
	}
	if a == b {
		return "", "", apperrors.New(apperrors.CodeRelationSelf, "a guild cannot hold a relation with itself")
	}
	if a < b {
		return a, b, nil
	}
	return b, a, nil
}

// NewRelation builds a validated relation with canonical pair ordering.
func NewRelation(a, b string, relationType RelationType, establishedAt time.Time, expiresAt *time.Time) (Relation, error) {
	guildA, guildB, err := PairKey(a, b)
	if err != nil {
		return Relation{}, err
	}
	if relationType == RelationNone {
		return Relation{}, apperrors.New(apperrors.CodeRelationInvalidType, "a NONE relation is implicit and cannot be stored")
	}
	if relationType == RelationTruce {
		if expiresAt == nil || !expiresAt.After(establishedAt) {
			return Relation{}, apperrors.New(apperrors.CodeRelationTruceNoExpiry, "a truce requires an expiry after its establishment")
		}
	} else if expiresAt != nil {
		return Relation{}, apperrors.New(apperrors.CodeRelationInvalidType, "only truce relations may expire")
	}
	return Relation{
		GuildA:        guildA,
		GuildB:        guildB,
		Type:          relationType,
		EstablishedAt: establishedAt.UTC(),
		UpdatedAt:     establishedAt.UTC(),
		ExpiresAt:     expiresAt,
	}, nil
}

// Involves reports whether the relation includes the given guild.
func (r Relation) Involves(guildID string) bool {
	return r.GuildA == guildID || r.GuildB == guildID
}

// OtherGuild returns the counterpart of guildID in the pair, or "" when the
// guild is not part of the relation.
func (r Relation) OtherGuild(guildID string) string {
	switch guildID {
	case r.GuildA:
		return r.GuildB
	case r.GuildB:
		return r.GuildA
	default:
		return ""
	}
}

// ExpiredAt reports whether the relation has lapsed at the given instant.
// Only truces carry an expiry.
func (r Relation) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// ValidRelationChange reports whether moving from the current effective type
// to the desired type is a legal diplomatic transition.
func ValidRelationChange(current, desired RelationType) bool {
	switch desired {
	case RelationAlly:
		return current == RelationNone || current == RelationTruce
	case RelationEnemy:
		// War can always be declared.
		return true
	case RelationTruce:
		return current == RelationEnemy
	case RelationNone:
		return current == RelationEnemy || current == RelationAlly || current == RelationTruce
	default:
		return false
	}
}
