package domain

import (
	"strings"
	"time"

	apperrors "github.com/lumalyte/guilds/internal/errors"
	"github.com/lumalyte/guilds/internal/platform/id"
)

// WarStatus is the lifecycle status of a war.
type WarStatus int

const (
	// WarStatusUnspecified represents an invalid status.
	WarStatusUnspecified WarStatus = iota
	// WarProposed indicates a declaration awaiting the defender's response.
	WarProposed
	// WarActive indicates an accepted, ongoing war.
	WarActive
	// WarEnded indicates a terminated war.
	WarEnded
)

// String returns the canonical storage token for the status.
func (s WarStatus) String() string {
	switch s {
	case WarProposed:
		return "PROPOSED"
	case WarActive:
		return "ACTIVE"
	case WarEnded:
		return "ENDED"
	default:
		return "UNSPECIFIED"
	}
}

// ParseWarStatus maps a storage token back to a war status.
func ParseWarStatus(raw string) (WarStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PROPOSED":
		return WarProposed, nil
	case "ACTIVE":
		return WarActive, nil
	case "ENDED":
		return WarEnded, nil
	default:
		return WarStatusUnspecified, apperrors.WithMetadata(apperrors.CodeUnknown,
			"unknown war status", map[string]string{"status": raw})
	}
}

// EndReason records why a war terminated.
type EndReason string

const (
	// EndReasonNone is set while a war is still live.
	EndReasonNone EndReason = ""
	// EndObjectiveMet means an objective reached its target.
	EndObjectiveMet EndReason = "OBJECTIVE_MET"
	// EndSurrender means one side conceded.
	EndSurrender EndReason = "SURRENDER"
	// EndPeaceAgreement means an accepted peace agreement ended the war.
	EndPeaceAgreement EndReason = "PEACE_AGREEMENT"
	// EndExpired means the declaration lapsed before acceptance.
	EndExpired EndReason = "EXPIRED"
	// EndRejected means the defender rejected the declaration.
	EndRejected EndReason = "REJECTED"
	// EndDraw means the war ran out its duration without a winner.
	EndDraw EndReason = "DRAW"
)

// ObjectiveType identifies what a war objective measures.
type ObjectiveType string

const (
	// ObjectiveKills counts eliminations of the opposing side.
	ObjectiveKills ObjectiveType = "KILLS"
	// ObjectiveTimeSurvival counts survival time in contested territory.
	ObjectiveTimeSurvival ObjectiveType = "TIME_SURVIVAL"
	// ObjectiveClaimsCaptured counts captured territory claims.
	ObjectiveClaimsCaptured ObjectiveType = "CLAIMS_CAPTURED"
)

// ParseObjectiveType maps a storage token back to an objective type.
func ParseObjectiveType(raw string) (ObjectiveType, error) {
	switch t := ObjectiveType(strings.ToUpper(strings.TrimSpace(raw))); t {
	case ObjectiveKills, ObjectiveTimeSurvival, ObjectiveClaimsCaptured:
		return t, nil
	default:
		return "", apperrors.WithMetadata(apperrors.CodeWarInvalidObjective,
			"unknown objective type", map[string]string{"type": raw})
	}
}

// WarObjective is a single victory condition scoring for one side.
type WarObjective struct {
	ID              string
	WarID           string
	HolderGuildID   string
	Type            ObjectiveType
	TargetValue     int64
	CurrentProgress int64
}

// Met reports whether the objective has reached its target.
func (o WarObjective) Met() bool {
	return o.CurrentProgress >= o.TargetValue
}

// ObjectiveInput describes one victory condition for a declaration.
type ObjectiveInput struct {
	HolderGuildID string
	Type          ObjectiveType
	TargetValue   int64
}

const (
	// MaxWarObjectives bounds the victory conditions per war.
	MaxWarObjectives = 5
	// DeclarationTTL bounds how long a declaration awaits acceptance.
	DeclarationTTL = 72 * time.Hour
	// MaxConcurrentWars bounds the live wars a guild may be party to.
	MaxConcurrentWars = 3
)

// War is a conflict between two guilds with objectives and a bounded
// duration.
type War struct {
	ID               string
	DeclaringGuildID string
	DefendingGuildID string
	Objectives       []WarObjective
	Status           WarStatus
	DeclaredAt       time.Time
	ExpiresAt        time.Time // acceptance deadline while PROPOSED
	AcceptedAt       *time.Time
	Duration         time.Duration
	EndedAt          *time.Time
	WinnerGuildID    string
	EndReason        EndReason
	DeclaringStake   int64 // wager stake committed with the declaration
}

// DeclareWarInput describes the data needed to declare a war.
type DeclareWarInput struct {
	DeclaringGuildID string
	DefendingGuildID string
	Objectives       []ObjectiveInput
	Duration         time.Duration
	Stake            int64
}

// NewWar builds a validated proposed war with generated IDs.
func NewWar(input DeclareWarInput, now func() time.Time, newID func() (string, error)) (War, error) {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}

	declaring := strings.TrimSpace(input.DeclaringGuildID)
	defending := strings.TrimSpace(input.DefendingGuildID)
	if declaring == "" || defending == "" {
		return War{}, apperrors.New(apperrors.CodeWarSelf, "both guild ids are required")
	}
	if declaring == defending {
		return War{}, apperrors.New(apperrors.CodeWarSelf, "a guild cannot declare war on itself")
	}
	if len(input.Objectives) == 0 {
		return War{}, apperrors.New(apperrors.CodeWarNoObjectives, "a war requires at least one objective")
	}
	if len(input.Objectives) > MaxWarObjectives {
		return War{}, apperrors.New(apperrors.CodeWarTooManyObjectives, "too many objectives for one war")
	}
	if input.Duration <= 0 {
		return War{}, apperrors.New(apperrors.CodeWarInvalidObjective, "a war requires a positive duration")
	}
	if input.Stake < 0 {
		return War{}, apperrors.New(apperrors.CodeWarInvalidObjective, "a stake cannot be negative")
	}

	warID, err := newID()
	if err != nil {
		return War{}, apperrors.Wrap(apperrors.CodeUnknown, "generate war id", err)
	}

	objectives := make([]WarObjective, 0, len(input.Objectives))
	for _, obj := range input.Objectives {
		holder := strings.TrimSpace(obj.HolderGuildID)
		if holder != declaring && holder != defending {
			return War{}, apperrors.WithMetadata(apperrors.CodeWarInvalidObjective,
				"objective holder must be a belligerent", map[string]string{"holder": holder})
		}
		if _, err := ParseObjectiveType(string(obj.Type)); err != nil {
			return War{}, err
		}
		if obj.TargetValue <= 0 {
			return War{}, apperrors.New(apperrors.CodeWarInvalidObjective, "objective target must be positive")
		}
		objectiveID, err := newID()
		if err != nil {
			return War{}, apperrors.Wrap(apperrors.CodeUnknown, "generate objective id", err)
		}
		objectives = append(objectives, WarObjective{
			ID:            objectiveID,
			WarID:         warID,
			HolderGuildID: holder,
			Type:          obj.Type,
			TargetValue:   obj.TargetValue,
		})
	}

	declaredAt := now().UTC()
	return War{
		ID:               warID,
		DeclaringGuildID: declaring,
		DefendingGuildID: defending,
		Objectives:       objectives,
		Status:           WarProposed,
		DeclaredAt:       declaredAt,
		ExpiresAt:        declaredAt.Add(DeclarationTTL),
		Duration:         input.Duration,
		DeclaringStake:   input.Stake,
	}, nil
}

// IsParticipant reports whether the guild is a belligerent.
func (w War) IsParticipant(guildID string) bool {
	return w.DeclaringGuildID == guildID || w.DefendingGuildID == guildID
}

// Opponent returns the other belligerent, or "" when the guild is not a
// participant.
func (w War) Opponent(guildID string) string {
	switch guildID {
	case w.DeclaringGuildID:
		return w.DefendingGuildID
	case w.DefendingGuildID:
		return w.DeclaringGuildID
	default:
		return ""
	}
}

// DeclarationExpiredAt reports whether a proposed war's acceptance window has
// closed at the given instant.
func (w War) DeclarationExpiredAt(now time.Time) bool {
	return w.Status == WarProposed && !now.Before(w.ExpiresAt)
}

// Deadline returns the instant an active war runs out its duration. The
// second return is false while the war has not been accepted.
func (w War) Deadline() (time.Time, bool) {
	if w.AcceptedAt == nil {
		return time.Time{}, false
	}
	return w.AcceptedAt.Add(w.Duration), true
}
