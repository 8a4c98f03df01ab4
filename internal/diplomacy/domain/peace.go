package domain

import (
	"strings"
	"time"

	apperrors "github.com/lumalyte/guilds/internal/errors"
	"github.com/lumalyte/guilds/internal/platform/id"
)

// PeaceStatus is the lifecycle status of a peace agreement.
type PeaceStatus int

const (
	// PeaceStatusUnspecified represents an invalid status.
	PeaceStatusUnspecified PeaceStatus = iota
	// PeacePending indicates the agreement awaits the other side's answer.
	PeacePending
	// PeaceAccepted indicates the agreement ended its war.
	PeaceAccepted
	// PeaceRejected indicates the other side declined.
	PeaceRejected
	// PeaceExpired indicates the agreement lapsed without a response.
	PeaceExpired
)

// String returns the canonical storage token for the status.
func (s PeaceStatus) String() string {
	switch s {
	case PeacePending:
		return "PENDING"
	case PeaceAccepted:
		return "ACCEPTED"
	case PeaceRejected:
		return "REJECTED"
	case PeaceExpired:
		return "EXPIRED"
	default:
		return "UNSPECIFIED"
	}
}

// ParsePeaceStatus maps a storage token back to a peace status.
func ParsePeaceStatus(raw string) (PeaceStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING":
		return PeacePending, nil
	case "ACCEPTED":
		return PeaceAccepted, nil
	case "REJECTED":
		return PeaceRejected, nil
	case "EXPIRED":
		return PeaceExpired, nil
	default:
		return PeaceStatusUnspecified, apperrors.WithMetadata(apperrors.CodeUnknown,
			"unknown peace status", map[string]string{"status": raw})
	}
}

// PeaceOffering is an optional sweetener attached to a proposal, settled
// through escrow on acceptance.
type PeaceOffering struct {
	Money            int64
	ExperiencePoints int64
}

// IsZero reports whether the offering carries nothing.
func (o PeaceOffering) IsZero() bool {
	return o.Money == 0 && o.ExperiencePoints == 0
}

// DefaultAgreementTTL bounds how long a proposal stays answerable.
const DefaultAgreementTTL = 72 * time.Hour

// PeaceAgreement is a proposal to end an active war, optionally carrying an
// offering from the proposer.
type PeaceAgreement struct {
	ID               string
	WarID            string
	ProposingGuildID string
	TargetGuildID    string
	PeaceTerms       string
	Offering         PeaceOffering
	ProposedAt       time.Time
	ExpiresAt        time.Time
	Status           PeaceStatus
	ResolvedAt       *time.Time
}

// ProposePeaceInput describes the data needed to open an agreement.
type ProposePeaceInput struct {
	WarID            string
	ProposingGuildID string
	TargetGuildID    string
	PeaceTerms       string
	Offering         PeaceOffering
	TTL              time.Duration
}

// NewPeaceAgreement builds a validated pending agreement with a generated ID.
func NewPeaceAgreement(input ProposePeaceInput, now func() time.Time, newID func() (string, error)) (PeaceAgreement, error) {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}

	warID := strings.TrimSpace(input.WarID)
	proposing := strings.TrimSpace(input.ProposingGuildID)
	target := strings.TrimSpace(input.TargetGuildID)
	if warID == "" {
		return PeaceAgreement{}, apperrors.New(apperrors.CodeNotFound, "war id is required")
	}
	if proposing == "" || target == "" || proposing == target {
		return PeaceAgreement{}, apperrors.New(apperrors.CodePeaceWrongGuild, "an agreement needs two distinct guilds")
	}
	terms := strings.TrimSpace(input.PeaceTerms)
	if terms == "" {
		return PeaceAgreement{}, apperrors.New(apperrors.CodePeaceEmptyTerms, "peace terms are required")
	}
	if input.Offering.Money < 0 || input.Offering.ExperiencePoints < 0 {
		return PeaceAgreement{}, apperrors.New(apperrors.CodePeaceInvalidOffering, "an offering cannot be negative")
	}
	ttl := input.TTL
	if ttl <= 0 {
		ttl = DefaultAgreementTTL
	}

	agreementID, err := newID()
	if err != nil {
		return PeaceAgreement{}, apperrors.Wrap(apperrors.CodeUnknown, "generate agreement id", err)
	}

	proposedAt := now().UTC()
	return PeaceAgreement{
		ID:               agreementID,
		WarID:            warID,
		ProposingGuildID: proposing,
		TargetGuildID:    target,
		PeaceTerms:       terms,
		Offering:         input.Offering,
		ProposedAt:       proposedAt,
		ExpiresAt:        proposedAt.Add(ttl),
		Status:           PeacePending,
	}, nil
}

// ExpiredAt reports whether the agreement has lapsed at the given instant.
func (a PeaceAgreement) ExpiredAt(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}
