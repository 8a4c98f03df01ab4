package domain

import (
	"strings"
	"time"

	apperrors "github.com/lumalyte/guilds/internal/errors"
	"github.com/lumalyte/guilds/internal/platform/id"
)

// RequestType identifies the kind of diplomatic request.
type RequestType int

const (
	// RequestUnspecified represents an invalid request type.
	RequestUnspecified RequestType = iota
	// RequestAlliance proposes an ALLY relation.
	RequestAlliance
	// RequestTruce proposes a time-bounded TRUCE relation.
	RequestTruce
	// RequestWarDeclaration records a war declaration awaiting acceptance.
	RequestWarDeclaration
)

// String returns the canonical storage token for the request type.
func (t RequestType) String() string {
	switch t {
	case RequestAlliance:
		return "ALLIANCE_REQUEST"
	case RequestTruce:
		return "TRUCE_REQUEST"
	case RequestWarDeclaration:
		return "WAR_DECLARATION"
	default:
		return "UNSPECIFIED"
	}
}

// ParseRequestType maps a storage token back to a request type.
func ParseRequestType(raw string) (RequestType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ALLIANCE_REQUEST":
		return RequestAlliance, nil
	case "TRUCE_REQUEST":
		return RequestTruce, nil
	case "WAR_DECLARATION":
		return RequestWarDeclaration, nil
	default:
		return RequestUnspecified, apperrors.WithMetadata(apperrors.CodeRequestInvalidType,
			"unknown request type", map[string]string{"type": raw})
	}
}

// RelationForRequest returns the relation type an accepted request produces.
func RelationForRequest(t RequestType) RelationType {
	switch t {
	case RequestAlliance:
		return RelationAlly
	case RequestTruce:
		return RelationTruce
	case RequestWarDeclaration:
		return RelationEnemy
	default:
		return RelationNone
	}
}

// RequestStatus is the lifecycle status of a diplomatic request.
type RequestStatus int

const (
	// RequestStatusUnspecified represents an invalid status.
	RequestStatusUnspecified RequestStatus = iota
	// RequestPending indicates the request awaits a response.
	RequestPending
	// RequestAccepted indicates the recipient accepted.
	RequestAccepted
	// RequestRejected indicates the recipient rejected.
	RequestRejected
	// RequestCancelled indicates the sender withdrew the request.
	RequestCancelled
	// RequestExpired indicates the request lapsed without a response.
	RequestExpired
)

// String returns the canonical storage token for the status.
func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "PENDING"
	case RequestAccepted:
		return "ACCEPTED"
	case RequestRejected:
		return "REJECTED"
	case RequestCancelled:
		return "CANCELLED"
	case RequestExpired:
		return "EXPIRED"
	default:
		return "UNSPECIFIED"
	}
}

// ParseRequestStatus maps a storage token back to a request status.
func ParseRequestStatus(raw string) (RequestStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING":
		return RequestPending, nil
	case "ACCEPTED":
		return RequestAccepted, nil
	case "REJECTED":
		return RequestRejected, nil
	case "CANCELLED":
		return RequestCancelled, nil
	case "EXPIRED":
		return RequestExpired, nil
	default:
		return RequestStatusUnspecified, apperrors.WithMetadata(apperrors.CodeRequestInvalidType,
			"unknown request status", map[string]string{"status": raw})
	}
}

const (
	// DefaultRequestTTL bounds how long a request stays answerable.
	DefaultRequestTTL = 7 * 24 * time.Hour
	// MaxRequestMessageLen bounds the optional free-text message.
	MaxRequestMessageLen = 256
)

// DiplomaticRequest is a proposal from one guild to another awaiting a
// response, subject to expiry.
type DiplomaticRequest struct {
	ID            string
	FromGuildID   string
	ToGuildID     string
	Type          RequestType
	Message       string
	TruceDuration time.Duration // truce requests only
	RequestedAt   time.Time
	ExpiresAt     time.Time
	Status        RequestStatus
	RespondedAt   *time.Time
}

// CreateRequestInput describes the data needed to open a request.
type CreateRequestInput struct {
	FromGuildID   string
	ToGuildID     string
	Type          RequestType
	Message       string
	TruceDuration time.Duration
	TTL           time.Duration
}

// NewRequest builds a validated pending request with a generated ID.
func NewRequest(input CreateRequestInput, now func() time.Time, newID func() (string, error)) (DiplomaticRequest, error) {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}

	from := strings.TrimSpace(input.FromGuildID)
	to := strings.TrimSpace(input.ToGuildID)
	if _, _, err := PairKey(from, to); err != nil {
		return DiplomaticRequest{}, err
	}
	if RelationForRequest(input.Type) == RelationNone {
		return DiplomaticRequest{}, apperrors.New(apperrors.CodeRequestInvalidType, "request type is required")
	}
	message := strings.TrimSpace(input.Message)
	if len(message) > MaxRequestMessageLen {
		return DiplomaticRequest{}, apperrors.New(apperrors.CodeRequestMessageTooLong, "request message exceeds the allowed length")
	}
	if input.Type == RequestTruce && input.TruceDuration <= 0 {
		return DiplomaticRequest{}, apperrors.New(apperrors.CodeRequestInvalidType, "a truce request requires a positive duration")
	}
	ttl := input.TTL
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}

	requestID, err := newID()
	if err != nil {
		return DiplomaticRequest{}, apperrors.Wrap(apperrors.CodeUnknown, "generate request id", err)
	}

	requestedAt := now().UTC()
	return DiplomaticRequest{
		ID:            requestID,
		FromGuildID:   from,
		ToGuildID:     to,
		Type:          input.Type,
		Message:       message,
		TruceDuration: input.TruceDuration,
		RequestedAt:   requestedAt,
		ExpiresAt:     requestedAt.Add(ttl),
		Status:        RequestPending,
	}, nil
}

// ExpiredAt reports whether the request has lapsed at the given instant.
func (r DiplomaticRequest) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
