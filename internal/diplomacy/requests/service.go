// Package requests manages the diplomatic request workflow between guilds.
package requests

import (
	"context"
	"errors"
	"time"

	"github.com/lumalyte/guilds/internal/diplomacy/domain"
	"github.com/lumalyte/guilds/internal/diplomacy/history"
	"github.com/lumalyte/guilds/internal/diplomacy/ports"
	"github.com/lumalyte/guilds/internal/diplomacy/relations"
	"github.com/lumalyte/guilds/internal/diplomacy/storage"
	apperrors "github.com/lumalyte/guilds/internal/errors"
	"github.com/lumalyte/guilds/internal/platform/id"
)

// Service exposes the send/accept/reject/cancel workflow for diplomatic
// requests. Accepting a request commits the resulting relation in the same
// transaction as the request's status change.
type Service struct {
	store     storage.RequestStore
	relations *relations.Service
	notifier  ports.NotificationPort
	recorder  *history.Recorder
	clock     func() time.Time
	newID     func() (string, error)
}

// NewService constructs request use-cases.
func NewService(store storage.RequestStore, relationSvc *relations.Service, notifier ports.NotificationPort, recorder *history.Recorder, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store:     store,
		relations: relationSvc,
		notifier:  notifier,
		recorder:  recorder,
		clock:     clock,
		newID:     newID,
	}
}

// SendInput describes a request to open.
type SendInput struct {
	FromGuildID   string
	ToGuildID     string
	Type          domain.RequestType
	Message       string
	TruceDuration time.Duration
}

// Send opens a pending request after checking the diplomatic matrix against
// the pair's current relation.
func (s *Service) Send(ctx context.Context, input SendInput) (domain.DiplomaticRequest, error) {
	request, err := domain.NewRequest(domain.CreateRequestInput{
		FromGuildID:   input.FromGuildID,
		ToGuildID:     input.ToGuildID,
		Type:          input.Type,
		Message:       input.Message,
		TruceDuration: input.TruceDuration,
	}, s.clock, s.newID)
	if err != nil {
		return domain.DiplomaticRequest{}, err
	}

	current, err := s.relations.Get(ctx, request.FromGuildID, request.ToGuildID)
	if err != nil {
		return domain.DiplomaticRequest{}, err
	}
	desired := domain.RelationForRequest(request.Type)
	if !domain.ValidRelationChange(current.Type, desired) {
		return domain.DiplomaticRequest{}, apperrors.WithMetadata(apperrors.CodeRelationInvalidChange,
			"the current relation does not allow this request", map[string]string{
				"current": current.Type.String(),
				"desired": desired.String(),
			})
	}

	if err := s.store.CreateRequest(ctx, request); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.DiplomaticRequest{}, apperrors.New(apperrors.CodeRequestDuplicate,
				"an identical request is already pending")
		}
		return domain.DiplomaticRequest{}, apperrors.Wrap(apperrors.CodeUnknown, "send request", err)
	}

	s.recorder.Record(ctx, request.FromGuildID, request.ToGuildID, sentEvent(request.Type), request.Message)
	ports.NotifyAll(ctx, s.notifier, ports.Event{
		Type:    "request.received",
		Subject: request.ID,
		Detail:  request.Type.String(),
	}, request.ToGuildID)
	return request, nil
}

func sentEvent(requestType domain.RequestType) string {
	switch requestType {
	case domain.RequestTruce:
		return history.EventTruceRequested
	case domain.RequestWarDeclaration:
		return history.EventWarDeclared
	default:
		return history.EventAllianceRequested
	}
}

func acceptedEvent(requestType domain.RequestType) string {
	switch requestType {
	case domain.RequestTruce:
		return history.EventTruceAccepted
	case domain.RequestWarDeclaration:
		return history.EventWarAccepted
	default:
		return history.EventAllianceAccepted
	}
}

func (s *Service) pendingRequest(ctx context.Context, requestID string) (domain.DiplomaticRequest, error) {
	request, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.DiplomaticRequest{}, apperrors.New(apperrors.CodeNotFound, "request not found")
		}
		return domain.DiplomaticRequest{}, apperrors.Wrap(apperrors.CodeUnknown, "get request", err)
	}
	if request.Status != domain.RequestPending {
		return domain.DiplomaticRequest{}, apperrors.WithMetadata(apperrors.CodeRequestNotPending,
			"the request was already resolved", map[string]string{"status": request.Status.String()})
	}
	if request.ExpiredAt(s.clock().UTC()) {
		// Mark the lapse on the way out so sweeps and reads agree.
		_ = s.store.ResolveRequest(ctx, request.ID, domain.RequestExpired, s.clock().UTC())
		return domain.DiplomaticRequest{}, apperrors.New(apperrors.CodeRequestExpired, "the request has expired")
	}
	return request, nil
}

// Accept resolves a pending request in the recipient's favor and establishes
// the resulting relation atomically.
func (s *Service) Accept(ctx context.Context, requestID, actingGuildID string) (domain.Relation, error) {
	request, err := s.pendingRequest(ctx, requestID)
	if err != nil {
		return domain.Relation{}, err
	}
	if request.ToGuildID != actingGuildID {
		return domain.Relation{}, apperrors.New(apperrors.CodeRequestWrongGuild,
			"only the recipient may accept a request")
	}

	now := s.clock().UTC()
	var expiresAt *time.Time
	if request.Type == domain.RequestTruce {
		deadline := now.Add(request.TruceDuration)
		expiresAt = &deadline
	}
	relation, err := domain.NewRelation(request.FromGuildID, request.ToGuildID,
		domain.RelationForRequest(request.Type), now, expiresAt)
	if err != nil {
		return domain.Relation{}, err
	}

	if err := s.store.AcceptRequest(ctx, request.ID, now, relation); err != nil {
		if errors.Is(err, storage.ErrRelationConflict) {
			return domain.Relation{}, apperrors.WithMetadata(apperrors.CodeRelationInvalidChange,
				"the pair's relation changed and no longer allows this request", map[string]string{
					"desired": relation.Type.String(),
				})
		}
		if errors.Is(err, storage.ErrConflict) {
			return domain.Relation{}, apperrors.New(apperrors.CodeRequestNotPending,
				"the request was already resolved")
		}
		return domain.Relation{}, apperrors.Wrap(apperrors.CodeUnknown, "accept request", err)
	}

	s.recorder.Record(ctx, request.FromGuildID, request.ToGuildID, acceptedEvent(request.Type), request.ID)
	ports.NotifyAll(ctx, s.notifier, ports.Event{
		Type:    "request.accepted",
		Subject: request.ID,
		Detail:  request.Type.String(),
	}, request.FromGuildID, request.ToGuildID)
	return relation, nil
}

// Reject resolves a pending request against the sender. Only the recipient
// may reject.
func (s *Service) Reject(ctx context.Context, requestID, actingGuildID string) error {
	request, err := s.pendingRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.ToGuildID != actingGuildID {
		return apperrors.New(apperrors.CodeRequestWrongGuild, "only the recipient may reject a request")
	}
	if err := s.resolve(ctx, request, domain.RequestRejected); err != nil {
		return err
	}
	s.recorder.Record(ctx, request.FromGuildID, request.ToGuildID, history.EventRequestRejected, request.ID)
	ports.NotifyAll(ctx, s.notifier, ports.Event{
		Type:    "request.rejected",
		Subject: request.ID,
		Detail:  request.Type.String(),
	}, request.FromGuildID)
	return nil
}

// Cancel withdraws a pending request. Only the sender may cancel.
func (s *Service) Cancel(ctx context.Context, requestID, actingGuildID string) error {
	request, err := s.pendingRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.FromGuildID != actingGuildID {
		return apperrors.New(apperrors.CodeRequestWrongGuild, "only the sender may cancel a request")
	}
	if err := s.resolve(ctx, request, domain.RequestCancelled); err != nil {
		return err
	}
	s.recorder.Record(ctx, request.FromGuildID, request.ToGuildID, history.EventRequestCancelled, request.ID)
	ports.NotifyAll(ctx, s.notifier, ports.Event{
		Type:    "request.cancelled",
		Subject: request.ID,
		Detail:  request.Type.String(),
	}, request.ToGuildID)
	return nil
}

func (s *Service) resolve(ctx context.Context, request domain.DiplomaticRequest, status domain.RequestStatus) error {
	if err := s.store.ResolveRequest(ctx, request.ID, status, s.clock().UTC()); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return apperrors.New(apperrors.CodeRequestNotPending, "the request was already resolved")
		}
		return apperrors.Wrap(apperrors.CodeUnknown, "resolve request", err)
	}
	return nil
}

// SweepExpired marks every pending request past its deadline as EXPIRED and
// returns the affected requests. Safe to run concurrently with accepts.
func (s *Service) SweepExpired(ctx context.Context) ([]domain.DiplomaticRequest, error) {
	expired, err := s.store.ExpireRequests(ctx, s.clock().UTC())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "sweep requests", err)
	}
	for _, request := range expired {
		s.recorder.Record(ctx, request.FromGuildID, request.ToGuildID, history.EventRequestExpired, request.ID)
	}
	return expired, nil
}

// ListIncoming returns pending requests addressed to the guild.
func (s *Service) ListIncoming(ctx context.Context, guildID string) ([]domain.DiplomaticRequest, error) {
	requests, err := s.store.ListRequestsTo(ctx, guildID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "list incoming requests", err)
	}
	return requests, nil
}

// ListOutgoing returns pending requests sent by the guild.
func (s *Service) ListOutgoing(ctx context.Context, guildID string) ([]domain.DiplomaticRequest, error) {
	requests, err := s.store.ListRequestsFrom(ctx, guildID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "list outgoing requests", err)
	}
	return requests, nil
}
