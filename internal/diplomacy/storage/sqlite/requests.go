package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lumalyte/guilds/internal/diplomacy/domain"
	"github.com/lumalyte/guilds/internal/diplomacy/storage"
)

// CreateRequest inserts a pending request. A partial unique index rejects a
// second PENDING row for the same (from, to, type).
func (s *Store) CreateRequest(ctx context.Context, request domain.DiplomaticRequest) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO diplomatic_requests
		   (id, from_guild_id, to_guild_id, request_type, message, truce_duration_ms,
		    requested_at, expires_at, status, responded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		request.ID,
		request.FromGuildID,
		request.ToGuildID,
		request.Type.String(),
		request.Message,
		request.TruceDuration.Milliseconds(),
		toMillis(request.RequestedAt),
		toMillis(request.ExpiresAt),
		request.Status.String(),
		toMillisPtr(request.RespondedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

const requestColumns = `id, from_guild_id, to_guild_id, request_type, message,
	truce_duration_ms, requested_at, expires_at, status, responded_at`

func scanRequest(row rowScanner) (domain.DiplomaticRequest, error) {
	var (
		request         domain.DiplomaticRequest
		rawType         string
		rawStatus       string
		truceDurationMS int64
		requestedAt     int64
		expiresAt       int64
		respondedAt     sql.NullInt64
	)
	if err := row.Scan(
		&request.ID,
		&request.FromGuildID,
		&request.ToGuildID,
		&rawType,
		&request.Message,
		&truceDurationMS,
		&requestedAt,
		&expiresAt,
		&rawStatus,
		&respondedAt,
	); err != nil {
		return domain.DiplomaticRequest{}, err
	}
	requestType, err := domain.ParseRequestType(rawType)
	if err != nil {
		return domain.DiplomaticRequest{}, err
	}
	status, err := domain.ParseRequestStatus(rawStatus)
	if err != nil {
		return domain.DiplomaticRequest{}, err
	}
	request.Type = requestType
	request.Status = status
	request.TruceDuration = time.Duration(truceDurationMS) * time.Millisecond
	request.RequestedAt = fromMillis(requestedAt)
	request.ExpiresAt = fromMillis(expiresAt)
	request.RespondedAt = fromMillisPtr(respondedAt)
	return request, nil
}

// GetRequest returns a request by id.
func (s *Store) GetRequest(ctx context.Context, requestID string) (domain.DiplomaticRequest, error) {
	if err := s.ready(ctx); err != nil {
		return domain.DiplomaticRequest{}, err
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return domain.DiplomaticRequest{}, fmt.Errorf("request id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+requestColumns+` FROM diplomatic_requests WHERE id = ?`,
		requestID,
	)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DiplomaticRequest{}, storage.ErrNotFound
		}
		return domain.DiplomaticRequest{}, fmt.Errorf("get request: %w", err)
	}
	return request, nil
}

func resolveRequestTx(ctx context.Context, db execer, requestID string, status domain.RequestStatus, respondedAt time.Time) error {
	result, err := db.ExecContext(
		ctx,
		`UPDATE diplomatic_requests
		 SET status = ?, responded_at = ?
		 WHERE id = ? AND status = 'PENDING'`,
		status.String(),
		toMillis(respondedAt),
		requestID,
	)
	if err != nil {
		return fmt.Errorf("resolve request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve request: %w", err)
	}
	if affected == 0 {
		return storage.ErrConflict
	}
	return nil
}

// ResolveRequest moves a PENDING request to a terminal status with a
// compare-and-set on status so racing resolvers get one winner.
func (s *Store) ResolveRequest(ctx context.Context, requestID string, status domain.RequestStatus, respondedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return resolveRequestTx(ctx, s.sqlDB, requestID, status, respondedAt)
}

// AcceptRequest commits the PENDING→ACCEPTED transition and the resulting
// relation in one transaction. The pair's relation is re-read inside the
// transaction so a request that went stale while pending cannot overwrite a
// relation that no longer allows it.
func (s *Store) AcceptRequest(ctx context.Context, requestID string, respondedAt time.Time, relation domain.Relation) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin accept request: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := resolveRequestTx(ctx, tx, requestID, domain.RequestAccepted, respondedAt); err != nil {
		return err
	}
	current, err := effectiveRelationTypeTx(ctx, tx, relation.GuildA, relation.GuildB, respondedAt)
	if err != nil {
		return err
	}
	if !domain.ValidRelationChange(current, relation.Type) {
		return storage.ErrRelationConflict
	}
	if err := upsertRelationTx(ctx, tx, relation); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit accept request: %w", err)
	}
	return nil
}

// ExpireRequests moves PENDING requests past their deadline to EXPIRED and
// returns the affected requests.
func (s *Store) ExpireRequests(ctx context.Context, now time.Time) ([]domain.DiplomaticRequest, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`UPDATE diplomatic_requests
		 SET status = 'EXPIRED', responded_at = ?
		 WHERE status = 'PENDING' AND expires_at <= ?
		 RETURNING `+requestColumns,
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("expire requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

// ListRequestsTo returns pending requests addressed to the guild.
func (s *Store) ListRequestsTo(ctx context.Context, guildID string) ([]domain.DiplomaticRequest, error) {
	return s.listRequests(ctx, "to_guild_id", guildID)
}

// ListRequestsFrom returns pending requests sent by the guild.
func (s *Store) ListRequestsFrom(ctx context.Context, guildID string) ([]domain.DiplomaticRequest, error) {
	return s.listRequests(ctx, "from_guild_id", guildID)
}

func (s *Store) listRequests(ctx context.Context, column, guildID string) ([]domain.DiplomaticRequest, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return nil, fmt.Errorf("guild id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+requestColumns+`
		 FROM diplomatic_requests
		 WHERE `+column+` = ? AND status = 'PENDING'
		 ORDER BY requested_at DESC`,
		guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

func collectRequests(rows *sql.Rows) ([]domain.DiplomaticRequest, error) {
	requests := make([]domain.DiplomaticRequest, 0)
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

var _ storage.RequestStore = (*Store)(nil)
