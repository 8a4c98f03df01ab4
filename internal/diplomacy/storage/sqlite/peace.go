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

const agreementColumns = `id, war_id, proposing_guild_id, target_guild_id, peace_terms,
	offering_money, offering_exp, proposed_at, expires_at, status, resolved_at`

// CreateAgreement inserts a pending agreement. A partial unique index rejects
// a second PENDING row for the same war.
func (s *Store) CreateAgreement(ctx context.Context, agreement domain.PeaceAgreement) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO peace_agreements
		   (id, war_id, proposing_guild_id, target_guild_id, peace_terms,
		    offering_money, offering_exp, proposed_at, expires_at, status, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agreement.ID,
		agreement.WarID,
		agreement.ProposingGuildID,
		agreement.TargetGuildID,
		agreement.PeaceTerms,
		agreement.Offering.Money,
		agreement.Offering.ExperiencePoints,
		toMillis(agreement.ProposedAt),
		toMillis(agreement.ExpiresAt),
		agreement.Status.String(),
		toMillisPtr(agreement.ResolvedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create agreement: %w", err)
	}
	return nil
}

func scanAgreement(row rowScanner) (domain.PeaceAgreement, error) {
	var (
		agreement  domain.PeaceAgreement
		rawStatus  string
		proposedAt int64
		expiresAt  int64
		resolvedAt sql.NullInt64
	)
	if err := row.Scan(
		&agreement.ID,
		&agreement.WarID,
		&agreement.ProposingGuildID,
		&agreement.TargetGuildID,
		&agreement.PeaceTerms,
		&agreement.Offering.Money,
		&agreement.Offering.ExperiencePoints,
		&proposedAt,
		&expiresAt,
		&rawStatus,
		&resolvedAt,
	); err != nil {
		return domain.PeaceAgreement{}, err
	}
	status, err := domain.ParsePeaceStatus(rawStatus)
	if err != nil {
		return domain.PeaceAgreement{}, err
	}
	agreement.Status = status
	agreement.ProposedAt = fromMillis(proposedAt)
	agreement.ExpiresAt = fromMillis(expiresAt)
	agreement.ResolvedAt = fromMillisPtr(resolvedAt)
	return agreement, nil
}

// GetAgreement returns an agreement by id.
func (s *Store) GetAgreement(ctx context.Context, agreementID string) (domain.PeaceAgreement, error) {
	if err := s.ready(ctx); err != nil {
		return domain.PeaceAgreement{}, err
	}
	agreementID = strings.TrimSpace(agreementID)
	if agreementID == "" {
		return domain.PeaceAgreement{}, fmt.Errorf("agreement id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+agreementColumns+` FROM peace_agreements WHERE id = ?`,
		agreementID,
	)
	agreement, err := scanAgreement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PeaceAgreement{}, storage.ErrNotFound
		}
		return domain.PeaceAgreement{}, fmt.Errorf("get agreement: %w", err)
	}
	return agreement, nil
}

func resolveAgreementTx(ctx context.Context, db execer, agreementID string, status domain.PeaceStatus, resolvedAt time.Time) error {
	result, err := db.ExecContext(
		ctx,
		`UPDATE peace_agreements
		 SET status = ?, resolved_at = ?
		 WHERE id = ? AND status = 'PENDING'`,
		status.String(),
		toMillis(resolvedAt),
		agreementID,
	)
	if err != nil {
		return fmt.Errorf("resolve agreement: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve agreement: %w", err)
	}
	if affected == 0 {
		return storage.ErrConflict
	}
	return nil
}

// ResolveAgreement moves a PENDING agreement to a terminal status.
func (s *Store) ResolveAgreement(ctx context.Context, agreementID string, status domain.PeaceStatus, resolvedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return resolveAgreementTx(ctx, s.sqlDB, agreementID, status, resolvedAt)
}

// AcceptAgreement commits PENDING→ACCEPTED, the war's termination, and the
// relation outcome in one transaction. settle runs before commit so a
// settlement failure aborts everything.
func (s *Store) AcceptAgreement(ctx context.Context, agreementID string, resolvedAt time.Time, war domain.War, relation *domain.Relation, breakRelation bool, settle func(ctx context.Context) error) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin accept agreement: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := resolveAgreementTx(ctx, tx, agreementID, domain.PeaceAccepted, resolvedAt); err != nil {
		return err
	}
	if err := terminateWarTx(ctx, tx, war.ID, resolvedAt, "", domain.EndPeaceAgreement); err != nil {
		return err
	}
	if relation != nil {
		if err := upsertRelationTx(ctx, tx, *relation); err != nil {
			return err
		}
	} else if breakRelation {
		pairA, pairB, err := domain.PairKey(war.DeclaringGuildID, war.DefendingGuildID)
		if err != nil {
			return err
		}
		if _, err := deleteRelationTx(ctx, tx, pairA, pairB); err != nil {
			return err
		}
	}
	if settle != nil {
		if err := settle(ctx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit accept agreement: %w", err)
	}
	return nil
}

// ExpireAgreements moves PENDING agreements past their deadline to EXPIRED.
func (s *Store) ExpireAgreements(ctx context.Context, now time.Time) ([]domain.PeaceAgreement, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`UPDATE peace_agreements
		 SET status = 'EXPIRED', resolved_at = ?
		 WHERE status = 'PENDING' AND expires_at <= ?
		 RETURNING `+agreementColumns,
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("expire agreements: %w", err)
	}
	defer rows.Close()

	agreements := make([]domain.PeaceAgreement, 0)
	for rows.Next() {
		agreement, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agreement: %w", err)
		}
		agreements = append(agreements, agreement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expire agreements: %w", err)
	}
	return agreements, nil
}

var _ storage.PeaceStore = (*Store)(nil)
