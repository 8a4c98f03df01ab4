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

const warColumns = `id, declaring_guild_id, defending_guild_id, status, declared_at,
	expires_at, accepted_at, duration_ms, ended_at, winner_guild_id, end_reason, declaring_stake`

// CreateWar inserts a proposed war with its objectives. A partial unique
// index on the canonical pair rejects a second live war.
func (s *Store) CreateWar(ctx context.Context, war domain.War) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	pairA, pairB, err := domain.PairKey(war.DeclaringGuildID, war.DefendingGuildID)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create war: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO wars
		   (id, declaring_guild_id, defending_guild_id, pair_a, pair_b, status,
		    declared_at, expires_at, accepted_at, duration_ms, ended_at,
		    winner_guild_id, end_reason, declaring_stake)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		war.ID,
		war.DeclaringGuildID,
		war.DefendingGuildID,
		pairA,
		pairB,
		war.Status.String(),
		toMillis(war.DeclaredAt),
		toMillis(war.ExpiresAt),
		toMillisPtr(war.AcceptedAt),
		war.Duration.Milliseconds(),
		toMillisPtr(war.EndedAt),
		war.WinnerGuildID,
		string(war.EndReason),
		war.DeclaringStake,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create war: %w", err)
	}

	for _, objective := range war.Objectives {
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO war_objectives
			   (id, war_id, holder_guild_id, objective_type, target_value, current_progress)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			objective.ID,
			war.ID,
			objective.HolderGuildID,
			string(objective.Type),
			objective.TargetValue,
			objective.CurrentProgress,
		)
		if err != nil {
			return fmt.Errorf("create objective: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create war: %w", err)
	}
	return nil
}

func scanWar(row rowScanner) (domain.War, error) {
	var (
		war        domain.War
		rawStatus  string
		declaredAt int64
		expiresAt  int64
		acceptedAt sql.NullInt64
		durationMS int64
		endedAt    sql.NullInt64
		rawReason  string
	)
	if err := row.Scan(
		&war.ID,
		&war.DeclaringGuildID,
		&war.DefendingGuildID,
		&rawStatus,
		&declaredAt,
		&expiresAt,
		&acceptedAt,
		&durationMS,
		&endedAt,
		&war.WinnerGuildID,
		&rawReason,
		&war.DeclaringStake,
	); err != nil {
		return domain.War{}, err
	}
	status, err := domain.ParseWarStatus(rawStatus)
	if err != nil {
		return domain.War{}, err
	}
	war.Status = status
	war.DeclaredAt = fromMillis(declaredAt)
	war.ExpiresAt = fromMillis(expiresAt)
	war.AcceptedAt = fromMillisPtr(acceptedAt)
	war.Duration = time.Duration(durationMS) * time.Millisecond
	war.EndedAt = fromMillisPtr(endedAt)
	war.EndReason = domain.EndReason(rawReason)
	return war, nil
}

func (s *Store) loadObjectives(ctx context.Context, warID string) ([]domain.WarObjective, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, war_id, holder_guild_id, objective_type, target_value, current_progress
		 FROM war_objectives
		 WHERE war_id = ?
		 ORDER BY id ASC`,
		warID,
	)
	if err != nil {
		return nil, fmt.Errorf("load objectives: %w", err)
	}
	defer rows.Close()

	objectives := make([]domain.WarObjective, 0)
	for rows.Next() {
		var (
			objective domain.WarObjective
			rawType   string
		)
		if err := rows.Scan(
			&objective.ID,
			&objective.WarID,
			&objective.HolderGuildID,
			&rawType,
			&objective.TargetValue,
			&objective.CurrentProgress,
		); err != nil {
			return nil, fmt.Errorf("scan objective: %w", err)
		}
		objectiveType, err := domain.ParseObjectiveType(rawType)
		if err != nil {
			return nil, err
		}
		objective.Type = objectiveType
		objectives = append(objectives, objective)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load objectives: %w", err)
	}
	return objectives, nil
}

// GetWar returns a war with its objectives.
func (s *Store) GetWar(ctx context.Context, warID string) (domain.War, error) {
	if err := s.ready(ctx); err != nil {
		return domain.War{}, err
	}
	warID = strings.TrimSpace(warID)
	if warID == "" {
		return domain.War{}, fmt.Errorf("war id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+warColumns+` FROM wars WHERE id = ?`,
		warID,
	)
	war, err := scanWar(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.War{}, storage.ErrNotFound
		}
		return domain.War{}, fmt.Errorf("get war: %w", err)
	}
	war.Objectives, err = s.loadObjectives(ctx, warID)
	if err != nil {
		return domain.War{}, err
	}
	return war, nil
}

// LiveWarForPair returns the PROPOSED or ACTIVE war between two guilds.
func (s *Store) LiveWarForPair(ctx context.Context, guildA, guildB string) (domain.War, error) {
	if err := s.ready(ctx); err != nil {
		return domain.War{}, err
	}
	pairA, pairB, err := domain.PairKey(guildA, guildB)
	if err != nil {
		return domain.War{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+warColumns+`
		 FROM wars
		 WHERE pair_a = ? AND pair_b = ? AND status IN ('PROPOSED', 'ACTIVE')`,
		pairA,
		pairB,
	)
	war, err := scanWar(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.War{}, storage.ErrNotFound
		}
		return domain.War{}, fmt.Errorf("live war for pair: %w", err)
	}
	war.Objectives, err = s.loadObjectives(ctx, war.ID)
	if err != nil {
		return domain.War{}, err
	}
	return war, nil
}

// CountLiveWars returns how many PROPOSED or ACTIVE wars involve the guild.
func (s *Store) CountLiveWars(ctx context.Context, guildID string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return 0, fmt.Errorf("guild id is required")
	}

	var count int
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COUNT(*)
		 FROM wars
		 WHERE (declaring_guild_id = ? OR defending_guild_id = ?)
		   AND status IN ('PROPOSED', 'ACTIVE')`,
		guildID,
		guildID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count live wars: %w", err)
	}
	return count, nil
}

// ActivateWar commits PROPOSED→ACTIVE, the ENEMY relation, and the optional
// wager in one transaction.
func (s *Store) ActivateWar(ctx context.Context, warID string, acceptedAt time.Time, relation domain.Relation, wager *domain.WarWager) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate war: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(
		ctx,
		`UPDATE wars
		 SET status = 'ACTIVE', accepted_at = ?
		 WHERE id = ? AND status = 'PROPOSED'`,
		toMillis(acceptedAt),
		warID,
	)
	if err != nil {
		return fmt.Errorf("activate war: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate war: %w", err)
	}
	if affected == 0 {
		return storage.ErrConflict
	}

	if err := upsertRelationTx(ctx, tx, relation); err != nil {
		return err
	}

	if wager != nil {
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO war_wagers (war_id, declaring_stake, defending_stake, status, winner_guild_id, resolved_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			wager.WarID,
			wager.DeclaringStake,
			wager.DefendingStake,
			string(wager.Status),
			wager.WinnerGuildID,
			toMillisPtr(wager.ResolvedAt),
		)
		if err != nil {
			return fmt.Errorf("create wager: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activate war: %w", err)
	}
	return nil
}

func terminateWarTx(ctx context.Context, db execer, warID string, endedAt time.Time, winnerGuildID string, reason domain.EndReason) error {
	result, err := db.ExecContext(
		ctx,
		`UPDATE wars
		 SET status = 'ENDED', ended_at = ?, winner_guild_id = ?, end_reason = ?
		 WHERE id = ? AND status IN ('PROPOSED', 'ACTIVE')`,
		toMillis(endedAt),
		winnerGuildID,
		string(reason),
		warID,
	)
	if err != nil {
		return fmt.Errorf("terminate war: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("terminate war: %w", err)
	}
	if affected == 0 {
		return storage.ErrConflict
	}
	return nil
}

// TerminateWar commits a live war to ENDED exactly once.
func (s *Store) TerminateWar(ctx context.Context, warID string, endedAt time.Time, winnerGuildID string, reason domain.EndReason) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return terminateWarTx(ctx, s.sqlDB, warID, endedAt, winnerGuildID, reason)
}

// BumpObjective adds delta to the matching objective's progress and returns
// the updated objective.
func (s *Store) BumpObjective(ctx context.Context, warID, holderGuildID string, objectiveType domain.ObjectiveType, delta int64) (domain.WarObjective, error) {
	if err := s.ready(ctx); err != nil {
		return domain.WarObjective{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`UPDATE war_objectives
		 SET current_progress = current_progress + ?
		 WHERE war_id = ? AND holder_guild_id = ? AND objective_type = ?
		 RETURNING id, war_id, holder_guild_id, objective_type, target_value, current_progress`,
		delta,
		warID,
		holderGuildID,
		string(objectiveType),
	)
	var (
		objective domain.WarObjective
		rawType   string
	)
	err := row.Scan(
		&objective.ID,
		&objective.WarID,
		&objective.HolderGuildID,
		&rawType,
		&objective.TargetValue,
		&objective.CurrentProgress,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WarObjective{}, storage.ErrNotFound
		}
		return domain.WarObjective{}, fmt.Errorf("bump objective: %w", err)
	}
	parsed, err := domain.ParseObjectiveType(rawType)
	if err != nil {
		return domain.WarObjective{}, err
	}
	objective.Type = parsed
	return objective, nil
}

// GetWager returns the wager for a war.
func (s *Store) GetWager(ctx context.Context, warID string) (domain.WarWager, error) {
	if err := s.ready(ctx); err != nil {
		return domain.WarWager{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT war_id, declaring_stake, defending_stake, status, winner_guild_id, resolved_at
		 FROM war_wagers
		 WHERE war_id = ?`,
		strings.TrimSpace(warID),
	)
	var (
		wager      domain.WarWager
		rawStatus  string
		resolvedAt sql.NullInt64
	)
	err := row.Scan(
		&wager.WarID,
		&wager.DeclaringStake,
		&wager.DefendingStake,
		&rawStatus,
		&wager.WinnerGuildID,
		&resolvedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WarWager{}, storage.ErrNotFound
		}
		return domain.WarWager{}, fmt.Errorf("get wager: %w", err)
	}
	status, err := domain.ParseWagerStatus(rawStatus)
	if err != nil {
		return domain.WarWager{}, err
	}
	wager.Status = status
	wager.ResolvedAt = fromMillisPtr(resolvedAt)
	return wager, nil
}

// ResolveWager moves an OPEN wager to its terminal status exactly once.
func (s *Store) ResolveWager(ctx context.Context, warID string, status domain.WagerStatus, winnerGuildID string, resolvedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE war_wagers
		 SET status = ?, winner_guild_id = ?, resolved_at = ?
		 WHERE war_id = ? AND status = 'OPEN'`,
		string(status),
		winnerGuildID,
		toMillis(resolvedAt),
		warID,
	)
	if err != nil {
		return fmt.Errorf("resolve wager: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve wager: %w", err)
	}
	if affected == 0 {
		return storage.ErrConflict
	}
	return nil
}

// ExpireProposedWars ends PROPOSED wars past their acceptance deadline.
func (s *Store) ExpireProposedWars(ctx context.Context, now time.Time) ([]domain.War, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`UPDATE wars
		 SET status = 'ENDED', ended_at = ?, end_reason = 'EXPIRED'
		 WHERE status = 'PROPOSED' AND expires_at <= ?
		 RETURNING `+warColumns,
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("expire proposed wars: %w", err)
	}
	defer rows.Close()
	return collectWars(rows)
}

// ExpireActiveWars ends ACTIVE wars past their duration as draws.
func (s *Store) ExpireActiveWars(ctx context.Context, now time.Time) ([]domain.War, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`UPDATE wars
		 SET status = 'ENDED', ended_at = ?, end_reason = 'DRAW'
		 WHERE status = 'ACTIVE' AND accepted_at IS NOT NULL
		   AND accepted_at + duration_ms <= ?
		 RETURNING `+warColumns,
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("expire active wars: %w", err)
	}
	defer rows.Close()
	return collectWars(rows)
}

// ListWarsByGuild returns the guild's wars, most recent first.
func (s *Store) ListWarsByGuild(ctx context.Context, guildID string, limit int) ([]domain.War, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return nil, fmt.Errorf("guild id is required")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+warColumns+`
		 FROM wars
		 WHERE declaring_guild_id = ? OR defending_guild_id = ?
		 ORDER BY declared_at DESC
		 LIMIT ?`,
		guildID,
		guildID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list wars: %w", err)
	}
	defer rows.Close()
	return collectWars(rows)
}

func collectWars(rows *sql.Rows) ([]domain.War, error) {
	wars := make([]domain.War, 0)
	for rows.Next() {
		war, err := scanWar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan war: %w", err)
		}
		wars = append(wars, war)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list wars: %w", err)
	}
	return wars, nil
}

var _ storage.WarStore = (*Store)(nil)
