// Package sqlite provides a SQLite-backed diplomacy storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lumalyte/guilds/internal/diplomacy/domain"
	"github.com/lumalyte/guilds/internal/diplomacy/storage"
	"github.com/lumalyte/guilds/internal/diplomacy/storage/sqlite/migrations"
	sqlitemigrate "github.com/lumalyte/guilds/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store persists diplomacy state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toMillisPtr(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromMillisPtr(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	at := fromMillis(value.Int64)
	return &at
}

// Open opens a SQLite diplomacy store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}

// GetRelation returns the relation row for a canonical guild pair.
func (s *Store) GetRelation(ctx context.Context, guildA, guildB string) (domain.Relation, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Relation{}, err
	}
	guildA, guildB, err := domain.PairKey(guildA, guildB)
	if err != nil {
		return domain.Relation{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT guild_a, guild_b, relation_type, established_at, updated_at, expires_at
		 FROM relations
		 WHERE guild_a = ? AND guild_b = ?`,
		guildA,
		guildB,
	)
	relation, err := scanRelation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Relation{}, storage.ErrNotFound
		}
		return domain.Relation{}, fmt.Errorf("get relation: %w", err)
	}
	return relation, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRelation(row rowScanner) (domain.Relation, error) {
	var (
		relation      domain.Relation
		rawType       string
		establishedAt int64
		updatedAt     int64
		expiresAt     sql.NullInt64
	)
	if err := row.Scan(
		&relation.GuildA,
		&relation.GuildB,
		&rawType,
		&establishedAt,
		&updatedAt,
		&expiresAt,
	); err != nil {
		return domain.Relation{}, err
	}
	relationType, err := domain.ParseRelationType(rawType)
	if err != nil {
		return domain.Relation{}, err
	}
	relation.Type = relationType
	relation.EstablishedAt = fromMillis(establishedAt)
	relation.UpdatedAt = fromMillis(updatedAt)
	relation.ExpiresAt = fromMillisPtr(expiresAt)
	return relation, nil
}

// UpsertRelation writes the relation for its pair, replacing any existing row.
func (s *Store) UpsertRelation(ctx context.Context, relation domain.Relation) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return upsertRelationTx(ctx, s.sqlDB, relation)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// effectiveRelationTypeTx reads the pair's relation as it stands at now.
// A lapsed truce counts as NONE, matching the lazy expiry on reads.
func effectiveRelationTypeTx(ctx context.Context, db rowQueryer, guildA, guildB string, now time.Time) (domain.RelationType, error) {
	var (
		rawType   string
		expiresAt sql.NullInt64
	)
	err := db.QueryRowContext(
		ctx,
		`SELECT relation_type, expires_at FROM relations WHERE guild_a = ? AND guild_b = ?`,
		guildA,
		guildB,
	).Scan(&rawType, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RelationNone, nil
	}
	if err != nil {
		return domain.RelationNone, fmt.Errorf("read relation: %w", err)
	}
	relationType, err := domain.ParseRelationType(rawType)
	if err != nil {
		return domain.RelationNone, err
	}
	if expiresAt.Valid && !now.Before(fromMillis(expiresAt.Int64)) {
		return domain.RelationNone, nil
	}
	return relationType, nil
}

func upsertRelationTx(ctx context.Context, db execer, relation domain.Relation) error {
	_, err := db.ExecContext(
		ctx,
		`INSERT INTO relations (guild_a, guild_b, relation_type, established_at, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(guild_a, guild_b) DO UPDATE SET
		   relation_type = excluded.relation_type,
		   established_at = excluded.established_at,
		   updated_at = excluded.updated_at,
		   expires_at = excluded.expires_at`,
		relation.GuildA,
		relation.GuildB,
		relation.Type.String(),
		toMillis(relation.EstablishedAt),
		toMillis(relation.UpdatedAt),
		toMillisPtr(relation.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("upsert relation: %w", err)
	}
	return nil
}

func deleteRelationTx(ctx context.Context, db execer, guildA, guildB string) (bool, error) {
	result, err := db.ExecContext(
		ctx,
		`DELETE FROM relations WHERE guild_a = ? AND guild_b = ?`,
		guildA,
		guildB,
	)
	if err != nil {
		return false, fmt.Errorf("delete relation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete relation: %w", err)
	}
	return affected > 0, nil
}

// DeleteRelation removes the pair's row.
func (s *Store) DeleteRelation(ctx context.Context, guildA, guildB string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	guildA, guildB, err := domain.PairKey(guildA, guildB)
	if err != nil {
		return false, err
	}
	return deleteRelationTx(ctx, s.sqlDB, guildA, guildB)
}

// DeleteRelationIfExpired removes the pair's row only while its expiry is at
// or before now. Racing callers get at most one true.
func (s *Store) DeleteRelationIfExpired(ctx context.Context, guildA, guildB string, now time.Time) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	guildA, guildB, err := domain.PairKey(guildA, guildB)
	if err != nil {
		return false, err
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM relations
		 WHERE guild_a = ? AND guild_b = ?
		   AND expires_at IS NOT NULL AND expires_at <= ?`,
		guildA,
		guildB,
		toMillis(now),
	)
	if err != nil {
		return false, fmt.Errorf("delete expired relation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete expired relation: %w", err)
	}
	return affected > 0, nil
}

// ListRelationsByGuild returns every relation involving the guild.
func (s *Store) ListRelationsByGuild(ctx context.Context, guildID string) ([]domain.Relation, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return nil, fmt.Errorf("guild id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT guild_a, guild_b, relation_type, established_at, updated_at, expires_at
		 FROM relations
		 WHERE guild_a = ? OR guild_b = ?
		 ORDER BY updated_at DESC`,
		guildID,
		guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()
	return collectRelations(rows)
}

// ListRelationsByType returns the guild's relations of one type.
func (s *Store) ListRelationsByType(ctx context.Context, guildID string, relationType domain.RelationType) ([]domain.Relation, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return nil, fmt.Errorf("guild id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT guild_a, guild_b, relation_type, established_at, updated_at, expires_at
		 FROM relations
		 WHERE (guild_a = ? OR guild_b = ?) AND relation_type = ?
		 ORDER BY updated_at DESC`,
		guildID,
		guildID,
		relationType.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list relations by type: %w", err)
	}
	defer rows.Close()
	return collectRelations(rows)
}

func collectRelations(rows *sql.Rows) ([]domain.Relation, error) {
	relations := make([]domain.Relation, 0)
	for rows.Next() {
		relation, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		relations = append(relations, relation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	return relations, nil
}

var _ storage.RelationStore = (*Store)(nil)
