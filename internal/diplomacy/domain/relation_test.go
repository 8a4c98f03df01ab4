package domain

import (
	"testing"
	"time"

	apperrors "github.com/lumalyte/guilds/internal/errors"
)

func TestPairKeyOrdersPair(t *testing.T) {
	t.Parallel()

	a, b, err := PairKey("wolves", "bears")
	if err != nil {
		t.Fatalf("PairKey returned error: %v", err)
	}
	if a != "bears" || b != "wolves" {
		t.Fatalf("PairKey = (%q, %q), want (bears, wolves)", a, b)
	}

	a2, b2, err := PairKey("bears", "wolves")
	if err != nil {
		t.Fatalf("PairKey returned error: %v", err)
	}
	if a2 != a || b2 != b {
		t.Fatal("expected PairKey to be order-independent")
	}
}

func TestPairKeyRejectsSelfAndEmpty(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		a, b string
	}{
		{"self", "bears", "bears"},
		{"self after trim", " bears ", "bears"},
		{"empty first", "", "bears"},
		{"empty second", "bears", "  "},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := PairKey(tc.a, tc.b); !apperrors.IsCode(err, apperrors.CodeRelationSelf) {
				t.Fatalf("PairKey(%q, %q) error = %v, want code %s", tc.a, tc.b, err, apperrors.CodeRelationSelf)
			}
		})
	}
}

func TestNewRelationTruceRequiresExpiry(t *testing.T) {
	t.Parallel()

	establishedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := NewRelation("bears", "wolves", RelationTruce, establishedAt, nil); !apperrors.IsCode(err, apperrors.CodeRelationTruceNoExpiry) {
		t.Fatalf("truce without expiry error = %v, want code %s", err, apperrors.CodeRelationTruceNoExpiry)
	}

	past := establishedAt.Add(-time.Hour)
	if _, err := NewRelation("bears", "wolves", RelationTruce, establishedAt, &past); !apperrors.IsCode(err, apperrors.CodeRelationTruceNoExpiry) {
		t.Fatalf("truce with past expiry error = %v, want code %s", err, apperrors.CodeRelationTruceNoExpiry)
	}

	future := establishedAt.Add(24 * time.Hour)
	relation, err := NewRelation("bears", "wolves", RelationTruce, establishedAt, &future)
	if err != nil {
		t.Fatalf("NewRelation returned error: %v", err)
	}
	if relation.ExpiresAt == nil || !relation.ExpiresAt.Equal(future) {
		t.Fatalf("ExpiresAt = %v, want %v", relation.ExpiresAt, future)
	}
}

func TestNewRelationRejectsExpiryOnNonTruce(t *testing.T) {
	t.Parallel()

	establishedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := establishedAt.Add(time.Hour)

	if _, err := NewRelation("bears", "wolves", RelationAlly, establishedAt, &future); !apperrors.IsCode(err, apperrors.CodeRelationInvalidType) {
		t.Fatalf("ally with expiry error = %v, want code %s", err, apperrors.CodeRelationInvalidType)
	}
	if _, err := NewRelation("bears", "wolves", RelationNone, establishedAt, nil); !apperrors.IsCode(err, apperrors.CodeRelationInvalidType) {
		t.Fatalf("NONE relation error = %v, want code %s", err, apperrors.CodeRelationInvalidType)
	}
}

func TestValidRelationChange(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		current RelationType
		desired RelationType
		want    bool
	}{
		{RelationNone, RelationAlly, true},
		{RelationTruce, RelationAlly, true},
		{RelationEnemy, RelationAlly, false},
		{RelationAlly, RelationAlly, false},
		{RelationNone, RelationEnemy, true},
		{RelationAlly, RelationEnemy, true},
		{RelationTruce, RelationEnemy, true},
		{RelationEnemy, RelationTruce, true},
		{RelationNone, RelationTruce, false},
		{RelationAlly, RelationTruce, false},
		{RelationEnemy, RelationNone, true},
		{RelationAlly, RelationNone, true},
		{RelationTruce, RelationNone, true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.current.String()+"_to_"+tc.desired.String(), func(t *testing.T) {
			t.Parallel()
			if got := ValidRelationChange(tc.current, tc.desired); got != tc.want {
				t.Fatalf("ValidRelationChange(%v, %v) = %v, want %v", tc.current, tc.desired, got, tc.want)
			}
		})
	}
}

func TestRelationTypeRoundTrip(t *testing.T) {
	t.Parallel()

	for _, relationType := range []RelationType{RelationNone, RelationAlly, RelationEnemy, RelationTruce} {
		parsed, err := ParseRelationType(relationType.String())
		if err != nil {
			t.Fatalf("ParseRelationType(%q) returned error: %v", relationType, err)
		}
		if parsed != relationType {
			t.Fatalf("ParseRelationType(%q) = %v, want %v", relationType, parsed, relationType)
		}
	}

	if _, err := ParseRelationType("VASSAL"); !apperrors.IsCode(err, apperrors.CodeRelationInvalidType) {
		t.Fatalf("ParseRelationType error = %v, want code %s", err, apperrors.CodeRelationInvalidType)
	}
}

func TestRelationExpiredAt(t *testing.T) {
	t.Parallel()

	establishedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := establishedAt.Add(time.Hour)
	relation, err := NewRelation("bears", "wolves", RelationTruce, establishedAt, &expiry)
	if err != nil {
		t.Fatalf("NewRelation returned error: %v", err)
	}

	if relation.ExpiredAt(expiry.Add(-time.Second)) {
		t.Fatal("expected relation to be live before expiry")
	}
	if !relation.ExpiredAt(expiry) {
		t.Fatal("expected relation to be expired at its deadline")
	}
}

func TestRelationOtherGuild(t *testing.T) {
	t.Parallel()

	relation, err := NewRelation("bears", "wolves", RelationAlly, time.Now(), nil)
	if err != nil {
		t.Fatalf("NewRelation returned error: %v", err)
	}

	if got := relation.OtherGuild("bears"); got != "wolves" {
		t.Fatalf("OtherGuild(bears) = %q, want wolves", got)
	}
	if got := relation.OtherGuild("wolves"); got != "bears" {
		t.Fatalf("OtherGuild(wolves) = %q, want bears", got)
	}
	if got := relation.OtherGuild("ravens"); got != "" {
		t.Fatalf("OtherGuild(ravens) = %q, want empty", got)
	}
	if relation.Involves("ravens") {
		t.Fatal("expected Involves to be false for a third guild")
	}
}
