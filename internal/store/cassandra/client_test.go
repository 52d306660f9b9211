package cassandra

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gocql/gocql"

	"github.com/spotthespy/game-engine/internal/store"
	"github.com/spotthespy/game-engine/internal/types"
)

func TestParseConsistency(t *testing.T) {
	tests := map[string]gocql.Consistency{
		"ONE":          gocql.One,
		"quorum":       gocql.Quorum,
		"LOCAL_QUORUM": gocql.LocalQuorum,
		"LOCAL_ONE":    gocql.LocalOne,
		"":             gocql.Quorum,
		"nonsense":     gocql.Quorum,
	}
	for in, want := range tests {
		if got := parseConsistency(in); got != want {
			t.Errorf("parseConsistency(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRetryPolicy_GetRetryType(t *testing.T) {
	p := RetryPolicy(2)

	tests := []struct {
		err  error
		want gocql.RetryType
	}{
		{gocql.ErrTimeoutNoResponse, gocql.Retry},
		{errors.New("connection reset"), gocql.Retry},
		{errors.New("Unavailable exception"), gocql.Retry},
		{errors.New("syntax error"), gocql.Ignore},
		{nil, gocql.Ignore},
	}
	for _, tt := range tests {
		if got := p.GetRetryType(tt.err); got != tt.want {
			t.Errorf("GetRetryType(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements("games")
	if len(stmts) != 2 {
		t.Fatalf("Expected 2 statements, got %d", len(stmts))
	}
	if !strings.Contains(stmts[0], "KEYSPACE IF NOT EXISTS games") {
		t.Errorf("Unexpected keyspace DDL: %s", stmts[0])
	}
	if !strings.Contains(stmts[1], "games.sessions") || !strings.Contains(stmts[1], "version bigint") {
		t.Errorf("Unexpected table DDL: %s", stmts[1])
	}
}

func TestStore_TTLSeconds(t *testing.T) {
	s := &Store{opts: store.Options{TTL: time.Hour, ClosedRetention: time.Minute}}

	if got := s.ttlSeconds(&types.Session{Phase: types.PhaseVoting}); got != 3600 {
		t.Errorf("Expected active TTL of 3600s, got %d", got)
	}
	if got := s.ttlSeconds(&types.Session{Phase: types.PhaseClosed}); got != 60 {
		t.Errorf("Expected closed retention of 60s, got %d", got)
	}
}
