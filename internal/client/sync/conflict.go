package sync

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/pensieve-app/pensieve/internal/client/store/records"
)

// Strategy selects how a local/remote pair is reconciled.
type Strategy string

const (
	// StrategyClientWins keeps the local value regardless of timestamps.
	// Used for user-initiated edits still in flight.
	StrategyClientWins Strategy = "client_wins"

	// StrategyServerWins keeps the remote value regardless of timestamps.
	// Used for server-computed fields.
	StrategyServerWins Strategy = "server_wins"

	// StrategyPerColumnMerge merges field by field: each field takes the
	// value from whichever side was modified more recently. Ties favor the
	// server so every client converges to the same record.
	StrategyPerColumnMerge Strategy = "per_column_merge"
)

// Conflict type labels recorded in the audit trail.
const (
	conflictEditEdit   = "edit-edit"
	conflictEditDelete = "edit-delete"
	conflictDeleteEdit = "delete-edit"
	conflictFalseAlarm = "false-alarm"
)

// Audit is the immutable record of one resolution, created exactly once per
// detected conflict. Audits exist for traceability, so one is produced even
// when both sides turn out to be identical.
type Audit struct {
	ID            string          `json:"id"`
	Entity        string          `json:"entity"`
	RecordID      string          `json:"recordId"`
	ConflictType  string          `json:"conflictType"`
	Strategy      Strategy        `json:"strategy"`
	ClientValue   json.RawMessage `json:"clientValue"`
	ServerValue   json.RawMessage `json:"serverValue"`
	ResolvedValue json.RawMessage `json:"resolvedValue"`
	Notes         string          `json:"notes,omitempty"`
	ResolvedAt    int64           `json:"resolvedAt"`
}

// Resolution is the resolver's complete output: the record to persist plus
// its audit entry.
type Resolution struct {
	Merged records.Record
	Audit  Audit
}

// ResolveConflict reconciles a local and a remote version of the same record.
// It never fails: an unresolvable pair falls back to server_wins and the
// fallback is flagged in the audit notes.
func ResolveConflict(entity string, local, remote records.Record, strategy Strategy, now int64) Resolution {
	merged, notes := mergeRecords(local, remote, strategy)

	audit := Audit{
		ID:            uuid.NewString(),
		Entity:        entity,
		RecordID:      remote.ID,
		ConflictType:  conflictType(local, remote),
		Strategy:      strategy,
		ClientValue:   marshalLenient(local),
		ServerValue:   marshalLenient(remote),
		ResolvedValue: marshalLenient(merged),
		Notes:         notes,
		ResolvedAt:    now,
	}
	if audit.RecordID == "" {
		audit.RecordID = local.ID
	}

	return Resolution{Merged: merged, Audit: audit}
}

func mergeRecords(local, remote records.Record, strategy Strategy) (records.Record, string) {
	// A side with no identity and no payload cannot win anything; converge
	// on the server version and flag the fallback.
	if local.ID == "" && local.Fields == nil {
		return remote, "fallback: local version unusable, applied server_wins"
	}

	switch strategy {
	case StrategyClientWins:
		return local, ""
	case StrategyServerWins:
		return remote, ""
	case StrategyPerColumnMerge:
		return mergePerColumn(local, remote), ""
	default:
		return remote, "fallback: unknown strategy, applied server_wins"
	}
}

func mergePerColumn(local, remote records.Record) records.Record {
	// With record-level timestamps the newer side wins each field it
	// carries; fields present on only one side are kept. Equal timestamps
	// resolve to the server value.
	newer, older := remote, local
	if local.LastModifiedAt > remote.LastModifiedAt {
		newer, older = local, remote
	}

	merged := records.Record{
		ID:             newer.ID,
		LastModifiedAt: newer.LastModifiedAt,
		Status:         newer.Status,
		Fields:         make(map[string]json.RawMessage, len(newer.Fields)),
	}
	for k, v := range older.Fields {
		merged.Fields[k] = v
	}
	for k, v := range newer.Fields {
		merged.Fields[k] = v
	}
	return merged
}

func conflictType(local, remote records.Record) string {
	switch {
	case local.Deleted() && !remote.Deleted():
		return conflictDeleteEdit
	case !local.Deleted() && remote.Deleted():
		return conflictEditDelete
	case equalRecords(local, remote):
		return conflictFalseAlarm
	default:
		return conflictEditEdit
	}
}

func equalRecords(a, b records.Record) bool {
	if a.ID != b.ID || a.Status != b.Status || len(a.Fields) != len(b.Fields) {
		return false
	}
	for k, v := range a.Fields {
		w, ok := b.Fields[k]
		if !ok || string(v) != string(w) {
			return false
		}
	}
	return true
}

func marshalLenient(r records.Record) json.RawMessage {
	b, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return b
}
