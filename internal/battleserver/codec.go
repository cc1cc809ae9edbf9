package battleserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/content"
	"github.com/cory-johannsen/idlebattle/internal/game/offline"
	"github.com/cory-johannsen/idlebattle/internal/game/session"
	"github.com/cory-johannsen/idlebattle/internal/storage/postgres"
)

// InputMessage is the wire form of a battle input. Struct numbers are
// doubles, so the seed travels as a decimal string and durations as Go
// duration strings.
type InputMessage struct {
	Stats        combat.Stats `json:"stats"`
	ProfessionID string       `json:"profession"`
	EnemyID      string       `json:"enemy"`
	EnemyCount   int          `json:"enemy_count"`
	Procs        []string     `json:"procs,omitempty"`
	Seed         uint64       `json:"seed,string"`
	Limit        LimitMessage `json:"limit"`
}

// LimitMessage is the wire form of combat.Limit.
type LimitMessage struct {
	Mode      string `json:"mode"`
	Duration  string `json:"duration,omitempty"`
	MaxEvents int64  `json:"max_events,omitempty"`
	MaxKills  int    `json:"max_kills,omitempty"`
}

// Input converts m to a combat.Input.
func (m InputMessage) Input() (combat.Input, error) {
	limit := combat.Limit{
		Mode:      combat.LimitMode(m.Limit.Mode),
		MaxEvents: m.Limit.MaxEvents,
		MaxKills:  m.Limit.MaxKills,
	}
	if m.Limit.Duration != "" {
		d, err := time.ParseDuration(m.Limit.Duration)
		if err != nil {
			return combat.Input{}, fmt.Errorf("limit.duration: %w", err)
		}
		limit.Duration = d
	}
	return combat.Input{
		Stats:        m.Stats,
		ProfessionID: m.ProfessionID,
		EnemyID:      m.EnemyID,
		EnemyCount:   m.EnemyCount,
		Procs:        m.Procs,
		Seed:         m.Seed,
		Limit:        limit,
	}, nil
}

// NewInputMessage converts in to its wire form.
func NewInputMessage(in combat.Input) InputMessage {
	m := InputMessage{
		Stats:        in.Stats,
		ProfessionID: in.ProfessionID,
		EnemyID:      in.EnemyID,
		EnemyCount:   in.EnemyCount,
		Procs:        in.Procs,
		Seed:         in.Seed,
		Limit: LimitMessage{
			Mode:      string(in.Limit.Mode),
			MaxEvents: in.Limit.MaxEvents,
			MaxKills:  in.Limit.MaxKills,
		},
	}
	if in.Limit.Duration > 0 {
		m.Limit.Duration = in.Limit.Duration.String()
	}
	return m
}

// StartRequest starts a live battle.
type StartRequest struct {
	Input InputMessage `json:"input"`
}

// IDRequest addresses one session. Cursor is used by Poll and History.
type IDRequest struct {
	ID     string `json:"id"`
	Cursor int    `json:"cursor,omitempty"`
}

// SnapshotRequest serializes a session, optionally storing the snapshot.
type SnapshotRequest struct {
	ID      string `json:"id"`
	Persist bool   `json:"persist,omitempty"`
}

// RestoreRequest restores a session from inline snapshot bytes (base64 in
// JSON) or from the snapshot stored under From.
type RestoreRequest struct {
	Snapshot []byte `json:"snapshot,omitempty"`
	From     string `json:"from,omitempty"`
}

// SettleRequest settles an offline period.
type SettleRequest struct {
	Input    InputMessage `json:"input"`
	Elapsed  string       `json:"elapsed"`
	Expected *bool        `json:"expected,omitempty"`
}

// WatchRequest streams the segments of a session.
type WatchRequest struct {
	ID       string `json:"id"`
	Interval string `json:"interval,omitempty"`
}

// StartResponse answers Start and Restore.
type StartResponse struct {
	ID     string        `json:"id"`
	Status combat.Status `json:"status"`
}

// SnapshotResponse carries snapshot bytes (base64 in JSON).
type SnapshotResponse struct {
	ID       string `json:"id"`
	Snapshot []byte `json:"snapshot"`
}

// StopResponse carries the final result of a session.
type StopResponse struct {
	ID     string        `json:"id"`
	Result combat.Result `json:"result"`
}

// HistoryResponse carries stored segments.
type HistoryResponse struct {
	ID       string           `json:"id"`
	Segments []combat.Segment `json:"segments"`
	Cursor   int              `json:"cursor"`
}

// WatchMessage is one message of a Watch stream: a segment, or the final
// status once the battle is over.
type WatchMessage struct {
	Segment *combat.Segment `json:"segment,omitempty"`
	Status  *combat.Status  `json:"status,omitempty"`
}

// Decode unmarshals a Struct into out, rejecting unknown fields. The Struct
// goes through encoding/json so integral doubles keep their plain form.
func Decode(in *structpb.Struct, out any) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "encoding request: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	return nil
}

// Encode converts v to a Struct through its JSON form.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	out, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}

// handleDomainError maps domain errors to gRPC status errors.
func handleDomainError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, postgres.ErrBattleNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, combat.ErrInvalidConfig),
		errors.Is(err, content.ErrUnknownEnemy),
		errors.Is(err, content.ErrUnknownProfession),
		errors.Is(err, content.ErrUnknownProc):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, combat.ErrResumeMismatch),
		errors.Is(err, offline.ErrNoProgress):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, postgres.ErrBattleExists):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
