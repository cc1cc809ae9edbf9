package battleserver

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/offline"
	"github.com/cory-johannsen/idlebattle/internal/game/session"
)

// DefaultWatchInterval is how often a Watch stream advances its session.
const DefaultWatchInterval = 250 * time.Millisecond

// Store persists battles for the server. Results reach the store through
// the session manager's ResultSink.
type Store interface {
	Create(ctx context.Context, id string, input combat.Input) error
	AppendSegments(ctx context.Context, id string, segs []combat.Segment) error
	ListSegments(ctx context.Context, id string, from int) ([]combat.Segment, error)
	SaveSnapshot(ctx context.Context, id string, data []byte) error
	LoadSnapshot(ctx context.Context, id string) ([]byte, error)
}

// Options tunes a Server.
type Options struct {
	// ExpectedRewards is the Settle reward mode when a request does not set one.
	ExpectedRewards bool
	// WatchInterval defaults to DefaultWatchInterval.
	WatchInterval time.Duration
}

// Server implements BattleServiceServer over a session manager and a settler.
type Server struct {
	sessions *session.Manager
	settler  *offline.Settler
	store    Store
	opts     Options
	logger   *zap.Logger
}

// NewServer creates a Server.
//
// Precondition: sessions and settler must be non-nil. store may be nil, in
// which case Start and Poll persist nothing and History and persisted
// snapshots are unavailable.
func NewServer(sessions *session.Manager, settler *offline.Settler, store Store, opts Options, logger *zap.Logger) *Server {
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = DefaultWatchInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{sessions: sessions, settler: settler, store: store, opts: opts, logger: logger}
}

var _ BattleServiceServer = (*Server)(nil)

var errNoStore = status.Error(codes.FailedPrecondition, "no battle store configured")

// Start implements BattleServiceServer.
func (s *Server) Start(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req StartRequest
	if err := Decode(in, &req); err != nil {
		return nil, err
	}
	input, err := req.Input.Input()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id, err := s.sessions.Start(input)
	if err != nil {
		return nil, handleDomainError(err)
	}
	if s.store != nil {
		if err := s.store.Create(ctx, id, input); err != nil {
			s.logger.Warn("recording battle start", zap.String("session_id", id), zap.Error(err))
		}
	}
	return s.statusOf(ctx, id)
}

func (s *Server) statusOf(ctx context.Context, id string) (*structpb.Struct, error) {
	up, err := s.sessions.Poll(ctx, id, math.MaxInt)
	if err != nil {
		return nil, handleDomainError(err)
	}
	return Encode(StartResponse{ID: id, Status: up.Status})
}

// Poll implements BattleServiceServer.
func (s *Server) Poll(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req IDRequest
	if err := Decode(in, &req); err != nil {
		return nil, err
	}
	up, err := s.sessions.Poll(ctx, req.ID, req.Cursor)
	if err != nil {
		return nil, handleDomainError(err)
	}
	if s.store != nil && len(up.Segments) > 0 {
		if err := s.store.AppendSegments(ctx, req.ID, up.Segments); err != nil {
			s.logger.Warn("storing segments", zap.String("session_id", req.ID), zap.Error(err))
		}
	}
	return Encode(up)
}

// Stop implements BattleServiceServer.
func (s *Server) Stop(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req IDRequest
	if err := Decode(in, &req); err != nil {
		return nil, err
	}
	res, err := s.sessions.Stop(ctx, req.ID)
	if err != nil {
		return nil, handleDomainError(err)
	}
	return Encode(StopResponse{ID: req.ID, Result: res})
}

// Snapshot implements BattleServiceServer.
func (s *Server) Snapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SnapshotRequest
	if err := Decode(in, &req); err != nil {
		return nil, err
	}
	if req.Persist && s.store == nil {
		return nil, errNoStore
	}
	data, err := s.sessions.Serialize(ctx, req.ID)
	if err != nil {
		return nil, handleDomainError(err)
	}
	if req.Persist {
		if err := s.store.SaveSnapshot(ctx, req.ID, data); err != nil {
			return nil, handleDomainError(err)
		}
	}
	return Encode(SnapshotResponse{ID: req.ID, Snapshot: data})
}

// Restore implements BattleServiceServer.
func (s *Server) Restore(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RestoreRequest
	if err := Decode(in, &req); err != nil {
		return nil, err
	}
	data := req.Snapshot
	switch {
	case len(data) > 0 && req.From != "":
		return nil, status.Error(codes.InvalidArgument, "set either snapshot or from, not both")
	case req.From != "":
		if s.store == nil {
			return nil, errNoStore
		}
		var err error
		if data, err = s.store.LoadSnapshot(ctx, req.From); err != nil {
			return nil, handleDomainError(err)
		}
	case len(data) == 0:
		return nil, status.Error(codes.InvalidArgument, "snapshot or from is required")
	}
	id, err := s.sessions.Restore(data)
	if err != nil {
		return nil, handleDomainError(err)
	}
	return s.statusOf(ctx, id)
}

// Settle implements BattleServiceServer.
func (s *Server) Settle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SettleRequest
	if err := Decode(in, &req); err != nil {
		return nil, err
	}
	input, err := req.Input.Input()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	elapsed, err := time.ParseDuration(req.Elapsed)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "elapsed: %v", err)
	}
	expected := s.opts.ExpectedRewards
	if req.Expected != nil {
		expected = *req.Expected
	}
	out, err := s.settler.Settle(ctx, offline.Request{Input: input, Elapsed: elapsed, Expected: expected})
	if err != nil {
		return nil, handleDomainError(err)
	}
	return Encode(out)
}

// History implements BattleServiceServer.
func (s *Server) History(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req IDRequest
	if err := Decode(in, &req); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, errNoStore
	}
	segs, err := s.store.ListSegments(ctx, req.ID, req.Cursor)
	if err != nil {
		return nil, handleDomainError(err)
	}
	if segs == nil {
		segs = []combat.Segment{}
	}
	return Encode(HistoryResponse{ID: req.ID, Segments: segs, Cursor: req.Cursor + len(segs)})
}

// Watch implements BattleServiceServer. It advances the session on every
// interval and streams each segment as it closes. Once the battle is over
// the remaining segments and a final status are sent. The stream ends early
// when the session is stopped.
func (s *Server) Watch(in *structpb.Struct, stream BattleService_WatchServer) error {
	var req WatchRequest
	if err := Decode(in, &req); err != nil {
		return err
	}
	interval := s.opts.WatchInterval
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil || d <= 0 {
			return status.Errorf(codes.InvalidArgument, "interval must be a positive duration, got %q", req.Interval)
		}
		interval = d
	}
	feed, err := s.sessions.Subscribe(req.ID)
	if err != nil {
		return handleDomainError(err)
	}
	defer s.sessions.Unsubscribe(req.ID, feed)

	send := func(msg WatchMessage) error {
		out, err := Encode(msg)
		if err != nil {
			return err
		}
		return stream.Send(out)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case seg, ok := <-feed.Segments():
			if !ok {
				return nil
			}
			if err := send(WatchMessage{Segment: &seg}); err != nil {
				return err
			}
		case <-ticker.C:
			up, err := s.sessions.Poll(ctx, req.ID, math.MaxInt)
			if errors.Is(err, session.ErrSessionNotFound) {
				return nil
			}
			if err != nil {
				return handleDomainError(err)
			}
			if !up.Status.Completed {
				continue
			}
			for drained := false; !drained; {
				select {
				case seg, ok := <-feed.Segments():
					if !ok {
						drained = true
						break
					}
					if err := send(WatchMessage{Segment: &seg}); err != nil {
						return err
					}
				default:
					drained = true
				}
			}
			return send(WatchMessage{Status: &up.Status})
		}
	}
}
