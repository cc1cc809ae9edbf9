package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/content"
	"github.com/cory-johannsen/idlebattle/internal/game/session"
)

func TestGRPCServiceServesUntilStopped(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, health.NewServer())
	svc := NewGRPCService(srv, lis)

	served := make(chan error, 1)
	go func() { served <- svc.Start() }()

	conn, err := grpc.NewClient(svc.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	svc.Stop()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gRPC service did not stop")
	}
}

type countingSink struct {
	mu  sync.Mutex
	ids []string
}

func (s *countingSink) SaveResult(_ context.Context, id string, _ combat.Input, _ combat.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
	return nil
}

func TestSessionServiceStopsLiveSessions(t *testing.T) {
	sink := &countingSink{}
	mgr := session.NewManager(content.Default(), combat.DefaultConfig(), session.Options{Sink: sink}, nil)
	id, err := mgr.Start(combat.Input{
		Stats:        combat.Stats{AttackPower: 50, Level: 1},
		ProfessionID: "warrior",
		EnemyID:      "goblin",
		EnemyCount:   1,
		Seed:         3,
		Limit:        combat.ForDuration(time.Hour),
	})
	require.NoError(t, err)

	svc := NewSessionService(mgr, 10*time.Millisecond, time.Second, zaptest.NewLogger(t))
	go func() { _ = svc.Start() }()
	svc.Stop()

	select {
	case <-svc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session service did not stop")
	}
	assert.Equal(t, 0, mgr.Len())
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{id}, sink.ids)
}

func TestSessionServiceWithoutReaping(t *testing.T) {
	mgr := session.NewManager(content.Default(), combat.DefaultConfig(), session.Options{}, nil)
	svc := NewSessionService(mgr, 0, time.Second, zaptest.NewLogger(t))
	go func() { _ = svc.Start() }()
	svc.Stop()
	select {
	case <-svc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session service did not stop")
	}
}
