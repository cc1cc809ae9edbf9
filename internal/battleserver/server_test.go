package battleserver_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/idlebattle/internal/battleserver"
	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/content"
	"github.com/cory-johannsen/idlebattle/internal/game/offline"
	"github.com/cory-johannsen/idlebattle/internal/game/session"
	"github.com/cory-johannsen/idlebattle/internal/testutil"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var errMissing = errors.New("missing")

// memStore keeps battles in memory.
type memStore struct {
	mu        sync.Mutex
	inputs    map[string]combat.Input
	segments  map[string][]combat.Segment
	snapshots map[string][]byte
	results   map[string]combat.Result
}

func newMemStore() *memStore {
	return &memStore{
		inputs:    make(map[string]combat.Input),
		segments:  make(map[string][]combat.Segment),
		snapshots: make(map[string][]byte),
		results:   make(map[string]combat.Result),
	}
}

func (s *memStore) Create(_ context.Context, id string, input combat.Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs[id] = input
	return nil
}

func (s *memStore) AppendSegments(_ context.Context, id string, segs []combat.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[id] = append(s.segments[id], segs...)
	return nil
}

func (s *memStore) ListSegments(_ context.Context, id string, from int) ([]combat.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	segs := s.segments[id]
	if from >= len(segs) {
		return nil, nil
	}
	return append([]combat.Segment(nil), segs[from:]...), nil
}

func (s *memStore) SaveSnapshot(_ context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[id] = data
	return nil
}

func (s *memStore) LoadSnapshot(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.snapshots[id]
	if !ok {
		return nil, errMissing
	}
	return data, nil
}

func (s *memStore) input(id string) combat.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs[id]
}

func (s *memStore) result(id string) combat.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[id]
}

func (s *memStore) SaveResult(_ context.Context, id string, _ combat.Input, res combat.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = res
	return nil
}

type fixture struct {
	client *battleserver.Client
	clock  *fakeClock
	store  *memStore
}

func newFixture(t *testing.T, withStore bool) *fixture {
	t.Helper()
	f := &fixture{clock: &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}}
	opts := session.Options{Now: f.clock.Now, FeedBuffer: 128}
	var store battleserver.Store
	if withStore {
		f.store = newMemStore()
		opts.Sink = f.store
		store = f.store
	}
	catalog := content.Default()
	mgr := session.NewManager(catalog, combat.DefaultConfig(), opts, nil)
	settler, err := offline.NewSettler(catalog, combat.DefaultConfig(), offline.DefaultOptions(), nil)
	require.NoError(t, err)
	srv := battleserver.NewServer(mgr, settler, store, battleserver.Options{WatchInterval: 5 * time.Millisecond}, nil)
	conn := testutil.NewBufconnClient(t, func(s *grpc.Server) {
		battleserver.RegisterBattleServiceServer(s, srv)
	})
	f.client = battleserver.NewClient(conn)
	return f
}

func battleInput(seed uint64) combat.Input {
	return combat.Input{
		Stats:        combat.Stats{AttackPower: 60, SpellPower: 45, CritChance: 0.25, HastePct: 10, Level: 5},
		ProfessionID: "warrior",
		EnemyID:      "goblin",
		EnemyCount:   2,
		Seed:         seed,
		Limit:        combat.ForDuration(30 * time.Second),
	}
}

func syncRun(t require.TestingT, input combat.Input) combat.Result {
	res, err := combat.Run(context.Background(), input, content.Default(), combat.DefaultConfig(), nil)
	require.NoError(t, err)
	return res
}

func encode(t require.TestingT, v any) *structpb.Struct {
	s, err := battleserver.Encode(v)
	require.NoError(t, err)
	return s
}

func decode[T any](t require.TestingT, s *structpb.Struct) T {
	var out T
	require.NoError(t, battleserver.Decode(s, &out))
	return out
}

func (f *fixture) start(t require.TestingT, input combat.Input) battleserver.StartResponse {
	out, err := f.client.Start(context.Background(), encode(t, battleserver.StartRequest{Input: battleserver.NewInputMessage(input)}))
	require.NoError(t, err)
	return decode[battleserver.StartResponse](t, out)
}

func (f *fixture) poll(t require.TestingT, id string, cursor int) session.Update {
	out, err := f.client.Poll(context.Background(), encode(t, battleserver.IDRequest{ID: id, Cursor: cursor}))
	require.NoError(t, err)
	return decode[session.Update](t, out)
}

func (f *fixture) stop(t require.TestingT, id string) combat.Result {
	out, err := f.client.Stop(context.Background(), encode(t, battleserver.IDRequest{ID: id}))
	require.NoError(t, err)
	return decode[battleserver.StopResponse](t, out).Result
}

func TestServer_PolledToCompletionMatchesSyncRun(t *testing.T) {
	f := newFixture(t, false)
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint64().Draw(rt, "seed")
		want := syncRun(rt, battleInput(seed))

		started := f.start(rt, battleInput(seed))
		require.NotEmpty(rt, started.ID)
		assert.False(rt, started.Status.Completed)

		var streamed []combat.Segment
		cursor := 0
		for {
			f.clock.Advance(time.Duration(rapid.Int64Range(int64(200*time.Millisecond), int64(5*time.Second)).Draw(rt, "wall")))
			up := f.poll(rt, started.ID, cursor)
			streamed = append(streamed, up.Segments...)
			cursor = up.Cursor
			if up.Status.Completed {
				break
			}
		}
		got := f.stop(rt, started.ID)
		assert.Equal(rt, want.TotalDamage, got.TotalDamage)
		assert.Equal(rt, want.Events, got.Events)
		assert.Equal(rt, want.Kills, got.Kills)
		assert.Equal(rt, want.Elapsed, got.Elapsed)
		assert.Equal(rt, want.State, got.State)
		assert.Equal(rt, want.Segments, streamed)
	})
}

func TestServer_StorePersistsBattle(t *testing.T) {
	f := newFixture(t, true)
	input := battleInput(11)
	started := f.start(t, input)

	f.clock.Advance(10 * time.Second)
	first := f.poll(t, started.ID, 0)
	require.NotEmpty(t, first.Segments)
	f.clock.Advance(time.Minute)
	second := f.poll(t, started.ID, first.Cursor)
	require.True(t, second.Status.Completed)
	res := f.stop(t, started.ID)

	assert.Equal(t, input, f.store.input(started.ID))
	assert.Equal(t, syncRun(t, input).TotalDamage, f.store.result(started.ID).TotalDamage)
	assert.Equal(t, res.TotalDamage, f.store.result(started.ID).TotalDamage)

	out, err := f.client.History(context.Background(), encode(t, battleserver.IDRequest{ID: started.ID, Cursor: 2}))
	require.NoError(t, err)
	hist := decode[battleserver.HistoryResponse](t, out)
	all := append(first.Segments, second.Segments...)
	assert.Equal(t, all[2:], hist.Segments)
	assert.Equal(t, len(all), hist.Cursor)
}

func TestServer_HistoryPastEndIsEmpty(t *testing.T) {
	f := newFixture(t, true)
	out, err := f.client.History(context.Background(), encode(t, battleserver.IDRequest{ID: "nobody", Cursor: 3}))
	require.NoError(t, err)
	hist := decode[battleserver.HistoryResponse](t, out)
	assert.Empty(t, hist.Segments)
	assert.Equal(t, 3, hist.Cursor)
}

func TestServer_SnapshotRestoreContinues(t *testing.T) {
	f := newFixture(t, true)
	input := battleInput(77)
	started := f.start(t, input)

	f.clock.Advance(7300 * time.Millisecond)
	out, err := f.client.Snapshot(context.Background(), encode(t, battleserver.SnapshotRequest{ID: started.ID, Persist: true}))
	require.NoError(t, err)
	snap := decode[battleserver.SnapshotResponse](t, out)
	require.NotEmpty(t, snap.Snapshot)
	f.stop(t, started.ID)

	for name, req := range map[string]battleserver.RestoreRequest{
		"inline": {Snapshot: snap.Snapshot},
		"stored": {From: started.ID},
	} {
		name, req := name, req
		t.Run(name, func(t *testing.T) {
			out, err := f.client.Restore(context.Background(), encode(t, req))
			require.NoError(t, err)
			restored := decode[battleserver.StartResponse](t, out)
			assert.NotEqual(t, started.ID, restored.ID)
			assert.False(t, restored.Status.Completed)

			f.clock.Advance(time.Minute)
			res := f.stop(t, restored.ID)
			want := syncRun(t, input)
			assert.Equal(t, want.TotalDamage, res.TotalDamage)
			assert.Equal(t, want.Segments, res.Segments)
		})
	}
}

func TestServer_RestoreArguments(t *testing.T) {
	f := newFixture(t, true)
	cases := map[string]battleserver.RestoreRequest{
		"neither": {},
		"both":    {Snapshot: []byte("{}"), From: "x"},
	}
	for name, req := range cases {
		name, req := name, req
		t.Run(name, func(t *testing.T) {
			_, err := f.client.Restore(context.Background(), encode(t, req))
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}

	_, err := f.client.Restore(context.Background(), encode(t, battleserver.RestoreRequest{Snapshot: []byte(`{"version":99}`)}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestServer_StoreRequiredCalls(t *testing.T) {
	f := newFixture(t, false)
	started := f.start(t, battleInput(3))

	_, err := f.client.Snapshot(context.Background(), encode(t, battleserver.SnapshotRequest{ID: started.ID, Persist: true}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	_, err = f.client.Restore(context.Background(), encode(t, battleserver.RestoreRequest{From: started.ID}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	_, err = f.client.History(context.Background(), encode(t, battleserver.IDRequest{ID: started.ID}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	out, err := f.client.Snapshot(context.Background(), encode(t, battleserver.SnapshotRequest{ID: started.ID}))
	require.NoError(t, err)
	assert.NotEmpty(t, decode[battleserver.SnapshotResponse](t, out).Snapshot)
}

func TestServer_ErrorCodes(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.client.Poll(ctx, encode(t, battleserver.IDRequest{ID: "missing"}))
	assert.Equal(t, codes.NotFound, status.Code(err))
	_, err = f.client.Stop(ctx, encode(t, battleserver.IDRequest{ID: "missing"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	bad := battleInput(1)
	bad.EnemyID = "dragon"
	_, err = f.client.Start(ctx, encode(t, battleserver.StartRequest{Input: battleserver.NewInputMessage(bad)}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	unknownField, err := structpb.NewStruct(map[string]any{"id": "x", "colour": "red"})
	require.NoError(t, err)
	_, err = f.client.Poll(ctx, unknownField)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	msg := battleserver.NewInputMessage(battleInput(1))
	msg.Limit.Duration = "forever"
	_, err = f.client.Start(ctx, encode(t, battleserver.StartRequest{Input: msg}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_SettleMatchesSettler(t *testing.T) {
	f := newFixture(t, false)
	settler, err := offline.NewSettler(content.Default(), combat.DefaultConfig(), offline.DefaultOptions(), nil)
	require.NoError(t, err)

	for _, expected := range []bool{false, true} {
		expected := expected
		input := battleInput(42)
		want, err := settler.Settle(context.Background(), offline.Request{Input: input, Elapsed: 10 * time.Minute, Expected: expected})
		require.NoError(t, err)

		req := battleserver.SettleRequest{Input: battleserver.NewInputMessage(input), Elapsed: "10m", Expected: &expected}
		out, err := f.client.Settle(context.Background(), encode(t, req))
		require.NoError(t, err)
		got := decode[offline.Settlement](t, out)
		assert.Equal(t, want.Encounters, got.Encounters)
		assert.Equal(t, want.Kills, got.Kills)
		assert.Equal(t, want.Simulated, got.Simulated)
		assert.Equal(t, want.Currency, got.Currency)
		assert.InDelta(t, want.ExpectedCurrency, got.ExpectedCurrency, 1e-9)
	}
}

func TestServer_SettleRejectsBadElapsed(t *testing.T) {
	f := newFixture(t, false)
	for _, elapsed := range []string{"", "soon", "-5m"} {
		req := battleserver.SettleRequest{Input: battleserver.NewInputMessage(battleInput(1)), Elapsed: elapsed}
		_, err := f.client.Settle(context.Background(), encode(t, req))
		assert.Equal(t, codes.InvalidArgument, status.Code(err), "elapsed %q", elapsed)
	}
}

func TestServer_WatchStreamsSegmentsThenStatus(t *testing.T) {
	f := newFixture(t, false)
	input := battleInput(5)
	started := f.start(t, input)
	f.clock.Advance(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stream, err := f.client.Watch(ctx, encode(t, battleserver.WatchRequest{ID: started.ID}))
	require.NoError(t, err)

	var segs []combat.Segment
	var final *combat.Status
	for {
		out, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		msg := decode[battleserver.WatchMessage](t, out)
		switch {
		case msg.Segment != nil:
			segs = append(segs, *msg.Segment)
		case msg.Status != nil:
			final = msg.Status
		}
	}
	require.NotNil(t, final)
	assert.True(t, final.Completed)
	assert.Equal(t, syncRun(t, input).Segments, segs)
}

func TestServer_WatchEndsWhenSessionStops(t *testing.T) {
	f := newFixture(t, false)
	started := f.start(t, battleInput(5))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stream, err := f.client.Watch(ctx, encode(t, battleserver.WatchRequest{ID: started.ID, Interval: "1ms"}))
	require.NoError(t, err)
	f.stop(t, started.ID)

	_, err = stream.Recv()
	if err != io.EOF {
		assert.Equal(t, codes.NotFound, status.Code(err))
	}
}

func TestServer_WatchRejectsBadInterval(t *testing.T) {
	f := newFixture(t, false)
	started := f.start(t, battleInput(5))
	stream, err := f.client.Watch(context.Background(), encode(t, battleserver.WatchRequest{ID: started.ID, Interval: "0s"}))
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
