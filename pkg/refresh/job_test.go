package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/Sternrassler/tft-meta-stats/pkg/aggregate"
	"github.com/Sternrassler/tft-meta-stats/pkg/ingest"
	"github.com/Sternrassler/tft-meta-stats/pkg/match"
	"github.com/Sternrassler/tft-meta-stats/pkg/riot"
	"github.com/Sternrassler/tft-meta-stats/pkg/store"
)

type fakeIngester struct {
	mu      sync.Mutex
	matches map[string][]match.Match
	calls   []string
}

func (f *fakeIngester) ProcessPartition(_ context.Context, key string, limit int) ingest.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)

	ms := f.matches[key]
	if len(ms) > limit {
		ms = ms[:limit]
	}
	status := riot.StatusActive
	if len(ms) == 0 {
		status = riot.StatusDegraded
	}
	return ingest.Result{Partition: key, Matches: ms, Status: status}
}

type fakeLocker struct {
	lockErr  error
	locked   int
	unlocked int
}

func (l *fakeLocker) LockContext(context.Context) error {
	if l.lockErr != nil {
		return l.lockErr
	}
	l.locked++
	return nil
}

func (l *fakeLocker) UnlockContext(context.Context) (bool, error) {
	l.unlocked++
	return true, nil
}

type spyStore struct {
	*store.Memory
	cleanups []time.Duration
	saveErr  error
}

func (s *spyStore) Cleanup(ctx context.Context, keepFor time.Duration) error {
	s.cleanups = append(s.cleanups, keepFor)
	return s.Memory.Cleanup(ctx, keepFor)
}

func (s *spyStore) SaveProcessedStats(ctx context.Context, kind, partition string, payload []byte) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Memory.SaveProcessedStats(ctx, kind, partition, payload)
}

// makeMatches builds n matches where the winner and runner-up share one
// composition.
func makeMatches(partition string, n int) []match.Match {
	traits := []match.Trait{
		{Name: "Set9_Sorcerer", Tier: 2, NumUnits: 4},
		{Name: "Set9_Ionia", Tier: 2, NumUnits: 3},
	}
	out := make([]match.Match, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, match.Match{
			ID:        fmt.Sprintf("%s_%d", partition, i),
			Partition: partition,
			Participants: []match.Participant{
				{Placement: 1, Traits: traits, Units: []match.Unit{{CharacterID: "TFT9_Ahri", Items: []string{"JG"}}}},
				{Placement: 2, Traits: traits, Units: []match.Unit{{CharacterID: "TFT9_Ahri"}}},
			},
		})
	}
	return out
}

func newTestJob(ing Ingester, st store.Store, locker Locker, cfg Config) *Job {
	return NewJob(ing, aggregate.NewEngine(nil), st, locker, cfg)
}

func TestRun_SkipsPartitionsBelowThreshold(t *testing.T) {
	ing := &fakeIngester{matches: map[string][]match.Match{
		"NA":  makeMatches("NA", 6),
		"EUW": makeMatches("EUW", 2),
	}}
	st := &spyStore{Memory: store.NewMemory()}
	job := newTestJob(ing, st, nil, Config{Partitions: []string{"NA", "EUW"}})

	rep, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if rep.RunID == "" {
		t.Error("missing run id")
	}
	if rep.TotalMatches != 8 {
		t.Errorf("TotalMatches = %d, want 8", rep.TotalMatches)
	}
	if len(rep.Partitions) != 2 || !rep.Partitions[0].StatsSaved || rep.Partitions[1].StatsSaved {
		t.Errorf("Partitions = %+v", rep.Partitions)
	}
	if rep.GlobalStats {
		t.Error("global stats saved below threshold")
	}

	ctx := context.Background()
	if _, err := st.ProcessedStats(ctx, store.KindCompositions, "NA"); err != nil {
		t.Errorf("NA compositions: %v", err)
	}
	if _, err := st.ProcessedStats(ctx, store.KindCompositions, "EUW"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("EUW compositions err = %v, want ErrNotFound", err)
	}
	if _, err := st.ProcessedStats(ctx, store.KindCompositions, store.AllPartitions); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("all compositions err = %v, want ErrNotFound", err)
	}
	if len(st.cleanups) != 1 || st.cleanups[0] != 7*24*time.Hour {
		t.Errorf("cleanups = %v", st.cleanups)
	}
}

func TestRun_GlobalStats(t *testing.T) {
	ing := &fakeIngester{matches: map[string][]match.Match{
		"NA":  makeMatches("NA", 12),
		"EUW": makeMatches("EUW", 10),
	}}
	st := &spyStore{Memory: store.NewMemory()}
	job := newTestJob(ing, st, nil, Config{Partitions: []string{"NA", "EUW"}})

	rep, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !rep.GlobalStats || rep.TotalMatches != 22 {
		t.Errorf("report = %+v", rep)
	}

	data, err := st.ProcessedStats(context.Background(), store.KindCompositions, store.AllPartitions)
	if err != nil {
		t.Fatalf("all compositions: %v", err)
	}
	var res aggregate.Result
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Partition != store.AllPartitions || res.Summary.TotalGames != 22 {
		t.Errorf("global result = %+v", res.Summary)
	}
	if len(res.Compositions) != 1 || res.Compositions[0].Regions["NA"] != 24 {
		t.Errorf("compositions = %+v", res.Compositions)
	}
}

func TestRun_EntityPayloads(t *testing.T) {
	ing := &fakeIngester{matches: map[string][]match.Match{"NA": makeMatches("NA", 5)}}
	st := &spyStore{Memory: store.NewMemory()}
	job := newTestJob(ing, st, nil, Config{Partitions: []string{"NA"}})

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, kind := range store.EntityKinds {
		data, err := st.ProcessedStats(context.Background(), kind, "NA")
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		var payload aggregate.EntitiesPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if payload.Region != "NA" || len(payload.Entities) == 0 {
			t.Errorf("%s payload = %+v", kind, payload)
		}
	}
}

func TestRun_MatchLimit(t *testing.T) {
	ing := &fakeIngester{matches: map[string][]match.Match{"NA": makeMatches("NA", 40)}}
	st := &spyStore{Memory: store.NewMemory()}
	job := newTestJob(ing, st, nil, Config{Partitions: []string{"NA"}, MatchesPerPartition: 25})

	rep, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.TotalMatches != 25 {
		t.Errorf("TotalMatches = %d, want 25", rep.TotalMatches)
	}
}

func TestRun_DefaultPartitions(t *testing.T) {
	ing := &fakeIngester{}
	job := newTestJob(ing, &spyStore{Memory: store.NewMemory()}, nil, Config{})

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if fmt.Sprint(ing.calls) != fmt.Sprint(riot.PartitionKeys()) {
		t.Errorf("calls = %v, want %v", ing.calls, riot.PartitionKeys())
	}
}

func TestRun_Lock(t *testing.T) {
	ing := &fakeIngester{}
	locker := &fakeLocker{}
	job := newTestJob(ing, &spyStore{Memory: store.NewMemory()}, locker, Config{Partitions: []string{"NA"}})

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if locker.locked != 1 || locker.unlocked != 1 {
		t.Errorf("locked %d, unlocked %d", locker.locked, locker.unlocked)
	}
}

func TestRun_LockTaken(t *testing.T) {
	ing := &fakeIngester{}
	locker := &fakeLocker{lockErr: errors.New("lock already taken")}
	job := newTestJob(ing, &spyStore{Memory: store.NewMemory()}, locker, Config{Partitions: []string{"NA"}})

	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
	if len(ing.calls) != 0 {
		t.Errorf("ingestion ran without the lock: %v", ing.calls)
	}
	if locker.unlocked != 0 {
		t.Error("unlocked a lock that was never held")
	}
}

func TestRun_StoreFailure(t *testing.T) {
	ing := &fakeIngester{matches: map[string][]match.Match{"NA": makeMatches("NA", 5)}}
	st := &spyStore{Memory: store.NewMemory(), saveErr: errors.New("disk full")}
	job := newTestJob(ing, st, nil, Config{Partitions: []string{"NA"}})

	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected store error")
	}
	if len(st.cleanups) != 0 {
		t.Error("cleanup ran after a failed save")
	}
}

func TestReaggregate(t *testing.T) {
	ctx := context.Background()
	st := &spyStore{Memory: store.NewMemory()}
	for _, m := range append(makeMatches("NA", 3), makeMatches("EUW", 2)...) {
		data, err := store.MarshalMatch(m)
		if err != nil {
			t.Fatal(err)
		}
		if err := st.SaveMatch(ctx, m.ID, m.Partition, data); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.SaveMatch(ctx, "broken", "NA", []byte("{")); err != nil {
		t.Fatal(err)
	}

	job := newTestJob(&fakeIngester{}, st, nil, Config{})

	res, err := job.Reaggregate(ctx, "na")
	if err != nil {
		t.Fatalf("Reaggregate failed: %v", err)
	}
	if res.Partition != "NA" || res.Summary.TotalGames != 3 {
		t.Errorf("NA result = %+v", res.Summary)
	}
	if _, err := st.ProcessedStats(ctx, store.KindUnits, "NA"); err != nil {
		t.Errorf("NA units not saved: %v", err)
	}

	res, err = job.Reaggregate(ctx, "")
	if err != nil {
		t.Fatalf("Reaggregate(all) failed: %v", err)
	}
	if res.Partition != store.AllPartitions || res.Summary.TotalGames != 5 {
		t.Errorf("all result = %+v", res.Summary)
	}
}

type countingRunner struct {
	runs atomic.Int32
}

func (r *countingRunner) Run(context.Context) (Report, error) {
	n := r.runs.Add(1)
	if n%2 == 0 {
		return Report{}, errors.New("upstream down")
	}
	return Report{TotalMatches: 1}, nil
}

func TestScheduler(t *testing.T) {
	r := &countingRunner{}
	s := NewScheduler(r, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for r.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d runs", r.runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
