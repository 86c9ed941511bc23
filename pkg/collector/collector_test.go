package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netflexity/mq-exporter/pkg/logging"
	"github.com/netflexity/mq-exporter/pkg/mqtypes"
)

type staticEnvs struct{ envs []mqtypes.EnvironmentRef }

func (s staticEnvs) Environments() []mqtypes.EnvironmentRef { return s.envs }

type mockAPI struct {
	mu             sync.Mutex
	destinations   map[string][]mqtypes.Destination
	listErrFor     map[string]error
	queueStats     map[string]mqtypes.QueueStats
	queueStatsErr  map[string]error
	exchangeStats  map[string]mqtypes.ExchangeStats
	queueStatsCalls int32
}

func (m *mockAPI) ListDestinations(ctx context.Context, env mqtypes.EnvironmentRef, region string) ([]mqtypes.Destination, error) {
	key := env.ID + "/" + region
	if err, ok := m.listErrFor[key]; ok {
		return nil, err
	}
	return m.destinations[key], nil
}

func (m *mockAPI) GetQueueStats(ctx context.Context, env mqtypes.EnvironmentRef, region, queueID string, periodSeconds int) (mqtypes.QueueStats, error) {
	atomic.AddInt32(&m.queueStatsCalls, 1)
	if err, ok := m.queueStatsErr[queueID]; ok {
		return mqtypes.QueueStats{}, err
	}
	return m.queueStats[queueID], nil
}

func (m *mockAPI) GetExchangeStats(ctx context.Context, env mqtypes.EnvironmentRef, region, exchangeID string, periodSeconds int) (mqtypes.ExchangeStats, error) {
	return m.exchangeStats[exchangeID], nil
}

type concurrencyTrackingAPI struct {
	destinations []mqtypes.Destination
	sleep        time.Duration

	mu        sync.Mutex
	inFlight  int32
	maxSeen   int32
}

func (a *concurrencyTrackingAPI) ListDestinations(ctx context.Context, env mqtypes.EnvironmentRef, region string) ([]mqtypes.Destination, error) {
	return a.destinations, nil
}

func (a *concurrencyTrackingAPI) GetQueueStats(ctx context.Context, env mqtypes.EnvironmentRef, region, queueID string, periodSeconds int) (mqtypes.QueueStats, error) {
	n := atomic.AddInt32(&a.inFlight, 1)
	a.mu.Lock()
	if n > a.maxSeen {
		a.maxSeen = n
	}
	a.mu.Unlock()
	time.Sleep(a.sleep)
	atomic.AddInt32(&a.inFlight, -1)
	return mqtypes.QueueStats{}, nil
}

func (a *concurrencyTrackingAPI) GetExchangeStats(ctx context.Context, env mqtypes.EnvironmentRef, region, exchangeID string, periodSeconds int) (mqtypes.ExchangeStats, error) {
	return mqtypes.ExchangeStats{}, nil
}

func TestCollector_Collect_BoundsWorkerConcurrency(t *testing.T) {
	destinations := make([]mqtypes.Destination, 0, 20)
	for i := 0; i < 20; i++ {
		destinations = append(destinations, mqtypes.Destination{ID: string(rune('a' + i)), Name: string(rune('a' + i)), Kind: mqtypes.KindQueue})
	}
	api := &concurrencyTrackingAPI{destinations: destinations, sleep: 5 * time.Millisecond}
	env := mqtypes.EnvironmentRef{ID: "e1"}
	c := New(api, staticEnvs{[]mqtypes.EnvironmentRef{env}}, []string{"us-east-1"}, 60, 600, 3, testLogger())

	c.Collect(context.Background())

	assert.LessOrEqual(t, int(api.maxSeen), 3)
}

func TestCollector_New_NonPositiveConcurrency_DefaultsToOne(t *testing.T) {
	api := &concurrencyTrackingAPI{destinations: []mqtypes.Destination{{ID: "q1", Name: "q1", Kind: mqtypes.KindQueue}}}
	env := mqtypes.EnvironmentRef{ID: "e1"}
	c := New(api, staticEnvs{[]mqtypes.EnvironmentRef{env}}, []string{"us-east-1"}, 60, 600, 0, testLogger())

	c.Collect(context.Background())

	queues, _ := c.Snapshot()
	require.Len(t, queues, 1)
}

type countingRecorder struct {
	mu     sync.Mutex
	causes map[string]int
}

func newCountingRecorder() *countingRecorder { return &countingRecorder{causes: make(map[string]int)} }
func (r *countingRecorder) RecordScrapeDuration(time.Duration)  {}
func (r *countingRecorder) RecordLastScrapeTimestamp(time.Time) {}
func (r *countingRecorder) IncScrapeError(cause string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.causes[cause]++
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Service: "mq-exporter-test", Quiet: true})
}

func TestCollector_Collect_PopulatesQueueSnapshot(t *testing.T) {
	env := mqtypes.EnvironmentRef{ID: "e1", Tenant: mqtypes.TenantRef{ID: "t1"}}
	api := &mockAPI{
		destinations: map[string][]mqtypes.Destination{
			"e1/us-east-1": {{ID: "q1", Name: "orders", Kind: mqtypes.KindQueue}},
		},
		queueStats: map[string]mqtypes.QueueStats{"q1": {MessagesInQueue: 5}},
	}
	c := New(api, staticEnvs{[]mqtypes.EnvironmentRef{env}}, []string{"us-east-1"}, 60, 600, 8, testLogger())

	c.Collect(context.Background())
	queues, exchanges := c.Snapshot()
	require.Len(t, queues, 1)
	assert.Empty(t, exchanges)
	assert.EqualValues(t, 5, queues[0].Stats.MessagesInQueue)
	assert.Equal(t, "orders", queues[0].Destination.Name)
}

func TestCollector_Collect_IsolatesPerDestinationFailure(t *testing.T) {
	env := mqtypes.EnvironmentRef{ID: "e1"}
	api := &mockAPI{
		destinations: map[string][]mqtypes.Destination{
			"e1/us-east-1": {
				{ID: "q1", Name: "good", Kind: mqtypes.KindQueue},
				{ID: "q2", Name: "bad", Kind: mqtypes.KindQueue},
			},
		},
		queueStats:    map[string]mqtypes.QueueStats{"q1": {MessagesInQueue: 3}},
		queueStatsErr: map[string]error{"q2": errors.New("upstream 500")},
	}
	rec := newCountingRecorder()
	c := New(api, staticEnvs{[]mqtypes.EnvironmentRef{env}}, []string{"us-east-1"}, 60, 600, 8, testLogger(), WithRecorder(rec))

	c.Collect(context.Background())
	queues, _ := c.Snapshot()
	require.Len(t, queues, 1, "the failing destination must not appear, the healthy one must")
	assert.Equal(t, "good", queues[0].Destination.Name)
	assert.Equal(t, 1, rec.causes["queue_stats_failed"])
}

func TestCollector_Collect_IsolatesListFailurePerEnvironment(t *testing.T) {
	envs := []mqtypes.EnvironmentRef{{ID: "e1"}, {ID: "e2"}}
	api := &mockAPI{
		destinations: map[string][]mqtypes.Destination{
			"e2/us-east-1": {{ID: "q1", Name: "ok", Kind: mqtypes.KindQueue}},
		},
		listErrFor: map[string]error{"e1/us-east-1": errors.New("tenant down")},
		queueStats: map[string]mqtypes.QueueStats{"q1": {MessagesInQueue: 1}},
	}
	rec := newCountingRecorder()
	c := New(api, staticEnvs{envs}, []string{"us-east-1"}, 60, 600, 8, testLogger(), WithRecorder(rec))

	c.Collect(context.Background())
	queues, _ := c.Snapshot()
	require.Len(t, queues, 1)
	assert.Equal(t, 1, rec.causes["environment_failed"])
}

func TestCollector_Collect_MarksDLQByAuthoritativePointer(t *testing.T) {
	env := mqtypes.EnvironmentRef{ID: "e1"}
	api := &mockAPI{
		destinations: map[string][]mqtypes.Destination{
			"e1/us-east-1": {
				{ID: "q1", Name: "orders", Kind: mqtypes.KindQueue, DefaultDeadLetterQueueID: "q2"},
				{ID: "q2", Name: "orders-retry", Kind: mqtypes.KindQueue},
			},
		},
		queueStats: map[string]mqtypes.QueueStats{"q1": {}, "q2": {}},
	}
	c := New(api, staticEnvs{[]mqtypes.EnvironmentRef{env}}, []string{"us-east-1"}, 60, 600, 8, testLogger())

	c.Collect(context.Background())
	queues, _ := c.Snapshot()
	require.Len(t, queues, 2)
	var retryEntry QueueEntry
	for _, q := range queues {
		if q.Destination.ID == "q2" {
			retryEntry = q
		}
	}
	assert.True(t, retryEntry.IsDLQ, "q2 is pointed to by q1's defaultDeadLetterQueueId")
}

func TestCollector_EvictStale_DropsEntriesAfterOutage(t *testing.T) {
	env := mqtypes.EnvironmentRef{ID: "e1"}
	api := &mockAPI{
		destinations: map[string][]mqtypes.Destination{
			"e1/us-east-1": {{ID: "q1", Name: "orders", Kind: mqtypes.KindQueue}},
		},
		queueStats: map[string]mqtypes.QueueStats{"q1": {MessagesInQueue: 2}},
	}
	c := New(api, staticEnvs{[]mqtypes.EnvironmentRef{env}}, []string{"us-east-1"}, 1, 600, 8, testLogger())
	c.Collect(context.Background())
	queues, _ := c.Snapshot()
	require.Len(t, queues, 1)

	// simulate the destination disappearing upstream and enough cycles
	// elapsing for staleAfter (3 intervals) to pass.
	api.destinations["e1/us-east-1"] = nil
	time.Sleep(time.Millisecond)
	c.staleAfter = time.Nanosecond // force eviction of anything scraped before this cycle
	c.Collect(context.Background())
	queues, _ = c.Snapshot()
	assert.Empty(t, queues)
}
