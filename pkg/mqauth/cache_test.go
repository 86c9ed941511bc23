package mqauth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netflexity/mq-exporter/pkg/mqtypes"
)

type mockAuthenticator struct {
	calls  atomic.Int32
	delay  time.Duration
	cred   mqtypes.Credential
	err    error
}

func (m *mockAuthenticator) Authenticate(ctx context.Context) (mqtypes.Credential, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.cred, m.err
}

func validCred(now time.Time) mqtypes.Credential {
	return mqtypes.Credential{
		AccessToken: "tok-1",
		TokenType:   "Bearer",
		IssuedAt:    now,
		TTLSeconds:  3600,
	}
}

func TestCache_Get_RefreshesOnMiss(t *testing.T) {
	now := time.Now()
	auth := &mockAuthenticator{cred: validCred(now)}
	c := New(auth)

	cred, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cred.AccessToken)
	assert.EqualValues(t, 1, auth.calls.Load())
}

func TestCache_Get_ReturnsCachedWhenValid(t *testing.T) {
	now := time.Now()
	auth := &mockAuthenticator{cred: validCred(now)}
	c := New(auth)

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	_, err = c.Get(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, auth.calls.Load())
}

func TestCache_Get_RefreshesWhenExpiringSoon(t *testing.T) {
	// TTL expires within the 5-minute safety margin immediately.
	issuedLongAgo := time.Now().Add(-1 * time.Hour)
	auth := &mockAuthenticator{cred: mqtypes.Credential{
		AccessToken: "stale",
		IssuedAt:    issuedLongAgo,
		TTLSeconds:  60,
	}}
	c := New(auth)

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, auth.calls.Load())

	// Second call should detect invalidity again (auth always returns
	// the same stale-by-construction credential, so it must be called again).
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, auth.calls.Load())
}

func TestCache_Get_SingleFlightsConcurrentMisses(t *testing.T) {
	auth := &mockAuthenticator{cred: validCred(time.Now()), delay: 50 * time.Millisecond}
	c := New(auth)

	var wg sync.WaitGroup
	const n = 20
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, auth.calls.Load(), "concurrent misses must coalesce into one authenticate call")
}

func TestCache_Get_PropagatesAuthError(t *testing.T) {
	auth := &mockAuthenticator{err: errors.New("boom")}
	c := New(auth)

	_, err := c.Get(context.Background())
	assert.Error(t, err)
}

func TestCache_Invalidate_ForcesRefresh(t *testing.T) {
	auth := &mockAuthenticator{cred: validCred(time.Now())}
	c := New(auth)

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	c.Invalidate()
	_, err = c.Get(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, auth.calls.Load())
}
