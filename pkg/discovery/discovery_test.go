package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netflexity/mq-exporter/pkg/config"
	"github.com/netflexity/mq-exporter/pkg/logging"
	"github.com/netflexity/mq-exporter/pkg/mqtypes"
)

type mockAPI struct {
	root         mqtypes.TenantRef
	members      []mqtypes.TenantRef
	selfErr      error
	envsByTenant map[string][]mqtypes.EnvironmentRef
	envErrFor    map[string]error
	listEnvCalls int
}

func (m *mockAPI) ListSelf(ctx context.Context) (mqtypes.TenantRef, []mqtypes.TenantRef, error) {
	return m.root, m.members, m.selfErr
}

func (m *mockAPI) ListEnvironments(ctx context.Context, tenant mqtypes.TenantRef) ([]mqtypes.EnvironmentRef, error) {
	m.listEnvCalls++
	if err, ok := m.envErrFor[tenant.ID]; ok {
		return nil, err
	}
	return m.envsByTenant[tenant.ID], nil
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Service: "mq-exporter-test", Quiet: true})
}

func TestEngine_Refresh_AggregatesAcrossTenants(t *testing.T) {
	api := &mockAPI{
		root:    mqtypes.TenantRef{ID: "t1", Name: "Root"},
		members: []mqtypes.TenantRef{{ID: "t2", Name: "Child"}},
		envsByTenant: map[string][]mqtypes.EnvironmentRef{
			"t1": {{ID: "e1", Name: "Production"}},
			"t2": {{ID: "e2", Name: "Staging"}},
		},
	}
	e := New(api, config.Discovery{Enabled: true, RefreshInterval: time.Minute}, "", nil, testLogger())

	snap, err := e.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Complete)
	assert.Equal(t, "t1", snap.RootTenant.ID)
	require.Len(t, snap.Tenants, 2)
	require.Len(t, snap.Environments, 2)
}

func TestEngine_Refresh_SkipsFailingTenantButSucceeds(t *testing.T) {
	api := &mockAPI{
		root:    mqtypes.TenantRef{ID: "t1"},
		members: []mqtypes.TenantRef{{ID: "t2"}},
		envsByTenant: map[string][]mqtypes.EnvironmentRef{
			"t1": {{ID: "e1"}},
		},
		envErrFor: map[string]error{"t2": errors.New("upstream down")},
	}
	e := New(api, config.Discovery{Enabled: true}, "", nil, testLogger())

	snap, err := e.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Environments, 1)
	assert.Equal(t, "e1", snap.Environments[0].ID)
}

func TestEngine_Refresh_PropagatesListSelfFailure(t *testing.T) {
	api := &mockAPI{selfErr: errors.New("auth failed")}
	e := New(api, config.Discovery{Enabled: true}, "", nil, testLogger())

	_, err := e.Refresh(context.Background())
	assert.Error(t, err)
}

func TestEngine_Refresh_NeverOverwritesConfiguredRootTenant(t *testing.T) {
	api := &mockAPI{
		root: mqtypes.TenantRef{ID: "upstream-reported", Name: "Upstream"},
	}
	e := New(api, config.Discovery{Enabled: true}, "configured-org", nil, testLogger())

	snap, err := e.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "configured-org", snap.RootTenant.ID)
}

func TestEngine_AutoDiscoveryDisabled_UsesManualEnvironments(t *testing.T) {
	api := &mockAPI{}
	manual := []config.Environment{{ID: "e1", Name: "Production"}, {ID: "e2", Name: "Staging"}}
	e := New(api, config.Discovery{Enabled: false}, "org-1", manual, testLogger())

	snap := e.Current()
	assert.True(t, snap.Complete)
	assert.Equal(t, "org-1", snap.RootTenant.ID)
	require.Len(t, snap.Environments, 2)
	assert.Equal(t, 0, api.listEnvCalls, "disabled auto-discovery must never call upstream")

	refreshed, err := e.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.Environments, refreshed.Environments)
}

func TestEngine_Current_ZeroBeforeFirstRefresh(t *testing.T) {
	e := New(&mockAPI{}, config.Discovery{Enabled: true}, "", nil, testLogger())
	assert.False(t, e.Current().Complete)
}

func TestEngine_Refresh_DedupesTenantsReportedTwice(t *testing.T) {
	api := &mockAPI{
		root:    mqtypes.TenantRef{ID: "t1"},
		members: []mqtypes.TenantRef{{ID: "t1"}, {ID: "t2"}},
	}
	e := New(api, config.Discovery{Enabled: true}, "", nil, testLogger())

	snap, err := e.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Tenants, 2)
}
