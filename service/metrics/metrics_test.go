package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fsmflow/model/step"
	"github.com/viant/fsmflow/model/types"
	"github.com/viant/fsmflow/service/container"
	"github.com/viant/fsmflow/service/loop"
)

func TestMetrics(t *testing.T) {
	c := container.New("gates")
	m := New("fsmflow", c)
	require.True(t, c.RegisterStateChangeListener(m))
	registry := prometheus.NewPedanticRegistry()
	require.NoError(t, registry.Register(m))

	var locked, unlocked *step.Step
	locked = step.New("LOCKED").
		Handle("coin", func(args ...any) (types.EventHandler, error) { return unlocked, nil }).
		Handle("break", func(args ...any) (types.EventHandler, error) { return nil, nil })
	unlocked = step.New("UNLOCKED").Handle("pass", func(args ...any) (types.EventHandler, error) { return locked, nil })

	r, err := c.Create(struct{ id int }{1}, locked, loop.Inline())
	require.NoError(t, err)
	for _, name := range []string{"coin", "pass", "coin", "pass", "break", "coin"} {
		r.AcceptEvent(name)
	}
	_, err = c.Create(struct{ id int }{2}, locked, loop.Inline())
	require.NoError(t, err)

	expected := `
# HELP fsmflow_flows_alive Number of live flows
# TYPE fsmflow_flows_alive gauge
fsmflow_flows_alive{container="gates"} 1
# HELP fsmflow_flows_bypassed_events_total Total number of events offered to destroyed flows
# TYPE fsmflow_flows_bypassed_events_total counter
fsmflow_flows_bypassed_events_total{container="gates"} 1
# HELP fsmflow_flows_completed_total Total number of flows destroyed
# TYPE fsmflow_flows_completed_total counter
fsmflow_flows_completed_total{container="gates"} 1
# HELP fsmflow_flows_created_total Total number of flows created
# TYPE fsmflow_flows_created_total counter
fsmflow_flows_created_total{container="gates"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"fsmflow_flows_alive", "fsmflow_flows_bypassed_events_total", "fsmflow_flows_completed_total", "fsmflow_flows_created_total"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("struct { id int }", "LOCKED", "UNLOCKED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("struct { id int }", "UNLOCKED", "LOCKED")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.lifetime))
}
