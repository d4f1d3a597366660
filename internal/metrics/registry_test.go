package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metricValue finds family/metric pair by name and returns its counter
// value, failing the test if the family was never registered.
func metricValue(t *testing.T, families []*dto.MetricFamily, name string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		require.NotEmpty(t, fam.GetMetric())
		m := fam.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			return c.GetValue()
		}
		if h := m.GetHistogram(); h != nil {
			return float64(h.GetSampleCount())
		}
		if g := m.GetGauge(); g != nil {
			return g.GetValue()
		}
	}
	t.Fatalf("metric family %s not found", name)
	return 0
}

func TestRegistryLazilyBuildsOnePerSubsystem(t *testing.T) {
	reg := NewRegistry("test", prometheus.NewRegistry())

	inc1 := reg.Incidents()
	inc2 := reg.Incidents()
	assert.Same(t, inc1, inc2)

	pb1 := reg.Playbooks()
	pb2 := reg.Playbooks()
	assert.Same(t, pb1, pb2)
}

func TestRegistryGatherReflectsRecordedIncidentMetrics(t *testing.T) {
	reg := NewRegistry("wp_autohealer", prometheus.NewRegistry())
	im := reg.Incidents()

	im.RecordTransition("FIXED")
	im.RecordTransition("FIXED")
	im.RecordEscalation()

	families, err := reg.Prometheus().Gather()
	require.NoError(t, err)

	assert.Equal(t, float64(1), metricValue(t, families, "wp_autohealer_incident_escalations_total"))
}

func TestDefaultRegistryIsASingleton(t *testing.T) {
	assert.Same(t, DefaultRegistry(), DefaultRegistry())
}
