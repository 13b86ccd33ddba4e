package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mackerelio/mackerel-client-go"

	"github.com/masahide/huginn-discord/pkg/huginn"
)

const (
	graphName       = "custom.valheim.players"
	metricOnline    = graphName + ".online"
	metricMaxOnline = graphName + ".max"
)

type MackerelEnv struct {
	MackerelAPIKey string `envconfig:"MACKEREL_API_KEY"`
	MackerelHostID string `envconfig:"MACKEREL_HOST_ID"`
}

func (e MackerelEnv) Enabled() bool {
	return e.MackerelAPIKey != "" && e.MackerelHostID != ""
}

// Mackerel posts player counts as host metrics. Graph definitions are
// created before the first post and retried on every Record until they succeed.
type Mackerel struct {
	hostID string
	mkr    *mackerel.Client

	mu       sync.Mutex
	defsDone bool
}

func NewMackerel(e MackerelEnv) *Mackerel {
	return &Mackerel{hostID: e.MackerelHostID, mkr: mackerel.NewClient(e.MackerelAPIKey)}
}

func newMackerelWithClient(hostID string, c *mackerel.Client) *Mackerel {
	return &Mackerel{hostID: hostID, mkr: c}
}

func (m *Mackerel) Record(_ context.Context, res huginn.Result, now time.Time) error {
	st, ok := res.Status()
	if !ok {
		return nil
	}
	if err := m.ensureGraphDefs(); err != nil {
		return err
	}
	if err := m.mkr.PostHostMetricValuesByHostID(m.hostID, createMetrics(st, now)); err != nil {
		return fmt.Errorf("post host metrics: %w", err)
	}
	return nil
}

func (m *Mackerel) ensureGraphDefs() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defsDone {
		return nil
	}
	if err := m.mkr.CreateGraphDefs(makeDefs()); err != nil {
		return fmt.Errorf("create graph defs: %w", err)
	}
	m.defsDone = true
	return nil
}

func createMetrics(st huginn.Status, now time.Time) []*mackerel.MetricValue {
	return []*mackerel.MetricValue{
		{Name: metricOnline, Time: now.Unix(), Value: st.Players},
		{Name: metricMaxOnline, Time: now.Unix(), Value: st.MaxPlayers},
	}
}

func makeDefs() []*mackerel.GraphDefsParam {
	return []*mackerel.GraphDefsParam{
		{
			Name:        graphName,
			DisplayName: "Valheim players",
			Unit:        "integer",
			Metrics: []*mackerel.GraphDefsMetric{
				{Name: metricOnline, DisplayName: "online", IsStacked: false},
				{Name: metricMaxOnline, DisplayName: "max", IsStacked: false},
			},
		},
	}
}
