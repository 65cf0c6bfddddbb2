package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJob = "ndbc_transfer"

// Push sends the current metric values to a Prometheus Pushgateway.
// Used after one-shot runs.
func (m *Metrics) Push(ctx context.Context, gatewayURL, instance string) error {
	p := push.New(gatewayURL, pushJob)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	for _, c := range m.Collectors() {
		p = p.Collector(c)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
