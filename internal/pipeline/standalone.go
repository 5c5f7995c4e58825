package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/opstrack/recorder/internal/transport"
	"github.com/opstrack/recorder/pkg/core"
)

// SendMissionStart posts the mission-start record on its own, bypassing the
// queues and the breaker. done may be nil.
func (p *Pipeline) SendMissionStart(ms core.MissionStart, done func(transport.Result)) error {
	body, err := json.Marshal(ms)
	if err != nil {
		return fmt.Errorf("failed to marshal mission start: %w", err)
	}
	p.logger.Info("Sending mission start", "missionId", ms.MissionID, "name", ms.Name, "map", ms.MapName)
	p.sendStandalone(PathMissions, body, done)
	return nil
}

// SendMissionEnd posts an empty body to the mission's end route.
func (p *Pipeline) SendMissionEnd(missionID string, done func(transport.Result)) {
	p.logger.Info("Sending mission end", "missionId", missionID)
	p.sendStandalone(MissionEndPath(missionID), nil, done)
}

// sendStandalone delivers a request outside the batch flow. A failure that
// indicates an unhealthy collector still opens the breaker.
func (p *Pipeline) sendStandalone(path string, body []byte, done func(transport.Result)) {
	p.transport.Post(path, body, func(res transport.Result) {
		p.sched.Post(func() {
			switch {
			case res.OK():
				p.logger.Debug("Standalone request delivered", "path", path, "status", res.StatusCode)
				p.requests.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", "ok")))
			case opensBreaker(res.StatusCode, res.Timeout):
				p.mu.Lock()
				p.stats.Failures++
				dropped := p.openBreakerLocked(p.sched.Now())
				p.mu.Unlock()
				p.logger.Warn("Standalone request failed, API backoff triggered",
					"path", path, "result", res.String(), "dropped", dropped)
				p.requests.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", "unavailable")))
			default:
				p.mu.Lock()
				p.stats.Failures++
				p.mu.Unlock()
				p.logger.Error("Collector rejected standalone request", "path", path, "status", res.StatusCode)
				p.requests.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", "rejected")))
			}
			if done != nil {
				done(res)
			}
		})
	})
}
