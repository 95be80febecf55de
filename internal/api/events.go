package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/dsicmd/internal/api/models"
	"github.com/smazurov/dsicmd/internal/events"
)

// registerSSERoutes registers the panel event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Panel Event Stream",
		Description: "Real-time write-back, clock gating, power and hardware timeout events, optionally for one ?panel",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"blt-state-changed":   events.BltStateChangedEvent{},
		"clock-state-changed": events.ClockStateChangedEvent{},
		"panel-power-changed": events.PanelPowerChangedEvent{},
		"hardware-timeout":    events.HardwareTimeoutEvent{},
	}, func(ctx context.Context, input *models.EventsStreamInput, send sse.Sender) {
		ch := make(chan any, 32)
		panel := input.Panel
		for _, unsub := range []func(){
			events.SubscribePanel[events.BltStateChangedEvent](s.eventBus, panel, ch),
			events.SubscribePanel[events.ClockStateChangedEvent](s.eventBus, panel, ch),
			events.SubscribePanel[events.PanelPowerChangedEvent](s.eventBus, panel, ch),
			events.SubscribePanel[events.HardwareTimeoutEvent](s.eventBus, panel, ch),
		} {
			defer unsub()
		}

		forward(ctx, ch, send, nil)
	})
}

// forward sends every value from ch that keep accepts until the client goes
// away or a write fails. A nil keep accepts everything.
func forward(ctx context.Context, ch <-chan any, send sse.Sender, keep func(any) bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-ch:
			if keep != nil && !keep(v) {
				continue
			}
			if err := send.Data(v); err != nil {
				return
			}
		}
	}
}
