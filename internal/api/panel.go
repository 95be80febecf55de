package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/dsicmd/internal/api/models"
	"github.com/smazurov/dsicmd/internal/dsicmd"
)

// registerPanelRoutes registers panel status, write-back, 3D, power and pan
// control.
func (s *Server) registerPanelRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-panel",
		Method:      http.MethodGet,
		Path:        "/api/panel",
		Summary:     "Panel Status",
		Description: "Snapshot of the panel session: power, clock, busy flags, write-back counters",
		Tags:        []string{"panel"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.PanelStatusResponse, error) {
		return &models.PanelStatusResponse{Body: s.panelStatus()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-panel-blt",
		Method:      http.MethodGet,
		Path:        "/api/panel/blt",
		Summary:     "Write-back Offset",
		Description: "Geometry of the active write-back target",
		Tags:        []string{"panel"},
		Security:    withAuth(),
		Errors:      []int{401, 409},
	}, func(_ context.Context, _ *struct{}) (*models.BltOffsetResponse, error) {
		info, err := s.panel.BltOffset()
		if err != nil {
			return nil, mapPanelError(err)
		}
		return &models.BltOffsetResponse{
			Body: models.BltOffsetData{
				Offset: info.Offset,
				Width:  info.Width,
				Height: info.Height,
				Bpp:    info.Bpp,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-panel-blt",
		Method:      http.MethodPost,
		Path:        "/api/panel/blt",
		Summary:     "Toggle Write-back",
		Description: "Enable or disable the write-back path. A disable takes effect once the last written frame has been read back.",
		Tags:        []string{"panel"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 503, 504},
	}, func(ctx context.Context, input *models.BltRequest) (*models.PanelStatusResponse, error) {
		if err := s.panel.SetBLT(ctx, input.Body.Enable); err != nil {
			return nil, mapPanelError(err)
		}
		return &models.PanelStatusResponse{Body: s.panelStatus()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-panel-3d",
		Method:      http.MethodPost,
		Path:        "/api/panel/3d",
		Summary:     "Toggle 3D Side-by-side",
		Description: "Switch side-by-side 3D on with the given source size, or back to the framebuffer geometry",
		Tags:        []string{"panel"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 503, 504},
	}, func(ctx context.Context, input *models.Panel3DRequest) (*models.PanelStatusResponse, error) {
		in := input.Body
		if err := s.panel.Set3D(ctx, in.Enabled, in.Width, in.Height); err != nil {
			return nil, mapPanelError(err)
		}
		return &models.PanelStatusResponse{Body: s.panelStatus()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-panel-power",
		Method:      http.MethodPost,
		Path:        "/api/panel/power",
		Summary:     "Suspend or Resume",
		Description: "Power the panel off, staging the pipe down, or back on, re-pushing the last frame",
		Tags:        []string{"panel"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 503, 504},
	}, func(ctx context.Context, input *models.PanelPowerRequest) (*models.PanelStatusResponse, error) {
		if err := s.panel.SetPower(ctx, input.Body.On); err != nil {
			return nil, mapPanelError(err)
		}
		return &models.PanelStatusResponse{Body: s.panelStatus()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "pan-panel",
		Method:      http.MethodPost,
		Path:        "/api/panel/pan",
		Summary:     "Wait for Next Frame",
		Description: "Block until the compositor kicked the next frame to the panel",
		Tags:        []string{"panel"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 504},
	}, func(ctx context.Context, input *models.PanRequest) (*models.PanelStatusResponse, error) {
		ctx, cancel := context.WithTimeout(ctx, time.Duration(input.TimeoutMs)*time.Millisecond)
		defer cancel()
		if err := s.panel.Pan(ctx); err != nil {
			return nil, mapPanelError(err)
		}
		return &models.PanelStatusResponse{Body: s.panelStatus()}, nil
	})
}

func (s *Server) panelStatus() models.PanelStatus {
	st := s.panel.Stats()
	return models.PanelStatus{
		Panel:          st.Panel,
		PanelOn:        st.PanelOn,
		Bound:          st.Bound,
		ClockOn:        st.ClockOn,
		PlayState:      st.PlayState.String(),
		TransferBusy:   st.TransferBusy,
		OutputBusy:     st.OutputBusy,
		PendingWaiters: st.PendingWaiters,
		Blt: models.BltStatus{
			Addr:      st.BltAddr,
			Ending:    st.BltEnding,
			OvCount:   st.OvCount,
			DmapCount: st.DmapCount,
			Skew:      st.OvCount - st.DmapCount,
		},
		Counters: models.PanelCounters{
			KickoffOverlay:  st.KickoffOverlay,
			KickoffReadback: st.KickoffReadback,
			BltEnables:      st.BltEnables,
			BltDisables:     st.BltDisables,
			Backpressure:    st.Backpressure,
			ClockOffs:       st.ClockOffs,
			Timeouts:        st.Timeouts,
			WatchdogArms:    st.WatchdogArms,
			Frames:          s.panel.Frames(),
			CommitErrors:    s.panel.Errors(),
		},
	}
}

func (s *Server) health() models.HealthData {
	if s.panel == nil {
		return models.HealthData{Status: "ok", Message: "API is healthy"}
	}
	st := s.panel.Stats()
	switch {
	case !st.PanelOn:
		return models.HealthData{Status: "degraded", Message: "panel is off"}
	case st.Timeouts > 0:
		return models.HealthData{Status: "degraded", Message: fmt.Sprintf("%d hardware timeouts", st.Timeouts)}
	default:
		return models.HealthData{Status: "ok", Message: "panel " + st.PlayState.String()}
	}
}

// mapPanelError maps session errors to HTTP errors
func mapPanelError(err error) error {
	var panelErr *dsicmd.Error
	if errors.As(err, &panelErr) {
		switch panelErr.Code {
		case dsicmd.ErrCodeResourceUnavailable, dsicmd.ErrCodePipeAlloc:
			return huma.Error503ServiceUnavailable(panelErr.Message, err)
		case dsicmd.ErrCodeAlreadyInTransition, dsicmd.ErrCodeNotBound, dsicmd.ErrCodePanelOff:
			return huma.Error409Conflict(panelErr.Message, err)
		case dsicmd.ErrCodeHardwareTimeout:
			return huma.Error504GatewayTimeout(panelErr.Message, err)
		case dsicmd.ErrCodeInvalidConfig:
			return huma.Error400BadRequest(panelErr.Message, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout("request timed out", err)
	}
	return huma.Error500InternalServerError("internal server error", err)
}
