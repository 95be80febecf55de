package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/dsicmd/internal/api/models"
)

// registerLEDRoutes exposes manual LED control. Without a controller the
// routes do not exist.
func (s *Server) registerLEDRoutes() {
	ctrl := s.options.LEDController
	if ctrl == nil {
		s.logger.Debug("LED controller not available, skipping LED routes")
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "control-led",
		Method:      http.MethodPost,
		Path:        "/api/leds",
		Summary:     "Control LED",
		Description: "Set an LED state and optional pattern. The panel LED manager overrides it on the next state change.",
		Tags:        []string{"leds"},
		Errors:      []int{400, 401},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.LEDRequest) (*struct{}, error) {
		name := input.Body.Name
		if !slices.Contains(ctrl.Available(), name) {
			return nil, huma.Error400BadRequest(fmt.Sprintf("unknown LED %q", name))
		}
		if err := ctrl.Set(name, input.Body.Enabled, input.Body.Pattern); err != nil {
			return nil, huma.Error400BadRequest("failed to control LED", err)
		}
		s.logger.Info("LED set manually", "led", name, "enabled", input.Body.Enabled, "pattern", input.Body.Pattern)
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-led-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/leds/capabilities",
		Summary:     "Get LED Capabilities",
		Description: "LED names and patterns supported by this board",
		Tags:        []string{"leds"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.LEDCapabilitiesResponse, error) {
		return &models.LEDCapabilitiesResponse{Body: models.LEDCapabilities{
			Available: ctrl.Available(),
			Patterns:  ctrl.Patterns(),
		}}, nil
	})
}
