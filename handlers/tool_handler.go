package handlers

import (
	"errors"

	"github.com/cardealsai/cardeals-backend/services"
	"github.com/cardealsai/cardeals-backend/shared"
	"github.com/gofiber/fiber/v2"
)

type ToolHandler struct {
	Tools *services.AgentToolService
}

func NewToolHandler(tools *services.AgentToolService) *ToolHandler {
	return &ToolHandler{Tools: tools}
}

// GetToolDefinitions handles GET /api/v1/agent/tools so agent runtimes
// can discover the function-calling schema.
func (h *ToolHandler) GetToolDefinitions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    []interface{}{services.SearchToolDefinition()},
	})
}

// ExecuteSearchTool handles POST /api/v1/agent/search-tool. The body is
// the raw function-call arguments object produced by the agent runtime.
func (h *ToolHandler) ExecuteSearchTool(c *fiber.Ctx) error {
	response, err := h.Tools.ExecuteSearchTool(c.Context(), c.Body())
	if err != nil {
		var serviceErr *shared.ServiceError
		if errors.As(err, &serviceErr) && serviceErr.Category == shared.ErrorCategoryValidation {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   serviceErr.Message,
				"details": serviceErr.Details,
			})
		}
		if shared.IsServiceUnavailable(err) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"error":   "search temporarily unavailable",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"tool":    services.SearchToolName,
		"data":    response,
	})
}
