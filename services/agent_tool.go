package services

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/cardealsai/cardeals-backend/models"
	"github.com/cardealsai/cardeals-backend/shared"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// SearchToolName is the function name an agent uses to invoke offer
// search.
const SearchToolName = "search_offers"

// SearchToolDefinition is the function-calling schema exposed to agent
// frameworks. It mirrors SearchParams exactly; the tool is a thin shim
// over the same search service the public endpoint uses, never a second
// query path.
func SearchToolDefinition() openai.FunctionDefinition {
	return openai.FunctionDefinition{
		Name: SearchToolName,
		Description: "Search current car lease and finance offers from local dealerships. " +
			"Returns offers sorted by monthly payment unless another sort is requested.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"make": {
					"type": "string",
					"description": "Vehicle manufacturer, e.g. Toyota or Honda"
				},
				"model": {
					"type": "string",
					"description": "Vehicle model, e.g. Camry or CR-V"
				},
				"offer_type": {
					"type": "string",
					"enum": ["lease", "finance"],
					"description": "Restrict to lease or finance offers"
				},
				"max_monthly_payment": {
					"type": "number",
					"description": "Maximum monthly payment in dollars"
				},
				"max_down_payment": {
					"type": "number",
					"description": "Maximum amount due at signing in dollars"
				},
				"min_term_months": {
					"type": "integer",
					"description": "Minimum term length in months"
				},
				"max_term_months": {
					"type": "integer",
					"description": "Maximum term length in months"
				},
				"limit": {
					"type": "integer",
					"description": "Maximum number of offers to return, capped at 50"
				},
				"sort_by": {
					"type": "string",
					"enum": ["monthly_payment", "confidence_score", "down_payment"],
					"description": "Sort order for results"
				}
			}
		}`),
	}
}

// AgentToolService executes function calls issued by an agent runtime.
type AgentToolService struct {
	search *SearchService
}

// NewAgentToolService creates the tool executor over the shared search
// service.
func NewAgentToolService(search *SearchService) *AgentToolService {
	return &AgentToolService{search: search}
}

// ExecuteSearchTool parses raw function-call arguments and runs the
// search. Malformed or unrecognized arguments are a validation error the
// caller reports back to the agent; a store outage surfaces as
// unavailable, never as an empty result the agent would repeat as "no
// offers found". Unknown fields are rejected rather than dropped: a
// misspelled filter from the agent must not widen the search.
func (s *AgentToolService) ExecuteSearchTool(ctx context.Context, rawArgs json.RawMessage) (*models.SearchResponse, error) {
	var params models.SearchParams
	if len(rawArgs) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(rawArgs))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&params); err != nil {
			return nil, shared.NewValidationError("execute_search_tool", "malformed tool arguments: "+err.Error())
		}
	}

	if problems := s.search.ValidateParams(params); len(problems) > 0 {
		return nil, shared.NewValidationError("execute_search_tool", "invalid tool arguments").WithDetails(problems)
	}

	response, cached, err := s.search.Search(ctx, params)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"tool":    SearchToolName,
		"results": response.Total,
		"cached":  cached,
	}).Info("Executed agent search tool")

	return response, nil
}
