package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"

	"inventory-ledger/internal/logger"
)

// CountInterpreter reads free-form count sheets into count proposals.
type CountInterpreter interface {
	InterpretCountSheet(ctx context.Context, sheet string, catalog string) (*CountProposal, error)
}

type Agent struct {
	client *openai.Client
	model  string
}

func NewAgent(apiKey, model string) *Agent {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	if model == "" {
		model = string(shared.ChatModelGPT4oMini)
	}
	return &Agent{client: &client, model: model}
}

func (a *Agent) InterpretCountSheet(ctx context.Context, sheet string, catalog string) (*CountProposal, error) {
	const op = "ai.Agent.InterpretCountSheet"

	prompt := fmt.Sprintf(`You transcribe warehouse physical count sheets.
Read the sheet below and list one line per counted position.
Rules:
1. Use ONLY product and warehouse ids from the catalog.
2. Quantities are decimal strings in the product's unit (e.g. "12.5").
3. Give the lot id only when the sheet names one.
4. Do not invent lines for positions the sheet does not mention.
5. Provide a confidence score (0.0-1.0) and explain ambiguous readings.

Catalog:
%s

Count sheet:
%s`, catalog, sheet)

	schemaMap, err := proposalSchema()
	if err != nil {
		return nil, err
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(a.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "count_proposal",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("Count lines read from a physical count sheet"),
				},
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}
	return parseProposal(ctx, op, resp.OutputText())
}

func parseProposal(ctx context.Context, op, content string) (*CountProposal, error) {
	if content == "" {
		return nil, fmt.Errorf("empty response content")
	}
	var proposal CountProposal
	if err := json.Unmarshal([]byte(content), &proposal); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}

	proposal.Normalize()
	if err := proposal.Validate(); err != nil {
		return nil, fmt.Errorf("proposal validation failed: %w", err)
	}
	logger.Info(ctx, "count sheet interpreted",
		logger.String("op", op),
		logger.Int("lines", len(proposal.Lines)),
		logger.Any("confidence", proposal.Confidence))
	return &proposal, nil
}

// proposalSchema reflects CountProposal into the map form the Responses
// API expects. Strict mode needs every property required and no extras,
// which the reflector's defaults give.
func proposalSchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemaJSON, err := json.Marshal(reflector.Reflect(CountProposal{}))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}
	return schemaMap, nil
}
