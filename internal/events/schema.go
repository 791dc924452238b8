package events

import (
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/core"
)

var payloads = map[core.EventType]any{
	core.EventLowStock:                        core.LowStockPayload{},
	core.EventLotQuarantined:                  core.LotPayload{},
	core.EventLotReleased:                     core.LotPayload{},
	core.EventReplenishmentSuggestionCritical: core.ReplenishmentSuggestion{},
}

// envelope mirrors the fields of core.Event shared by every event type.
type envelope struct {
	ID         string `json:"id" jsonschema:"format=uuid"`
	Type       string `json:"type"`
	OccurredAt string `json:"occurred_at" jsonschema:"format=date-time"`
	Key        string `json:"key"`
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func reflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Anonymous:                 true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == decimalType {
				return &jsonschema.Schema{Type: "string", Pattern: `^-?[0-9]+(\.[0-9]+)?$`}
			}
			return nil
		},
	}
}

// Schema returns the JSON schema of a full message of type t, envelope
// and payload.
func Schema(t core.EventType) (*jsonschema.Schema, error) {
	payload, ok := payloads[t]
	if !ok {
		return nil, fmt.Errorf("no schema for event type %q", t)
	}
	r := reflector()
	s := r.Reflect(envelope{})
	s.Title = string(t)
	if typ, ok := s.Properties.Get("type"); ok {
		typ.Const = string(t)
	}
	body := r.Reflect(payload)
	body.Version = ""
	s.Properties.Set("payload", body)
	s.Required = append(s.Required, "payload")
	return s, nil
}

// Schemas returns the schema of every event the engine emits.
func Schemas() (map[core.EventType]*jsonschema.Schema, error) {
	out := make(map[core.EventType]*jsonschema.Schema, len(core.EventTypes))
	for _, t := range core.EventTypes {
		s, err := Schema(t)
		if err != nil {
			return nil, err
		}
		out[t] = s
	}
	return out, nil
}
