package ai

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProposal(t *testing.T) {
	content := `{
		"lines": [
			{"product_id": " flour ", "warehouse_id": "main", "lot_id": "", "counted_quantity": "48.5", "note": "one sack torn"},
			{"product_id": "YEAST", "warehouse_id": "COLD", "lot_id": "Y-7", "counted_quantity": "2", "note": ""}
		],
		"confidence": 0.9,
		"reasoning": "legible"
	}`
	p, err := parseProposal(context.Background(), "test", content)
	require.NoError(t, err)
	require.Len(t, p.Lines, 2)
	assert.Equal(t, "FLOUR", p.Lines[0].ProductID)
	assert.Equal(t, "MAIN", p.Lines[0].WarehouseID)

	reqs := p.CountRequests("PC-9", "counter")
	require.Len(t, reqs, 2)
	assert.True(t, reqs[0].CountedQuantity.Equal(decimal.RequireFromString("48.5")))
	assert.Equal(t, "count sheet: one sack torn", reqs[0].Reason)
	assert.Equal(t, "count sheet", reqs[1].Reason)
	assert.Equal(t, "Y-7", reqs[1].LotID)
	assert.Equal(t, "PC-9", reqs[1].CountID)
}

func TestParseProposal_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"not json", "twelve sacks"},
		{"no lines", `{"lines": [], "confidence": 1, "reasoning": ""}`},
		{"negative", `{"lines": [{"product_id": "A", "warehouse_id": "W", "lot_id": "", "counted_quantity": "-1", "note": ""}], "confidence": 1, "reasoning": ""}`},
		{"not a number", `{"lines": [{"product_id": "A", "warehouse_id": "W", "lot_id": "", "counted_quantity": "a dozen", "note": ""}], "confidence": 1, "reasoning": ""}`},
		{"duplicate", `{"lines": [
			{"product_id": "A", "warehouse_id": "W", "lot_id": "", "counted_quantity": "1", "note": ""},
			{"product_id": "a", "warehouse_id": "w", "lot_id": "", "counted_quantity": "2", "note": ""}
		], "confidence": 1, "reasoning": ""}`},
		{"confidence", `{"lines": [{"product_id": "A", "warehouse_id": "W", "lot_id": "", "counted_quantity": "1", "note": ""}], "confidence": 1.5, "reasoning": ""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseProposal(context.Background(), "test", tt.content)
			assert.Error(t, err)
		})
	}
}

func TestProposalSchema_IsStrict(t *testing.T) {
	s, err := proposalSchema()
	require.NoError(t, err)
	assert.Equal(t, false, s["additionalProperties"])
	assert.ElementsMatch(t, []any{"lines", "confidence", "reasoning"}, s["required"])

	props := s["properties"].(map[string]any)
	lines := props["lines"].(map[string]any)
	item := lines["items"].(map[string]any)
	assert.Len(t, item["required"], 5)
}
