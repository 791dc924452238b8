// verify-agent sends a sample count sheet to the configured model and prints
// the validated proposal. Nothing is recorded.
package main

import (
	"context"
	"fmt"
	"log"

	"inventory-ledger/internal/ai"
	"inventory-ledger/internal/config"
)

const catalog = `Warehouses:
- MAIN Main store
- COLD Cold room
Products:
- FLOUR Wheat flour (kg, lot-tracked)
- YEAST Fresh yeast (kg, lot-tracked)
- SEEDS Sunflower seeds (kg, untracked)
Open lots:
- F-0611 product=FLOUR warehouse=MAIN remaining=120
- Y-0602 product=YEAST warehouse=COLD remaining=4
`

const sheet = `main store shelf 3: flour lot F-0611 about 118 kg
cold room: yeast 3.5 (lot Y-0602)
seeds in main, 2 sacks of 25kg`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.OpenAI.APIKey == "" {
		log.Fatal("OPENAI_API_KEY not set")
	}

	agent := ai.NewAgent(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	ctx := context.Background()

	fmt.Printf("INTERPRETING COUNT SHEET:\n%s\n", sheet)
	proposal, err := agent.InterpretCountSheet(ctx, sheet, catalog)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	proposal.Normalize()
	if err := proposal.Validate(); err != nil {
		log.Fatalf("Invalid proposal: %v", err)
	}

	fmt.Printf("\n--- PROPOSAL ---\n")
	fmt.Printf("Confidence: %.2f\n", proposal.Confidence)
	fmt.Printf("Reasoning: %s\n", proposal.Reasoning)
	fmt.Printf("\nLines:\n")
	for _, l := range proposal.Lines {
		fmt.Printf("- %s @ %s lot=%q counted=%s\n", l.ProductID, l.WarehouseID, l.LotID, l.CountedQuantity)
	}
}
