package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/odyssey-erp/stockbill/internal/app"
	"github.com/odyssey-erp/stockbill/internal/stock"
)

type seedItem struct {
	name, dealer  string
	cost, selling float64
	bought, sold  int64
	purchased     string
}

var catalog = map[string][]seedItem{
	"Stationery": {
		{"Pen", "Acme", 5, 8, 100, 30, "2024-01-15"},
		{"Pencil", "Acme", 2, 3.5, 250, 40, "2024-01-15"},
		{"Notebook", "PaperCo", 30, 45, 80, 12, "2024-02-02"},
		{"Stapler", "OfficeHub", 120, 110, 15, 3, "2024-02-20"},
		{"Ink", "Blot", 12, 10, 10, 8, ""},
	},
	"Hardware": {
		{"Hammer", "BuildIt", 250, 320, 20, 4, "2024-03-01"},
		{"Nails", "BuildIt", 0.5, 1, 5000, 1200, "2024-03-01"},
		{"Screwdriver", "ToolMart", 90, 140, 35, 10, ""},
	},
}

func main() {
	only := flag.String("table", "", "seed a single dataset")
	flag.Parse()

	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)
	repo, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("connect store: %v", err)
	}
	defer closeStore()

	svc := stock.NewService(repo, stock.ServiceConfig{Logger: logger})
	for dataset, items := range catalog {
		if *only != "" && *only != dataset {
			continue
		}
		fmt.Printf("→ Seeding %s...\n", dataset)
		created, err := seedDataset(ctx, svc, dataset, items)
		if err != nil {
			log.Fatalf("seed %s: %v", dataset, err)
		}
		fmt.Printf("  %d new items\n", created)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

// seedDataset creates catalog items that are not present yet, matched on name and dealer.
func seedDataset(ctx context.Context, svc *stock.Service, dataset string, items []seedItem) (int, error) {
	created := 0
	for _, it := range items {
		_, err := svc.GetByNameAndDealer(ctx, dataset, it.name, it.dealer)
		if err == nil {
			continue
		}
		if !errors.Is(err, stock.ErrItemNotFound) {
			return created, err
		}
		item := stock.Item{
			ItemName:     it.name,
			NameOfDealer: it.dealer,
			CostPrice:    it.cost,
			SellingPrice: it.selling,
			StockBought:  it.bought,
			StockSold:    it.sold,
		}
		if it.purchased != "" {
			d, err := time.Parse("2006-01-02", it.purchased)
			if err != nil {
				return created, err
			}
			item.DateOfPurchase = &d
		}
		if _, err := svc.Create(ctx, dataset, item); err != nil {
			return created, fmt.Errorf("%s/%s: %w", it.name, it.dealer, err)
		}
		created++
	}
	return created, nil
}
