package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ananthlk/Mobius-OS-sub002/cmd/mockgen/engine"
	"github.com/ananthlk/Mobius-OS-sub002/internal/store"
)

func main() {
	outDir := flag.String("out", "./fixtures", "Output directory for patients.json")
	dbPath := flag.String("db", "", "SQLite database to seed with historical facts (skipped when empty)")
	patients := flag.Int("patients", 25, "Number of synthetic patients beyond the demo panel")
	transactions := flag.Int("transactions", 500, "Number of historical eligibility transactions")
	seed := flag.Int64("seed", 42, "Random seed; same seed produces the same dataset")
	flag.Parse()

	cfg := engine.GeneratorConfig{
		Patients:     *patients,
		Transactions: *transactions,
		Seed:         *seed,
		Today:        time.Now().UTC(),
	}

	fmt.Printf("Generating %d patients and %d transactions (seed %d)...\n",
		cfg.Patients, cfg.Transactions, cfg.Seed)
	ds := engine.Generate(cfg)

	if err := engine.Save(*outDir, ds.Fixtures); err != nil {
		fmt.Printf("Failed to save fixtures: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d patient fixtures to %s\n", len(ds.Fixtures), *outDir)

	if *dbPath != "" {
		st, err := store.Open(*dbPath)
		if err != nil {
			fmt.Printf("Failed to open database: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = st.Close() }()

		if err := engine.Seed(context.Background(), st, ds); err != nil {
			fmt.Printf("Failed to seed history tables: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d transactions and %d risk observations into %s\n",
			len(ds.Transactions), len(ds.Observations), *dbPath)
	}

	fmt.Println("Done.")
}
