// dbcheck verifies that the catalog database is reachable and prints the row
// count of every catalog table. It goes through database/sql so it also works
// where the pgx pool settings are not wanted, e.g. in a deploy hook.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/lib/pq"
)

var tables = []string{
	"categories",
	"products",
	"product_variants",
	"price_history",
	"raw_items",
	"unmappable_items",
	"registry_entries",
}

func main() {
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "postgres connection string")
	timeout := flag.Duration("timeout", 10*time.Second, "overall timeout")
	flag.Parse()

	if *dsn == "" {
		fmt.Println("DATABASE_URL not set")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		fmt.Println("Error opening connection:", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		fmt.Println("Ping error:", err)
		os.Exit(1)
	}

	var version string
	if err := db.QueryRowContext(ctx, "SHOW server_version").Scan(&version); err != nil {
		fmt.Println("Version query error:", err)
		os.Exit(1)
	}
	fmt.Printf("Connected, PostgreSQL %s\n\n", version)

	missing := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS")
	fmt.Fprintln(w, "-----\t----")
	for _, table := range tables {
		var n int64
		err := db.QueryRowContext(ctx, "SELECT count(*) FROM "+pq.QuoteIdentifier(table)).Scan(&n)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "42P01" {
				fmt.Fprintf(w, "%s\tmissing\n", table)
				missing++
				continue
			}
			w.Flush()
			fmt.Printf("Count %s: %v\n", table, err)
			os.Exit(1)
		}
		fmt.Fprintf(w, "%s\t%d\n", table, n)
	}
	w.Flush()

	if missing > 0 {
		fmt.Printf("\n%d tables missing, run `catalog migrate`\n", missing)
		os.Exit(2)
	}
}
