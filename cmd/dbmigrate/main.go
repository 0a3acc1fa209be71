package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lomect/accountd/internal"
	"github.com/lomect/accountd/internal/db"
	"github.com/lomect/accountd/internal/db/migrate"
	"github.com/lomect/accountd/migrations"
)

const helpText = `Usage: dbmigrate [sqlite_file]`

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, helpText)
		os.Exit(1)
	}

	os.Exit(run(os.Args[1]))
}

func run(dbFile string) int {
	sqlDB, err := db.OpenSQLite(dbFile, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return 1
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*60)
	defer cancel()

	meta := migrate.Metadata{
		AppVersion: internal.BuildRevision,
		Timestamp:  time.Now(),
	}

	applied, err := migrate.RunFS(ctx, sqlDB, migrations.FS, meta)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		return 1
	}

	for _, m := range applied {
		fmt.Printf("%d: %s\n", m.Sequence, m.Filename)
	}

	if len(applied) == 0 {
		fmt.Println("nothing to migrate")
	}

	return 0
}
