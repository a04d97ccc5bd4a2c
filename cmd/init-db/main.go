package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/yungbote/threadgraph/internal/app"
)

func main() {
	flag.Parse()

	application, err := app.New(app.Options{})
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close(context.Background())

	if err := application.Graph.AutoMigrateAll(); err != nil {
		fmt.Printf("migrate graph tables: %v\n", err)
		os.Exit(1)
	}
	if err := application.Checkpoint.Ensure(context.Background(), nil); err != nil {
		fmt.Printf("ensure sync checkpoint: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("graph database initialized")
}
