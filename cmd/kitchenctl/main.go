package main

import (
	"context"
	"fmt"
	"os"
	// receipts default to America/Sao_Paulo
	_ "time/tzdata"

	"github.com/jcmexdev/kitchen-orders/internal/kitchenctl"
)

func main() {
	if err := kitchenctl.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
