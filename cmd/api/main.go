// Command api serves the fulfillment HTTP and gRPC endpoints without the CLI.
package main

import (
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/Additional-Code/fulfillment/internal/app"
)

func main() {
	application := fx.New(app.HTTP)
	if err := application.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	application.Run()
}
