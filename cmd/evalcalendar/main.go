package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Freeeeeet/evalcalendar/internal/cli"
)

func main() {
	if err := cli.NewRoot().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
