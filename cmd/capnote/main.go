package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "capnote: %v\n", err)
		os.Exit(1)
	}
}
