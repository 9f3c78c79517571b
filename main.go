package main

import (
	"fmt"
	"os"

	"github.com/thiagokokada/siori-go/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "siori: %v\n", err)
		os.Exit(1)
	}
}
