package main

import (
	"log"
	"os"

	"mlp-forge/internal/matvec"
)

func main() {
	if err := matvec.Run(os.Stdout); err != nil {
		log.Fatalf("matvec: %v", err)
	}
}
