package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"mlp-forge/internal/autograd"
)

func main() {
	epochs := flag.Int("epochs", 100, "Regression steps")
	lr := flag.Float64("lr", autograd.DefaultLR, "Learning rate")
	seed := flag.Uint64("seed", 40, "PRNG seed")
	flag.Parse()

	a, b, g := autograd.Expression()
	g.Backward()
	fmt.Printf("%.4f\n", g.Data)
	fmt.Printf("%.4f\n%.4f\n", a.Grad, b.Grad)

	opts := autograd.DefaultRegressOptions()
	opts.Epochs = *epochs
	opts.LR = *lr
	opts.Seed = *seed
	if _, err := autograd.Regress(os.Stdout, opts); err != nil {
		log.Fatalf("regress: %v", err)
	}
}
