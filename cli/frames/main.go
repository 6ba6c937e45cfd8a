package main

import (
	"os"

	framescmder "github.com/papercomputeco/frames/cmd/frames"
)

func main() {
	cmd := framescmder.NewFramesCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
