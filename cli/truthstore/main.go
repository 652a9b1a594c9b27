package main

import (
	"os"

	truthstorecmder "github.com/papercomputeco/truthstore/cmd/truthstore"
)

func main() {
	cmd := truthstorecmder.NewTruthstoreCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
