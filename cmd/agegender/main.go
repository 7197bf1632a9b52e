package main

import (
	"os"

	"github.com/OscarLlorente/AgeGenderDetector/cmd/agegender/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
