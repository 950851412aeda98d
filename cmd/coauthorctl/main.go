package main

import (
	"fmt"
	"os"

	"coauthor-backend/cmd/coauthorctl/commands"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
