package main

import (
	"log"
	"os"

	"quiz-match-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Printf("quiz-match-service: %v", err)
		os.Exit(1)
	}
}
