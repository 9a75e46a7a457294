package main

import (
	"log"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	rootCmd, c := newRootCmd()
	err := rootCmd.Execute()
	c.close()
	if err != nil {
		log.Fatal(err)
	}
}
