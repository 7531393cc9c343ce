// Package main simple-bot API Server
//
//	@title			simple-bot API
//	@version		1.0
//	@description	Upload a PDF to a chat session and ask questions answered from its content
//
//	@host		localhost:8080
//	@BasePath	/
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
