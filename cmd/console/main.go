package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pcaview/console"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment
	_ = godotenv.Load()

	defaultURL := "http://localhost:8080"
	if v := os.Getenv("PCAVIEW_URL"); v != "" {
		defaultURL = v
	}
	baseURL := flag.String("url", defaultURL, "pcaview API URL")
	flag.Parse()

	program := tea.NewProgram(console.NewModel(*baseURL))

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
}
