// Package main is the entry point for the content pipeline service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/app"
)

var (
	// version can be set at build time via -ldflags
	version = "dev"
)

func main() {
	command := "both"
	args := os.Args[1:]
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := flags.String("config", "config.yml", "path to the configuration file")
	_ = flags.Parse(args)

	switch command {
	case "both", "all":
		run(*configPath, true, true)
	case "worker":
		run(*configPath, true, false)
	case "api":
		run(*configPath, false, true)
	case "version":
		fmt.Printf("content-pipeline version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func run(configPath string, enableWorker, enableAPI bool) {
	application, err := app.New(app.Options{
		ConfigPath:   configPath,
		Version:      version,
		EnableWorker: enableWorker,
		EnableAPI:    enableAPI,
	})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("Service exited with error: %v", err)
	}
}

func printUsage() {
	fmt.Println(`Content Pipeline Service

Usage:
  pipeline [command] [flags]

Commands:
  both      Run the worker and the API server in one process (default)
  worker    Run the queue consumers and the stage scheduler
  api       Run only the HTTP API server
  version   Print the version
  help      Show this help

Flags:
  -config   Path to the configuration file (default "config.yml")`)
}
