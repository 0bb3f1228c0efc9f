package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "check":
		if err := runCheck(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("pgportal — read-only PostgreSQL MCP server")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pgportal serve    Start the MCP server (stdio, or HTTP when PGPORTAL_HTTP_PORT is set)")
	fmt.Println("  pgportal check    Validate configuration and test the database connection")
	fmt.Println("  pgportal --help   Show this help message")
	fmt.Println()
	fmt.Println("Configuration is read from PGPORTAL_* environment variables.")
}
