// Command demoserver starts a local imitation of the Google and GitHub search
// surfaces. Point the scanner's searcher config at it to run full scans
// without touching the real platforms.
// Usage: go run ./cmd/demoserver [port]
// Default port: 9999
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/raysh454/dorkrecon/internal/demoserver"
)

func main() {
	cfg := demoserver.DefaultConfig()

	// Optional: custom port from command line
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}

	fmt.Println("===========================================")
	fmt.Println("   DorkRecon Demo Server")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("Endpoints:")
	fmt.Println("  /search            Google-style results page")
	fmt.Println("  /search/code       GitHub-style code search API")
	fmt.Println("  /demo/bump         advance the served corpus version")
	fmt.Println("  /demo/reset        back to version 1")
	fmt.Println()
	fmt.Println("Run two scans with a bump in between and diff the sessions.")
	fmt.Println()

	server := demoserver.NewDemoServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
