// Command dorkrecon runs the scan API server, or a one-shot scan when a
// -target is given.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/raysh454/dorkrecon/internal/app"
	"github.com/raysh454/dorkrecon/internal/cli"
	"github.com/raysh454/dorkrecon/internal/logging"
	"github.com/raysh454/dorkrecon/internal/scan"
	"github.com/raysh454/dorkrecon/internal/server"
)

func main() {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("parsing arguments: %v", err)
	}

	cfg, err := app.LoadConfig(args.ConfigPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if args.ListenAddr != "" {
		cfg.ListenAddr = args.ListenAddr
	}

	logger := logging.NewStdoutLogger("DorkRecon")

	application, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("starting application: %v", err)
	}
	defer application.Close()

	if args.Target != "" {
		if err := runOneShot(application, args); err != nil {
			log.Fatalf("scan failed: %v", err)
		}
		return
	}

	s := server.NewServer(server.Config{ListenAddr: cfg.ListenAddr, Logger: logger}, application)
	logger.Info("listening", logging.Field{Key: "addr", Value: cfg.ListenAddr})
	if err := s.HTTPServer().ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// runOneShot scans the target in-process and writes the session with its
// results to stdout as JSON.
func runOneShot(application *app.Application, args *cli.CLIArgs) error {
	ctx := context.Background()

	id, err := application.Orchestrator.StartScan(ctx, scan.ScanRequest{
		Target:     args.Target,
		Platforms:  args.Platforms,
		Categories: args.Categories,
	})
	if err != nil {
		return err
	}

	var lastStep string
	for {
		prog, err := application.Orchestrator.GetProgress(ctx, id)
		if err != nil {
			return err
		}
		if prog.CurrentStep != lastStep {
			lastStep = prog.CurrentStep
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", prog.Progress, prog.CurrentStep)
		}
		if prog.Status.Terminal() {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	sess, err := application.Store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	results, err := application.Store.ListResults(ctx, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"session": sess, "results": results}); err != nil {
		return err
	}
	if sess.ErrorMessage != "" {
		return fmt.Errorf("%s", sess.ErrorMessage)
	}
	return nil
}
