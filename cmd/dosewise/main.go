package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/gmsas95/dosewise-cli/internal/api"
	"github.com/gmsas95/dosewise-cli/internal/app"
	"github.com/gmsas95/dosewise-cli/internal/cli"
	"github.com/gmsas95/dosewise-cli/internal/config"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	command := "serve"
	args := []string{}
	if len(os.Args) > 1 {
		command = os.Args[1]
		args = os.Args[2:]
	}

	switch command {
	case "help", "--help", "-h":
		cli.PrintHelp()
		return
	case "version", "--version", "-v":
		fmt.Printf("dosewise version %s\n", version)
		return
	}

	flag.CommandLine.Parse(stripCommand(os.Args))

	switch command {
	case "serve":
		runServer()
	case "add":
		runCLI(func(a *app.App) error { return cli.HandleAddCommand(a, args) })
	case "list":
		runCLI(cli.HandleListCommand)
	case "take":
		runCLI(func(a *app.App) error { return cli.HandleTakeCommand(a, args) })
	case "progress":
		runCLI(func(a *app.App) error { return cli.HandleProgressCommand(a, args) })
	case "refill":
		runCLI(func(a *app.App) error { return cli.HandleRefillCommand(a, args) })
	case "pin":
		runCLI(func(a *app.App) error { return cli.HandlePinCommand(a, args) })
	case "reset":
		runCLI(cli.HandleResetCommand)
	default:
		fmt.Printf("Unknown command %q\n\n", command)
		cli.PrintHelp()
		os.Exit(1)
	}
}

// stripCommand drops the subcommand so global flags parse from anywhere on
// the line. Both "-config path" and "-config=path" forms are recognized.
func stripCommand(argv []string) []string {
	var out []string
	for i := 1; i < len(argv); i++ {
		arg := argv[i]
		if arg == "-config" || arg == "-data" {
			out = append(out, arg)
			if i+1 < len(argv) {
				out = append(out, argv[i+1])
				i++
			}
			continue
		}
		if strings.HasPrefix(arg, "-config=") || strings.HasPrefix(arg, "-data=") {
			out = append(out, arg)
		}
	}
	return out
}

func initApp(logger *zap.Logger) *app.App {
	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	return application
}

func runServer() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting dosewise", zap.String("version", version))

	application := initApp(logger)
	defer application.Stop()

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		logger.Fatal("Failed to start application", zap.Error(err))
	}

	server := api.New(application, application.Config, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	if err := server.Shutdown(); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
	}
}

func runCLI(handler func(*app.App) error) {
	logger := zap.NewNop()

	application := initApp(logger)
	defer application.Stop()

	if err := handler(application); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
