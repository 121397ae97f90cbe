// main.go - Admin control tool for dinostats
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karloscodes/cartridge"

	"dinostats/internal"
	"dinostats/internal/config"
	"dinostats/internal/stats"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Environment is what a command runs against. Store is nil when the
// configured backend could not be opened.
type Environment struct {
	Config *config.Config
	Logger *slog.Logger
	Store  stats.Store
	Out    io.Writer
}

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given environment and args
	Execute(ctx context.Context, env *Environment, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&AggregateCommand{},
	&IngestCommand{},
	&ShowCommand{},
	&ClassifyCommand{},
	&HelpCommand{},
}

// Commands that do not need the shared store connection
var offlineCommands = map[string]bool{
	"migrate":   true,
	"aggregate": true,
	"classify":  true,
	"help":      true,
}

func main() {
	flag.Parse()
	os.Exit(run())
}

// run executes the requested command and returns the process exit code.
func run() int {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	cfg := config.GetConfig()
	env := &Environment{
		Config: cfg,
		Logger: cartridge.NewLogger(cfg, nil),
		Out:    os.Stdout,
	}

	if !offlineCommands[cmd.Name()] {
		store, closeStore, err := internal.OpenStore(ctx, cfg, env.Logger)
		if err != nil {
			log.Printf("Warning: Failed to open snapshot store: %v", err)
			log.Println("Proceeding with limited functionality...")
		} else {
			env.Store = store
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
				defer cancel()
				if err := closeStore(shutdownCtx); err != nil {
					log.Printf("Warning: Cleanup error: %v", err)
				}
			}()
		}
	}

	if err := cmd.Execute(ctx, env, args); err != nil {
		log.Printf("Command failed: %v", err)
		return 1
	}
	return 0
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: statsctl [command] [args...]")
	fmt.Fprintln(out, "Available commands:")

	for _, cmd := range commands {
		fmt.Fprintf(out, "  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage(os.Stdout)
	os.Exit(1)
}
