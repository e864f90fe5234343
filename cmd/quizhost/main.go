// Command quizhost runs the quiz host: it discovers nearby quiz players over
// Bluetooth LE, follows their answers and serves the roster on an HTTP console.
//
// Commands typed on stdin:
//
//	start [seconds]  open a discovery window
//	stop             close the discovery window
//	reset            clear every player's answer
//	list             print the roster
//
// With -mcp the same operations are served as MCP tools on stdio.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chaz8081/quizlink/internal/ble"
	"github.com/chaz8081/quizlink/internal/central"
	"github.com/chaz8081/quizlink/internal/config"
	"github.com/chaz8081/quizlink/internal/console"
	quizmcp "github.com/chaz8081/quizlink/internal/mcp"
	"github.com/chaz8081/quizlink/internal/roster"
)

const version = "0.1.0"

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/quizlink/config.yaml)")
	discover := flag.Bool("discover", true, "open a discovery window at startup")
	initConfig := flag.Bool("init", false, "write the default config file and exit")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools on stdio instead of reading commands")
	flag.Parse()

	if *initConfig {
		writeDefaultConfig()
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	// Stdout belongs to the MCP transport.
	if !*serveMCP {
		printBanner(cfg)
	}

	// Radio
	transport := ble.NewTinyGoCentral()
	monitor := ble.NewMonitor(transport.PowerState())
	transport.OnPowerStateChange(monitor.Update)
	if err := transport.Enable(); err != nil {
		log.Printf("WARNING: Bluetooth unavailable: %v\n\nEnsure Bluetooth is on and this terminal is allowed to use it.", err)
	}
	log.Printf("Radio: %s", monitor.Current())

	engine := central.New(transport, monitor, central.Options{ScanDuration: cfg.Host.ScanDuration})
	if *serveMCP {
		engine.Roster().OnChange(logRoster)
	} else {
		engine.Roster().OnChange(printRoster)
	}
	engine.OnDiscoveryChange(func(active bool) {
		if active {
			log.Println("Discovering players...")
		} else {
			log.Println("Discovery stopped")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		engine.Run(ctx)
	}()

	consoleDone := make(chan struct{})
	go func() {
		defer close(consoleDone)
		if cfg.Host.ConsoleAddr == "" {
			return
		}
		if cfg.Host.Announce {
			withdraw, err := console.NewAnnouncer().Announce("quizlink host", console.ServiceHost, cfg.Host.ConsoleAddr, "role=host")
			if err != nil {
				log.Printf("WARNING: console announcement failed: %v", err)
			} else {
				defer withdraw()
			}
		}
		router := console.NewHostRouter(engine, cfg.Host.ScanDuration)
		if err := router.Serve(ctx, cfg.Host.ConsoleAddr); err != nil {
			log.Printf("ERROR: console: %v", err)
		}
	}()

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if *discover {
		engine.StartDiscovery(0)
	}

	if *serveMCP {
		go func() {
			log.Println("Serving MCP tools on stdio")
			if err := quizmcp.NewServer(engine, cfg.Host.ScanDuration, version).ServeStdio(); err != nil {
				log.Printf("ERROR: MCP server: %v", err)
			}
			// The client closed stdin.
			select {
			case sigCh <- syscall.SIGTERM:
			default:
			}
		}()
	} else {
		go readCommands(engine)
		log.Println("Ready! Type 'start', 'stop', 'reset' or 'list'. Ctrl+C to quit.")
	}

	sig := <-sigCh
	log.Printf("Received %s, shutting down...", sig)
	cancel()
	<-engineDone
	<-consoleDone
	log.Println("Goodbye!")
}

// readCommands runs operator commands from stdin until it is closed.
func readCommands(engine *central.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "start":
			var d time.Duration
			if len(fields) > 1 {
				secs, err := strconv.Atoi(fields[1])
				if err != nil || secs <= 0 {
					fmt.Println("usage: start [seconds]")
					continue
				}
				d = time.Duration(secs) * time.Second
			}
			engine.StartDiscovery(d)
		case "stop":
			engine.StopDiscovery()
		case "reset":
			engine.ResetAnswers()
		case "list":
			printRoster(engine.Players())
		default:
			fmt.Println("commands: start [seconds], stop, reset, list")
		}
	}
}

// logRoster logs the roster size; used when stdout is reserved.
func logRoster(players []roster.Peer) {
	answered := 0
	for _, p := range players {
		if p.Answer != nil && *p.Answer != "" {
			answered++
		}
	}
	log.Printf("Roster: %d player(s), %d answered", len(players), answered)
}

// printRoster prints one line per player.
func printRoster(players []roster.Peer) {
	fmt.Printf("--- %d player(s) ---\n", len(players))
	for _, p := range players {
		fmt.Printf("  %-10s %-20s identity=%-12s answer=%s\n",
			p.State, displayName(p), optional(p.Identity), optional(p.Answer))
	}
}

func displayName(p roster.Peer) string {
	if p.LocalName != "" {
		return p.LocalName
	}
	return string(p.ID)
}

func optional(s *string) string {
	if s == nil {
		return "-"
	}
	return strconv.Quote(*s)
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

func writeDefaultConfig() {
	path, err := config.WriteDefault()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if path == "" {
		log.Printf("Config already exists at %s", config.DefaultConfigPath())
		return
	}
	log.Printf("Wrote default config to %s", path)
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	consoleAddr := cfg.Host.ConsoleAddr
	if consoleAddr == "" {
		consoleAddr = "disabled"
	}
	fmt.Println("=== quizhost ===")
	fmt.Printf("  Scan:     %s\n", cfg.Host.ScanDuration)
	fmt.Printf("  Console:  %s\n", consoleAddr)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("================")
}
