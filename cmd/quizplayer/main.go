// Command quizplayer runs a quiz player: it advertises over Bluetooth LE,
// publishes its identity and publishes each line typed on stdin as the
// current answer.
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
	"strings"
	"syscall"

	"github.com/chaz8081/quizlink/internal/ble"
	"github.com/chaz8081/quizlink/internal/config"
	"github.com/chaz8081/quizlink/internal/console"
	"github.com/chaz8081/quizlink/internal/peripheral"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/quizlink/config.yaml)")
	name := flag.String("name", "", "advertised name (overrides player.name)")
	id := flag.String("id", "", "player identity (overrides player.id)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *name != "" {
		cfg.Player.Name = *name
	}
	if *id != "" {
		cfg.Player.ID = *id
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	printBanner(cfg)

	// Radio
	transport, err := ble.NewTinyGoPeripheral()
	if err != nil {
		log.Fatalf("Failed to initialize Bluetooth peripheral: %v", err)
	}
	monitor := ble.NewMonitor(transport.PowerState())
	transport.OnPowerStateChange(monitor.Update)
	if err := transport.Enable(); err != nil {
		log.Printf("WARNING: Bluetooth unavailable: %v\n\nEnsure Bluetooth is on and this process may advertise.", err)
	}
	log.Printf("Radio: %s", monitor.Current())

	engine := peripheral.New(transport, monitor, peripheral.Options{
		LocalName: cfg.Player.Name,
		Identity:  cfg.Player.ID,
		RetryMax:  cfg.Player.AdvertiseRetryMax,
	})
	engine.OnAdvertisingChange(func(advertising bool) {
		if advertising {
			log.Printf("Advertising as %q", cfg.Player.Name)
		} else {
			log.Println("Advertising stopped")
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
		if cfg.Player.ConsoleAddr == "" {
			return
		}
		if cfg.Player.Announce {
			withdraw, err := console.NewAnnouncer().Announce(cfg.Player.Name, console.ServicePlayer, cfg.Player.ConsoleAddr, "id="+cfg.Player.ID)
			if err != nil {
				log.Printf("WARNING: console announcement failed: %v", err)
			} else {
				defer withdraw()
			}
		}
		if err := console.NewPlayerRouter(engine).Serve(ctx, cfg.Player.ConsoleAddr); err != nil {
			log.Printf("ERROR: console: %v", err)
		}
	}()

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	engine.Start()

	go readAnswers(engine)

	log.Println("Ready! Type an answer and press Enter. Ctrl+C to quit.")

	sig := <-sigCh
	log.Printf("Received %s, shutting down...", sig)
	cancel()
	<-engineDone
	<-consoleDone
	log.Println("Goodbye!")
}

// readAnswers publishes each stdin line as the current answer.
func readAnswers(engine *peripheral.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		answer := strings.TrimSpace(scanner.Text())
		engine.SubmitAnswer(answer)
		log.Printf("Answer published: %q", answer)
	}
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
	cfg := config.Default()
	cfg.EnsurePlayerID()
	return cfg, nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	consoleAddr := cfg.Player.ConsoleAddr
	if consoleAddr == "" {
		consoleAddr = "disabled"
	}
	fmt.Println("=== quizplayer ===")
	fmt.Printf("  Name:     %s\n", cfg.Player.Name)
	fmt.Printf("  Identity: %s\n", cfg.Player.ID)
	fmt.Printf("  Console:  %s\n", consoleAddr)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("==================")
}
