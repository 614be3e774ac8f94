package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/calder/warble/internal/cache"
	"github.com/calder/warble/internal/catalog"
	"github.com/calder/warble/internal/config"
	"github.com/calder/warble/internal/domain"
	"github.com/calder/warble/internal/download"
	"github.com/calder/warble/internal/log"
	"github.com/calder/warble/internal/mediakeys"
	"github.com/calder/warble/internal/playback"
	"github.com/calder/warble/internal/player"
	"github.com/calder/warble/internal/tui"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Parse()

	if showVersion {
		fmt.Printf("warble %s\n", Version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting warble", "version", Version)

	if !cfg.IsConfigured() {
		return runSetupFlow(cfg)
	}

	store, err := cache.Open(cfg.Cache.Dir, logger)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer store.Close()

	if err := store.EvictIfOverBudget(cfg.Cache.MaxBytes); err != nil {
		logger.Warn("startup eviction failed", "error", err)
	}

	client := catalog.NewClient(cfg.Catalog.URL, cfg.Catalog.Token, logger)
	downloads := download.NewManager(client, store, cfg.Downloads, logger)
	defer downloads.Close()

	engine := playback.NewEngine(playback.NewSpeakerOutput(), cfg.Playback, logger)
	coord := player.New(store, downloads, engine, cfg.Cache.MaxBytes, cfg.Playback.Volume, logger)

	done := make(chan struct{})
	defer close(done)
	engine.Start(done)
	coord.Start(done)

	bridge := mediakeys.NewLogBridge(logger)
	defer bridge.Close()
	go forwardBridge(coord, bridge, done)

	name, tracks := loadPlaylist(cfg, client, logger)
	coord.SetPlaylist(name, tracks)

	model := tui.NewModel(coord, coord.Subscribe(), cfg.Playback.SeekStep)
	p := tea.NewProgram(model, tea.WithAltScreen())

	logger.Info("starting TUI", "tracks", len(tracks))

	if _, err := p.Run(); err != nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	logger.Info("shutting down")
	return nil
}

// loadPlaylist fetches the playlist from the catalog, falling back to the
// last one persisted on disk when the catalog is unreachable.
func loadPlaylist(cfg *config.Config, client *catalog.Client, logger *slog.Logger) (string, []domain.Track) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	name, tracks, err := client.Playlist(ctx)
	if err == nil {
		if err := catalog.SaveLast(cfg.Cache.Dir, name, tracks); err != nil {
			logger.Warn("failed to persist playlist", "error", err)
		}
		return name, tracks
	}

	logger.Warn("catalog unreachable, falling back to last playlist", "error", err)
	if name, tracks, ok := catalog.LoadLast(cfg.Cache.Dir); ok {
		return name, tracks
	}
	return "", nil
}

// forwardBridge pumps snapshots out to the media-key bridge and its commands
// back into the coordinator.
func forwardBridge(coord *player.Coordinator, bridge mediakeys.Bridge, done <-chan struct{}) {
	snaps := coord.Subscribe()
	for {
		select {
		case <-done:
			return
		case snap := <-snaps:
			bridge.Publish(snap)
		case cmd, ok := <-bridge.Commands():
			if !ok {
				return
			}
			coord.Dispatch(cmd)
		}
	}
}

// runSetupFlow handles the initial setup when no catalog is configured
func runSetupFlow(cfg *config.Config) error {
	fmt.Println()
	fmt.Println("Welcome to Warble!")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	var catalogURL string
	for {
		fmt.Print("Enter your catalog URL (e.g., https://music.example.com): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		catalogURL = strings.TrimSpace(input)
		if catalogURL != "" {
			break
		}
		fmt.Println("Catalog URL cannot be empty. Please try again.")
	}

	fmt.Print("Enter an access token (leave empty if none): ")
	token, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	cfg.Catalog.URL = catalogURL
	cfg.Catalog.Token = strings.TrimSpace(token)
	if err := config.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved!")
	fmt.Println()
	fmt.Println("Run warble again to start the player.")
	return nil
}
