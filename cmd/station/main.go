package main

import (
	"bufio"
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/grubvoice/station-go/internal/display"
	"github.com/grubvoice/station-go/pkg/backend"
	backendfake "github.com/grubvoice/station-go/pkg/backend/fake"
	devicefake "github.com/grubvoice/station-go/pkg/device/fake"
	"github.com/grubvoice/station-go/pkg/phrase"
	"github.com/grubvoice/station-go/pkg/playback"
	"github.com/grubvoice/station-go/pkg/playback/beepplayer"
	playerfake "github.com/grubvoice/station-go/pkg/playback/fake"
	"github.com/grubvoice/station-go/pkg/station"
	"github.com/grubvoice/station-go/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "station",
	Short: "Drive-thru voice station orchestrator",
	Long: `station runs the client-side voice-interaction orchestrator for an AI
drive-thru: it owns the speaking state, the customer session, microphone
capture, utterance processing and response playback.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an interactive station simulator",
	RunE: func(cmd *cobra.Command, args []string) error {
		backendURL, _ := cmd.Flags().GetString("backend-url")
		restaurantID, _ := cmd.Flags().GetInt("restaurant")
		language, _ := cmd.Flags().GetString("language")
		phraseDir, _ := cmd.Flags().GetString("phrase-dir")
		displayURL, _ := cmd.Flags().GetString("display-url")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		silent, _ := cmd.Flags().GetBool("silent")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		logger := setupLogger()
		logger.Info("Starting station",
			slog.String("service", "station"),
			slog.String("version", version.Version),
			slog.String("backend_url", backendURL),
			slog.Int("restaurant_id", restaurantID))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var client backend.Client
		if backendURL == "" {
			logger.Info("No backend URL, using in-memory fake backend")
			client = backendfake.New()
		} else {
			httpClient, err := backend.NewHTTPClient(backend.HTTPConfig{BaseURL: backendURL}, logger)
			if err != nil {
				return err
			}
			client = httpClient
		}

		var player playback.Player
		if silent {
			player = playerfake.New()
		} else {
			player = beepplayer.New(logger)
		}

		st, err := station.New(station.Config{
			Backend:        client,
			Input:          devicefake.New(),
			Player:         player,
			Phrases:        phrase.Source{Dir: phraseDir},
			RestaurantID:   restaurantID,
			Language:       language,
			ProcessTimeout: timeout,
		}, logger)
		if err != nil {
			return err
		}
		defer st.Close(context.Background())

		if displayURL != "" {
			bridge := display.New(display.Config{
				DisplayURL: displayURL,
				StationID:  fmt.Sprintf("restaurant-%d", restaurantID),
				Client:     client,
				Feed:       st.OrderFeed(),
				SessionID:  st.SessionID,
			}, logger)
			go bridge.Run(ctx)
		}

		if metricsAddr != "" {
			expvar.Publish("speaking_transitions", st.Gate().Transitions())
			go func() {
				logger.Info("Metrics listening", slog.String("addr", metricsAddr))
				if err := http.ListenAndServe(metricsAddr, nil); err != nil {
					logger.Error("Metrics server failed", slog.String("error", err.Error()))
				}
			}()
		}

		go printNotices(ctx, st, logger)

		return runConsole(ctx, st, logger)
	},
}

// runConsole drives the station from stdin: one command per line.
func runConsole(ctx context.Context, st *station.Station, logger *slog.Logger) error {
	fmt.Println("commands: new | talk | next | state | quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch line {
			case "new", "n":
				if err := st.NewCar(ctx); err != nil {
					logger.Error("New car failed", slog.String("error", err.Error()))
				}
			case "talk", "t":
				ok, err := st.PressTalk(ctx)
				if err != nil {
					logger.Error("Press failed", slog.String("error", err.Error()))
					continue
				}
				if !ok {
					fmt.Printf("busy: %s\n", st.State())
					continue
				}
				// Simulated hold: the fake microphone records a fixed clip.
				time.Sleep(200 * time.Millisecond)
				if err := st.ReleaseTalk(ctx); err != nil {
					logger.Error("Release failed", slog.String("error", err.Error()))
				}
			case "next", "x":
				if err := st.NextCar(ctx); err != nil {
					logger.Error("Next car failed", slog.String("error", err.Error()))
				}
			case "state", "s":
				fmt.Println(st.State())
			case "quit", "q":
				return nil
			case "":
			default:
				fmt.Printf("unknown command %q\n", line)
			}
		}
	}
}

func printNotices(ctx context.Context, st *station.Station, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-st.Notices():
			if n.Err != nil {
				logger.Warn("Utterance failed",
					slog.String("session_id", n.SessionID),
					slog.String("error", n.Err.Error()))
			}
			fmt.Printf("AI: %s\n", n.Text)
		}
	}
}

func setupLogger() *slog.Logger {
	logFormat := os.Getenv("STATION_LOG_FORMAT")
	logLevel := os.Getenv("STATION_LOG_LEVEL")

	var handler slog.Handler
	opts := &slog.HandlerOptions{}

	switch logLevel {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if logFormat == "console" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func main() {
	// Optional .env for local development; missing file is fine.
	godotenv.Load()

	runCmd.Flags().String("backend-url", os.Getenv("STATION_BACKEND_URL"), "Ordering backend base URL (empty = in-memory fake)")
	runCmd.Flags().Int("restaurant", 1, "Restaurant ID this station serves")
	runCmd.Flags().String("language", "en", "Utterance language code")
	runCmd.Flags().String("phrase-dir", "assets/phrases", "Directory of canned phrase audio")
	runCmd.Flags().String("display-url", os.Getenv("STATION_DISPLAY_URL"), "Order display websocket URL (empty = no display)")
	runCmd.Flags().String("metrics-addr", "", "Address for the expvar metrics endpoint (empty = disabled)")
	runCmd.Flags().Bool("silent", false, "Use a silent player instead of the system speaker")
	runCmd.Flags().Duration("timeout", 0, "Utterance processing timeout (0 = default 20s)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
