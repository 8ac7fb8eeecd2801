package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"icalmerge/internal/config"
	"icalmerge/internal/google"
	"icalmerge/internal/ical"
	"icalmerge/internal/icloud"
	"icalmerge/internal/models"
	"icalmerge/internal/syncer"
)

const defaultWatchSeconds = 300

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "icalmerge",
		Usage: "Merge per-listing booking feeds into one shared calendar of booked rooms.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to a YAML config file."},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "Dotenv file loaded before reading the environment."},
			&cli.StringFlag{Name: "log-level", Usage: "Log level (debug, info, warn, error). Overrides LOG_LEVEL."},
		},
		Commands: []*cli.Command{
			authCommand(),
			syncCommand(),
			cleanCommand(),
			daysCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and builds the logger for a command.
func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"), c.String("env-file"))
	if err != nil {
		return nil, nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	return cfg, setupLogger(cfg.LogLevel), nil
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger.Info("Starting Google authentication flow.")

			oauthConfig, err := google.GetOAuthConfigForAuthFlow(googleCredentials(cfg))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, oauthConfig, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			if err := google.SaveToken(cfg.Google.TokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", cfg.Google.TokenFile)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Consolidate the booking feeds into the target calendar.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Value: true, Usage: "Run the sync cycle once and exit."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be changed without making changes."},
			&cli.IntFlag{Name: "watch", Value: defaultWatchSeconds, Usage: "Run sync every N seconds. Overrides --once."},
			&cli.IntFlag{Name: "horizon", Usage: "Sync window length in days. Overrides SYNC_HORIZON_DAYS."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("horizon") {
				cfg.HorizonDays = c.Int("horizon")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No changes will be made.")
			}

			target, err := newCalendar(c.Context, logger, cfg)
			if err != nil {
				return err
			}
			fetcher := ical.NewFetcher(logger, nil, cfg.FetchConcurrency, cfg.BlockedKeywords)
			s := syncer.NewSyncer(logger, fetcher, target, cfg.SourceList(), cfg.HorizonDays, c.Bool("dry-run"))

			interval, err := watchInterval(c.Bool("once"), c.IsSet("watch"), c.Int("watch"))
			if err != nil {
				return err
			}
			if interval > 0 {
				logger.Info("Starting watcher.", "interval", interval)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					if _, err := s.Sync(c.Context); err != nil {
						logger.Error("Sync cycle failed", "error", err)
					}
					select {
					case <-c.Context.Done():
						logger.Info("Stopping watcher.")
						return nil
					case <-ticker.C:
					}
				}
			}

			logger.Info("Running a single sync cycle.")
			if _, err := s.Sync(c.Context); err != nil {
				return fmt.Errorf("single sync cycle failed: %w", err)
			}
			return nil
		},
	}
}

func cleanCommand() *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "Remove every managed booked event in the sync window from the target calendar.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be deleted without deleting."},
			&cli.StringFlag{Name: "room", Usage: "Only remove the events of this room."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := cfg.ValidateTarget(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			target, err := newCalendar(c.Context, logger, cfg)
			if err != nil {
				return err
			}
			s := syncer.NewSyncer(logger, nil, target, cfg.SourceList(), cfg.HorizonDays, c.Bool("dry-run"))
			if _, err := s.Clean(c.Context, c.String("room")); err != nil {
				return fmt.Errorf("clean failed: %w", err)
			}
			return nil
		},
	}
}

func daysCommand() *cli.Command {
	return &cli.Command{
		Name:  "days",
		Usage: "Print the booked days of one source for a month.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Required: true, Usage: "Source key, e.g. A.airbnb."},
			&cli.StringFlag{Name: "month", Usage: "Month as YYYY-MM. Defaults to the current month."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}

			month := time.Now()
			if v := c.String("month"); v != "" {
				month, err = time.Parse("2006-01", v)
				if err != nil {
					return fmt.Errorf("invalid month %q, want YYYY-MM: %w", v, err)
				}
			}

			fetcher := ical.NewFetcher(logger, nil, 1, cfg.BlockedKeywords)
			s := syncer.NewSyncer(logger, fetcher, nil, cfg.SourceList(), cfg.HorizonDays, true)
			days, err := s.BookedDays(c.Context, c.String("source"), month)
			if err != nil {
				return err
			}

			fmt.Printf("Booked days for %s in %s: %d\n", c.String("source"), month.Format("2006-01"), len(days))
			for _, day := range days {
				fmt.Println(models.FormatDate(day))
			}
			return nil
		},
	}
}

// watchInterval decides between a single pass (0) and a watch loop. --watch
// takes precedence; --once=false without --watch watches at the default
// interval.
func watchInterval(once, watchSet bool, seconds int) (time.Duration, error) {
	if !watchSet && once {
		return 0, nil
	}
	if seconds <= 0 {
		return 0, errors.New("--watch must be a positive number of seconds")
	}
	return time.Duration(seconds) * time.Second, nil
}

// newCalendar connects to the configured target calendar.
func newCalendar(ctx context.Context, logger *slog.Logger, cfg *config.Config) (syncer.Calendar, error) {
	switch cfg.Provider {
	case config.ProviderGoogle:
		client, err := google.NewClient(ctx, logger, googleCredentials(cfg), cfg.TargetCalendarID)
		if err != nil {
			return nil, fmt.Errorf("failed to create google client: %w", err)
		}
		return client, nil
	case config.ProviderCalDAV:
		client, err := icloud.NewClient(ctx, logger, icloud.Options{
			Endpoint:     cfg.CalDAV.Endpoint,
			Username:     cfg.CalDAV.Username,
			Password:     cfg.CalDAV.Password,
			CalendarName: cfg.CalDAV.CalendarName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create caldav client: %w", err)
		}
		return client, nil
	}
	return nil, errors.New("unknown calendar provider " + cfg.Provider)
}

func googleCredentials(cfg *config.Config) google.Credentials {
	return google.Credentials{
		ClientID:        cfg.Google.ClientID,
		ClientSecret:    cfg.Google.ClientSecret,
		CredentialsFile: cfg.Google.CredentialsFile,
		TokenFile:       cfg.Google.TokenFile,
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
