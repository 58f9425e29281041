package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/routeauth"
	"github.com/jrsteele09/go-auth-gateway/server"
	"github.com/jrsteele09/go-auth-gateway/tokenstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	settingsPath      string
	errPanicRecovered = errors.New("panic recovered")
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Authenticating reverse proxy",
	Long: `The gateway signs users in against an OpenID provider, keeps their tokens
server side and forwards API calls to backend clusters with the credential
each route is configured for.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging(config.New())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		for {
			err := run()
			if errors.Is(err, errPanicRecovered) {
				log.Err(err).Msg("Restarting server")
				time.Sleep(1 * time.Second)
				continue
			}
			if err != nil {
				return err
			}
			log.Info().Msg("Server stopped")
			return nil
		}
	},
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Validate the settings file and print the forwarding routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := config.New()
		settings, err := config.LoadSettings(settingsFile(c))
		if err != nil {
			return err
		}
		srv, err := server.New(c, settings, server.Deps{Store: tokenstore.NewInMemoryStore()})
		if err != nil {
			return err
		}
		for _, route := range srv.Routes() {
			strategy := settings.Routing.Routes[route.ID].AuthenticationStrategy
			if strategy == "" {
				strategy = routeauth.KeyNoAuthentication
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-40s %s\n", route.ID, route.Match.Path, strategy)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Path to the gateway settings file (env: GATEWAY_SETTINGS)")
	rootCmd.AddCommand(serveCmd, routesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errPanicRecovered
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	settings, err := config.LoadSettings(settingsFile(c))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := newTokenStore(ctx, c)
	if err != nil {
		return err
	}
	defer closeStore()

	cleaner := tokenstore.NewCleaner(store, c.GetTokenCleanupInterval())
	cleaner.Start(ctx)
	defer cleaner.Stop()

	handler, err := server.New(c, settings, server.Deps{Store: store})
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// newTokenStore uses Redis when REDIS_ADDR is set and memory otherwise.
func newTokenStore(ctx context.Context, c config.Config) (tokenstore.Store, func(), error) {
	if c.GetRedisAddr() == "" {
		log.Warn().Msg("REDIS_ADDR not set, sessions are kept in memory")
		return tokenstore.NewInMemoryStore(), func() {}, nil
	}
	store, err := tokenstore.NewRedisStore(ctx, tokenstore.RedisOptions{
		Addr:      c.GetRedisAddr(),
		Password:  c.GetRedisPassword(),
		DB:        c.GetRedisDB(),
		KeyPrefix: c.GetRedisKeyPrefix(),
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("addr", c.GetRedisAddr()).Msg("Using redis token store")
	return store, func() { _ = store.Close() }, nil
}

func settingsFile(c config.Config) string {
	if settingsPath != "" {
		return settingsPath
	}
	return c.GetSettingsPath()
}

func configureLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
