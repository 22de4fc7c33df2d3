package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/lumenhq/lumen/api"
	"github.com/lumenhq/lumen/hive"
	"github.com/lumenhq/lumen/hue"
	"github.com/lumenhq/lumen/secrets"
	"github.com/lumenhq/lumen/session"
)

var (
	port          int
	dataDir       string
	demoMode      bool
	cognitoRegion string
	cognitoPool   string
	cognitoClient string
	tlsCert       string
	tlsKey        string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the control panel backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		keychain := secrets.DefaultKeychain(filepath.Join(dataDir, "encryption.key"))
		key, err := keychain.Key()
		if err != nil {
			return fmt.Errorf("loading encryption key: %w", err)
		}

		store, err := secrets.NewStore(filepath.Join(dataDir, "hive-credentials.json"), key,
			secrets.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("opening credential store: %w", err)
		}

		sessions := session.NewManager()
		sessions.StartSweeper()
		defer sessions.Close()

		auditStore, err := api.OpenAuditStore(filepath.Join(dataDir, "audit.db"))
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}
		defer auditStore.Close()

		opts := []api.Option{
			api.WithLogger(logger),
			api.WithAuditStore(auditStore),
		}

		if cognitoRegion != "" && cognitoPool != "" && cognitoClient != "" {
			provider, err := hive.NewCognitoProvider(hive.CognitoConfig{
				Region:     cognitoRegion,
				UserPoolID: cognitoPool,
				ClientID:   cognitoClient,
			})
			if err != nil {
				return fmt.Errorf("configuring identity provider: %w", err)
			}
			opts = append(opts, api.WithHiveFlow(
				hive.NewFlow(store, provider, hive.WithFlowLogger(logger))))
		}

		if demoMode {
			demoStore, err := secrets.NewStore(filepath.Join(dataDir, "demo-credentials.json"), key,
				secrets.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("opening demo credential store: %w", err)
			}
			opts = append(opts, api.WithDemoFlow(
				hive.NewFlow(demoStore, hive.NewDemoProvider(), hive.WithFlowLogger(logger))))
		}

		a := api.New(sessions, hue.New(), store, opts...)
		a.StartSweeper()
		defer a.Close()

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if tlsCert != "" && tlsKey != "" {
				err = server.ListenAndServeTLS(tlsCert, tlsKey)
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (data: %s)...\n", port, dataDir)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().BoolVar(&demoMode, "demo", false, "Enable the built-in demo identity provider")
	serverCmd.Flags().StringVar(&cognitoRegion, "cognito-region", "eu-west-1", "Cognito region for Hive login")
	serverCmd.Flags().StringVar(&cognitoPool, "cognito-pool", "", "Cognito user pool ID for Hive login")
	serverCmd.Flags().StringVar(&cognitoClient, "cognito-client", "", "Cognito app client ID for Hive login")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}
