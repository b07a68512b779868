package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	sessionbridge "github.com/opengovern/session-bridge"
	"github.com/opengovern/session-bridge/adapters"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Send requests through a session-refreshing gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", os.Getenv("SESSIONBRIDGE_CONFIG"), "gateway config file (YAML)")
	rootCmd.PersistentFlags().Bool("verbose", false, "log gateway decisions")

	rootCmd.AddCommand(
		requestCmd(),
		configCmd(),
	)
	return rootCmd
}

func requestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request <method> <path>",
		Short: "Send one request, refreshing the session on 401",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			baseURL, _ := cmd.Flags().GetString("base-url")
			data, _ := cmd.Flags().GetString("data")
			headers, _ := cmd.Flags().GetStringToString("header")

			log, flush, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer flush()

			adapter, err := adapters.NewHTTPAdapter(baseURL)
			if err != nil {
				return err
			}
			session := adapters.NewRecordingSession()
			gw, err := sessionbridge.NewGateway(adapter, session, adapters.LogNotifier{Log: log}, cfg)
			if err != nil {
				return err
			}
			gw.SetLogger(log)

			req := &sessionbridge.NormalizedRequest{
				Method:   strings.ToUpper(args[0]),
				Endpoint: args[1],
				Headers:  headers,
			}
			if data != "" {
				req.Body = []byte(data)
			}

			resp, sendErr := gw.Send(cmd.Context(), req)
			printResponse(cmd.OutOrStdout(), resp)
			if target := session.RedirectTarget(); target != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "session ended, login at %s\n", target)
			}
			return sendErr
		},
	}
	cmd.Flags().String("base-url", "http://localhost:8080", "backend base URL")
	cmd.Flags().StringP("data", "d", "", "request body")
	cmd.Flags().StringToStringP("header", "H", nil, "request header, key=value (repeatable)")
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective gateway configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func loadConfig(cmd *cobra.Command) (*sessionbridge.GatewayConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	return sessionbridge.LoadConfig(path)
}

func newLogger(cmd *cobra.Command, cfg *sessionbridge.GatewayConfig) (logr.Logger, func(), error) {
	verbose, _ := cmd.Flags().GetBool("verbose")

	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	if verbose || strings.EqualFold(cfg.LogLevel, "debug") {
		zcfg = zap.NewDevelopmentConfig()
		// logr V(1) maps to zap level -1
		zcfg.Level = zap.NewAtomicLevelAt(-1)
	}
	zapLog, err := zcfg.Build()
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("build logger: %w", err)
	}
	return zapr.NewLogger(zapLog), func() { _ = zapLog.Sync() }, nil
}

func printResponse(w io.Writer, resp *sessionbridge.NormalizedResponse) {
	if resp == nil {
		return
	}
	fmt.Fprintf(w, "HTTP %d\n", resp.StatusCode)
	if len(resp.Data) > 0 {
		fmt.Fprintln(w, strings.TrimRight(string(resp.Data), "\n"))
	}
}
