package main

import (
	"context"
	"convmem/internal/httpapi"
	"convmem/src/conversation"
	"convmem/src/logger"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	userID      string
	username    string
	message     string
	response    string
	intent      string
	budget      int
	format      string
	detectClear bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the memory core over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		httpServer := &http.Server{
			Addr:              a.cfg.HTTPConfig.Addr,
			Handler:           httpapi.New(a.service, a.metrics, a.recency).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("listen error: %w", err)
			}
		case <-ctx.Done():
			logger.Info().Msg("Shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Graceful shutdown failed")
			_ = httpServer.Close()
		}
		logger.Info().Msg("Shutdown complete")
		return nil
	},
}

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Store a completed turn",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if detectClear {
				cleared, result, err := a.service.ClearIfRequested(ctx, userID, message, intent)
				if cleared {
					if err != nil {
						return err
					}
					return printJSON(result)
				}
			}

			result, err := a.service.Append(ctx, userID, conversation.TurnInput{
				Username: username,
				Message:  message,
				Response: response,
				Intent:   intent,
			})
			if err != nil {
				return err
			}
			for _, w := range result.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %v\n", w)
			}
			return printJSON(result.Turn)
		})
	},
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Assemble the context for a message",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			assembled := a.service.Assemble(ctx, userID, message, budget)
			switch format {
			case "json":
				return printJSON(assembled)
			case "nlu":
				fmt.Println(conversation.NewNLUStrategy(0).BuildContext(assembled))
			case "text":
				fmt.Println(conversation.PresentationStrategy{}.BuildContext(assembled))
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete a user's recency window and semantic records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			result, err := a.service.Clear(ctx, userID)
			if perr := printJSON(result); perr != nil {
				return perr
			}
			return err
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is remembered for a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			status, err := a.service.Status(ctx, userID)
			if err != nil {
				return err
			}
			return printJSON(status)
		})
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Analyze a user's conversation cadence and focus",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			report, err := a.service.Patterns(ctx, userID)
			if err != nil {
				return err
			}
			return printJSON(report)
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize a user's conversation in chunks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			summary, err := a.service.Summarize(ctx, userID)
			if err != nil {
				return err
			}
			return printJSON(summary)
		})
	},
}

func withApp(cmd *cobra.Command, run func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return run(ctx, a)
}

func printJSON(v any) error {
	out, err := sonic.ConfigDefault.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	for _, cmd := range []*cobra.Command{appendCmd, contextCmd, clearCmd, statusCmd, patternsCmd, summaryCmd} {
		cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
		_ = cmd.MarkFlagRequired("user")
	}

	appendCmd.Flags().StringVar(&username, "username", "", "display name of the user")
	appendCmd.Flags().StringVarP(&message, "message", "m", "", "user message")
	appendCmd.Flags().StringVarP(&response, "response", "r", "", "system response")
	appendCmd.Flags().StringVarP(&intent, "intent", "i", "", "intent label from the upstream classifier")
	appendCmd.Flags().BoolVar(&detectClear, "detect-clear", false, "clear the history instead when the message asks for it")
	_ = appendCmd.MarkFlagRequired("message")

	contextCmd.Flags().StringVarP(&message, "message", "m", "", "current user message")
	contextCmd.Flags().IntVarP(&budget, "budget", "b", 0, "character budget (0 uses MAX_BUDGET)")
	contextCmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, nlu or json")

	rootCmd.AddCommand(serveCmd, appendCmd, contextCmd, clearCmd, statusCmd, patternsCmd, summaryCmd)
}
