package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/autogoal/internal/agent"
	"github.com/rahul/autogoal/internal/gateway"
	"github.com/rahul/autogoal/internal/observability"
	"github.com/rahul/autogoal/pkg/config"
)

var (
	runOnce     bool
	metricsAddr string
	scanCreate  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the coordinator loop",
	Long: `Recovers interrupted work, then runs a cycle immediately and on every
coordinator interval: scan, prioritize, select, plan, execute, finalize.

Enabled chat gateways receive notifications and accept /goals, /submit,
/cancel and /resume commands. Stop with Ctrl+C; a step cut short is failed
and its goal blocked on the next start.`,
	RunE: runCoordinator,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the environmental scan once and print findings",
	RunE:  runScan,
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "recover, run a single cycle and exit")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics, /healthz and /status on this address")
	scanCmd.Flags().BoolVar(&scanCreate, "create", false, "turn findings into goals")
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runOnce {
		coord, err := a.newCoordinator(nil, "")
		if err != nil {
			return err
		}
		if err := coord.Recover(ctx); err != nil {
			return err
		}
		if err := coord.RunCycle(ctx); err != nil {
			return err
		}
		observability.PrintStatus(cmd.OutOrStdout(), coord.Status().Snapshot())
		return nil
	}

	observability.PrintBanner(os.Stderr)

	addr := metricsAddr
	if addr == "" && a.cfg.Metrics.Enabled {
		addr = a.cfg.Metrics.Addr
	}
	if addr != "" {
		a.metrics.StartServer(ctx, addr, a.status, a.logger)
	}

	gateways, broadcast, err := openGateways(a)
	if err != nil {
		return err
	}
	coord, err := a.newCoordinator(broadcast, "")
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, gw := range gateways {
		g.Go(func() error {
			if err := gw.Start(gctx); err != nil {
				// A dead gateway costs notifications, not progress on goals.
				a.logger.Error("gateway stopped", zap.Error(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		return coord.Start(gctx)
	})
	g.Go(func() error {
		printStatusLoop(gctx, coord.Status())
		return nil
	})

	// Gateways shut themselves down when gctx ends.
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("autogoal stopped")
	return nil
}

// openGateways returns every enabled gateway and, when any has a chat id, the
// messenger that notifies them.
func openGateways(a *app) ([]gateway.Messenger, agent.Messenger, error) {
	var (
		gateways  []gateway.Messenger
		broadcast gateway.Broadcast
	)
	open := func(name string, gc config.GatewayConfig, ok bool, dial func(token string, commands *gateway.Commands) (gateway.Messenger, error)) error {
		if !ok {
			return nil
		}
		chats := gc.CommandChats()
		if len(chats) == 0 {
			a.logger.Warn("gateway has no chat_id or allowed_chats; all commands will be refused", zap.String("gateway", name))
		}
		gw, err := dial(gc.Token, gateway.NewCommands(a.engine, chats...))
		if err != nil {
			return fmt.Errorf("%s gateway: %w", name, err)
		}
		gateways = append(gateways, gw)
		if gc.ChatID != "" {
			broadcast.Targets = append(broadcast.Targets, gateway.Target{Messenger: gw, ChatID: gc.ChatID})
		}
		return nil
	}

	tg, ok := a.cfg.GetTelegramConfig()
	if err := open("telegram", tg, ok, func(token string, commands *gateway.Commands) (gateway.Messenger, error) {
		return gateway.NewTelegramGateway(token, commands, a.logger)
	}); err != nil {
		return nil, nil, err
	}
	dc, ok := a.cfg.GetDiscordConfig()
	if err := open("discord", dc, ok, func(token string, commands *gateway.Commands) (gateway.Messenger, error) {
		return gateway.NewDiscordGateway(token, commands, a.logger)
	}); err != nil {
		return nil, nil, err
	}

	if len(broadcast.Targets) == 0 {
		return gateways, nil, nil
	}
	return gateways, &broadcast, nil
}

func printStatusLoop(ctx context.Context, status *observability.SystemStatus) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.PrintStatus(os.Stderr, status.Snapshot())
		}
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.newScanner()
	if err != nil {
		return err
	}
	findings := s.Scan(cmd.Context())
	out := cmd.OutOrStdout()
	if len(findings) == 0 {
		fmt.Fprintln(out, "No findings.")
		return nil
	}
	for _, f := range findings {
		fmt.Fprintf(out, "[%s] %s\n", f.Source, f.Text)
	}

	if !scanCreate {
		return nil
	}
	created, err := a.engine.Generator.Generate(cmd.Context(), findings)
	for _, g := range created {
		fmt.Fprintf(out, "created goal #%d (%s, priority %d): %s\n", g.ID, g.Type, g.Priority, g.Description)
	}
	return err
}
