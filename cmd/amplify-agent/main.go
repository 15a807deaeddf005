// Package main provides the entry point for the amplify agent.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/amplifylabs/amplify-agent/internal/backend"
	"github.com/amplifylabs/amplify-agent/internal/bridge"
	"github.com/amplifylabs/amplify-agent/internal/browser"
	"github.com/amplifylabs/amplify-agent/internal/config"
	"github.com/amplifylabs/amplify-agent/internal/diag"
	"github.com/amplifylabs/amplify-agent/internal/identity"
	"github.com/amplifylabs/amplify-agent/internal/metrics"
	"github.com/amplifylabs/amplify-agent/internal/modal"
	"github.com/amplifylabs/amplify-agent/internal/runtime"
	"github.com/amplifylabs/amplify-agent/internal/selectors"
	"github.com/amplifylabs/amplify-agent/internal/tui"
	"github.com/amplifylabs/amplify-agent/internal/types"
	"github.com/amplifylabs/amplify-agent/internal/wallet"
	"github.com/amplifylabs/amplify-agent/pkg/version"
)

func main() {
	cfg := config.Load()

	// Logging first so validation warnings are visible.
	setupLogging(cfg)
	cfg.Validate()

	printBanner()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	selMgr, err := selectors.NewManager(cfg.SelectorsPath, cfg.SelectorsHotReload)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize selectors")
	}
	defer selMgr.Close()

	log.Info().Msg("Connecting to browser...")
	b, err := browser.Connect(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to browser")
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Msg("Browser close error")
		}
	}()

	page, err := openWorkingPage(b, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open working page")
	}

	host := browser.NewHost(page, selMgr.Get)

	// Bridge and wallet provider.
	br := bridge.New(host, bridge.Options{
		QueueSize:      cfg.BridgeQueueSize,
		RequestTimeout: cfg.BridgeRequestTimeout,
	})
	defer br.Close()

	uninstall, err := host.InstallBridge(br)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to install bridge scripts")
	}
	defer uninstall()

	provider := wallet.NewPhantom(br)

	// Backend client and eligibility resolver.
	client := backend.New(cfg.APIBase, cfg.BackendTimeout)
	resolver := identity.NewResolver(client)

	// Payment flow rendered into the page.
	overlay := browser.NewOverlay(page)
	defer overlay.Close()

	controller := modal.New(overlay, provider, modal.Options{
		SafetyTimeout:    cfg.ModalSafetyTimeout,
		SuccessAutoClose: cfg.SuccessAutoClose,
		DefaultAmount:    cfg.DefaultTipAmount,
	})
	controller.OnTip = func(rec types.TipRecord) {
		metrics.RecordTip(rec.Amount)
		reportCtx, cancel := context.WithTimeout(context.Background(), cfg.BackendTimeout)
		defer cancel()
		if err := client.RecordTip(reportCtx, rec); err != nil {
			log.Warn().Err(err).Str("signature", rec.Signature).Msg("Tip report failed")
		}
	}
	overlay.OnEvent(func(ev browser.UIEvent) {
		switch ev.Action {
		case "close":
			if err := controller.Close(); err != nil {
				log.Debug().Err(err).Msg("Overlay close refused")
			}
		case "amount":
			if err := controller.SetAmount(ev.Amount); err != nil {
				log.Debug().Err(err).Float64("amount", ev.Amount).Msg("Amount rejected")
			}
		case "confirm":
			go func() {
				if err := controller.Confirm(context.Background()); err != nil {
					log.Debug().Err(err).Msg("Confirmation did not complete")
				}
			}()
		}
	})

	coord := runtime.New(host, resolver, controller, selMgr.Get, runtime.Options{
		NavPollInterval:   cfg.NavPollInterval,
		SettleDelay:       cfg.SettleDelay,
		FindRetryInterval: cfg.FindRetryInterval,
		ClickFlowDelay:    cfg.ClickModalDelay,
	})

	metrics.SetBuildInfo(version.Full(), version.GoVersion())
	stopCh := make(chan struct{})
	go metrics.StartMemoryCollector(10*time.Second, stopCh)
	defer close(stopCh)

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return coord.Run(runCtx)
	})

	// Non-fatal readiness probe: wallet calls stay queued until the
	// provider script announces itself, but a silent page is worth a warning.
	g.Go(func() error {
		readyCtx, cancel := context.WithTimeout(runCtx, cfg.BridgeReadyTimeout)
		defer cancel()
		if err := br.WaitReady(readyCtx); err != nil && runCtx.Err() == nil {
			log.Warn().Dur("timeout", cfg.BridgeReadyTimeout).Msg("Provider script has not announced readiness")
		}
		return nil
	})

	if cfg.DiagEnabled {
		server := diag.New(cfg.DiagHost, cfg.DiagPort, func() map[string]interface{} {
			return statusSnapshot(br, coord, controller)
		})
		g.Go(server.Start)
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if cfg.TUIEnabled {
		ui, uiDone := tui.Start()
		g.Go(func() error {
			defer ui.Stop()
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return nil
				case err := <-uiDone:
					// User quit the view; treat as shutdown.
					stop()
					return err
				case <-ticker.C:
					ui.SetStatus(uiStatus(br, coord, controller))
				}
			}
		})
	}

	backendCtx, cancel := context.WithTimeout(ctx, cfg.BackendTimeout)
	if err := client.Health(backendCtx); err != nil {
		log.Warn().Err(err).Str("api", cfg.APIBase).Msg("Backend not reachable, eligibility checks will fail until it is")
	}
	cancel()

	log.Info().
		Str("api", cfg.APIBase).
		Bool("diag", cfg.DiagEnabled).
		Msg("Agent is running")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Agent stopped with error")
	}

	log.Info().Msg("Shutdown complete")
}

// openWorkingPage prefers an already-open watch page when attached to a
// running browser, otherwise opens a fresh one.
func openWorkingPage(b *rod.Browser, cfg *config.Config) (*rod.Page, error) {
	if cfg.ControlURL != "" {
		page, err := browser.AttachToExisting(b)
		if err != nil {
			return nil, err
		}
		if page != nil {
			if _, err := page.Activate(); err != nil {
				log.Debug().Err(err).Msg("Page activation failed")
			}
			return page, nil
		}
	}
	return browser.OpenPage(b, cfg.StartURL)
}

// setupLogging configures zerolog: console output, plus a rotating file
// when configured.
func setupLogging(cfg *config.Config) {
	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	var out io.Writer = console
	if cfg.LogFile != "" {
		out = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		})
	}
	log.Logger = log.Output(out)

	switch cfg.LogLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func statusSnapshot(br *bridge.Bridge, coord *runtime.Coordinator, controller *modal.Controller) map[string]interface{} {
	snapshot := map[string]interface{}{
		"bridge_ready": br.Ready(),
		"flow_phase":   string(controller.Phase()),
	}
	if sess := coord.Session(); sess != nil {
		snapshot["session"] = sess.ID
		snapshot["video"] = sess.VideoID
		if creator, checked := sess.Creator(); checked && creator != nil {
			snapshot["creator"] = creator.ChannelName
		}
	}
	return snapshot
}

func uiStatus(br *bridge.Bridge, coord *runtime.Coordinator, controller *modal.Controller) tui.Status {
	s := tui.Status{
		BridgeReady: br.Ready(),
		FlowPhase:   string(controller.Phase()),
	}
	if sess := coord.Session(); sess != nil {
		s.URL = sess.URL
		s.VideoID = sess.VideoID
		if creator, checked := sess.Creator(); checked && creator != nil {
			s.Creator = creator.ChannelName
			s.Eligible = true
		}
	}
	return s
}

// printBanner prints the startup banner.
func printBanner() {
	banner := `
    _                    _ _  __
   / \   _ __ ___  _ __ | (_)/ _|_   _
  / _ \ | '_ ' _ \| '_ \| | | |_| | | |
 / ___ \| | | | | | |_) | | |  _| |_| |
/_/   \_\_| |_| |_| .__/|_|_|_|  \__, |
                  |_|            |___/  agent
`
	fmt.Println(banner)
	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Msg("Starting amplify-agent")
}
