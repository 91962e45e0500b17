// Command scanlate runs the translation orchestration pipeline as a
// standalone process: it wires capture, OCR, the cloud/local translation
// fork-join, aggregation, and overlay dispatch together and drives them
// from the focused window until told to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"scanlate/pkg/capture"
	"scanlate/pkg/cloudtranslate"
	"scanlate/pkg/config"
	"scanlate/pkg/diagnostics"
	"scanlate/pkg/eventbus"
	"scanlate/pkg/focuswatch"
	"scanlate/pkg/localtranslate"
	"scanlate/pkg/ocrfacade/pipeclient"
	"scanlate/pkg/orchestrator"
	"scanlate/pkg/roilearner"
	"scanlate/pkg/vault"
)

func main() {
	var (
		dataDir       = flag.String("data-dir", "", "data directory for the ROI learner and session vault (default: ~/.scanlate)")
		ocrPipeName   = flag.String("ocr-pipe", `\\.\pipe\scanlate-ocr`, "named pipe the OCR engine process listens on")
		cloudEndpoint = flag.String("cloud-endpoint", "", "cloud translation endpoint (empty disables cloud translation)")
		localEndpoint = flag.String("local-endpoint", "http://127.0.0.1:11434", "local translation engine endpoint")
		localModel    = flag.String("local-model", "gemma2", "local translation model name")
		overlayAddr   = flag.String("overlay-addr", ":8743", "listen address for the overlay WebSocket bridge")
		targetLang    = flag.String("target-lang", "en", "target language")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	resolvedDataDir, err := resolveDataDir(*dataDir)
	if err != nil {
		log.Error("resolve data directory", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(resolvedDataDir, 0o700); err != nil {
		log.Error("create data directory", "error", err)
		os.Exit(1)
	}

	v, err := vault.Open(resolvedDataDir)
	if err != nil {
		log.Error("open vault", "error", err)
		os.Exit(1)
	}

	sessionToken, cloudEntitled := loadSessionToken(v, resolvedDataDir, log)

	roiLearner, err := roilearner.New(resolvedDataDir, log)
	if err != nil {
		log.Error("open ROI learner", "error", err)
		os.Exit(1)
	}

	bus := eventbus.New()
	reporter := diagnostics.New(bus, log)

	bridge := eventbus.NewWSBridge(bus, log)
	overlayServer := &http.Server{Addr: *overlayAddr, Handler: bridge.Handler()}
	go func() {
		if err := overlayServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("overlay server", "error", err)
		}
	}()

	focus := focuswatch.Start()
	defer focus.Close()

	cfg := config.Default()
	cfg.Translation.TargetLanguage = *targetLang

	deps := orchestrator.Dependencies{
		Capture:       capture.NewWindowsDriver(),
		OCR:           pipeclient.New(*ocrPipeName),
		Local:         localtranslate.NewClient(*localEndpoint, *localModel),
		ROI:           roiLearner,
		Focus:         focus,
		Bus:           bus,
		Diagnostics:   reporter,
		SessionToken:  sessionToken,
		CloudEntitled: cloudEntitled,
	}
	if *cloudEndpoint != "" {
		deps.Cloud = cloudtranslate.NewClient(*cloudEndpoint, nil)
	}

	orch := orchestrator.New(deps, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	if err := deps.OCR.Initialize(ctx); err != nil {
		log.Error("initialize OCR engine", "error", err)
		os.Exit(1)
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	startWindow := capture.ForegroundWindow()
	if err := orch.Start(ctx, startWindow); err != nil {
		log.Error("start orchestrator", "error", err)
		os.Exit(1)
	}
	log.Info("translation pipeline running", "window", startWindow, "overlay_addr", *overlayAddr)

	<-ctx.Done()

	if err := orch.Stop(); err != nil {
		log.Error("stop orchestrator", "error", err)
	}
	if err := orch.Dispose(); err != nil {
		log.Error("dispose orchestrator", "error", err)
	}
	_ = overlayServer.Close()
	log.Info("shutdown complete")
}

func resolveDataDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, ".scanlate"), nil
}

// loadSessionToken reads the sealed cloud session token from the data
// directory's token file, if present. Its absence just means cloud
// translation stays disabled for this run, not a startup failure: the
// pipeline is fully functional on the local engine alone.
func loadSessionToken(v *vault.Vault, dataDir string, log *slog.Logger) (token string, entitled bool) {
	path := filepath.Join(dataDir, "session.token")
	sealed, err := os.ReadFile(path)
	if err != nil {
		log.Info("no cloud session token on disk, cloud translation disabled")
		return "", false
	}
	token, err = v.DecryptToken(string(sealed))
	if err != nil {
		log.Warn("session token could not be decrypted, cloud translation disabled", "error", err)
		return "", false
	}
	return token, true
}
