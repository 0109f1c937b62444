package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/valerka1292/gemini-cli-proxy/internal/api"
	"github.com/valerka1292/gemini-cli-proxy/internal/auth"
	"github.com/valerka1292/gemini-cli-proxy/internal/config"
	"github.com/valerka1292/gemini-cli-proxy/internal/cooldown"
	"github.com/valerka1292/gemini-cli-proxy/internal/fallback"
	"github.com/valerka1292/gemini-cli-proxy/internal/geminiclient"
	"github.com/valerka1292/gemini-cli-proxy/internal/logging"
	"github.com/valerka1292/gemini-cli-proxy/internal/signature"
	"github.com/valerka1292/gemini-cli-proxy/internal/util"
	"github.com/valerka1292/gemini-cli-proxy/internal/watcher"
)

// credentialFileName is the single Code Assist credential file this proxy
// expects inside cfg.AuthDir (spec.md §1: one account per process).
const credentialFileName = "auth_token.json"

// signatureStoreFileName is the bbolt snapshot of the signature cache
// (SPEC_FULL.md §3), restored at startup and refreshed periodically so a
// restart does not forget recent thought signatures.
const signatureStoreFileName = "signature_cache.db"

// signatureSnapshotInterval is how often the signature cache is flushed to
// the bbolt store.
const signatureSnapshotInterval = 5 * time.Minute

func init() {
	logging.SetupBaseLogger()
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Configuration file path")
	flag.Parse()

	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.Fatalf("failed to get working directory: %v", err)
		}
		configPath = path.Join(wd, "config.yaml")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	expandAuthDir(cfg)

	util.SetLogLevel(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	credPath := filepath.Join(cfg.AuthDir, credentialFileName)
	authClient, err := auth.New(ctx, credPath, cfg)
	if err != nil {
		log.Fatalf("failed to load Code Assist credential: %v", err)
	}
	if err = authClient.SetupUser(ctx, cfg.Gemini.ProjectID); err != nil {
		log.Fatalf("failed to set up Code Assist project: %v", err)
	}
	log.Infof("authenticated as %s, project %s", authClient.Email(), authClient.ProjectID())

	geminiClient := geminiclient.New(authClient, cfg)

	if enabled, activationURL, errProbe := geminiClient.Probe(ctx, authClient.ProjectID()); errProbe != nil {
		log.Warnf("Cloud AI API probe failed: %v", errProbe)
	} else if !enabled {
		log.Warnf("Cloud AI API is not enabled for this project; enable it at %s", activationURL)
	}

	sigStore, err := signature.OpenStore(filepath.Join(cfg.AuthDir, signatureStoreFileName))
	if err != nil {
		log.Warnf("failed to open signature cache store, starting with an empty cache: %v", err)
	} else {
		if err = sigStore.LoadInto(signature.Global()); err != nil {
			log.Warnf("failed to restore signature cache: %v", err)
		}
		defer func() { _ = sigStore.Close() }()
		go snapshotSignatureCache(ctx, sigStore)
	}

	cooldownWindow := cfg.Fallback.CooldownDuration()
	if cooldownWindow <= 0 {
		cooldownWindow = cooldown.Default
	}
	cooldownState := cooldown.New(cooldownWindow)
	fallbackCtrl := fallback.New(cooldownState, cfg.Fallback.Enabled, cfg.Fallback.PreviewExceededDuration())

	server := api.NewServer(cfg, authClient, geminiClient, fallbackCtrl)

	fw, err := watcher.New(configPath, credPath,
		func(newCfg *config.Config) {
			expandAuthDir(newCfg)
			util.SetLogLevel(newCfg)
			server.UpdateConfig(newCfg)
		},
		func() {
			if errReload := authClient.ReloadToken(ctx, cfg); errReload != nil {
				log.Errorf("failed to reload credential file: %v", errReload)
			}
		},
	)
	if err != nil {
		log.Fatalf("failed to start config/credential watcher: %v", err)
	}
	if err = fw.Start(ctx); err != nil {
		log.Fatalf("failed to start config/credential watcher: %v", err)
	}
	defer func() { _ = fw.Stop() }()

	go func() {
		if errStart := server.Start(); errStart != nil {
			log.Fatalf("server error: %v", errStart)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err = server.Stop(shutdownCtx); err != nil {
		log.Errorf("error during shutdown: %v", err)
	}
	if sigStore != nil {
		if err = sigStore.SnapshotTo(signature.Global()); err != nil {
			log.Errorf("failed to snapshot signature cache on shutdown: %v", err)
		}
	}
}

// snapshotSignatureCache periodically flushes the process-wide signature
// cache to store until ctx is cancelled, matching the teacher's
// write-behind usage-accounting ticker.
func snapshotSignatureCache(ctx context.Context, store *signature.Store) {
	ticker := time.NewTicker(signatureSnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.SnapshotTo(signature.Global()); err != nil {
				log.Warnf("failed to snapshot signature cache: %v", err)
			}
		}
	}
}

// expandAuthDir resolves a leading "~" in cfg.AuthDir against the user's
// home directory, matching the teacher's main.go.
func expandAuthDir(cfg *config.Config) {
	if !strings.HasPrefix(cfg.AuthDir, "~") {
		return
	}
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("failed to get home directory: %v", err)
	}
	parts := strings.Split(cfg.AuthDir, string(os.PathSeparator))
	if len(parts) > 1 {
		parts[0] = home
		cfg.AuthDir = path.Join(parts...)
	} else {
		cfg.AuthDir = home
	}
}
