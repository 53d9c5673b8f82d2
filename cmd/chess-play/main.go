package main

import (
	"log"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/park285/chessplay/internal/adapter/chesspresenter"
	"github.com/park285/chessplay/internal/config"
	"github.com/park285/chessplay/internal/moveclient"
	"github.com/park285/chessplay/internal/msgcat"
	"github.com/park285/chessplay/internal/obslog"
	"github.com/park285/chessplay/internal/tui"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// The terminal belongs to the UI; log to file only.
	opts := obslog.OptionsFromEnv()
	opts.Console = false
	if cfg.LogFile != "" {
		opts.File = cfg.LogFile
	} else if opts.File != "" {
		opts.File = filepath.Join(filepath.Dir(opts.File), "chess-play.log")
	}
	if err := obslog.Init(opts); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	msgs, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		log.Fatalf("messages error: %v", err)
	}

	settingsPath, err := config.SettingsPath()
	if err != nil {
		logger.Warn("settings path unavailable; choices will not be saved", zap.Error(err))
		settingsPath = ""
	}
	var stored config.PlayerSettings
	if settingsPath != "" {
		if stored, err = config.LoadSettings(settingsPath); err != nil {
			logger.Warn("ignoring saved settings", zap.Error(err))
		}
	}

	client := moveclient.NewClient(cfg.BotServiceURL,
		moveclient.WithTimeout(cfg.RequestTimeout),
		moveclient.WithLogger(logger.Named("moveclient")),
	)
	app, err := tui.New(tui.Options{
		Requester:      client,
		Settings:       stored,
		SettingsPath:   settingsPath,
		RequestTimeout: cfg.RequestTimeout,
		Formatter:      chesspresenter.NewFormatter(msgs),
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("ui init error: %v", err)
	}
	if err := app.Run(); err != nil {
		log.Fatalf("ui error: %v", err)
	}
}
