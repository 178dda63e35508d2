package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/zap"

	"github.com/MrBns/wos-ally-manager/internal/app"
	"github.com/MrBns/wos-ally-manager/internal/config"
	"github.com/MrBns/wos-ally-manager/internal/logger"
)

func main() {
	envFile := flag.String("env", "", "optional .env file (default ./.env)")
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	notifier, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("app init failed", zap.Error(err))
	}
	if err := notifier.Run(context.Background()); err != nil {
		log.Fatal("app run failed", zap.Error(err))
	}
}
