package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	fileproof "github.com/i5heu/ouroboros-fileproof"
	"github.com/i5heu/ouroboros-fileproof/apiServer"
	"github.com/i5heu/ouroboros-fileproof/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	listen := flag.String("listen", "", "listen address, overrides the config")
	dataPath := flag.String("data", "", "data directory, overrides the config")
	backend := flag.String("backend", "", "badger or memory, overrides the config")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log := logrus.New()

	conf, err := loadConfig(*configPath, *listen, *dataPath, *backend)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	level, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		log.WithError(err).Fatal("invalid log level")
	}
	if *debug {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, log); err != nil {
		log.WithError(err).Error("server stopped with error")
		os.Exit(1)
	}
}

func loadConfig(path, listen, dataPath, backend string) (config.Config, error) {
	conf, err := config.Read(path)
	if err != nil {
		return config.Config{}, err
	}

	if listen != "" {
		conf.Listen = listen
	}
	if dataPath != "" {
		conf.Paths = []string{dataPath}
	}
	if backend != "" {
		conf.Backend = backend
	}
	return conf, conf.Validate()
}

func run(ctx context.Context, conf config.Config, log *logrus.Logger) error {
	gcInterval, err := conf.GarbageCollectionInterval()
	if err != nil {
		return err
	}

	files, err := fileproof.New(fileproof.Config{
		Paths:                     conf.Paths,
		MinimumFreeGB:             int(conf.MinimumFreeGB),
		Backend:                   conf.Backend,
		Logger:                    log,
		Workers:                   conf.Workers,
		TreeCacheBytes:            conf.TreeCacheBytes,
		GarbageCollectionInterval: gcInterval,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := files.Close(); err != nil {
			log.WithError(err).Error("closing file server failed")
		}
	}()

	opts := []apiServer.Option{apiServer.WithLogger(log)}
	if conf.AuthToken != "" {
		opts = append(opts, apiServer.WithAuth(apiServer.UploadToken(conf.AuthToken)))
	}

	httpServer := &http.Server{
		Addr:              conf.Listen,
		Handler:           apiServer.New(files, opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"listen":  conf.Listen,
			"backend": conf.Backend,
			"paths":   conf.Paths,
		}).Info("serving")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
