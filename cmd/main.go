package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	logrusr "github.com/bombsimon/logrusr/v2"
	log_prefixed "github.com/chappjc/logrus-prefix"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/jacobweinstock/tftpboot"
	"github.com/jacobweinstock/tftpboot/arp"
	"github.com/jacobweinstock/tftpboot/backend/controller"
	"github.com/jacobweinstock/tftpboot/backend/file"
	"github.com/jacobweinstock/tftpboot/config"
	"github.com/jacobweinstock/tftpboot/event"
	"github.com/jacobweinstock/tftpboot/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := pflag.String("config", "", "path to the configuration file")
	pflag.Parse()

	cfg, err := loadConfig(*configPath, bootstrapLogger(os.Stderr))
	if err != nil {
		os.Exit(1)
	}
	l := newLogger(cfg.Logging)

	ctx, done := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer done()
	if err := run(ctx, cfg, l); err != nil {
		l.Error(err, "tftpboot stopped")
		os.Exit(1)
	}
}

// bootstrapLogger is used until the configured logger exists.
func bootstrapLogger(w io.Writer) logr.Logger {
	return stdr.NewWithOptions(log.New(w, "", log.LstdFlags), stdr.Options{LogCaller: stdr.All})
}

func loadConfig(path string, l logr.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		l.Error(err, "failed to load configuration", "path", path)
		return nil, err
	}
	l.Info("configuration loaded", "path", path, "root", cfg.TFTP.Root)
	return cfg, nil
}

func newLogger(c config.LoggingConfig) logr.Logger {
	logrusLog := logrus.New()
	if c.Format == "json" {
		logrusLog.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrusLog.SetFormatter(&log_prefixed.TextFormatter{
			FullTimestamp: true,
		})
	}
	if c.Level == "debug" {
		logrusLog.SetLevel(logrus.DebugLevel)
	}
	return logrusr.New(logrusLog)
}

func run(ctx context.Context, cfg *config.Config, l logr.Logger) error {
	reg := prometheus.NewRegistry()
	rec := metrics.NewNoop()
	if cfg.Metrics.Enabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec = metrics.NewPrometheus(reg)
	}

	b, err := tftpboot.NewBackend(cfg.TFTP.Root, cfg.TFTP.Generator)
	if err != nil {
		return err
	}
	b.ClusterUUID = cfg.ClusterUUID
	b.MACs = arp.Table{}
	b.Metrics = rec
	b.Log = l.WithName("backend")
	if cfg.Events.URL != "" {
		b.Events = event.HTTP{URL: cfg.Events.URL, Client: &http.Client{Timeout: cfg.Controller.Timeout}}
	} else {
		b.Events = event.Log{Log: l.WithName("event")}
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Parameters.File != "" {
		f, err := file.NewFile(cfg.Parameters.File, l.WithName("parameters"))
		if err != nil {
			return fmt.Errorf("failed to load parameters file: %w", err)
		}
		defer f.Close()
		g.Go(func() error {
			f.StartWatcher(ctx)
			return nil
		})
		b.Fetcher = f
	} else {
		b.Fetcher = controller.New(cfg.Controller.Timeout, l.WithName("controller"))
	}

	svc := &tftpboot.Service{
		Port:       cfg.TFTP.Port,
		Backend:    b,
		Interfaces: tftpboot.SystemInterfaces{},
		Log:        l.WithName("service"),
		Metrics:    rec,
		Timeout:    cfg.TFTP.Timeout,
		Retries:    cfg.TFTP.Retries,
	}
	g.Go(func() error {
		return svc.Run(ctx)
	})

	// SIGHUP reconciles the listeners right away, e.g. after an address change.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				svc.Trigger()
			}
		}
	})

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              net.JoinHostPort("", strconv.Itoa(int(cfg.Metrics.Port))),
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			l.Info("serving metrics", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	l.Info("starting tftpboot", "root", cfg.TFTP.Root, "port", cfg.TFTP.Port, "generator", cfg.TFTP.Generator)
	err = g.Wait()
	b.Wait()
	return err
}
