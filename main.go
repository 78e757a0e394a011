package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"ragmine/internal/app"
	"ragmine/internal/config"
	"ragmine/internal/logger"
)

func main() {
	slog.SetDefault(slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	application, err := app.New(ctx, cfg, deps)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	consumers := startConsumers(cfg, application)
	defer func() {
		for _, c := range consumers {
			c.Stop()
		}
		deps.NSQProducer.Stop()
	}()

	if err := application.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func startConsumers(cfg *config.Config, application *app.App) []*nsq.Consumer {
	handlers := map[string]nsq.Handler{
		config.TopicDocumentIngest:  application.IngestConsumer,
		config.TopicWebsiteCrawl:    application.CrawlConsumer,
		config.TopicWorkspaceDelete: application.DeleteConsumer,
	}

	var consumers []*nsq.Consumer
	for topic, handler := range handlers {
		consumer, err := nsq.NewConsumer(topic, "ragmine", nsq.NewConfig())
		if err != nil {
			slog.Error("failed to create NSQ consumer", "topic", topic, "error", err)
			continue
		}
		consumer.AddHandler(handler)
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect to NSQLookupd", "topic", topic, "error", err)
			continue
		}
		slog.Info("NSQ consumer connected", "topic", topic)
		consumers = append(consumers, consumer)
	}
	return consumers
}
