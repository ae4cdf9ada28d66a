/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package startcmd contains the command that starts the fastqueue server.
package startcmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fastqueue/fastqueue/internal/pkg/log"
	"github.com/fastqueue/fastqueue/pkg/broker"
	"github.com/fastqueue/fastqueue/pkg/cleanup"
	"github.com/fastqueue/fastqueue/pkg/healthcheck"
	"github.com/fastqueue/fastqueue/pkg/httpserver"
	"github.com/fastqueue/fastqueue/pkg/metrics"
	"github.com/fastqueue/fastqueue/pkg/queue"
	"github.com/fastqueue/fastqueue/pkg/restapi"
	"github.com/fastqueue/fastqueue/pkg/restapi/common"
	"github.com/fastqueue/fastqueue/pkg/store/postgres"
	"github.com/fastqueue/fastqueue/pkg/taskmgr"
	"github.com/fastqueue/fastqueue/pkg/topic"
)

var logger = log.New("server")

const (
	cleanupTaskID = "queue-cleanup"

	serverIdleTimeout       = 2 * time.Minute
	serverReadHeaderTimeout = 20 * time.Second
	shutdownTimeout         = 10 * time.Second
)

// GetStartCmd returns the command that starts the server.
func GetStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Starts the fastqueue server",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := getServerParams(cmd)
			if err != nil {
				return err
			}

			return startServer(params)
		},
	}

	createFlags(cmd)

	return cmd
}

func startServer(params *serverParams) error {
	setLogLevels(params.logLevel)

	ctx := context.Background()

	pool, err := postgres.Connect(ctx, params.databaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	topicStore := postgres.NewTopicStore(pool)
	queueStore := postgres.NewQueueStore(pool)
	messageStore := postgres.NewMessageStore(pool)
	coordinationStore := postgres.NewCoordinationStore(pool)

	promMetrics := metrics.Get()

	topicService := topic.New(topicStore)
	queueService := queue.New(topicStore, queueStore, messageStore, params.queueLimits)
	brokerService := broker.New(topicStore, queueStore, messageStore, promMetrics)
	cleanupService := cleanup.New(queueStore, messageStore, promMetrics)

	taskManager := taskmgr.New(coordinationStore, params.cleanupInterval)

	taskManager.RegisterTask(cleanupTaskID, params.cleanupInterval, func() {
		if err := cleanupService.Run(context.Background()); err != nil {
			logger.Errorf("Cleanup sweep failed: %s", err)
		}
	})

	handlers := restapi.New(topicService, queueService, brokerService).Handlers()

	handlers = append(handlers, healthcheck.NewHandler(pool))

	if params.enableMetrics {
		handlers = append(handlers, newMetricsHandler())
	}

	server := httpserver.New(params.address(), params.tlsCertificate, params.tlsKey,
		serverIdleTimeout, serverReadHeaderTimeout, handlers...)

	if err := server.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	taskManager.Start()

	logger.Infof("Started fastqueue server on [%s]", params.address())

	interrupt := make(chan os.Signal, 1)

	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	sig := <-interrupt

	logger.Infof("Received signal [%s], shutting down", sig)

	taskManager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop HTTP server: %w", err)
	}

	return nil
}

type metricsHandler struct{}

func newMetricsHandler() common.HTTPHandler {
	return &metricsHandler{}
}

func (h *metricsHandler) Path() string {
	return "/metrics"
}

func (h *metricsHandler) Method() string {
	return http.MethodGet
}

func (h *metricsHandler) Handler() http.HandlerFunc {
	return metrics.NewHandler().ServeHTTP
}
