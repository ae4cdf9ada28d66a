/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fastqueue/fastqueue/internal/pkg/cmdutil"
	"github.com/fastqueue/fastqueue/pkg/queue"
)

const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 8000
	defaultCleanupInterval = 60 * time.Second

	commonEnvVarUsageText = "Alternatively, this can be set with the following environment variable: "

	hostFlagName  = "host"
	hostEnvKey    = "FASTQUEUE_SERVER_HOST"
	hostFlagUsage = "Host to bind the HTTP server to. " + commonEnvVarUsageText + hostEnvKey

	portFlagName  = "port"
	portEnvKey    = "FASTQUEUE_SERVER_PORT"
	portFlagUsage = "Port to bind the HTTP server to. " + commonEnvVarUsageText + portEnvKey

	databaseURLFlagName  = "database-url"
	databaseURLEnvKey    = "FASTQUEUE_DATABASE_URL"
	databaseURLFlagUsage = "The URL of the PostgreSQL database (required). " +
		commonEnvVarUsageText + databaseURLEnvKey

	tlsCertificateFlagName  = "tls-certificate"
	tlsCertificateEnvKey    = "FASTQUEUE_TLS_CERTIFICATE"
	tlsCertificateFlagUsage = "TLS certificate for the HTTP server (optional). " +
		commonEnvVarUsageText + tlsCertificateEnvKey

	tlsKeyFlagName  = "tls-key"
	tlsKeyEnvKey    = "FASTQUEUE_TLS_KEY"
	tlsKeyFlagUsage = "TLS key for the HTTP server (optional). " + commonEnvVarUsageText + tlsKeyEnvKey

	logLevelFlagName  = "log-level"
	logLevelEnvKey    = "FASTQUEUE_LOG_LEVEL"
	logLevelFlagUsage = "Sets logging levels for individual modules as well as the default level. " +
		"The format of the string is as follows: module1=level1:module2=level2:defaultLevel. " +
		"Supported levels are: panic, fatal, error, warn, info, debug. " +
		commonEnvVarUsageText + logLevelEnvKey

	cleanupIntervalFlagName  = "queue-cleanup-interval"
	cleanupIntervalEnvKey    = "FASTQUEUE_QUEUE_CLEANUP_INTERVAL_SECONDS"
	cleanupIntervalFlagUsage = "Interval (in seconds) between cleanup sweeps. " +
		commonEnvVarUsageText + cleanupIntervalEnvKey

	enableMetricsFlagName  = "enable-prometheus-metrics"
	enableMetricsEnvKey    = "FASTQUEUE_ENABLE_PROMETHEUS_METRICS"
	enableMetricsFlagUsage = "Enables the Prometheus exposition endpoint. " +
		commonEnvVarUsageText + enableMetricsEnvKey

	minAckDeadlineFlagName  = "queue-min-ack-deadline"
	minAckDeadlineEnvKey    = "FASTQUEUE_QUEUE_MIN_ACK_DEADLINE_SECONDS"
	minAckDeadlineFlagUsage = "Minimum allowed ack_deadline_seconds on a queue. " +
		commonEnvVarUsageText + minAckDeadlineEnvKey

	maxAckDeadlineFlagName  = "queue-max-ack-deadline"
	maxAckDeadlineEnvKey    = "FASTQUEUE_QUEUE_MAX_ACK_DEADLINE_SECONDS"
	maxAckDeadlineFlagUsage = "Maximum allowed ack_deadline_seconds on a queue. " +
		commonEnvVarUsageText + maxAckDeadlineEnvKey

	minRetentionFlagName  = "queue-min-message-retention"
	minRetentionEnvKey    = "FASTQUEUE_QUEUE_MIN_MESSAGE_RETENTION_SECONDS"
	minRetentionFlagUsage = "Minimum allowed message_retention_seconds on a queue. " +
		commonEnvVarUsageText + minRetentionEnvKey

	maxRetentionFlagName  = "queue-max-message-retention"
	maxRetentionEnvKey    = "FASTQUEUE_QUEUE_MAX_MESSAGE_RETENTION_SECONDS"
	maxRetentionFlagUsage = "Maximum allowed message_retention_seconds on a queue. " +
		commonEnvVarUsageText + maxRetentionEnvKey

	minMaxDeliveriesFlagName  = "queue-min-message-max-deliveries"
	minMaxDeliveriesEnvKey    = "FASTQUEUE_QUEUE_MIN_MESSAGE_MAX_DELIVERIES"
	minMaxDeliveriesFlagUsage = "Minimum allowed message_max_deliveries on a queue. " +
		commonEnvVarUsageText + minMaxDeliveriesEnvKey

	maxMaxDeliveriesFlagName  = "queue-max-message-max-deliveries"
	maxMaxDeliveriesEnvKey    = "FASTQUEUE_QUEUE_MAX_MESSAGE_MAX_DELIVERIES"
	maxMaxDeliveriesFlagUsage = "Maximum allowed message_max_deliveries on a queue. " +
		commonEnvVarUsageText + maxMaxDeliveriesEnvKey

	minDeliveryDelayFlagName  = "queue-min-delivery-delay"
	minDeliveryDelayEnvKey    = "FASTQUEUE_QUEUE_MIN_DELIVERY_DELAY_SECONDS"
	minDeliveryDelayFlagUsage = "Minimum allowed delivery_delay_seconds on a queue. " +
		commonEnvVarUsageText + minDeliveryDelayEnvKey

	maxDeliveryDelayFlagName  = "queue-max-delivery-delay"
	maxDeliveryDelayEnvKey    = "FASTQUEUE_QUEUE_MAX_DELIVERY_DELAY_SECONDS"
	maxDeliveryDelayFlagUsage = "Maximum allowed delivery_delay_seconds on a queue. " +
		commonEnvVarUsageText + maxDeliveryDelayEnvKey
)

type serverParams struct {
	host            string
	port            int
	databaseURL     string
	tlsCertificate  string
	tlsKey          string
	logLevel        string
	cleanupInterval time.Duration
	enableMetrics   bool
	queueLimits     queue.Limits
}

func (p *serverParams) address() string {
	return fmt.Sprintf("%s:%d", p.host, p.port)
}

func createFlags(cmd *cobra.Command) {
	cmd.Flags().StringP(hostFlagName, "", "", hostFlagUsage)
	cmd.Flags().StringP(portFlagName, "", "", portFlagUsage)
	cmd.Flags().StringP(databaseURLFlagName, "", "", databaseURLFlagUsage)
	cmd.Flags().StringP(tlsCertificateFlagName, "", "", tlsCertificateFlagUsage)
	cmd.Flags().StringP(tlsKeyFlagName, "", "", tlsKeyFlagUsage)
	cmd.Flags().StringP(logLevelFlagName, "", "", logLevelFlagUsage)
	cmd.Flags().StringP(cleanupIntervalFlagName, "", "", cleanupIntervalFlagUsage)
	cmd.Flags().StringP(enableMetricsFlagName, "", "", enableMetricsFlagUsage)
	cmd.Flags().StringP(minAckDeadlineFlagName, "", "", minAckDeadlineFlagUsage)
	cmd.Flags().StringP(maxAckDeadlineFlagName, "", "", maxAckDeadlineFlagUsage)
	cmd.Flags().StringP(minRetentionFlagName, "", "", minRetentionFlagUsage)
	cmd.Flags().StringP(maxRetentionFlagName, "", "", maxRetentionFlagUsage)
	cmd.Flags().StringP(minMaxDeliveriesFlagName, "", "", minMaxDeliveriesFlagUsage)
	cmd.Flags().StringP(maxMaxDeliveriesFlagName, "", "", maxMaxDeliveriesFlagUsage)
	cmd.Flags().StringP(minDeliveryDelayFlagName, "", "", minDeliveryDelayFlagUsage)
	cmd.Flags().StringP(maxDeliveryDelayFlagName, "", "", maxDeliveryDelayFlagUsage)
}

//nolint:cyclop,funlen
func getServerParams(cmd *cobra.Command) (*serverParams, error) {
	databaseURL, err := cmdutil.GetString(cmd, databaseURLFlagName, databaseURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	host := cmdutil.GetOptionalString(cmd, hostFlagName, hostEnvKey)
	if host == "" {
		host = defaultHost
	}

	port, err := cmdutil.GetInt(cmd, portFlagName, portEnvKey, defaultPort)
	if err != nil {
		return nil, err
	}

	cleanupInterval, err := cmdutil.GetDuration(cmd, cleanupIntervalFlagName,
		cleanupIntervalEnvKey, defaultCleanupInterval)
	if err != nil {
		return nil, err
	}

	enableMetrics, err := cmdutil.GetBool(cmd, enableMetricsFlagName, enableMetricsEnvKey, true)
	if err != nil {
		return nil, err
	}

	queueLimits, err := getQueueLimits(cmd)
	if err != nil {
		return nil, err
	}

	return &serverParams{
		host:            host,
		port:            port,
		databaseURL:     databaseURL,
		tlsCertificate:  cmdutil.GetOptionalString(cmd, tlsCertificateFlagName, tlsCertificateEnvKey),
		tlsKey:          cmdutil.GetOptionalString(cmd, tlsKeyFlagName, tlsKeyEnvKey),
		logLevel:        cmdutil.GetOptionalString(cmd, logLevelFlagName, logLevelEnvKey),
		cleanupInterval: cleanupInterval,
		enableMetrics:   enableMetrics,
		queueLimits:     queueLimits,
	}, nil
}

//nolint:cyclop
func getQueueLimits(cmd *cobra.Command) (queue.Limits, error) {
	limits := queue.DefaultLimits()

	var err error

	limits.MinAckDeadlineSeconds, err = cmdutil.GetInt(cmd, minAckDeadlineFlagName,
		minAckDeadlineEnvKey, limits.MinAckDeadlineSeconds)
	if err != nil {
		return limits, err
	}

	limits.MaxAckDeadlineSeconds, err = cmdutil.GetInt(cmd, maxAckDeadlineFlagName,
		maxAckDeadlineEnvKey, limits.MaxAckDeadlineSeconds)
	if err != nil {
		return limits, err
	}

	limits.MinMessageRetentionSeconds, err = cmdutil.GetInt(cmd, minRetentionFlagName,
		minRetentionEnvKey, limits.MinMessageRetentionSeconds)
	if err != nil {
		return limits, err
	}

	limits.MaxMessageRetentionSeconds, err = cmdutil.GetInt(cmd, maxRetentionFlagName,
		maxRetentionEnvKey, limits.MaxMessageRetentionSeconds)
	if err != nil {
		return limits, err
	}

	limits.MinMessageMaxDeliveries, err = cmdutil.GetInt(cmd, minMaxDeliveriesFlagName,
		minMaxDeliveriesEnvKey, limits.MinMessageMaxDeliveries)
	if err != nil {
		return limits, err
	}

	limits.MaxMessageMaxDeliveries, err = cmdutil.GetInt(cmd, maxMaxDeliveriesFlagName,
		maxMaxDeliveriesEnvKey, limits.MaxMessageMaxDeliveries)
	if err != nil {
		return limits, err
	}

	limits.MinDeliveryDelaySeconds, err = cmdutil.GetInt(cmd, minDeliveryDelayFlagName,
		minDeliveryDelayEnvKey, limits.MinDeliveryDelaySeconds)
	if err != nil {
		return limits, err
	}

	limits.MaxDeliveryDelaySeconds, err = cmdutil.GetInt(cmd, maxDeliveryDelayFlagName,
		maxDeliveryDelayEnvKey, limits.MaxDeliveryDelaySeconds)
	if err != nil {
		return limits, err
	}

	return limits, nil
}
