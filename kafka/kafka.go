// Copyright 2023 SpotHero
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kafka wraps the Sarama client behind the small consumer and producer
// handles the bridge session layer drives. Each consumer instance owns a
// dedicated client so that its client.id and offset-reset behavior are
// isolated from every other instance.
package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/Shopify/sarama"
	prometheusmetrics "github.com/deathowl/go-metrics-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"
	"github.com/spothero/kafka-bridge/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config contains connection settings and configuration for communicating with a Kafka cluster
type Config struct {
	sarama.Config
	BrokerAddrs              []string
	KafkaVersion             string
	ProducerCompressionCodec string
	ProducerCompressionLevel int
	TLSCaCrtPath             string
	TLSCrtPath               string
	TLSKeyPath               string
	Registerer               prometheus.Registerer
	MetricsFrequency         time.Duration
	Verbose                  bool
}

// NewClient creates a new Sarama Client from the bridge configuration. Using this version of
// NewClient enables setting of Sarama configuration from the CLI and environment variables. In
// addition, this method has the side effect of running a periodic task to collect prometheus
// metrics from the Sarama internal metrics registry.
func (c *Config) NewClient(ctx context.Context) (sarama.Client, error) {
	if err := c.populateSaramaConfig(ctx); err != nil {
		return nil, err
	}
	client, err := sarama.NewClient(c.BrokerAddrs, &c.Config)
	if err != nil {
		return nil, err
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.DefaultRegisterer
	}
	go prometheusmetrics.NewPrometheusProvider(
		c.MetricRegistry, "sarama", "", c.Registerer, c.MetricsFrequency,
	).UpdatePrometheusMetrics()
	return client, nil
}

// NewBridgeConsumer builds a consumer handle with its own dedicated client.
// The client carries the instance name as its client.id and the per-instance
// settings chosen at creation time.
func (c *Config) NewBridgeConsumer(ctx context.Context, groupID, clientID string, settings ConsumerSettings) (Consumer, error) {
	cfg := *c
	if err := cfg.populateSaramaConfig(ctx); err != nil {
		return nil, err
	}
	cfg.ClientID = clientID
	if settings.FetchMinBytes > 0 {
		cfg.Consumer.Fetch.Min = settings.FetchMinBytes
	}
	if settings.RequestTimeout > 0 {
		cfg.Net.ReadTimeout = settings.RequestTimeout
	}
	client, err := sarama.NewClient(cfg.BrokerAddrs, &cfg.Config)
	if err != nil {
		return nil, err
	}
	return NewConsumer(client, groupID, settings)
}

// populateSaramaConfig adds values to the sarama config that either need to be parsed from flags
// or need to be specified by the caller
func (c *Config) populateSaramaConfig(ctx context.Context) error {
	if c.Verbose {
		// creating a standard logger can only fail if an invalid error level is supplied which
		// will never be the case here
		saramaLogger, _ := zap.NewStdLogAt(log.Get(ctx).Named("sarama"), zapcore.InfoLevel)
		sarama.Logger = saramaLogger
	}
	c.MetricRegistry = metrics.NewRegistry()
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	c.Consumer.Return.Errors = true

	kafkaVersion, err := sarama.ParseKafkaVersion(c.KafkaVersion)
	if err != nil {
		return err
	}
	c.Version = kafkaVersion
	switch c.ProducerCompressionCodec {
	case "zstd":
		c.Producer.Compression = sarama.CompressionZSTD
	case "snappy":
		c.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		c.Producer.Compression = sarama.CompressionLZ4
	case "gzip":
		c.Producer.Compression = sarama.CompressionGZIP
	case "none":
		c.Producer.Compression = sarama.CompressionNone
	default:
		return fmt.Errorf("unknown compression codec %v provided", c.ProducerCompressionCodec)
	}
	c.Producer.CompressionLevel = c.ProducerCompressionLevel

	// load TLS configs if cert paths provided
	if c.TLSCrtPath != "" && c.TLSKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(c.TLSCrtPath, c.TLSKeyPath)
		if err != nil {
			return fmt.Errorf("failed to load Kafka TLS key pair: %w", err)
		}
		c.Net.TLS.Config = &tls.Config{
			Certificates:       []tls.Certificate{cert},
			InsecureSkipVerify: true,
		}
		c.Net.TLS.Enable = true
		if c.TLSCaCrtPath != "" {
			caCert, err := os.ReadFile(c.TLSCaCrtPath)
			if err != nil {
				return fmt.Errorf("failed to load Kafka CA certificate: %w", err)
			}
			if len(caCert) > 0 {
				caCertPool := x509.NewCertPool()
				caCertPool.AppendCertsFromPEM(caCert)
				c.Net.TLS.Config.RootCAs = caCertPool
				c.Net.TLS.Config.InsecureSkipVerify = false
			}
		}
	}
	return nil
}
