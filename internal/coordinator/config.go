package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/epyc-go/epyc/internal/coordinator/middleware"
)

const (
	DefaultPort            = 8090
	MaxPort                = 65535
	DefaultHost            = "0.0.0.0"
	DefaultTimeout         = 30 * time.Second
	DefaultCORSMaxAge      = 86400
	DefaultGlobalRPS       = 200
	DefaultWorkerRPS       = 20
	DefaultWorkTopic       = "epyc.jobs.work"
	DefaultResultTopic     = "epyc.jobs.results"
	DefaultConsumerGroupID = "epyc-coordinator"
)

var (
	ErrInvalidPort = errors.New("coordinator: invalid port")
	ErrEmptyHost   = errors.New("coordinator: host cannot be empty")
)

// ServerConfig holds the coordinator HTTP server's configuration.
type ServerConfig struct {
	Port               int
	Host               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	LogLevel           slog.Level
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	CORSMaxAge         int
	GlobalRPS          int
	WorkerRPS          int
	Kafka              KafkaConfig
}

// LoadServerConfig loads configuration from environment variables with
// sensible defaults, mirroring internal/api.LoadServerConfig's shape.
func LoadServerConfig() ServerConfig {
	cfg := ServerConfig{
		Port:               DefaultPort,
		Host:               DefaultHost,
		ReadTimeout:        DefaultTimeout,
		WriteTimeout:       DefaultTimeout,
		ShutdownTimeout:    DefaultTimeout,
		LogLevel:           slog.LevelInfo,
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "Authorization", "X-Correlation-ID"},
		CORSMaxAge:         DefaultCORSMaxAge,
		GlobalRPS:          DefaultGlobalRPS,
		WorkerRPS:          DefaultWorkerRPS,
		Kafka: KafkaConfig{
			Brokers:     []string{"localhost:9092"},
			WorkTopic:   DefaultWorkTopic,
			ResultTopic: DefaultResultTopic,
			GroupID:     DefaultConsumerGroupID,
		},
	}

	if portStr := os.Getenv("EPYC_COORDINATOR_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 && port <= MaxPort {
			cfg.Port = port
		}
	}

	if host := os.Getenv("EPYC_COORDINATOR_HOST"); host != "" {
		cfg.Host = host
	}

	if brokers := os.Getenv("EPYC_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}

	return cfg
}

// Address returns host:port.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the server configuration is usable.
func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > MaxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	return nil
}

// ToCORSConfig converts to the middleware package's CORS shape.
func (c ServerConfig) ToCORSConfig() middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}
