// Package engine wires configuration, storage, messaging and the HTTP server
// together and runs the service.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"github.com/getreviewhawk/reviewhawk/billing-engine/api"
	"github.com/getreviewhawk/reviewhawk/billing-engine/config/database"
	"github.com/getreviewhawk/reviewhawk/billing-engine/config/kafka"
	"github.com/getreviewhawk/reviewhawk/billing-engine/config/redis"
	"github.com/getreviewhawk/reviewhawk/billing-engine/models"
	"github.com/getreviewhawk/reviewhawk/billing-engine/payment"
	"github.com/getreviewhawk/reviewhawk/billing-engine/plans"
	"github.com/getreviewhawk/reviewhawk/billing-engine/processors/subscription"
	"github.com/getreviewhawk/reviewhawk/billing-engine/processors/usage"
	"github.com/getreviewhawk/reviewhawk/billing-engine/seats"
	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

const (
	envEnv = "ENV"

	envDatabaseURL      = "DATABASE_URL"
	envDatabaseMaxConns = "REVIEWHAWK_DATABASE_MAX_CONNECTIONS"

	envHTTPListenAddr = "REVIEWHAWK_HTTP_LISTEN_ADDR"
	envWebhookSecret  = "REVIEWHAWK_PAYMENT_WEBHOOK_SECRET"
	envStripeAPIKey   = "STRIPE_API_KEY"

	envPriceBYOKMonthly       = "REVIEWHAWK_PRICE_BYOK_MONTHLY"
	envPriceBYOKYearly        = "REVIEWHAWK_PRICE_BYOK_YEARLY"
	envPriceProMonthly        = "REVIEWHAWK_PRICE_PRO_MONTHLY"
	envPriceProYearly         = "REVIEWHAWK_PRICE_PRO_YEARLY"
	envPriceEnterpriseMonthly = "REVIEWHAWK_PRICE_ENTERPRISE_MONTHLY"
	envPriceEnterpriseYearly  = "REVIEWHAWK_PRICE_ENTERPRISE_YEARLY"

	envKafkaBootstrapServers     = "REVIEWHAWK_KAFKA_BOOTSTRAP_SERVERS"
	envKafkaConsumerGroup        = "REVIEWHAWK_KAFKA_CONSUMER_GROUP"
	envKafkaScramAlgorithm       = "REVIEWHAWK_KAFKA_SCRAM_ALGORITHM"
	envKafkaTLS                  = "REVIEWHAWK_KAFKA_TLS"
	envKafkaUsername             = "REVIEWHAWK_KAFKA_USERNAME"
	envKafkaPassword             = "REVIEWHAWK_KAFKA_PASSWORD"
	envKafkaUsageEventsTopic     = "REVIEWHAWK_KAFKA_USAGE_EVENTS_TOPIC"
	envKafkaUsageDeadLetterTopic = "REVIEWHAWK_KAFKA_USAGE_DEAD_LETTER_TOPIC"
	envKafkaSubscriptionTopic    = "REVIEWHAWK_KAFKA_SUBSCRIPTION_CHANGED_TOPIC"

	envRedisStoreURL      = "REVIEWHAWK_REDIS_STORE_URL"
	envRedisStorePassword = "REVIEWHAWK_REDIS_STORE_PASSWORD"
	envRedisStoreDB       = "REVIEWHAWK_REDIS_STORE_DB"
	envRedisStoreTLS      = "REVIEWHAWK_REDIS_STORE_TLS"
)

const entitlementsFlagSet = "entitlements_changed"

type Config struct {
	Logger       *slog.Logger
	UseTelemetry bool
}

var kafkaConfig kafka.ServerConfig

func initProducer(ctx context.Context, topicEnv string) (*kafka.Producer, error) {
	if os.Getenv(topicEnv) == "" {
		return nil, fmt.Errorf("%s variable is required", topicEnv)
	}

	topic := os.Getenv(topicEnv)
	producer, err := kafka.NewProducer(
		kafkaConfig,
		&kafka.ProducerConfig{
			Topic: topic,
		})
	if err != nil {
		return nil, err
	}

	err = producer.Ping(ctx)
	if err != nil {
		return nil, err
	}

	return producer, nil
}

func initFlagStore(ctx context.Context, name string) (*models.FlagStore, error) {
	redisDb, err := utils.GetEnvAsInt(envRedisStoreDB, 0)
	if err != nil {
		return nil, err
	}

	redisConfig := redis.RedisConfig{
		Address:  os.Getenv(envRedisStoreURL),
		Password: os.Getenv(envRedisStorePassword),
		DB:       redisDb,
		UseTLS:   utils.GetEnvAsBool(envRedisStoreTLS, os.Getenv(envEnv) == "production"),
	}

	db, err := redis.NewRedisDB(ctx, redisConfig)
	if err != nil {
		return nil, err
	}

	return models.NewFlagStore(ctx, db, name), nil
}

func buildCatalog() (*plans.Catalog, error) {
	catalog := plans.NewCatalog([]plans.CatalogEntry{
		{Tier: plans.TierBYOK, Cycle: plans.CycleMonthly, PriceID: os.Getenv(envPriceBYOKMonthly)},
		{Tier: plans.TierBYOK, Cycle: plans.CycleYearly, PriceID: os.Getenv(envPriceBYOKYearly)},
		{Tier: plans.TierPro, Cycle: plans.CycleMonthly, PriceID: os.Getenv(envPriceProMonthly)},
		{Tier: plans.TierPro, Cycle: plans.CycleYearly, PriceID: os.Getenv(envPriceProYearly)},
		{Tier: plans.TierEnterprise, Cycle: plans.CycleMonthly, PriceID: os.Getenv(envPriceEnterpriseMonthly)},
		{Tier: plans.TierEnterprise, Cycle: plans.CycleYearly, PriceID: os.Getenv(envPriceEnterpriseYearly)},
	})

	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	return catalog, nil
}

// Start wires every dependency and runs the HTTP server and the usage
// consumer until the context is canceled.
func Start(ctx context.Context, config *Config) {
	logger := config.Logger

	catalog, err := buildCatalog()
	if err != nil {
		utils.LogAndPanic(logger, err, "Incomplete price catalog configuration")
	}

	serverBrokers := utils.ParseBrokersEnv(os.Getenv(envKafkaBootstrapServers))
	if len(serverBrokers) == 0 {
		logger.Error("brokers not found")
		panic("brokers not found")
	}

	kafkaConfig = kafka.ServerConfig{
		ScramAlgorithm: os.Getenv(envKafkaScramAlgorithm),
		TLS:            utils.GetEnvAsBool(envKafkaTLS, false),
		Servers:        serverBrokers,
		UseTelemetry:   config.UseTelemetry,
		UserName:       os.Getenv(envKafkaUsername),
		Password:       os.Getenv(envKafkaPassword),
	}

	subscriptionChangedProducer, err := initProducer(ctx, envKafkaSubscriptionTopic)
	if err != nil {
		utils.LogAndPanic(logger, err, "failed to initialize subscription changed producer")
	}

	usageDeadLetterProducer, err := initProducer(ctx, envKafkaUsageDeadLetterTopic)
	if err != nil {
		utils.LogAndPanic(logger, err, "failed to initialize usage dead letter producer")
	}

	maxConns, err := utils.GetEnvAsInt(envDatabaseMaxConns, 200)
	if err != nil {
		utils.LogAndPanic(logger, err, "Error converting max connections into integer")
	}

	dbConfig := database.DBConfig{
		Url:      os.Getenv(envDatabaseURL),
		MaxConns: int32(maxConns),
	}

	db, err := database.NewConnection(dbConfig)
	if err != nil {
		utils.LogAndPanic(logger, err, "Error connecting to the database")
	}
	apiStore := models.NewApiStore(db)
	defer db.Close()

	flagger, err := initFlagStore(ctx, entitlementsFlagSet)
	if err != nil {
		utils.LogAndPanic(logger, err, "Error connecting to the flag store")
	}
	defer flagger.Close()

	provider := payment.NewStripeProvider(os.Getenv(envStripeAPIKey), catalog, logger)

	notifyService := subscription.NewNotifyService(subscriptionChangedProducer, flagger, logger)
	processor := subscription.NewProcessor(
		logger,
		apiStore,
		subscription.NewCheckoutService(logger, apiStore, provider, catalog, notifyService),
		subscription.NewLifecycleService(logger, apiStore, catalog, notifyService),
		notifyService,
	)
	ledger := seats.NewLedger(logger, apiStore, flagger)

	server := api.NewServer(logger, apiStore, ledger, processor, provider, catalog, api.Config{
		WebhookSecret: os.Getenv(envWebhookSecret),
	})

	usageProcessor := usage.NewUsageProcessor(logger, apiStore, usageDeadLetterProducer)

	cg, err := kafka.NewConsumerGroup(
		kafkaConfig,
		&kafka.ConsumerGroupConfig{
			Topic:         os.Getenv(envKafkaUsageEventsTopic),
			ConsumerGroup: os.Getenv(envKafkaConsumerGroup),
			ProcessRecords: func(ctx context.Context, records []*kgo.Record) []*kgo.Record {
				return usageProcessor.ProcessRecords(ctx, records)
			},
		})
	if err != nil {
		utils.LogAndPanic(logger, err, "Error starting the usage consumer")
	}

	listenAddr := os.Getenv(envHTTPListenAddr)
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("addr", listenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		logger.Info("Starting usage consumer")
		err := cg.Start(groupCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("Service stopped with error", slog.String("error", err.Error()))
		utils.CaptureError(err)
		return
	}

	logger.Info("Service stopped")
}
