/**
 * @description
 * This is the main entry point for the dispatcher. It is responsible for
 * initializing all components: configuration, the remote ledger client, the
 * wallet batch, the optional outcome journal, event producer and rate
 * limiter, the in-run status server, and the dispatch orchestrator. It wires
 * everything together, runs the batch, and reports the terminal tally.
 *
 * Startup failures (unusable configuration, unreachable ledger endpoint, an
 * empty batch) abort before any dispatch begins. SIGINT/SIGTERM cancels the
 * run; the dispatcher persists the accumulated failure batch before exit.
 *
 * @dependencies
 * - log, net/http, os/signal: Standard Go libraries.
 * - github.com/jackc/pgx/v5: PostgreSQL driver for the optional journal.
 * - github.com/redis/go-redis/v9: Optional submission rate limiting.
 * - internal/api, internal/config, internal/dispatch, internal/fees,
 *   internal/nonce, internal/store: Internal packages for the dispatcher.
 * - pkg/ledgerclient, pkg/rabbitmq: Remote ledger and event publication.
 */

package main

import (
	"context"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/params"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/layerist/multi-send-eth/internal/api"
	"github.com/layerist/multi-send-eth/internal/config"
	"github.com/layerist/multi-send-eth/internal/dispatch"
	"github.com/layerist/multi-send-eth/internal/fees"
	"github.com/layerist/multi-send-eth/internal/nonce"
	"github.com/layerist/multi-send-eth/internal/store"
	"github.com/layerist/multi-send-eth/pkg/ledgerclient"
	"github.com/layerist/multi-send-eth/pkg/rabbitmq"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.GWei))
}

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if cfg.InfuraProjectID == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"infura project id must be configured\" env=INFURA_PROJECT_ID")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the remote ledger. An unreachable endpoint or a chain id
	// mismatch aborts before any dispatch begins.
	ledger, err := ledgerclient.Dial(ctx, ledgerclient.InfuraURL(cfg.Network, cfg.InfuraProjectID), cfg.ChainID)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"ledger connection failed\" network=%s err=%v", cfg.Network, err)
	}
	defer ledger.Close()

	// Load and validate the wallet batch; malformed entries are skipped
	// inside LoadRequests with a diagnostic.
	requests, err := store.LoadRequests(cfg.WalletsFile)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"batch load failed\" path=%s err=%v", cfg.WalletsFile, err)
	}

	// Initialize the optional outcome journal.
	var journal store.Journal
	if cfg.DatabaseURL != "" {
		dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"database unavailable; outcome journal disabled\" err=%v", err)
		} else {
			defer dbpool.Close()
			pgJournal, err := store.NewPostgresJournal(ctx, dbpool)
			if err != nil {
				log.Printf("level=warn component=bootstrap msg=\"journal init failed; outcome journal disabled\" err=%v", err)
			} else {
				journal = pgJournal
				log.Println("level=info component=bootstrap msg=\"outcome journal enabled\"")
			}
		}
	}

	// Initialize the event producer. Broker availability never blocks a run.
	var producer rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
			producer = &rabbitmq.EventProducerFallback{}
		} else {
			defer eventProducer.Close()
			producer = eventProducer
			log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
		}
	}

	// Initialize the optional distributed submission rate limiter.
	var limiter dispatch.RateLimiter
	if cfg.SubmitRateLimitPerMinute > 0 && cfg.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; submission rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; submission rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = dispatch.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
				log.Printf("level=info component=bootstrap msg=\"submission rate limiting enabled\" limit_per_minute=%d", cfg.SubmitRateLimitPerMinute)
			}
		}
	}

	// Assemble the pipeline: allocator, estimator, engine, poller, orchestrator.
	nonces := nonce.NewManager(ledger)
	estimator := fees.NewEstimator(ledger, fees.Options{
		PriorityFeeWei:     gwei(cfg.PriorityFeeGwei),
		FeeCapMultiplier:   cfg.FeeCapMultiplier,
		DefaultGasPriceWei: gwei(cfg.DefaultGasPriceGwei),
		DefaultGasLimit:    cfg.DefaultGasLimit,
	})
	sender := dispatch.NewSender(ledger, nonces, estimator, producer, limiter, nil, dispatch.SenderConfig{
		MaxAttempts:        cfg.MaxSendRetries,
		RetryBaseDelay:     cfg.SendRetryDelay(),
		RateLimitPerMinute: cfg.SubmitRateLimitPerMinute,
	})
	poller := dispatch.NewPoller(ledger, dispatch.PollerConfig{
		MaxPolls:      cfg.MaxReceiptRetries,
		PollBaseDelay: cfg.ReceiptRetryDelay(),
	})
	dispatcher := dispatch.NewDispatcher(sender, poller, store.NewFailureFile(cfg.FailedTxFile), journal, producer, &dispatch.Progress{}, cfg.MaxWorkers)

	// Serve the status surface for the duration of the run, if configured.
	var statusServer *http.Server
	if cfg.StatusAddr != "" {
		statusServer = &http.Server{
			Addr:    cfg.StatusAddr,
			Handler: api.StatusRoutes(api.NewStatusHandlers(dispatcher.Progress())),
		}
		go func() {
			log.Printf("level=info component=status_api msg=\"server listening\" addr=%s", cfg.StatusAddr)
			if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("level=error component=status_api msg=\"server stopped unexpectedly\" err=%v", err)
			}
		}()
	}

	summary, err := dispatcher.Run(ctx, requests)
	if err != nil {
		log.Printf("level=error component=dispatcher msg=\"run error\" err=%v", err)
	}

	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("level=error component=status_api msg=\"shutdown failed\" err=%v", err)
		}
	}

	log.Printf("level=info component=bootstrap msg=\"summary\" succeeded=%d failed=%d", summary.Succeeded, summary.Failed)
	if summary.Failed > 0 {
		os.Exit(1)
	}
}
