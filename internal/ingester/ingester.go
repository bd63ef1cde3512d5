package ingester

import (
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-redis/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/rajramk12/market-watcher/internal/common"
	"github.com/rajramk12/market-watcher/internal/common/database"
	"github.com/rajramk12/market-watcher/internal/configuration"
	"github.com/rajramk12/market-watcher/internal/ingester/dispatcher"
	"github.com/rajramk12/market-watcher/internal/ingester/fetcher"
	"github.com/rajramk12/market-watcher/internal/ingester/metrics"
	"github.com/rajramk12/market-watcher/internal/ingester/pricedb"
	"github.com/rajramk12/market-watcher/internal/taskqueue"
)

// Run starts the ingester service: it connects to postgres and redis, applies
// schema migrations, registers the task handlers and consumes the ingest and
// write queues until the process receives a shutdown signal.
func Run(config *configuration.IngesterConfiguration) {
	ctx := common.CreateContextWithShutdown()

	db, err := connectPostgres(config)
	if err != nil {
		log.WithError(err).Error("Could not connect to postgres")
		return
	}
	defer db.Close()

	if err := database.UpdateDatabase(ctx, db, pricedb.Migrations()); err != nil {
		log.WithError(err).Error("Could not apply database migrations")
		return
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.Db,
		PoolSize: config.Redis.PoolSize,
	})
	defer redisClient.Close()

	queue := taskqueue.NewQueue(redisClient, config.Pipeline.MaxTaskAttempts, config.Pipeline.RetryBackoff)
	priceDb := pricedb.NewPriceDb(db, metrics.Get(),
		config.Pipeline.MaxDatabaseAttempts, config.Pipeline.MaxDatabaseBackoff)
	service := NewService(
		&fetcher.StubFetcher{},
		dispatcher.New(&queueEnqueuer{queue: queue}, config.Pipeline.WriteQueue, config.Pipeline.BatchSize),
		priceDb)

	worker := taskqueue.NewWorker(queue, config.Pipeline.PollInterval)
	worker.Register(TaskFetch, service.HandleFetch)
	worker.Register(dispatcher.TaskUpsert, service.HandleUpsert)

	shutdownMetrics := common.ServeMetrics(config.MetricsPort)
	defer shutdownMetrics()

	log.Infof("Consuming queue %s with %d workers and queue %s with %d workers",
		config.Pipeline.IngestQueue, config.Pipeline.IngestWorkers,
		config.Pipeline.WriteQueue, config.Pipeline.WriteWorkers)

	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		worker.Run(ctx, config.Pipeline.IngestQueue, config.Pipeline.IngestWorkers)
	}()
	go func() {
		defer wg.Done()
		worker.Run(ctx, config.Pipeline.WriteQueue, config.Pipeline.WriteWorkers)
	}()
	wg.Wait()

	log.Info("Ingester shut down")
}

// connectPostgres opens the pgx pool, retrying for a while so the service
// survives the store coming up after it, e.g. in docker-compose.
func connectPostgres(config *configuration.IngesterConfiguration) (*pgxpool.Pool, error) {
	var db *pgxpool.Pool
	err := retry.Do(
		func() error {
			var err error
			db, err = database.OpenPgxPool(config.Postgres)
			return err
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Warnf("Could not connect to postgres (attempt %d), retrying", n+1)
		}),
	)
	return db, err
}
