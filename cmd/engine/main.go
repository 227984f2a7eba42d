package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"abandoned-cart-engine/internal/cache"
	"abandoned-cart-engine/internal/cartpayload"
	"abandoned-cart-engine/internal/cartstore"
	"abandoned-cart-engine/internal/classifier"
	"abandoned-cart-engine/internal/config"
	"abandoned-cart-engine/internal/event"
	"abandoned-cart-engine/internal/handler"
	"abandoned-cart-engine/internal/migration"
	"abandoned-cart-engine/internal/repository"
	"abandoned-cart-engine/internal/router"
	"abandoned-cart-engine/internal/scheduler"
	"abandoned-cart-engine/internal/service"

	_ "github.com/go-sql-driver/mysql"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	taskName := flag.String("task", "", "run a single task (mark, update, delete, relaunch) and exit")
	flag.Parse()

	log.Println("Starting abandoned cart engine...")

	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// The host shop database is not optional. Without it there is nothing
	// to reconcile.
	db, err := sql.Open("mysql", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to open host database: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to reach host database: %v", err)
	}
	log.Println("Host database connection initialized")

	if err := migration.Up(db); err != nil {
		log.Fatalf("Failed to migrate engine tables: %v", err)
	}

	// Probe the host cart schema once at startup. An unsupported layout
	// is a deployment error, not something to limp along with.
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 10*time.Second)
	schema, err := cartstore.ProbeSchema(probeCtx, db)
	cancelProbe()
	if err != nil {
		log.Fatalf("Failed to probe cart schema: %v", err)
	}
	log.Printf("Cart schema probed - payload column: %s, precomputed: %v", schema.PayloadColumn, schema.Precomputed)

	// Snapshots live on the host connection: the reader's anti-join,
	// update predicate and orphan detection all join abandoned_cart
	// against the cart table, so both must be in the same database.
	snapshots := repository.NewMySQLSnapshotRepository(db)
	defer snapshots.Close()
	log.Println("Snapshot store initialized")

	// Customer-active lookups go through a cache.
	var lookupCache cache.Cache
	switch cfg.Cache.Type {
	case "redis":
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Fatalf("Failed to initialize Redis cache: %v", err)
		}
		lookupCache = redisCache
		log.Println("Redis cache initialized")
	default:
		lookupCache = cache.NewMemoryCache()
		log.Println("Memory cache initialized")
	}
	defer lookupCache.Close()

	// Domain events go to Kafka when brokers are configured, otherwise to
	// the log.
	var events event.Dispatcher
	if len(cfg.Kafka.Brokers) > 0 {
		events = event.NewKafkaDispatcher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Printf("Kafka dispatcher initialized - topic: %s", cfg.Kafka.Topic)
	} else {
		events = event.NewLogDispatcher()
		log.Println("Log dispatcher initialized (no Kafka brokers configured)")
	}
	defer events.Close()

	reader := cartstore.NewReader(db, schema).WithPageSize(cfg.Engine.BatchSize)
	customers := repository.NewCachedCustomerStore(
		repository.NewSQLCustomerStore(db), lookupCache, cfg.Cache.TTL)
	orders := repository.NewSQLOrderStore(db)
	engineConfig := repository.NewSQLConfigRepository(db, cfg.Engine.MarkAbandonedAfter)
	tasks := repository.NewSQLScheduledTaskRepository(db)

	manager := service.NewManager(service.ManagerDeps{
		Reader:             reader,
		Decode:             cartpayload.Decode,
		Classifier:         classifier.New(schema.Resolver(), customers, orders),
		Snapshots:          snapshots,
		Config:             engineConfig,
		Tasks:              tasks,
		Events:             events,
		StuckTaskThreshold: cfg.Engine.StuckTaskThreshold,
	})

	// One-shot mode: run a single task and exit.
	if *taskName != "" {
		if err := runSingleTask(manager, *taskName); err != nil {
			log.Fatalf("Task %s failed: %v", *taskName, err)
		}
		return
	}

	runner := scheduler.NewRunner(tasks, cfg.Engine.TaskInterval, []scheduler.Task{
		{Name: repository.TaskMark, Interval: 5 * time.Minute, Run: manager.Generate},
		{Name: repository.TaskUpdate, Interval: 5 * time.Minute, Run: manager.UpdateAbandonedCarts},
		{Name: repository.TaskDelete, Interval: 5 * time.Minute, Run: manager.CleanUp},
		{Name: repository.TaskRelaunch, Interval: time.Hour, Run: manager.RelaunchTasks},
	})
	runner.Start()

	r := router.New(router.Config{
		Handler:     handler.New(db),
		TaskHandler: handler.NewTaskHandler(manager),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Engine stopped")
}

func runSingleTask(manager *service.Manager, name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var (
		result *service.Result
		err    error
	)
	switch name {
	case "mark":
		result, err = manager.Generate(ctx)
	case "update":
		result, err = manager.UpdateAbandonedCarts(ctx)
	case "delete":
		result, err = manager.CleanUp(ctx)
	case "relaunch":
		result, err = manager.RelaunchTasks(ctx)
	default:
		return fmt.Errorf("unknown task %q, expected mark, update, delete or relaunch", name)
	}
	if err != nil {
		return err
	}

	log.Printf("%s", result.Summary)
	return nil
}
