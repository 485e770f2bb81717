// Command mastercontract loads the symbol master (symtoken) from a CSV file or URL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"brokerdesk/internal/app/di"
	mcadapters "brokerdesk/internal/feature/mastercontract/adapters"
	mcentity "brokerdesk/internal/feature/mastercontract/domain/entity"
	mcusecase "brokerdesk/internal/feature/mastercontract/usecase"
	"brokerdesk/internal/platform/config"
	platformdb "brokerdesk/internal/platform/db"
	platformhttp "brokerdesk/internal/platform/http"
	"brokerdesk/internal/platform/logger"
	platformredis "brokerdesk/internal/platform/redis"
	"brokerdesk/internal/platform/secrets"
)

type loadArgs struct {
	Source          string
	ReplaceExchange string
	Timeout         time.Duration
}

func newRootCmd() *cobra.Command {
	var args loadArgs

	cmd := &cobra.Command{
		Use:   "mastercontract --source <file or url> [--replace-exchange NSE]",
		Short: "Load the symbol master contract into the symtoken table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, args)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&args.Source, "source", "", "CSV file path or http(s) URL")
	cmd.Flags().StringVar(&args.ReplaceExchange, "replace-exchange", "", "replace this exchange's rows in a single transaction")
	cmd.Flags().DurationVar(&args.Timeout, "timeout", 60*time.Second, "download timeout")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args loadArgs) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logg, err := logger.New(cfg.Log, cfg.App.Env)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logg.Sync() }()

	if secrets.NeedsProvider(cfg) {
		provider, err := secrets.NewAWSProvider(ctx, cfg.AWS.Region)
		if err != nil {
			return err
		}
		if err := secrets.ApplyToConfig(ctx, provider, cfg); err != nil {
			return err
		}
	}

	db, err := platformdb.Open(platformdb.Options{
		URL:            cfg.DB.URL,
		MaxOpenConns:   cfg.DB.MaxOpenConns,
		MaxIdleConns:   cfg.DB.MaxIdleConns,
		ConnectTimeout: cfg.DB.ConnectTimeout,
	}, logg)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer func() { _ = platformdb.Close(db) }()

	// Redis があればキャッシュ無効化とイベント通知に使う
	var rdb *redisv9.Client
	if tmp, err := platformredis.NewRedisClient(ctx, cfg.Redis, logg); err == nil {
		rdb = tmp
		defer func() { _ = rdb.Close() }()
	}

	source := mcadapters.NewSource(platformhttp.NewHTTPClient(args.Timeout))
	res, err := load(ctx, db, rdb, source, args, logg)
	if err != nil {
		return err
	}
	fmt.Printf("loaded %d symbols (skipped %d, duplicates %d, deleted %d)\n", res.Loaded, res.Skipped, res.Duplicates, res.Deleted)
	return nil
}

// fetcher is the CSV source.
type fetcher interface {
	Fetch(ctx context.Context, location string) ([]mcentity.SymbolRecord, error)
}

// load creates the table when missing, reads the CSV and writes it through the search cache.
func load(ctx context.Context, db *gorm.DB, rdb *redisv9.Client, src fetcher, args loadArgs, logg *zap.Logger) (mcusecase.LoadResult, error) {
	if err := platformdb.EnsureTables(db, &mcentity.SymbolRecord{}); err != nil {
		return mcusecase.LoadResult{}, err
	}

	records, err := src.Fetch(ctx, args.Source)
	if err != nil {
		return mcusecase.LoadResult{}, err
	}
	logg.Info("master contract fetched", zap.String("source", args.Source), zap.Int("rows", len(records)))

	uc := mcusecase.NewLoadUsecase(di.NewSymbolStore(rdb, db), di.NewEventPublisher(rdb, nil), logg)
	return uc.Load(ctx, records, args.ReplaceExchange)
}
