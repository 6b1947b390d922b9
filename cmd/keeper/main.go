package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/perpflow/perpflow-keeper/config"
	"github.com/perpflow/perpflow-keeper/internal/api"
	"github.com/perpflow/perpflow-keeper/internal/cache"
	"github.com/perpflow/perpflow-keeper/internal/cleaner"
	"github.com/perpflow/perpflow-keeper/internal/dal"
	"github.com/perpflow/perpflow-keeper/internal/dao"
	"github.com/perpflow/perpflow-keeper/internal/executor"
	"github.com/perpflow/perpflow-keeper/internal/feed"
	"github.com/perpflow/perpflow-keeper/internal/ledger"
	"github.com/perpflow/perpflow-keeper/internal/monitor"
	"github.com/perpflow/perpflow-keeper/internal/proof"
	"github.com/perpflow/perpflow-keeper/internal/resync"
	"github.com/perpflow/perpflow-keeper/internal/wallet"
	"github.com/perpflow/perpflow-keeper/pkg/logger"
	"github.com/perpflow/perpflow-keeper/pkg/sigproc"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.Parse()

	// 加载配置
	if err := config.Init(configFile); err != nil {
		panic(err)
	}
	cfg := config.Get()

	// 初始化日志
	if err := initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Close()

	logger.Info().Msg("keeper service starting...")

	// 初始化指标
	monitor.InitMetrics()

	// 初始化数据库
	dal.InitMysqlDB(cfg.MySQL)

	// 自动迁移表结构
	dal.AutoMigrate()

	// 初始化 DAO
	dao.InitDAO(dal.MySQL())

	// 创建数据清理器
	dataCleaner := cleaner.NewCleaner(cfg.Cleaner.Retention)
	dataCleaner.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 账本客户端（读路径 + 提交路径共用）
	ledgerClient := ledger.NewClient(
		cfg.Ledger.NodeURL,
		cfg.Ledger.CoreAddress,
		cfg.Ledger.RequestTimeout,
		cfg.Ledger.ConfirmTimeout,
	)

	// 对账引擎与防抖队列
	// 执行失败与链上事件都汇到这里，按批全量对账
	engine := resync.NewEngine(ledgerClient, dao.Trade(), cfg.Resync.BatchSize, cfg.Resync.Concurrency)
	queue := resync.NewQueue(cfg.Resync.DebounceDelay, func(ids []int64) {
		if err := engine.SyncFull(ctx, ids); err != nil {
			logger.Error().Err(err).Int("ids", len(ids)).Msg("resync flush failed")
		}
	})

	// 池内可用资金缓存
	liquidity := cache.NewLiquidityCache(cfg.Ledger.LiquidityTTL, ledgerClient.FreeCapital)

	// 签名钱包调度器
	wallets, err := wallet.NewScheduler(cfg.Keeper.Signers, cfg.Keeper.PerWalletDelay)
	if err != nil {
		logger.Fatal().Err(err).Msg("init wallet scheduler failed")
	}

	// 价格证明获取器
	proofs := proof.NewFetcher(
		cfg.Proof.ServiceURL,
		cfg.Proof.ChainType,
		cfg.Proof.Timeout,
		cfg.Proof.CacheTTL,
	)

	// 执行编排器
	orch, err := executor.NewOrchestrator(
		dao.Trade(),
		wallets,
		proofs,
		ledgerClient,
		liquidity,
		queue,
		executor.Config{
			DedupWindow:     cfg.Keeper.DedupWindow,
			DispatchStagger: cfg.Keeper.DispatchStagger,
			PoolSize:        cfg.Keeper.AttemptPoolSize,
		},
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("init orchestrator failed")
	}

	// 行情连接
	feedClient := feed.NewClient(cfg.Keeper.PriceFeedWSURL, orch.OnTick)
	if err = feedClient.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start price feed failed")
	}

	// 链上交易事件订阅：任何确认事件都触发对该交易的对账
	subscriber, err := ledger.NewEventSubscriber(cfg.NATS.Endpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("init nats subscriber failed")
	}
	err = subscriber.Subscribe(cfg.NATS.TradeEventSubject, func(tradeID, code int64) {
		queue.Enqueue(tradeID)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("subscribe trade events failed")
	}

	// 查询/写入 API
	apiServer := api.NewServer(cfg.API)
	apiServer.Start()

	// 健康检查服务器
	healthServer := monitor.NewHealthServer(
		cfg.Keeper.HealthServerAddr,
		feedClient,
		subscriber,
		orch,
	)
	if err = healthServer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start health server failed")
	}

	logger.Info().
		Str("feed_url", cfg.Keeper.PriceFeedWSURL).
		Str("health_addr", cfg.Keeper.HealthServerAddr).
		Int("signers", len(cfg.Keeper.Signers)).
		Msg("keeper service started successfully")

	// 优雅关闭
	sigproc.GracefulShutdown(func(sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutting down...")

		// 停止接收新行情
		feedClient.Close()

		// 停止事件订阅
		subscriber.Close()

		// 停止新的执行尝试
		cancel()
		orch.Close()

		// 关闭 API
		apiServer.Stop()

		// 停止数据清理器
		dataCleaner.Stop()

		// 关闭健康检查服务器
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		healthServer.Stop(shutdownCtx)

		// 关闭配置重载
		config.Stop()

		// 关闭数据库
		dal.CloseMySQL()

		logger.Info().Msg("keeper service stopped")
	})

	<-ctx.Done()
}

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}
