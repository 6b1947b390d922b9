package config

import (
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/perpflow/perpflow-keeper/pkg/logger"
)

type Keeper struct {
	PriceFeedWSURL   string        `toml:"price_feed_ws_url"`
	HealthServerAddr string        `toml:"health_server_addr"`
	Signers          []string      `toml:"signers"`
	PerWalletDelay   time.Duration `toml:"per_wallet_delay"`
	DedupWindow      time.Duration `toml:"dedup_window"`
	DispatchStagger  time.Duration `toml:"dispatch_stagger"`
	AttemptPoolSize  int           `toml:"attempt_pool_size"`
}

type MySQL struct {
	DSN                string   `toml:"dsn"`
	SlaveAddr          []string `toml:"slave_addr"`
	MaxIdleConnections int      `toml:"max_idle_connections"`
	MaxOpenConnections int      `toml:"max_open_connections"`
	SetConnMaxLifetime int      `toml:"set_conn_max_lifetime"`
	SetConnMaxIdleTime int      `toml:"set_conn_max_idle_time"`
	ProxyEnabled       bool     `toml:"proxy_enabled"`
	ProxyAddr          string   `toml:"proxy_addr"`
}

type NATS struct {
	Endpoint string `toml:"endpoint"`
	// 链上交易事件主题（tradeId + code）
	TradeEventSubject string `toml:"trade_event_subject"`
}

type Logger struct {
	Level      string `toml:"level"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
}

type Proof struct {
	ServiceURL string        `toml:"service_url"`
	ChainType  string        `toml:"chain_type"`
	Timeout    time.Duration `toml:"timeout"`
	CacheTTL   time.Duration `toml:"cache_ttl"`
}

type Ledger struct {
	NodeURL        string        `toml:"node_url"`
	CoreAddress    string        `toml:"core_address"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	ConfirmTimeout time.Duration `toml:"confirm_timeout"`
	LiquidityTTL   time.Duration `toml:"liquidity_ttl"`
}

type Resync struct {
	DebounceDelay time.Duration `toml:"debounce_delay"`
	BatchSize     int           `toml:"batch_size"`
	Concurrency   int           `toml:"concurrency"`
}

type API struct {
	ReadAddr  string `toml:"read_addr"`
	WriteAddr string `toml:"write_addr"`
}

type Cleaner struct {
	Retention time.Duration `toml:"retention"`
}

type Config struct {
	Keeper  Keeper  `toml:"keeper"`
	MySQL   MySQL   `toml:"mysql"`
	NATS    NATS    `toml:"nats"`
	Logger  Logger  `toml:"log"`
	Proof   Proof   `toml:"proof"`
	Ledger  Ledger  `toml:"ledger"`
	Resync  Resync  `toml:"resync"`
	API     API     `toml:"api"`
	Cleaner Cleaner `toml:"cleaner"`
}

var (
	cfg         *Config
	cfgPath     string
	cfgLock     sync.RWMutex
	lastModTime time.Time
	stopChan    chan struct{}
)

func Default() *Config {
	return &Config{
		Keeper: Keeper{
			PriceFeedWSURL:   "wss://feed.perpflow.io/ws",
			HealthServerAddr: "0.0.0.0:16810",
			Signers:          []string{},
			PerWalletDelay:   time.Second,
			DedupWindow:      15 * time.Second,
			DispatchStagger:  5 * time.Millisecond,
			AttemptPoolSize:  256,
		},
		MySQL: MySQL{
			DSN:                "root:password@tcp(localhost:3306)/perpflow?charset=utf8mb4&parseTime=True&loc=Local",
			SlaveAddr:          []string{},
			MaxIdleConnections: 16,
			MaxOpenConnections: 64,
			SetConnMaxLifetime: 7200,
			SetConnMaxIdleTime: 3600,
			ProxyEnabled:       false,
			ProxyAddr:          "127.0.0.1:7890",
		},
		NATS: NATS{
			Endpoint:          "nats://localhost:4222",
			TradeEventSubject: "perpflow.trade.events",
		},
		Logger: Logger{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 60,
			MaxAge:     7,
			Compress:   false,
			Console:    false,
		},
		Proof: Proof{
			ServiceURL: "https://proof.perpflow.io",
			ChainType:  "evm",
			Timeout:    12 * time.Second,
			CacheTTL:   time.Second,
		},
		Ledger: Ledger{
			NodeURL:        "https://node.perpflow.io",
			CoreAddress:    "",
			RequestTimeout: 30 * time.Second,
			ConfirmTimeout: 30 * time.Second,
			LiquidityTTL:   1500 * time.Millisecond,
		},
		Resync: Resync{
			DebounceDelay: time.Second,
			BatchSize:     50,
			Concurrency:   20,
		},
		API: API{
			ReadAddr:  "0.0.0.0:16811",
			WriteAddr: "127.0.0.1:16812", // 写接口仅绑定本机
		},
		Cleaner: Cleaner{
			Retention: 30 * 24 * time.Hour,
		},
	}
}

func Load(path string) error {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	cfgLock.Lock()
	defer cfgLock.Unlock()
	cfg = c
	cfgPath = path
	lastModTime = info.ModTime()

	return nil
}

func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg
}

// Init 初始化配置并启动定期重载（默认10秒）
func Init(path string) error {
	return InitWithInterval(path, 10*time.Second)
}

// InitWithInterval 初始化配置并指定重载间隔
func InitWithInterval(path string, interval time.Duration) error {
	if err := Load(path); err != nil {
		return err
	}

	stopChan = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				reloadIfNeeded()
			case <-stopChan:
				return
			}
		}
	}()

	return nil
}

// Stop 停止配置重载
func Stop() {
	if stopChan != nil {
		close(stopChan)
	}
}

// reloadIfNeeded 仅在文件修改时重载
func reloadIfNeeded() {
	cfgLock.RLock()
	path := cfgPath
	lastMod := lastModTime
	cfgLock.RUnlock()

	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Error().Err(err).Msg("config stat failed")
		return
	}

	if info.ModTime().After(lastMod) {
		if err = Load(path); err != nil {
			logger.Error().Err(err).Msg("config reload failed")
		} else {
			logger.Info().Msg("config reloaded")
		}
	}
}
