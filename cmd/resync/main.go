package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cast"

	"github.com/perpflow/perpflow-keeper/config"
	"github.com/perpflow/perpflow-keeper/internal/dal"
	"github.com/perpflow/perpflow-keeper/internal/dao"
	"github.com/perpflow/perpflow-keeper/internal/ledger"
	"github.com/perpflow/perpflow-keeper/internal/monitor"
	"github.com/perpflow/perpflow-keeper/internal/resync"
	"github.com/perpflow/perpflow-keeper/pkg/logger"
)

// 手动对账工具
// 三种选择方式互斥：--ids 显式列表、--range 闭区间、--missing-scan 补洞扫描
func main() {
	var (
		configFile  string
		mode        string
		idsArg      string
		rangeArg    string
		missingScan string
	)
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.StringVar(&mode, "mode", "full", "resync mode: full | sltp | states")
	flag.StringVar(&idsArg, "ids", "", "comma separated trade ids, e.g. 1,2,3")
	flag.StringVar(&rangeArg, "range", "", "inclusive id range, e.g. 100-200")
	flag.StringVar(&missingScan, "missing-scan", "", "scan range for locally missing ids, e.g. 1-5000")
	flag.Parse()

	if err := run(configFile, mode, idsArg, rangeArg, missingScan); err != nil {
		fmt.Fprintln(os.Stderr, "resync failed:", err)
		os.Exit(1)
	}
}

func run(configFile, mode, idsArg, rangeArg, missingScan string) error {
	selectors := 0
	for _, s := range []string{idsArg, rangeArg, missingScan} {
		if s != "" {
			selectors++
		}
	}
	if selectors != 1 {
		return fmt.Errorf("exactly one of --ids, --range, --missing-scan is required")
	}
	if mode != "full" && mode != "sltp" && mode != "states" {
		return fmt.Errorf("unknown mode %q", mode)
	}

	if err := config.Load(configFile); err != nil {
		return err
	}
	cfg := config.Get()

	if err := initLogger(cfg); err != nil {
		return err
	}
	defer logger.Close()

	monitor.InitMetrics()

	dal.InitMysqlDB(cfg.MySQL)
	defer dal.CloseMySQL()
	dao.InitDAO(dal.MySQL())

	ledgerClient := ledger.NewClient(
		cfg.Ledger.NodeURL,
		cfg.Ledger.CoreAddress,
		cfg.Ledger.RequestTimeout,
		cfg.Ledger.ConfirmTimeout,
	)
	engine := resync.NewEngine(ledgerClient, dao.Trade(), cfg.Resync.BatchSize, cfg.Resync.Concurrency)

	ctx := context.Background()

	if missingScan != "" {
		start, end, err := parseRange(missingScan)
		if err != nil {
			return err
		}
		return engine.MissingScan(ctx, start, end)
	}

	var ids []int64
	if idsArg != "" {
		var err error
		ids, err = parseIDs(idsArg)
		if err != nil {
			return err
		}
	} else {
		start, end, err := parseRange(rangeArg)
		if err != nil {
			return err
		}
		for id := start; id <= end; id++ {
			ids = append(ids, id)
		}
	}

	switch mode {
	case "full":
		return engine.SyncFull(ctx, ids)
	case "sltp":
		return engine.SyncSLTP(ctx, ids)
	default:
		return engine.SyncStates(ctx, ids)
	}
}

func parseIDs(arg string) ([]int64, error) {
	parts := strings.Split(arg, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := cast.ToInt64E(strings.TrimSpace(p))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid trade id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseRange(arg string) (start, end int64, err error) {
	parts := strings.SplitN(arg, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("range must be start-end, got %q", arg)
	}
	start, err = cast.ToInt64E(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range start %q", parts[0])
	}
	end, err = cast.ToInt64E(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range end %q", parts[1])
	}
	if start <= 0 || end < start {
		return 0, 0, fmt.Errorf("invalid range [%d, %d]", start, end)
	}
	return start, end, nil
}

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		SetLevel(cfg.Logger.Level).
		EnableConsoleOutput(true).
		Build()
}
