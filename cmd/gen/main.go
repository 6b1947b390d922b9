package main

import (
	"flag"

	"github.com/perpflow/perpflow-keeper/config"
	"github.com/perpflow/perpflow-keeper/internal/dal"
)

// 生成 gorm-gen 查询代码
func main() {
	var configFile string
	var outPath string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.StringVar(&outPath, "out", "internal/dal/query", "generated code output path")
	flag.Parse()

	if err := config.Load(configFile); err != nil {
		panic(err)
	}

	dal.InitMysqlDB(config.Get().MySQL)
	defer dal.CloseMySQL()

	dal.GenExecute(outPath, dal.MySQL())
}
