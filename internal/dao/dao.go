package dao

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrCloseWithoutPrice 平仓状态必须带非零平仓价
	ErrCloseWithoutPrice = errors.New("closed state requires a nonzero close price")
	// ErrBatchTooLarge 批量条数超限
	ErrBatchTooLarge = errors.New("batch size exceeds limit")
)

// IsNotFound 判断是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// InitDAO 初始化所有 DAO（应用启动时调用）
func InitDAO(db *gorm.DB) {
	InitTradeDAO(db)
}
