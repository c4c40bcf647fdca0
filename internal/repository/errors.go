package repository

import (
	"errors"
	"strings"

	"peoplegrid_backend/internal/util"

	"gorm.io/gorm"
)

// isDuplicateKey 兼容未开启 TranslateError 的驱动
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// notFoundOr 把 gorm.ErrRecordNotFound 转为领域错误，其余视为存储故障
func notFoundOr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrNotFound
	}
	return util.StoreError(op, err)
}
