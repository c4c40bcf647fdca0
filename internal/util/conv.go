package util

import (
	"strconv"
)

// ParseID 解析路径中的用户 ID，0 和非法值都视为无效输入
func ParseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, Invalid("invalid id %q", s)
	}
	return uint(id), nil
}
