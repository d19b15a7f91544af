package generator

import (
	"context"
	"strings"
)

// MockBackend 一个简单的占位实现，便于本地调试，不调用外部接口。
type MockBackend struct{}

func (m MockBackend) Complete(_ context.Context, instruction string) (string, error) {
	var sb strings.Builder
	sb.WriteString("自动生成示例标题\n")
	sb.WriteString("这里是根据提示生成的占位正文：\n")
	sb.WriteString(instruction)
	return sb.String(), nil
}
