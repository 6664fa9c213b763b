package ai

import "context"

// AiInterface 文本补全客户端，用于从媒体标题中提取歌曲信息
type AiInterface interface {
	Name() string
	HandleText(ctx context.Context, msg string) (string, error)
}
