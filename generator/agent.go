package generator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coze_note_generator/coze"
)

// Agent 负责一次生成运行里的文案与图片两个阶段。
type Agent struct {
	coze       *coze.Client
	backend    ContentBackend
	imageBotID string
	userID     string
	logger     *zap.SugaredLogger
}

func NewAgent(client *coze.Client, backend ContentBackend, imageBotID, userID string, logger *zap.SugaredLogger) (*Agent, error) {
	if client == nil {
		return nil, errors.New("coze client is required")
	}
	if backend == nil {
		return nil, errors.New("content backend is required")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Agent{
		coze:       client,
		backend:    backend,
		imageBotID: imageBotID,
		userID:     userID,
		logger:     logger,
	}, nil
}

// GenerateContent 生成文案，返回完整消息文本（可能为空，表示本次什么都没生成）。
func (a *Agent) GenerateContent(ctx context.Context, form Form) (string, error) {
	return a.backend.Complete(ctx, BuildInstruction(form))
}

// GenerateImages uploads every form image concurrently, then asks the image
// bot to generate pictures referencing the successful uploads. Failed
// uploads are tolerated as long as at least one succeeds; the returned
// warning is non-empty on partial failure. URLs are collected across every
// stream line and deduplicated.
func (a *Agent) GenerateImages(ctx context.Context, form Form) (urls []string, warning string, err error) {
	if len(form.Images) == 0 {
		return nil, "", ErrNoImages
	}

	a.logger.Infow("uploading product images", "count", len(form.Images))
	ids := make([]string, len(form.Images))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range form.Images {
		i, img := i, img
		g.Go(func() error {
			// UploadWithRetry never fails the batch: exhaustion leaves the
			// slot empty and the rest continue.
			ids[i] = a.coze.UploadWithRetry(gctx, img.Name, img.Data)
			return nil
		})
	}
	_ = g.Wait()

	successful := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			successful = append(successful, id)
		}
	}
	a.logger.Infow("uploads finished", "successful", len(successful), "total", len(form.Images))

	if len(successful) == 0 {
		return nil, "", ErrAllUploadsFailed
	}
	if failed := len(form.Images) - len(successful); failed > 0 {
		warning = fmt.Sprintf("%d 张图片上传失败，将使用已成功上传的图片继续生成", failed)
	}

	elements := make([]coze.ContentElement, 0, len(successful)+1)
	elements = append(elements, coze.TextElement(BuildImagePrompt(form)))
	for _, id := range successful {
		elements = append(elements, coze.ImageElement(id))
	}

	raw, err := a.coze.StreamChat(ctx, a.imageBotID, a.userID, "object_string", "", elements)
	if err != nil {
		return nil, warning, err
	}

	seen := make(map[string]bool)
	coze.EachContent(raw, func(content string) {
		for _, u := range coze.ExtractImageURLs(content) {
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	})
	a.logger.Infow("image generation finished", "urls", len(urls))
	return urls, warning, nil
}
