package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"coze_note_generator/config"
	"coze_note_generator/coze"
	"coze_note_generator/generator"
	"coze_note_generator/server"
)

func main() {
	addr := flag.String("addr", "", "http listen address (overrides SERVER_ADDR)")
	debug := flag.Bool("v", false, "enable debug logs")
	flag.Parse()

	logger, err := buildLogger(*debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	client := coze.NewClient(cfg.BaseURL, cfg.AuthToken,
		coze.WithMaxRetries(cfg.MaxRetries),
		coze.WithRateLimit(cfg.RateLimit),
		coze.WithLogger(sugar),
	)

	backend, err := buildBackend(cfg, client)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	agent, err := generator.NewAgent(client, backend, cfg.ImageBotID, cfg.UserID, sugar)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	srv, err := server.New(agent, sugar)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	listen := cfg.ServerAddr
	if *addr != "" {
		listen = *addr
	}
	sugar.Infow("starting web server", "addr", listen)
	if err := http.ListenAndServe(listen, srv.Routes()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildBackend 默认走 Coze 文案机器人，配置了 LLM_PROVIDER 时切换到
// OpenAI 兼容接口。图片生成始终走 Coze。
func buildBackend(cfg *config.Config, client *coze.Client) (generator.ContentBackend, error) {
	if cfg.LLM == nil {
		return &generator.CozeBackend{
			Client:         client,
			BotID:          cfg.ContentBotID,
			UserID:         cfg.UserID,
			ConversationID: cfg.ConversationID,
		}, nil
	}
	switch cfg.LLM.Provider {
	case "openai", "deepseek":
		return generator.NewOpenAIBackend(&generator.OpenAISettings{
			Model:   cfg.LLM.Model,
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
		})
	case "mock":
		return generator.MockBackend{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.LLM.Provider)
	}
}
