package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AgentPlane/internal/agents"
	"AgentPlane/internal/api"
	"AgentPlane/internal/audit"
	"AgentPlane/internal/config"
	"AgentPlane/internal/escalation"
	"AgentPlane/internal/execution"
	"AgentPlane/internal/handoff"
	"AgentPlane/internal/interpret"
	"AgentPlane/internal/llm"
	"AgentPlane/internal/llm/openai"
	"AgentPlane/internal/llm/static"
	"AgentPlane/internal/observability/alerting"
	"AgentPlane/internal/observability/metrics"
	"AgentPlane/internal/state"
	storagemysql "AgentPlane/internal/storage/mysql"
	"AgentPlane/internal/workflow"
	"AgentPlane/pkg/logger"
)

// main 是控制面守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agentplaned 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: true,
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// MySQL 驱动先跑迁移，保证新实例拿到完整模式。
	if cfg.Storage.Driver == "mysql" {
		if err := storagemysql.Migrate(ctx, cfg.Storage.DSN); err != nil {
			return err
		}
	}

	trail, closeTrail, err := buildTrail(cfg)
	if err != nil {
		return err
	}
	defer closeTrail()

	agentStore, err := buildAgentStore(cfg)
	if err != nil {
		return err
	}
	workflowStore, err := buildWorkflowStore(cfg)
	if err != nil {
		return err
	}
	executionStore, err := buildExecutionStore(cfg)
	if err != nil {
		return err
	}
	handoffStore, err := buildHandoffStore(cfg)
	if err != nil {
		return err
	}
	escalationStore, err := buildEscalationStore(cfg)
	if err != nil {
		return err
	}
	stateStore, err := buildStateStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closer, ok := stateStore.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}()

	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	agentSvc := agents.NewService(agentStore, trail)
	workflowSvc := workflow.NewService(workflowStore, trail)
	executionSvc := execution.NewService(executionStore, workflowSvc, agentSvc, trail)
	handoffSvc := handoff.NewService(handoffStore, agentSvc, trail)
	escalationSvc := escalation.NewService(escalationStore, trail, buildDispatcher(cfg))
	stateSvc := state.NewService(stateStore, trail)
	interpreter := interpret.NewInterpreter(llmClient, time.Duration(cfg.LLM.TimeoutSeconds)*time.Second)

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("指标服务异常退出: %v", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, api.Services{
		Agents:      agentSvc,
		Workflows:   workflowSvc,
		Executions:  executionSvc,
		Handoffs:    handoffSvc,
		Escalations: escalationSvc,
		State:       stateSvc,
		Interpreter: interpreter,
		Trail:       trail,
	})

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadConfig 在默认路径缺失且未设置环境变量时回落到内存配置，
// 便于零配置直接启动。
func loadConfig() (*config.Config, error) {
	path := filepath.Join("configs", "agentplane.json")
	if env := os.Getenv(config.EnvConfigPath); env == "" {
		if _, err := os.Stat(path); err != nil {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func buildTrail(cfg *config.Config) (*audit.Trail, func(), error) {
	recorders := []audit.Recorder{audit.NewSlogRecorder()}

	if cfg.Audit.MySQL {
		recorder, err := audit.NewMySQLRecorder(cfg.Audit.DSN)
		if err != nil {
			return nil, nil, err
		}
		recorders = append(recorders, recorder)
	}
	if cfg.Audit.RabbitMQ.Enabled {
		recorder, err := audit.NewRabbitMQRecorder(cfg.Audit.RabbitMQ.URL, cfg.Audit.RabbitMQ.Queue)
		if err != nil {
			return nil, nil, err
		}
		recorders = append(recorders, recorder)
	}

	closeAll := func() {
		for _, recorder := range recorders {
			if err := recorder.Close(); err != nil {
				log.Printf("关闭审计落点失败: %v", err)
			}
		}
	}
	return audit.NewTrail(recorders...), closeAll, nil
}

func buildAgentStore(cfg *config.Config) (agents.Store, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return agents.NewMemoryStore(), nil
	case "mysql":
		return agents.NewMySQLStore(cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
}

func buildWorkflowStore(cfg *config.Config) (workflow.Store, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return workflow.NewMemoryStore(), nil
	case "mysql":
		return workflow.NewMySQLStore(cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
}

func buildExecutionStore(cfg *config.Config) (execution.Store, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return execution.NewMemoryStore(), nil
	case "mysql":
		return execution.NewMySQLStore(cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
}

func buildHandoffStore(cfg *config.Config) (handoff.Store, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return handoff.NewMemoryStore(), nil
	case "mysql":
		return handoff.NewMySQLStore(cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
}

func buildEscalationStore(cfg *config.Config) (escalation.Store, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return escalation.NewMemoryStore(), nil
	case "mysql":
		return escalation.NewMySQLStore(cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
}

func buildStateStore(cfg *config.Config) (state.Store, error) {
	switch cfg.State.Driver {
	case "", "memory":
		return state.NewMemoryStore(), nil
	case "mysql":
		return state.NewMySQLStore(cfg.State.DSN)
	case "redis":
		return state.NewRedisStore(state.RedisConfig{
			Addr:      cfg.State.Redis.Addr,
			Password:  cfg.State.Redis.Password,
			DB:        cfg.State.Redis.DB,
			KeyPrefix: cfg.State.Redis.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("未知的状态驱动: %s", cfg.State.Driver)
	}
}

// buildDispatcher 按配置装配告警渠道，没有任何渠道时返回 nil，
// 升级服务会跳过广播。
func buildDispatcher(cfg *config.Config) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.Alerting.DingTalkWebhook != "" {
		notifiers = append(notifiers, &alerting.DingTalkNotifier{
			Sender: alerting.NewDingTalkWebhook(cfg.Alerting.DingTalkWebhook),
		})
	}
	if cfg.Alerting.SlackWebhook != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    alerting.NewSlackWebhook(cfg.Alerting.SlackWebhook),
			ChannelID: cfg.Alerting.SlackChannel,
		})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "static":
		return static.NewClient(), nil
	case "openai":
		apiKey := cfg.LLM.OpenAI.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("OpenAI provider 需要配置 api_key 或 OPENAI_API_KEY")
		}
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}
