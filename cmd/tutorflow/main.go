// =============================================================================
// TutorFlow 命令行入口
// =============================================================================
// 使用方法:
//
//	tutorflow invoke -agent explore_knowledge_points -input '{...}'
//	tutorflow invoke -agent draft_knowledge_point -batch -input '[{...}, {...}]'
//	tutorflow learn -session '{"title": "Go Concurrency"}' -profile 'backend engineer' -quiz
//	tutorflow ingest -collection go_concurrency "goroutine worker pool"
//	tutorflow retrieve -collection go_concurrency -k 5 "worker pool"
//	tutorflow migrate up                  # URL 缓存 SQL 后端迁移
//	tutorflow version
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/tutorflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run 分发子命令并返回进程退出码
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "invoke":
		err = runInvoke(ctx, args[1:], stdout, stderr)
	case "learn":
		err = runLearn(ctx, args[1:], stdout, stderr)
	case "ingest":
		err = runIngest(ctx, args[1:], stdout, stderr)
	case "retrieve":
		err = runRetrieve(ctx, args[1:], stdout, stderr)
	case "migrate":
		err = runMigrate(ctx, args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 2
	}

	if err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "TutorFlow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `TutorFlow - goal-oriented learning content generator

Usage:
  tutorflow <command> [options]

Commands:
  invoke    Invoke a registered agent with a JSON input
  learn     Generate the learning document for a session
  ingest    Search the web and store new pages in a collection
  retrieve  Query a collection without searching
  migrate   URL cache database migrations
  version   Show version information
  help      Show this help message

Common options:
  -config <path>   Path to configuration file (YAML)

Options for 'invoke':
  -agent <name>    Agent name. Content: explore_knowledge_points,
                   draft_knowledge_point, integrate_learning_document,
                   generate_document_quizzes. Planning: refine_learning_goal,
                   map_goal_to_skills, identify_skill_gaps,
                   initialize_learner_profile, update_learner_profile,
                   schedule_learning_path, refine_learning_path,
                   reschedule_learning_path
  -input <json>    Input mapping, or a list of mappings with -batch
  -input-file <p>  Read the input from a file ("-" for stdin)
  -batch           Invoke once per list item

Options for 'learn':
  -session <json>  Learning session
  -profile <json>  Learner profile
  -path <json>     Learning path
  -quiz            Also generate a quiz
  -no-search       Draft without retrieving external resources
  -format <f>      markdown or json

Options for 'ingest' and 'retrieve':
  -collection <c>  Collection name (default learning_session)
  -k <n>           Number of documents to return ('retrieve' only)

Examples:
  tutorflow invoke -agent explore_knowledge_points -input-file session.json
  tutorflow learn -config tutorflow.yaml -session '{"title": "Go Concurrency"}' -quiz
  tutorflow ingest -collection go_concurrency "goroutine worker pool"
  tutorflow migrate -config tutorflow.yaml up
  tutorflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		// stdout 留给命令结果
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
