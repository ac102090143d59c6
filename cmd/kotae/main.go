// Package main is the kotae CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kotae/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// When neither exists the built-in defaults are returned with an empty path.
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "answer":
		runAnswer()
	case "batch":
		runBatch()
	case "retrieve":
		runRetrieve()
	case "ingest":
		runIngest()
	case "index":
		runIndex()
	case "safety-bank":
		runSafetyBank()
	case "safety-check":
		runSafetyCheck()
	case "inbox":
		runInbox()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads the config and builds a logger for a subcommand, exiting on failure.
// One-shot commands pass quiet to keep info logs off the terminal.
func setup(configPath string, debug, quiet bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debug
	newLogger := utils.NewLogger
	if quiet {
		newLogger = utils.NewCLILogger
	}
	logger, err := newLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	return cfg, resolved, logger
}

func mustInitialize(ctx context.Context, cfg *config.Config, logger *zap.Logger) *Components {
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	return components
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// buildQuery joins all positional args with spaces so multi-word text works the same
// with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so "kotae retrieve \"query\" -top-k 3"
// would otherwise leave -top-k unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (routing traces, inbox events, etc.)")
	var inboxDirs stringList
	fs.Var(&inboxDirs, "inbox", "question inbox directory (repeatable; added to server.inbox.directories)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug, false)
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	dirs := append(append([]string(nil), cfg.Server.Inbox.Directories...), absPaths(inboxDirs)...)
	inbox := watcher.NewInbox(dirs, components.Pool,
		watcher.WithInboxLogger(logger),
		watcher.WithInboxRecursive(cfg.Server.Inbox.RecursiveOrDefault()),
	)
	if err := inbox.Start(ctx); err != nil {
		logger.Fatal("Failed to start inbox", zap.Error(err))
	}
	defer inbox.Stop()

	srv := server.NewServer(components.ServerComponents(), cfg, logger, server.WithInbox(inbox, resolvedConfigPath))
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func printUsage() {
	fmt.Println(`kotae - Vietnamese multiple-choice question answering

Usage:
  kotae server [flags]                  Start the HTTP server and question inbox
  kotae answer [flags] <question>       Answer one question (-choice per option)
  kotae batch [flags] <questions.json>  Answer a question file and write predictions
  kotae retrieve [flags] <query>        Run hybrid retrieval and print the passages
  kotae ingest [flags] <dir-or-file>... Extract and chunk documents into a chunk file
  kotae index [flags]                   Build the chunk store and indexes from a chunk file
  kotae safety-bank [flags] <seeds.txt> Embed harmful seed queries into the safety bank
  kotae safety-check [flags] <text>     Check a text against the safety firewall
  kotae inbox <add|remove|list> [path]  Manage inbox directories of a running server
  kotae status [flags]                  Show corpus, index and safety bank status
  kotae version                         Show version
  kotae help                            Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml, or ./config.yaml)
  --debug            Enable debug logging

Answer Flags:
  --choice string    Answer option; repeat in order (A, B, C, ...)
  --qid string       Question id (default: cli)
  --server string    Server URL; empty answers in-process
  --output string    Output format: text or json (default: text)

Batch Flags:
  --out string       Predictions file (default: <input>.predictions.json)
  --format string    Predictions format: json or csv (default from --out extension)
  --progress         Log each answer as it completes
  --server string    Server URL; empty answers in-process

Retrieve Flags:
  --domain string    Question domain: LAW, HISTORY, GEOGRAPHY, ... (default: GENERAL_KNOWLEDGE)
  --top-k int        Number of results (default: domain setting)
  --year int         Temporal filter year (default: detected from the query)
  --entity string    Key entity to boost keyword recall (repeatable)
  --force-temporal   Apply the temporal boost in every domain
  --server string    Server URL; empty retrieves in-process
  --output string    Output format: text or json (default: text)

Ingest Flags:
  --category string  Corpus category of the documents (required)
  --valid-from int   First year the documents apply to (0 = always)
  --expire-at int    Last year the documents apply to (0 = never expires)
  --out string       Chunk file to merge into (default: storage.chunks_path)

Index Flags:
  --chunks string    Chunk file to build from (default: storage.chunks_path)

Status Flags:
  --server string    Server URL (default: none, read the indexes directly)
  --output string    Output format: text or json (default: text)

Inbox Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  kotae ingest --category Phap_luat_Viet_Nam --valid-from 2024 ./corpus/law
  kotae index
  kotae safety-bank ./data/harmful_seeds.txt
  kotae answer "Thủ đô của Việt Nam là?" --choice "Hà Nội" --choice "Huế"
  kotae batch --out predictions.csv ./data/test.json
  kotae retrieve --domain LAW "Luật Đất đai 2024 quy định gì về thu hồi đất?"
  kotae server --inbox ./inbox
  kotae inbox add ./inbox/round2
  kotae status --output json`)
}
