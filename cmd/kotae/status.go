package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/safety"
	"github.com/hyperjump/kotae/internal/storage"
)

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	LLMProvider         string  `json:"llm_provider"`
	LLMModel            string  `json:"llm_model,omitempty"`
	EmbeddingProvider   string  `json:"embedding_provider"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	SparseType          string  `json:"sparse_type"`
	DenseType           string  `json:"dense_type"`
	DenseFilter         string  `json:"dense_filter"`
	SafetyThreshold     float64 `json:"safety_threshold"`
	RouterTimeout       string  `json:"router_timeout"`
	Workers             int     `json:"workers"`
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	UptimeSeconds   *int64                `json:"uptime_seconds,omitempty"`
	Chunks          int                   `json:"chunks"`
	Categories      map[string]int        `json:"categories,omitempty"`
	DenseIndexSize  int                   `json:"dense_index_size"`
	DenseDimensions int                   `json:"dense_dimensions,omitempty"`
	SafetyBankSize  int                   `json:"safety_bank_size"`
	DiskUsageBytes  *int64                `json:"disk_usage_bytes,omitempty"`
	Config          *statusConfigResponse `json:"config,omitempty"`
}

// localStatus reads the built corpus and safety bank without starting any model client.
func localStatus(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*statusResponse, error) {
	status := &statusResponse{
		Config: &statusConfigResponse{
			LLMProvider:         cfg.LLM.Provider,
			LLMModel:            cfg.LLM.Model,
			EmbeddingProvider:   cfg.Embedding.Provider,
			EmbeddingDimensions: cfg.Embedding.Dimensions,
			SparseType:          cfg.Storage.SparseType,
			DenseType:           cfg.Storage.DenseType,
			DenseFilter:         cfg.Retrieval.DenseFilter,
			SafetyThreshold:     cfg.Safety.Threshold,
			RouterTimeout:       cfg.Router.Timeout.String(),
			Workers:             cfg.WorkerOptions().Size,
		},
	}
	corpus, err := indexer.Open(ctx, cfg, logger)
	switch {
	case err == nil:
		defer corpus.Close()
		status.Chunks = corpus.Store.Len()
		status.Categories = corpus.Store.CategoryCounts()
		status.DenseIndexSize = corpus.Dense.Size()
		status.DenseDimensions = corpus.Dense.Dimensions()
	case errors.Is(err, indexer.ErrEmptyCorpus), errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	bank, err := safety.LoadBank(cfg.Storage.SafetyTextsPath, cfg.Storage.SafetyMatrixPath)
	switch {
	case err == nil:
		status.SafetyBankSize = bank.Len()
	case errors.Is(err, safety.ErrBankNotFound):
	default:
		return nil, err
	}

	diskBytes, err := storage.DiskUsageBytes(
		cfg.Storage.DatabasePath,
		cfg.Storage.ChunksPath,
		cfg.Storage.SparseIndexPath,
		cfg.Storage.DenseIndexPath,
		cfg.Storage.MatrixPath,
	)
	if err == nil {
		status.DiskUsageBytes = &diskBytes
	}
	return status, nil
}

func writeStatus(w io.Writer, status *statusResponse) {
	if status.UptimeSeconds != nil {
		fmt.Fprintf(w, "uptime_seconds:     %d\n", *status.UptimeSeconds)
	}
	fmt.Fprintf(w, "chunks:             %d   # passages in the corpus\n", status.Chunks)
	fmt.Fprintf(w, "dense_index_size:   %d   # vectors in the dense index\n", status.DenseIndexSize)
	fmt.Fprintf(w, "safety_bank_size:   %d   # harmful seed queries\n", status.SafetyBankSize)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # chunk store + indices on disk\n", *status.DiskUsageBytes)
	}
	if len(status.Categories) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# categories")
		names := make([]string, 0, len(status.Categories))
		for name := range status.Categories {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "%-30s %d\n", name+":", status.Categories[name])
		}
	}
	if c := status.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "llm_provider:       %s\n", c.LLMProvider)
		if c.LLMModel != "" {
			fmt.Fprintf(w, "llm_model:          %s\n", c.LLMModel)
		}
		fmt.Fprintf(w, "embedding:          %s (%d dims)\n", c.EmbeddingProvider, c.EmbeddingDimensions)
		fmt.Fprintf(w, "sparse_type:        %s\n", c.SparseType)
		fmt.Fprintf(w, "dense_type:         %s\n", c.DenseType)
		fmt.Fprintf(w, "dense_filter:       %s\n", c.DenseFilter)
		fmt.Fprintf(w, "safety_threshold:   %.2f\n", c.SafetyThreshold)
		fmt.Fprintf(w, "router_timeout:     %s\n", c.RouterTimeout)
		fmt.Fprintf(w, "workers:            %d\n", c.Workers)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = read the indexes directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	var status *statusResponse
	if *serverURL != "" {
		status = &statusResponse{}
		if err := callJSON(http.MethodGet, apiURL(*serverURL, "/api/v1/status"), nil, http.StatusOK, status); err != nil {
			fatalf("Status failed: %v", err)
		}
	} else {
		cfg, _, logger := setup(*configPath, *debug, true)
		defer logger.Sync()
		var err error
		if status, err = localStatus(context.Background(), cfg, logger); err != nil {
			fatalf("Status failed: %v", err)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fatalf("Output failed: %v", err)
		}
	case "text":
		writeStatus(os.Stdout, status)
	default:
		fatalf("Unknown output format %q; use text or json", *outputFormat)
	}
}

func runInbox() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kotae inbox <add|remove|list> [path]")
		fmt.Println("  kotae inbox add <path>     Watch a directory for question files")
		fmt.Println("  kotae inbox remove <path>  Stop watching a directory")
		fmt.Println("  kotae inbox list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("inbox", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	noSync := fs.Bool("no-sync", false, "do not answer files already in the directory (add only)")
	_ = fs.Parse(argsReorder(os.Args[3:]))
	endpoint := apiURL(*serverURL, "/api/v1/inbox/directories")

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kotae inbox add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body := map[string]interface{}{"path": path, "sync": !*noSync}
		if err := callJSON(http.MethodPost, endpoint, body, http.StatusCreated, nil); err != nil {
			fatalf("Add failed: %v", err)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kotae inbox remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		if err := callJSON(http.MethodDelete, endpoint+"?path="+url.QueryEscape(path), nil, http.StatusOK, nil); err != nil {
			fatalf("Remove failed: %v", err)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := callJSON(http.MethodGet, endpoint, nil, http.StatusOK, &out); err != nil {
			fatalf("List failed: %v", err)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown inbox subcommand: %s\n", sub)
		os.Exit(1)
	}
}
