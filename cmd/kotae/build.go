package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/safety"
	"github.com/hyperjump/kotae/internal/storage"
)

func runIngest() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	category := fs.String("category", "", "corpus category of the documents (required)")
	validFrom := fs.Int("valid-from", 0, "first year the documents apply to (0 = always)")
	expireAt := fs.Int("expire-at", 0, "last year the documents apply to (0 = never expires)")
	out := fs.String("out", "", "chunk file to merge into (default: storage.chunks_path)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ingest -category <name> [flags] <dir-or-file>...")
		os.Exit(1)
	}
	src := indexer.Source{Category: *category, ValidFrom: *validFrom, ExpireAt: *expireAt}
	if err := src.Validate(); err != nil {
		fatalf("%v", err)
	}

	cfg, _, logger := setup(*configPath, *debug, true)
	defer logger.Sync()
	path := *out
	if path == "" {
		path = cfg.Storage.ChunksPath
	}
	existing, err := storage.LoadChunksJSON(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fatalf("Failed to read %s: %v", path, err)
	}

	ingester := indexer.NewIngester(cfg.Ingest, indexer.WithLogger(logger))
	ctx := context.Background()
	var added []*models.Chunk
	files := 0
	for _, root := range fs.Args() {
		res, err := ingester.Ingest(ctx, root, src)
		if err != nil {
			fatalf("Ingest %s failed: %v", root, err)
		}
		files += res.Files
		added = append(added, res.Chunks...)
		printFailures(os.Stderr, res.Failed)
	}

	merged := indexer.Merge(existing, added)
	if err := storage.SaveChunksJSON(path, merged); err != nil {
		fatalf("Failed to write chunks: %v", err)
	}
	fmt.Printf("Ingested %d file(s) into %d chunk(s); %s now holds %d chunk(s)\n", files, len(added), path, len(merged))
	fmt.Println("Run kotae index to rebuild the indexes.")
}

func printFailures(w io.Writer, failed map[string]string) {
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "skipped %s: %s\n", name, failed[name])
	}
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	chunksPath := fs.String("chunks", "", "chunk file to build from (default: storage.chunks_path)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, logger := setup(*configPath, *debug, false)
	defer logger.Sync()
	if err := cfg.Validate(); err != nil {
		fatalf("Invalid config: %v", err)
	}
	path := *chunksPath
	if path == "" {
		path = cfg.Storage.ChunksPath
	}
	chunks, err := storage.LoadChunksJSON(path)
	if err != nil {
		fatalf("Failed to load chunks: %v", err)
	}

	svc, err := newLLM(cfg, logger, nil)
	if err != nil {
		fatalf("%v", err)
	}
	emb, err := newEmbedder(cfg, svc)
	if err != nil {
		fatalf("%v", err)
	}
	defer emb.Close()

	builder := indexer.NewBuilder(cfg, embedding.NewCachingEmbedder(emb, cfg.Embedding.CacheSize), indexer.WithBuilderLogger(logger))
	stats, err := builder.Build(context.Background(), chunks)
	if err != nil {
		fatalf("Indexing failed: %v", err)
	}
	fmt.Printf("Indexed %d chunk(s) in %d categor(ies), %d dimensions, in %s\n",
		stats.Chunks, stats.Categories, stats.Dimensions, stats.Elapsed)
}

// readSeeds reads one seed query per line. Blank lines, '#' comments and repeats are skipped.
func readSeeds(r io.Reader) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("no seed queries")
	}
	return out, nil
}

func runSafetyBank() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("safety-bank", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Println("Usage: kotae safety-bank [flags] <seeds.txt>")
		os.Exit(1)
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fatalf("Failed to open seeds: %v", err)
	}
	texts, err := readSeeds(f)
	f.Close()
	if err != nil {
		fatalf("Failed to read seeds: %v", err)
	}

	cfg, _, logger := setup(*configPath, *debug, true)
	defer logger.Sync()
	svc, err := newLLM(cfg, logger, nil)
	if err != nil {
		fatalf("%v", err)
	}
	emb, err := newEmbedder(cfg, svc)
	if err != nil {
		fatalf("%v", err)
	}
	defer emb.Close()

	bank, err := safety.BuildBank(context.Background(), emb, texts)
	if err != nil {
		fatalf("Failed to build safety bank: %v", err)
	}
	if err := bank.Save(cfg.Storage.SafetyTextsPath, cfg.Storage.SafetyMatrixPath); err != nil {
		fatalf("Failed to save safety bank: %v", err)
	}
	fmt.Printf("Safety bank built: %d queries, %d dimensions -> %s\n", bank.Len(), bank.Dimensions(), cfg.Storage.SafetyTextsPath)
}

func runSafetyCheck() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("safety-check", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = check in-process)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	text := buildQuery(fs.Args())
	if text == "" {
		fmt.Println("Usage: kotae safety-check [flags] <text>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	if *serverURL != "" {
		var resp struct {
			models.SafetyCheckResult
			Threshold float64 `json:"threshold"`
		}
		body := map[string]string{"text": text}
		if err := callJSON(http.MethodPost, apiURL(*serverURL, "/api/v1/safety/check"), body, http.StatusOK, &resp); err != nil {
			fatalf("Safety check failed: %v", err)
		}
		if err := cli.WriteSafety(os.Stdout, resp.SafetyCheckResult, resp.Threshold, format); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}

	cfg, _, logger := setup(*configPath, *debug, true)
	defer logger.Sync()
	svc, err := newLLM(cfg, logger, nil)
	if err != nil {
		fatalf("%v", err)
	}
	emb, err := newEmbedder(cfg, svc)
	if err != nil {
		fatalf("%v", err)
	}
	defer emb.Close()
	fw, err := loadFirewall(cfg, emb, logger)
	if err != nil {
		fatalf("%v", err)
	}
	if fw == nil {
		fatalf("Safety firewall is disabled by config (safety.enabled: false)")
	}
	vec, err := emb.Embed(context.Background(), text)
	if err != nil {
		fatalf("Embedding failed: %v", err)
	}
	if err := cli.WriteSafety(os.Stdout, fw.Check(vec), fw.Threshold(), format); err != nil {
		fatalf("Output failed: %v", err)
	}
}
