package main

import (
	"context"
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
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/temporal"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/internal/worker"
)

func printAnswerUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae answer [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces. Give each option with -choice, in order.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kotae answer "Thủ đô của Việt Nam là?" -choice "Hà Nội" -choice "Huế" -choice "Đà Nẵng"
  kotae answer -output json -qid q17 "2 + 3 = ?" -choice 4 -choice 5
`)
}

func runAnswer() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("answer", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = answer in-process)")
	qid := fs.String("qid", "cli", "question id")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	var choices stringList
	fs.Var(&choices, "choice", "answer option (repeat in order: A, B, C, ...)")
	fs.Usage = func() { printAnswerUsage(fs) }
	_ = fs.Parse(args)

	q := &models.Question{QID: *qid, Text: buildQuery(fs.Args()), Choices: choices}
	if err := q.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		printAnswerUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	var ans models.Answer
	if *serverURL != "" {
		if err := callJSON(http.MethodPost, apiURL(*serverURL, "/api/v1/answer"), q, http.StatusOK, &ans); err != nil {
			fatalf("Answer failed: %v", err)
		}
	} else {
		cfg, _, logger := setup(*configPath, *debug, true)
		defer logger.Sync()
		components := mustInitialize(context.Background(), cfg, logger)
		defer components.Close()
		ans = components.Agent.Process(context.Background(), q)
	}
	if err := cli.WriteAnswer(os.Stdout, ans, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// predictionsTarget resolves the output path and format of a batch run. An empty
// format follows the output extension; an empty output sits next to the input.
func predictionsTarget(input, output, format string) (string, cli.OutputFormat, error) {
	f := cli.OutputJSON
	switch {
	case format != "":
		parsed, err := cli.ParseOutputFormat(format)
		if err != nil {
			return "", "", err
		}
		if parsed != cli.OutputJSON && parsed != cli.OutputCSV {
			return "", "", fmt.Errorf("predictions format must be json or csv, got %q", format)
		}
		f = parsed
	case strings.EqualFold(filepath.Ext(output), ".csv"):
		f = cli.OutputCSV
	}
	if output == "" {
		output = watcher.PredictionsPath(input)
		if f == cli.OutputCSV {
			output = strings.TrimSuffix(output, ".json") + ".csv"
		}
	}
	return output, f, nil
}

// writePredictionsFile writes predictions through a temporary file and a rename.
func writePredictionsFile(path string, predictions []models.Prediction, format cli.OutputFormat) error {
	if format != cli.OutputCSV {
		return storage.SavePredictionsJSON(path, predictions)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := cli.WritePredictions(f, predictions, cli.OutputCSV); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func countFallbacks(answers []models.Answer) int {
	n := 0
	for _, a := range answers {
		if a.Fallback {
			n++
		}
	}
	return n
}

func progressLogger(logger *zap.Logger) worker.ProgressFunc {
	return func(done, total int, ans models.Answer) {
		logger.Info("answered",
			zap.Int("done", done),
			zap.Int("total", total),
			zap.String("qid", ans.QID),
			zap.String("answer", ans.Letter),
			zap.Bool("fallback", ans.Fallback),
		)
	}
}

func runBatch() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = answer in-process)")
	output := fs.String("out", "", "predictions file (default: <input>.predictions.json)")
	format := fs.String("format", "", "predictions format: json or csv (default from -out extension)")
	progress := fs.Bool("progress", false, "log each answer as it completes")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Println("Usage: kotae batch [flags] <questions.json>")
		os.Exit(1)
	}
	input := fs.Arg(0)
	questions, err := storage.LoadQuestionsJSON(input)
	if err != nil {
		fatalf("Failed to load questions: %v", err)
	}
	outPath, outFormat, err := predictionsTarget(input, *output, *format)
	if err != nil {
		fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	start := time.Now()

	var answers []models.Answer
	if *serverURL != "" {
		var resp struct {
			Answers []models.Answer `json:"answers"`
		}
		body := map[string]interface{}{"questions": questions}
		if err := callJSON(http.MethodPost, apiURL(*serverURL, "/api/v1/answer/batch"), body, http.StatusOK, &resp); err != nil {
			fatalf("Batch failed: %v", err)
		}
		answers = resp.Answers
	} else {
		cfg, _, logger := setup(*configPath, *debug, false)
		defer logger.Sync()
		components := mustInitialize(ctx, cfg, logger)
		defer components.Close()

		pool := components.Pool
		if *progress {
			opts := []worker.Option{worker.WithLogger(logger), worker.WithProgress(progressLogger(logger))}
			if components.Metrics != nil {
				opts = append(opts, worker.WithObserver(components.Metrics))
			}
			pool = worker.NewPool(components.Agent, cfg.WorkerOptions(), opts...)
		}
		logger.Info("batch started", zap.String("input", input), zap.Int("questions", len(questions)), zap.Int("workers", pool.Size()))
		answers = pool.Run(ctx, questions)
	}

	if err := writePredictionsFile(outPath, worker.Predictions(answers), outFormat); err != nil {
		fatalf("Failed to write predictions: %v", err)
	}
	fmt.Printf("Answered %d question(s) in %s -> %s\n", len(answers), time.Since(start).Round(time.Millisecond), outPath)
	if correct, graded, ok := worker.Accuracy(questions, answers); ok {
		cli.WriteAccuracy(os.Stdout, correct, graded, countFallbacks(answers))
	}
}

// retrieveRequest mirrors the body of POST /api/v1/retrieve.
type retrieveRequest struct {
	Query         string   `json:"query"`
	Domain        string   `json:"domain,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	Year          *int     `json:"year,omitempty"`
	KeyEntities   []string `json:"key_entities,omitempty"`
	ForceTemporal bool     `json:"force_temporal,omitempty"`
}

// searchRequest resolves the domain and, when no year is given, detects one in the query.
func (r retrieveRequest) searchRequest() (search.RetrieveRequest, error) {
	d := models.DomainGeneralKnowledge
	if r.Domain != "" {
		parsed, ok := models.ParseDomain(r.Domain)
		if !ok {
			return search.RetrieveRequest{}, fmt.Errorf("unknown domain: %s", r.Domain)
		}
		d = parsed
	}
	year := r.Year
	if year == nil {
		year = temporal.ExtractYearPtr(r.Query)
	}
	return search.RetrieveRequest{
		Query:         r.Query,
		Domain:        d,
		TopK:          r.TopK,
		KeyEntities:   r.KeyEntities,
		Year:          year,
		ForceTemporal: r.ForceTemporal,
	}, nil
}

func runRetrieve() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = retrieve in-process)")
	domainName := fs.String("domain", "", "question domain (default GENERAL_KNOWLEDGE)")
	topK := fs.Int("top-k", 0, "number of results (0 = domain setting)")
	year := fs.Int("year", 0, "temporal filter year (0 = detect from the query)")
	forceTemporal := fs.Bool("force-temporal", false, "apply the temporal boost in every domain")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	var entities stringList
	fs.Var(&entities, "entity", "key entity to boost keyword recall (repeatable)")
	_ = fs.Parse(args)

	query := buildQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: kotae retrieve [flags] <query>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	req := retrieveRequest{
		Query:         query,
		Domain:        *domainName,
		TopK:          *topK,
		KeyEntities:   entities,
		ForceTemporal: *forceTemporal,
	}
	if *year > 0 {
		y := *year
		req.Year = &y
	}

	var response *models.RetrieveResponse
	if *serverURL != "" {
		response = &models.RetrieveResponse{}
		if err := callJSON(http.MethodPost, apiURL(*serverURL, "/api/v1/retrieve"), req, http.StatusOK, response); err != nil {
			fatalf("Retrieve failed: %v", err)
		}
	} else {
		sreq, err := req.searchRequest()
		if err != nil {
			fatalf("%v", err)
		}
		cfg, _, logger := setup(*configPath, *debug, true)
		defer logger.Sync()
		components := mustInitialize(context.Background(), cfg, logger)
		defer components.Close()
		if components.Retriever == nil {
			fatalf("No corpus at %s; run kotae ingest and kotae index first", cfg.Storage.ChunksPath)
		}
		sreq.ForceTemporal = sreq.ForceTemporal || cfg.Retrieval.ForceTemporal
		response = components.Retriever.RetrieveDetailed(context.Background(), sreq)
	}
	if err := cli.WriteRetrieveResults(os.Stdout, response, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}
