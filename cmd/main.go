package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"study-rag/internal/config"
	"study-rag/internal/embedding"
	"study-rag/internal/helper"
	"study-rag/internal/llmservice"
	"study-rag/internal/logger"
	"study-rag/internal/metrics"
	"study-rag/internal/parser"
	"study-rag/internal/rag"
	"study-rag/internal/tui"
	"study-rag/internal/vectorstore"
	"study-rag/internal/web"
)

const configFilePath = "./configs/config.yaml"

func main() {
	configPath := flag.String("config", configFilePath, "Path to the config file")
	ingestPath := flag.String("ingest", "", "Scanned PDF to OCR, embed and upload")
	textPath := flag.String("text", "", "Print the OCR text of a PDF page by page")
	query := flag.String("query", "", "Answer a single question and exit")
	verbose := flag.Bool("verbose", false, "With -query, print the retrieved matches as JSON")
	serve := flag.Bool("serve", false, "Serve the web form")
	ui := flag.Bool("tui", false, "Start the terminal interface")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	logger.Setup(cfg.Log, os.Stderr)
	log.Debug().Str("store", cfg.VectorStore.Type).Str("index", cfg.Index.Name).Str("namespace", cfg.Index.Namespace).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *textPath != "":
		printText(ctx, cfg, *textPath)
	case *ingestPath != "":
		ingest(ctx, cfg, *ingestPath)
	case *query != "":
		answerOnce(ctx, cfg, *query, *verbose)
	case *serve:
		serveWeb(ctx, cfg)
	case *ui:
		runTUI(ctx, cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func printText(ctx context.Context, cfg *config.Config, filePath string) {
	extractor, err := parser.NewExtractor(cfg.OCR)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating extractor")
	}
	pages, err := extractor.Extract(ctx, filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error extracting text")
	}
	for _, p := range pages {
		fmt.Printf("\n--- Page %d ---\n", p.Number)
		fmt.Println(p.Text)
	}
}

func ingest(ctx context.Context, cfg *config.Config, filePath string) {
	extractor, err := parser.NewExtractor(cfg.OCR)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating extractor")
	}
	embedder, err := embedding.NewEmbedder(cfg.EmbedLLM, cfg.Index.Dimension)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	store, err := vectorstore.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}
	defer store.Close()

	in := rag.NewIngestor(extractor, embedder, store, cfg.Index.Namespace, cfg.RAG.ChunkSize, cfg.RAG.BatchSize, nil)
	n, err := in.Ingest(ctx, filePath)
	if err != nil {
		store.Close()
		log.Fatal().Err(err).Str("file", filePath).Msg("Ingestion failed")
	}
	fmt.Printf("Uploaded %d chunks from %s into %s (namespace: %s)\n", n, parser.SourceName(filePath), cfg.Index.Name, cfg.Index.Namespace)
}

// newRAG wires the serving path; the caller closes the store
func newRAG(cfg *config.Config, m *metrics.Metrics) (*rag.RAG, vectorstore.Store) {
	embedder, err := embedding.NewEmbedder(cfg.EmbedLLM, cfg.Index.Dimension)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	store, err := vectorstore.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}
	llm := llmservice.NewClient(cfg.ChatLLM)
	return rag.NewRAG(embedder, store, llm, cfg.Index.Namespace, cfg.RAG.TopK, m), store
}

func answerOnce(ctx context.Context, cfg *config.Config, query string, verbose bool) {
	r, store := newRAG(cfg, nil)
	defer store.Close()

	res, err := r.Query(ctx, query)
	if err != nil {
		store.Close()
		log.Fatal().Err(err).Msg("Error querying")
	}
	if verbose {
		helper.PrettyPrint(res.Matches)
	}
	fmt.Printf("%s\n", res.Answer)
}

func serveWeb(ctx context.Context, cfg *config.Config) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	r, store := newRAG(cfg, m)
	defer store.Close()

	if err := web.NewServer(cfg.Server, r, m, reg).Run(ctx); err != nil {
		store.Close()
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func runTUI(ctx context.Context, cfg *config.Config) {
	r, store := newRAG(cfg, nil)
	defer store.Close()

	// the alt screen owns the terminal
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	if err := tui.Run(ctx, r, cfg.Server.Title); err != nil {
		store.Close()
		log.Fatal().Err(err).Msg("Terminal UI failed")
	}
}
