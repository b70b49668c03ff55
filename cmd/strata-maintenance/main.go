// Command strata-maintenance runs the on-demand maintenance jobs of the
// memory subsystem: consolidation, concept extraction, reflection
// generation, and backup retention checks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/scrypster/strata/internal/backup"
	"github.com/scrypster/strata/internal/config"
	"github.com/scrypster/strata/internal/consolidate"
	"github.com/scrypster/strata/internal/embedding"
	"github.com/scrypster/strata/internal/llm"
	"github.com/scrypster/strata/internal/memory"
	"github.com/scrypster/strata/internal/reflection"
	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/internal/storage/chromem"
	"github.com/scrypster/strata/internal/storage/pgvector"
	"github.com/scrypster/strata/pkg/types"
)

var (
	configPath     = flag.String("config", "", "Path to YAML config file (optional, uses env vars by default)")
	consolidateCmd = flag.Bool("consolidate", false, "Run a consolidation pass (merge/archive/concepts)")
	conceptsCmd    = flag.Bool("concepts", false, "Run concept extraction only")
	reflectCmd     = flag.String("reflect", "", "Generate a reflection: daily or weekly")
	pruneCmd       = flag.Bool("prune-check", false, "Apply the backup retention policy")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if !*consolidateCmd && !*conceptsCmd && *reflectCmd == "" && !*pruneCmd {
		flag.Usage()
		return
	}

	ctx := context.Background()

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatalf("Failed to build embedding provider: %v", err)
	}
	store, err := buildStore(cfg, provider)
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	defer store.Close()

	mgr, consolidator, err := buildManager(ctx, cfg, store, provider)
	if err != nil {
		log.Fatalf("Failed to build memory manager: %v", err)
	}

	if *consolidateCmd {
		runConsolidation(ctx, consolidator)
	}
	if *conceptsCmd && !*consolidateCmd {
		runConceptExtraction(ctx, consolidator)
	}
	if *reflectCmd != "" {
		runReflection(ctx, mgr, *reflectCmd)
	}
	if *pruneCmd {
		runPruneCheck(ctx, cfg, store)
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.LoadConfigFile(*configPath)
	}
	return config.LoadConfig()
}

func buildStore(cfg *config.Config, provider embedding.Provider) (storage.VectorStore, error) {
	if cfg.Storage.Engine == "pgvector" {
		return pgvector.New(cfg.Storage.PostgresDSN, provider)
	}
	return chromem.New(cfg.Storage.DataPath, provider)
}

func buildProvider(cfg *config.Config) (embedding.Provider, error) {
	var provider embedding.Provider
	if cfg.Embedding.Provider == "ollama" {
		provider = embedding.NewOllamaProvider(cfg.Embedding.OllamaURL, cfg.Embedding.Model, cfg.Embedding.Dimension)
	} else {
		provider = embedding.NewLocalProvider(cfg.Embedding.Dimension)
	}
	if cfg.Embedding.CacheSize > 0 {
		return embedding.NewCachedProvider(provider, cfg.Embedding.CacheSize)
	}
	return provider, nil
}

// buildManager wires the memory manager with its reflection repository,
// optional summarizer, and a consolidator over its typed modules.
func buildManager(ctx context.Context, cfg *config.Config, store storage.VectorStore, provider embedding.Provider) (*memory.Manager, *consolidate.Consolidator, error) {
	repo, err := reflection.NewRepository(cfg.Reflection.Dir)
	if err != nil {
		return nil, nil, err
	}

	var generator llm.TextGenerator
	if cfg.LLM.Enabled {
		generator, err = llm.NewTextGenerator(llm.ProviderConfig{
			Provider:          cfg.LLM.Provider,
			APIKey:            cfg.LLM.APIKey,
			Model:             cfg.LLM.Model,
			BaseURL:           cfg.LLM.BaseURL,
			Timeout:           time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			Burst:             cfg.LLM.Burst,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	mgr, err := memory.NewManager(ctx, memory.Config{
		Store:       store,
		Provider:    provider,
		Reflections: repo,
		Generator:   generator,
		Weights: memory.RetrievalWeights{
			ImportanceThreshold: cfg.Retrieval.ImportanceThreshold,
			RelevanceWeight:     cfg.Retrieval.RelevanceWeight,
			RecencyWeight:       cfg.Retrieval.RecencyWeight,
			ImportanceWeight:    cfg.Retrieval.ImportanceWeight,
			MaxResults:          cfg.Retrieval.MaxResults,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	consolidator := consolidate.New(
		mgr.Episodic(), mgr.Semantic(), mgr.Personal(), mgr.Semantic(),
		consolidate.Config{
			SimilarityThreshold:  cfg.Consolidate.SimilarityThreshold,
			MergeThreshold:       cfg.Consolidate.MergeThreshold,
			MergeBoostStep:       cfg.Consolidate.MergeBoostStep,
			MergeBoostCap:        cfg.Consolidate.MergeBoostCap,
			ArchiveMinMerges:     cfg.Consolidate.ArchiveMinMerges,
			ArchiveFactor:        cfg.Consolidate.ArchiveFactor,
			ArchiveFloor:         cfg.Consolidate.ArchiveFloor,
			ConceptThreshold:     cfg.Consolidate.ConceptThreshold,
			ConceptMinCluster:    3,
			ConceptMinImportance: 0.5,
			PersonalMinGroup:     3,
			MaxCandidates:        cfg.Consolidate.MaxCandidates,
		})

	return mgr, consolidator, nil
}

func runConsolidation(ctx context.Context, consolidator *consolidate.Consolidator) {
	log.Println("Running consolidation pass...")
	report := consolidator.Run(ctx)

	fmt.Printf("Consolidation finished in %v\n", report.Duration.Round(time.Millisecond))
	for _, cr := range report.Collections {
		fmt.Printf("  %s: %d candidates, %d clusters, %d merged, %d archived, %d concepts\n",
			cr.Collection, cr.Candidates, cr.Clusters, cr.Merged, cr.Archived, cr.Concepts)
	}
	for _, errMsg := range report.Errors {
		fmt.Printf("  error: %s\n", errMsg)
	}
}

func runConceptExtraction(ctx context.Context, consolidator *consolidate.Consolidator) {
	log.Println("Running concept extraction...")
	n, err := consolidator.ExtractConcepts(ctx)
	if err != nil {
		log.Fatalf("Concept extraction failed: %v", err)
	}
	fmt.Printf("Extracted %d concept(s)\n", n)
}

func runReflection(ctx context.Context, mgr *memory.Manager, reflectionType string) {
	if !types.IsValidReflectionType(reflectionType) {
		log.Fatalf("Unknown reflection type %q (want daily or weekly)", reflectionType)
	}

	log.Printf("Generating %s reflection...", reflectionType)
	rec := mgr.TriggerReflection(ctx, reflectionType)

	fmt.Printf("%s (%s)\n", rec.Title, rec.ID)
	fmt.Printf("Memories analyzed: %d\n\n%s\n", rec.MemoryCount, rec.Summary)
	if len(rec.Insights) > 0 {
		fmt.Println("\nInsights:")
		for _, insight := range rec.Insights {
			fmt.Printf("  - [%s, %.2f] %s\n", insight.Category, insight.Importance, insight.Text)
		}
	}
}

func runPruneCheck(ctx context.Context, cfg *config.Config, store storage.VectorStore) {
	manager, err := backup.NewManager(backup.Config{
		BackupDir:      cfg.Backup.Dir,
		Store:          store,
		ReflectionsDir: cfg.Reflection.Dir,
		Interval:       cfg.Backup.IntervalDuration(),
		Compress:       cfg.Backup.Compress,
		Retention:      cfg.Backup.RetentionDays,
	})
	if err != nil {
		log.Fatalf("Failed to create backup manager: %v", err)
	}
	defer manager.Close()

	deleted, err := manager.ApplyRetention(ctx)
	if err != nil {
		log.Fatalf("Retention sweep failed: %v", err)
	}
	fmt.Printf("Retention sweep removed %d expired backup(s)\n", deleted)
}
