// Command strata-backup runs the scheduled memory backup service, or
// performs one-off backup, restore, list, and health operations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/strata/internal/backup"
	"github.com/scrypster/strata/internal/config"
	"github.com/scrypster/strata/internal/embedding"
	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/internal/storage/chromem"
	"github.com/scrypster/strata/internal/storage/pgvector"
	"github.com/scrypster/strata/pkg/types"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (optional, uses env vars by default)")
	backupDir  = flag.String("backup-dir", "", "Backup directory path (overrides config)")
	interval   = flag.Duration("interval", 0, "Backup interval (overrides config)")
	oneshot    = flag.Bool("oneshot", false, "Perform a single manual backup and exit")
	restore    = flag.String("restore", "", "Restore memories from a backup (catalog ID or filename) and exit")
	healthCmd  = flag.Bool("health", false, "Check backup service health and exit")
	listCmd    = flag.Bool("list", false, "List all complete backups and exit")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *backupDir != "" {
		cfg.Backup.Dir = *backupDir
	}
	intervalFinal := cfg.Backup.IntervalDuration()
	if *interval > 0 {
		intervalFinal = *interval
	}

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	defer store.Close()

	manager, err := backup.NewManager(backup.Config{
		BackupDir:      cfg.Backup.Dir,
		Store:          store,
		ReflectionsDir: cfg.Reflection.Dir,
		Interval:       intervalFinal,
		Compress:       cfg.Backup.Compress,
		Retention:      cfg.Backup.RetentionDays,
	})
	if err != nil {
		log.Fatalf("Failed to create backup manager: %v", err)
	}
	defer manager.Close()

	ctx := context.Background()

	switch {
	case *restore != "":
		handleRestore(ctx, manager, *restore)
	case *healthCmd:
		handleHealth(ctx, manager)
	case *listCmd:
		handleList(ctx, manager)
	case *oneshot:
		handleOneshot(ctx, manager, cfg.Backup.Compress)
	default:
		runService(ctx, manager)
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.LoadConfigFile(*configPath)
	}
	return config.LoadConfig()
}

// buildStore opens the configured vector store backend with the configured
// embedding provider.
func buildStore(cfg *config.Config) (storage.VectorStore, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
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

func handleRestore(ctx context.Context, manager *backup.Manager, idOrFilename string) {
	log.Printf("Restoring memories from backup: %s", idOrFilename)

	result, err := manager.RestoreBackup(ctx, idOrFilename)
	if err != nil {
		log.Fatalf("Restore failed: %v", err)
	}

	log.Printf("Restored from %s", result.Filename)
	for memoryType, count := range result.Counts {
		fmt.Printf("  %s: %d memories\n", memoryType, count)
	}
}

func handleHealth(ctx context.Context, manager *backup.Manager) {
	health, err := manager.HealthCheck(ctx)
	if err != nil {
		log.Fatalf("Health check failed: %v", err)
	}

	fmt.Printf("Status: %s\n", health.Status)
	if health.Message != "" {
		fmt.Printf("Message: %s\n", health.Message)
	}
	fmt.Printf("Total Backups: %d\n", health.TotalBackups)
	fmt.Printf("Disk Space Used: %.2f MB\n", float64(health.DiskSpaceUsed)/(1024*1024))
	fmt.Printf("Backup Directory: %s\n", health.BackupDir)

	if !health.LastBackup.IsZero() {
		fmt.Printf("Last Backup: %s (%s ago)\n",
			health.LastBackup.Format(time.RFC3339),
			time.Since(health.LastBackup).Round(time.Minute))
	} else {
		fmt.Println("Last Backup: Never")
	}

	if health.Status != "healthy" {
		os.Exit(1)
	}
}

func handleList(ctx context.Context, manager *backup.Manager) {
	backups, err := manager.ListBackups(ctx, "", 0)
	if err != nil {
		log.Fatalf("Failed to list backups: %v", err)
	}

	if len(backups) == 0 {
		fmt.Println("No backups found")
		return
	}

	fmt.Printf("Found %d backup(s):\n\n", len(backups))
	for i, b := range backups {
		fmt.Printf("%d. [%d] %s\n", i+1, b.ID, b.Filename)
		fmt.Printf("   Type: %s  Created: %s  Size: %.2f MB  Memories: %d  Retention: %dd\n",
			b.BackupType, b.Timestamp.Format(time.RFC3339),
			float64(b.SizeBytes)/(1024*1024), b.TotalMemories(), b.RetentionDays)
	}
}

func handleOneshot(ctx context.Context, manager *backup.Manager, compress bool) {
	log.Println("Performing one-time backup...")

	result, err := manager.CreateBackup(ctx, types.BackupManual, "Manual backup", compress)
	if err != nil {
		log.Fatalf("Backup failed: %v", err)
	}

	log.Printf("Backup completed: %s (%d bytes, %v)", result.Filename, result.SizeBytes, result.Duration)
}

// runService runs the scheduled loop until SIGINT/SIGTERM.
func runService(ctx context.Context, manager *backup.Manager) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- manager.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
		if err := manager.Stop(); err != nil {
			log.Printf("Stop failed: %v", err)
		}
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Backup service exited: %v", err)
		}
	}
	log.Println("Backup service stopped")
}
