package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/scrypster/strata/internal/embedding"
	"github.com/scrypster/strata/internal/llm"
	"github.com/scrypster/strata/internal/reflection"
	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/pkg/types"
)

// defaultSearchLimit caps cross-type search results when the caller passes
// no limit.
const defaultSearchLimit = 10

// relevancePoolFactor sizes the candidate pool for weighted retrieval as a
// multiple of the requested result count.
const relevancePoolFactor = 3

// BackupService is the slice of the backup manager the memory Manager
// delegates to. Nil disables backup operations.
type BackupService interface {
	// Run takes a backup of the given type and records it in the catalog.
	Run(ctx context.Context, backupType, description string) (*types.BackupResult, error)

	// Restore replaces all memory data with the named snapshot's contents.
	Restore(ctx context.Context, idOrFilename string) (*types.RestoreResult, error)

	// List returns catalog entries, most recent first.
	List(ctx context.Context, limit int) ([]*types.BackupRecord, error)
}

// typedModule is the record surface shared by all four memory modules.
type typedModule interface {
	AddRecord(ctx context.Context, rec *types.MemoryRecord) (string, error)
	Get(ctx context.Context, id string) (*types.MemoryRecord, error)
	GetAll(ctx context.Context, limit int) ([]*types.MemoryRecord, error)
	Search(ctx context.Context, query string, limit int, filter storage.Filter) ([]storage.SearchResult, error)
	SearchByMetadata(ctx context.Context, filter storage.Filter, limit int) ([]*types.MemoryRecord, error)
	UpdateRecord(ctx context.Context, id, text string, patch map[string]any) (bool, error)
	DeleteRecord(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// Config wires a Manager. Store and Provider are required; the rest is
// optional and disables the corresponding operations when absent.
type Config struct {
	// Store is the vector store backing all four collections.
	Store storage.VectorStore

	// Provider computes embeddings for new and re-embedded records.
	Provider embedding.Provider

	// Reflections is the reflection document repository. When nil,
	// TriggerReflection returns degraded records and listing calls fail.
	Reflections *reflection.Repository

	// Generator summarizes reflection windows. Nil falls back to the local
	// extractive summarizer.
	Generator llm.TextGenerator

	// Backups handles snapshot and restore operations. Nil disables them.
	Backups BackupService

	// Weights tunes GetRelevantMemories. The zero value selects
	// DefaultRetrievalWeights.
	Weights RetrievalWeights
}

// Manager fronts the four typed memory modules. It routes single-record
// operations by memory type, owns cross-type search and weighted retrieval,
// and delegates reflection and backup to their services.
type Manager struct {
	store    storage.VectorStore
	provider embedding.Provider

	core     *CoreMemory
	episodic *EpisodicMemory
	semantic *SemanticMemory
	personal *PersonalMemory
	modules  map[string]typedModule

	reflector   *reflection.Reflector
	reflections *reflection.Repository
	backups     BackupService
	weights     RetrievalWeights
}

// NewManager builds the typed modules over the configured store, seeds the
// core collection when empty, and wires the reflector when a reflection
// repository is supplied.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("memory: vector store is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("memory: embedding provider is required")
	}
	weights := cfg.Weights
	if weights == (RetrievalWeights{}) {
		weights = DefaultRetrievalWeights()
	}

	m := &Manager{
		store:       cfg.Store,
		provider:    cfg.Provider,
		core:        NewCoreMemory(cfg.Store, cfg.Provider),
		episodic:    NewEpisodicMemory(cfg.Store, cfg.Provider),
		semantic:    NewSemanticMemory(cfg.Store, cfg.Provider),
		personal:    NewPersonalMemory(cfg.Store, cfg.Provider),
		reflections: cfg.Reflections,
		backups:     cfg.Backups,
		weights:     weights,
	}
	m.modules = map[string]typedModule{
		types.TypeCore:     m.core,
		types.TypeEpisodic: m.episodic,
		types.TypeSemantic: m.semantic,
		types.TypePersonal: m.personal,
	}

	if err := m.core.EnsureDefaults(ctx); err != nil {
		return nil, err
	}

	if cfg.Reflections != nil {
		m.reflector = reflection.NewReflector(m.episodic, m.semantic, cfg.Reflections, cfg.Generator)
	}

	return m, nil
}

// Core returns the core memory module.
func (m *Manager) Core() *CoreMemory { return m.core }

// Episodic returns the episodic memory module.
func (m *Manager) Episodic() *EpisodicMemory { return m.episodic }

// Semantic returns the semantic memory module.
func (m *Manager) Semantic() *SemanticMemory { return m.semantic }

// Personal returns the personal memory module.
func (m *Manager) Personal() *PersonalMemory { return m.personal }

func (m *Manager) moduleFor(memoryType string) (typedModule, error) {
	module, ok := m.modules[memoryType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown memory type %q", types.ErrValidation, memoryType)
	}
	return module, nil
}

// StoreRequest describes a memory to store through the Manager.
type StoreRequest struct {
	Text       string         // Required
	Type       string         // Required; one of the four memory types
	Importance float64        // Optional; the type's default applies when 0
	UserID     string         // Required for personal memories
	Metadata   map[string]any // Optional extra metadata, merged via patch rules
}

// StoreMemory stores a memory in the collection owned by its type. The
// record gets a generated ID and creation timestamp; type defaults fill any
// metadata the request leaves unset.
func (m *Manager) StoreMemory(ctx context.Context, req StoreRequest) (string, error) {
	if req.Text == "" {
		return "", fmt.Errorf("%w: text is required", types.ErrValidation)
	}
	module, err := m.moduleFor(req.Type)
	if err != nil {
		return "", err
	}
	if req.Type == types.TypePersonal && req.UserID == "" {
		return "", fmt.Errorf("%w: user_id is required for personal memories", types.ErrValidation)
	}

	rec := &types.MemoryRecord{Text: req.Text, Type: req.Type}
	rec.Metadata.ApplyPatch(req.Metadata)
	if req.Importance != 0 {
		rec.Metadata.Importance = types.ClampImportance(req.Importance)
	}
	if req.UserID != "" {
		rec.Metadata.UserID = req.UserID
	}
	return module.AddRecord(ctx, rec)
}

// RetrieveMemory returns a memory by type and ID. Returns
// storage.ErrNotFound when no such record exists.
func (m *Manager) RetrieveMemory(ctx context.Context, memoryType, id string) (*types.MemoryRecord, error) {
	module, err := m.moduleFor(memoryType)
	if err != nil {
		return nil, err
	}
	return module.Get(ctx, id)
}

// UpdateMemory applies a partial update to a memory. An empty text leaves
// the content unchanged; the metadata patch is shallow-merged. Returns false
// when the update carries no changes.
func (m *Manager) UpdateMemory(ctx context.Context, memoryType, id, text string, patch map[string]any) (bool, error) {
	module, err := m.moduleFor(memoryType)
	if err != nil {
		return false, err
	}
	return module.UpdateRecord(ctx, id, text, patch)
}

// DeleteMemory removes a memory by type and ID. Returns false when the
// record does not exist.
func (m *Manager) DeleteMemory(ctx context.Context, memoryType, id string) (bool, error) {
	module, err := m.moduleFor(memoryType)
	if err != nil {
		return false, err
	}
	return module.DeleteRecord(ctx, id)
}

// SearchRequest describes a cross-type similarity search.
type SearchRequest struct {
	Query  string         // Required
	Types  []string       // Memory types to search; empty means all four
	Limit  int            // Per-type and final cap; defaults to 10
	Filter storage.Filter // Optional metadata filter applied to every type
	UserID string         // Scopes personal memories; personal is skipped without it
}

// SearchMemories searches each requested collection and merges the hits into
// one similarity-ranked list. Personal memories are searched only when the
// request carries a user (either UserID or a user_id filter), and are always
// scoped to that user.
func (m *Manager) SearchMemories(ctx context.Context, req SearchRequest) ([]storage.SearchResult, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("%w: query is required", types.ErrValidation)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	searchTypes := req.Types
	if len(searchTypes) == 0 {
		searchTypes = types.ValidMemoryTypes
	}

	var all []storage.SearchResult
	for _, memoryType := range searchTypes {
		module, ok := m.modules[memoryType]
		if !ok {
			continue
		}

		filter := make(storage.Filter, len(req.Filter)+1)
		for key, cond := range req.Filter {
			filter[key] = cond
		}
		if memoryType == types.TypePersonal {
			if req.UserID != "" {
				filter["user_id"] = storage.Eq(req.UserID)
			} else if _, ok := filter["user_id"]; !ok {
				continue
			}
		}
		if len(filter) == 0 {
			filter = nil
		}

		hits, err := module.Search(ctx, req.Query, limit, filter)
		if err != nil {
			return nil, fmt.Errorf("memory: search of %s memories failed: %w", memoryType, err)
		}
		all = append(all, hits...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Similarity > all[j].Similarity
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// GetUserMemories returns everything known about a user: their personal
// memories plus episodic memories tagged with them, most recent first.
func (m *Manager) GetUserMemories(ctx context.Context, userID string, limit int) ([]*types.MemoryRecord, error) {
	personal, err := m.personal.GetUserMemories(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	episodic, err := m.episodic.SearchByMetadata(ctx, storage.Filter{"user_id": storage.Eq(userID)}, limit)
	if err != nil {
		return nil, err
	}

	merged := append(personal, episodic...)
	sortByTimestampDesc(merged)
	return truncateRecords(merged, limit), nil
}

// GetRelevantMemories retrieves context for a prompt: candidates above the
// importance threshold are scored by weighted similarity, recency, and
// importance, and the top results returned.
func (m *Manager) GetRelevantMemories(ctx context.Context, query, userID string, limit int) ([]RelevantMemory, error) {
	if limit <= 0 {
		limit = m.weights.MaxResults
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var filter storage.Filter
	if m.weights.ImportanceThreshold > 0 {
		filter = storage.Filter{"importance": storage.Gte(m.weights.ImportanceThreshold)}
	}

	hits, err := m.SearchMemories(ctx, SearchRequest{
		Query:  query,
		Limit:  limit * relevancePoolFactor,
		Filter: filter,
		UserID: userID,
	})
	if err != nil {
		return nil, err
	}

	ranked := rankByWeights(hits, m.weights)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// TriggerReflection generates and persists a reflection over the recent
// episodic window. It never fails: any internal error (including an
// unconfigured reflector) yields a degraded record whose summary describes
// the problem.
func (m *Manager) TriggerReflection(ctx context.Context, reflectionType string) *types.ReflectionRecord {
	if m.reflector == nil {
		return degradedReflection(reflectionType, fmt.Errorf("reflection is not configured"))
	}
	rec, err := m.reflector.Reflect(ctx, reflectionType)
	if err != nil {
		log.Printf("memory: reflection failed: %v", err)
		return degradedReflection(reflectionType, err)
	}
	return rec
}

func degradedReflection(reflectionType string, err error) *types.ReflectionRecord {
	return &types.ReflectionRecord{
		Type:        reflectionType,
		Timestamp:   time.Now().UTC(),
		Summary:     fmt.Sprintf("Error creating reflection: %v", err),
		Insights:    []types.Insight{},
		MemoryCount: 0,
	}
}

// ListReflections returns metadata for stored reflections of the given type,
// most recent first.
func (m *Manager) ListReflections(reflectionType string, limit int) ([]types.ReflectionInfo, error) {
	if m.reflections == nil {
		return nil, fmt.Errorf("memory: reflection is not configured")
	}
	return m.reflections.List(reflectionType, limit)
}

// LatestReflection returns the most recent stored reflection of the given
// type. Returns storage.ErrNotFound when none exists.
func (m *Manager) LatestReflection(reflectionType string) (*types.ReflectionRecord, error) {
	if m.reflections == nil {
		return nil, fmt.Errorf("memory: reflection is not configured")
	}
	return m.reflections.Latest(reflectionType)
}

// BackupMemories takes a manual backup. The outcome is reported in the
// result object, never as an error.
func (m *Manager) BackupMemories(ctx context.Context, description string) *types.BackupResult {
	if m.backups == nil {
		return &types.BackupResult{OperationResult: errorResult("backup is not configured")}
	}
	res, err := m.backups.Run(ctx, types.BackupManual, description)
	if err != nil {
		log.Printf("memory: backup failed: %v", err)
		return &types.BackupResult{OperationResult: errorResult(err.Error())}
	}
	return res
}

// RestoreMemories replaces all memory data with the named snapshot's
// contents. The outcome is reported in the result object, never as an
// error.
func (m *Manager) RestoreMemories(ctx context.Context, idOrFilename string) *types.RestoreResult {
	if m.backups == nil {
		return &types.RestoreResult{OperationResult: errorResult("backup is not configured")}
	}
	res, err := m.backups.Restore(ctx, idOrFilename)
	if err != nil {
		log.Printf("memory: restore failed: %v", err)
		return &types.RestoreResult{OperationResult: errorResult(err.Error())}
	}
	return res
}

// ListBackups returns backup catalog entries, most recent first.
func (m *Manager) ListBackups(ctx context.Context, limit int) ([]*types.BackupRecord, error) {
	if m.backups == nil {
		return nil, fmt.Errorf("memory: backup is not configured")
	}
	return m.backups.List(ctx, limit)
}

// Counts returns the number of records in each memory type's collection.
func (m *Manager) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(m.modules))
	for memoryType, module := range m.modules {
		n, err := module.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("memory: failed to count %s memories: %w", memoryType, err)
		}
		counts[memoryType] = n
	}
	return counts, nil
}

func errorResult(message string) types.OperationResult {
	return types.OperationResult{Status: types.StatusError, Message: message}
}
