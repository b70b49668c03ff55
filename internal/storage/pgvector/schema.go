// Package pgvector provides the PostgreSQL implementation of
// storage.VectorStore, backed by the pgvector extension for cosine
// similarity search.
package pgvector

// schemaTemplate contains the SQL statements to create the record table.
// The single %d placeholder is the embedding dimension; every statement is
// idempotent so the schema can be applied on each open.
const schemaTemplate = `
-- One row per memory record; one logical collection per memory type.
-- seq preserves global insertion order and breaks similarity ties.
CREATE TABLE IF NOT EXISTS memory_records (
    collection     TEXT NOT NULL,
    id             TEXT NOT NULL,
    memory_type    TEXT NOT NULL,
    content        TEXT NOT NULL,
    metadata       JSONB NOT NULL DEFAULT '{}'::jsonb,
    embedding      vector(%d) NOT NULL,
    embedding_norm DOUBLE PRECISION NOT NULL DEFAULT 0,
    seq            BIGSERIAL,
    PRIMARY KEY (collection, id)
);

-- Enumeration and tie-breaking both scan (collection, seq).
CREATE INDEX IF NOT EXISTS idx_memory_records_collection_seq
    ON memory_records (collection, seq);

-- Metadata filters use JSONB containment.
CREATE INDEX IF NOT EXISTS idx_memory_records_metadata
    ON memory_records USING GIN (metadata);
`

// migrationVectorIndex creates the approximate-nearest-neighbor index for
// cosine search. ivfflat needs at least one row to exist, so the creation is
// guarded and simply retried on the next open of an empty database.
const migrationVectorIndex = `
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_memory_records_embedding_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM memory_records LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_memory_records_embedding_cosine ON memory_records USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`
