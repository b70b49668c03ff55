package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// LocalProvider produces deterministic embeddings without any external
// service. Tokens and adjacent-token bigrams are feature-hashed into a
// fixed-dimension vector which is then l2-normalized, so texts sharing
// vocabulary land near each other while unrelated texts stay apart.
//
// It is the default provider: useful for development, tests, and air-gapped
// deployments where no embedding server is reachable.
type LocalProvider struct {
	dimension int
	model     string
}

// NewLocalProvider creates a local provider with the given dimension.
// Non-positive dimensions fall back to DefaultDimension.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &LocalProvider{
		dimension: dimension,
		model:     "local-hash-v1",
	}
}

// Embed converts text to a normalized feature-hash vector. Text with no
// tokens (empty or punctuation only) yields the zero vector.
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, p.dimension)
	tokens := tokenize(text)
	for i, tok := range tokens {
		p.addFeature(vec, tok, 1.0)
		if i+1 < len(tokens) {
			p.addFeature(vec, tok+" "+tokens[i+1], 0.5)
		}
	}
	return Normalize(vec), nil
}

// EmbedBatch embeds each text in order.
func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, vec)
	}
	return vecs, nil
}

// Dimension returns the fixed vector length.
func (p *LocalProvider) Dimension() int {
	return p.dimension
}

// Model returns the model version identifier.
func (p *LocalProvider) Model() string {
	return p.model
}

// addFeature hashes a feature into a bucket with a pseudo-random sign and
// accumulates its weight. The second hash round decorrelates bucket and sign.
func (p *LocalProvider) addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	seed := h.Sum64()

	bucket := int(seed % uint64(p.dimension))
	seed = seed*6364136223846793005 + 1442695040888963407
	if seed&1 == 0 {
		weight = -weight
	}
	vec[bucket] += weight
}

// tokenize lowercases and splits on any non-letter, non-digit rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
