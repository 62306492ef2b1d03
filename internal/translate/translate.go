// Package translate implements the chunked translation algorithm with
// its three-tier fallback: whole-chunk batch call, per-segment calls,
// and finally the original text as an identity translation. Whatever
// the backend does, the output always has one translated segment per
// input segment.
package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"insightlearn/internal/model"
)

// Backend is the translation engine contract this algorithm consumes.
type Backend interface {
	// TranslateBatch sends one free-form prompt and returns the raw
	// response text for parsing.
	TranslateBatch(ctx context.Context, prompt string) (string, error)

	// TranslateSingle translates one segment.
	TranslateSingle(ctx context.Context, text, sourceLang, targetLang string) (string, error)

	Name() string

	// PricePerMillionChars is zero for free/local engines.
	PricePerMillionChars() float64
}

// Stats summarizes one run of the algorithm. Cost accounting is
// bookkeeping only; it never feeds back into any decision here.
type Stats struct {
	CharCount     int
	EstimatedCost float64
	ChunkCalls    int
	ChunkFailures int
	SingleCalls   int
	IdentityCount int
}

// zeroConfidence marks a segment whose "translation" is the original
// text because every backend tier failed for it.
func zeroConfidence() *float64 {
	z := 0.0
	return &z
}

// Segments translates an ordered segment list into targetLang using as
// few backend calls as possible. It never returns fewer segments than
// it was given and it never fails: backend errors degrade per chunk,
// then per segment, then to the identity translation.
func Segments(ctx context.Context, backend Backend, segments []model.Segment, sourceLang, targetLang string, chunkSize int) ([]model.Segment, Stats) {
	stats := Stats{}

	if len(segments) == 0 {
		return []model.Segment{}, stats
	}
	if chunkSize <= 0 {
		chunkSize = 30
	}

	for _, seg := range segments {
		stats.CharCount += len(seg.Text)
	}

	out := make([]model.Segment, 0, len(segments))
	for start := 0; start < len(segments); start += chunkSize {
		end := start + chunkSize
		if end > len(segments) {
			end = len(segments)
		}

		chunk := segments[start:end]
		translated := translateChunk(ctx, backend, chunk, sourceLang, targetLang, &stats)
		out = append(out, translated...)
	}

	// Indices must stay dense and stable across chunk boundaries.
	for i := range out {
		out[i].Index = i
	}

	stats.EstimatedCost = float64(stats.CharCount) / 1_000_000 * backend.PricePerMillionChars()

	log.Info().
		Str("translator", backend.Name()).
		Str("target_lang", targetLang).
		Int("segments", len(out)).
		Int("chunk_calls", stats.ChunkCalls).
		Int("chunk_failures", stats.ChunkFailures).
		Int("single_calls", stats.SingleCalls).
		Int("identity_fallbacks", stats.IdentityCount).
		Float64("estimated_cost", stats.EstimatedCost).
		Msg("Segment translation finished")

	return out, stats
}

// translateChunk resolves one chunk, always returning len(chunk)
// segments.
func translateChunk(ctx context.Context, backend Backend, chunk []model.Segment, sourceLang, targetLang string, stats *Stats) []model.Segment {
	stats.ChunkCalls++

	prompt := BuildChunkPrompt(chunk, sourceLang, targetLang)
	raw, err := backend.TranslateBatch(ctx, prompt)
	if err != nil {
		stats.ChunkFailures++
		log.Warn().
			Err(err).
			Str("translator", backend.Name()).
			Int("chunk_size", len(chunk)).
			Msg("Chunk translation failed, falling back to per-segment calls")
		return translateSegmentwise(ctx, backend, chunk, sourceLang, targetLang, stats)
	}

	lines := ParseChunkResponse(raw)
	if len(lines) < len(chunk) {
		log.Warn().
			Str("translator", backend.Name()).
			Int("expected", len(chunk)).
			Int("parsed", len(lines)).
			Msg("Chunk response shorter than expected, padding with original text")
	}

	out := make([]model.Segment, len(chunk))
	for i, seg := range chunk {
		out[i] = seg
		if i < len(lines) && lines[i] != "" {
			out[i].Translation = lines[i]
		} else {
			// Parsing shortfall: keep the original text rather than
			// shrinking the output.
			out[i].Translation = seg.Text
		}
	}

	return out
}

// translateSegmentwise is the second fallback tier: one backend call
// per segment, with the identity translation as the last resort.
func translateSegmentwise(ctx context.Context, backend Backend, chunk []model.Segment, sourceLang, targetLang string, stats *Stats) []model.Segment {
	out := make([]model.Segment, len(chunk))
	for i, seg := range chunk {
		out[i] = seg

		stats.SingleCalls++
		translated, err := backend.TranslateSingle(ctx, seg.Text, sourceLang, targetLang)
		if err != nil || strings.TrimSpace(translated) == "" {
			stats.IdentityCount++
			out[i].Translation = seg.Text
			out[i].Confidence = zeroConfidence()
			if err != nil {
				log.Warn().
					Err(err).
					Str("translator", backend.Name()).
					Int("segment", seg.Index).
					Msg("Single-segment translation failed, using original text")
			}
			continue
		}

		out[i].Translation = strings.TrimSpace(translated)
	}

	return out
}

// BuildChunkPrompt lists every segment with a positional marker and
// instructs the engine to answer line by line, in order, with nothing
// else. The markers are what ParseChunkResponse strips back off.
func BuildChunkPrompt(chunk []model.Segment, sourceLang, targetLang string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Translate the following %d subtitle lines from %s to %s.\n", len(chunk), sourceLang, targetLang)
	b.WriteString("Reply with exactly one translated line per input line, in the same order.\n")
	b.WriteString("Do not add numbering, commentary, or anything else.\n\n")

	for i, seg := range chunk {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, seg.Text)
	}

	return b.String()
}
