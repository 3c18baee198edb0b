package llm

import (
	"google.golang.org/genai"

	"github.com/cpunion/meetassist/pkg/types"
)

// ExtractSources returns the web citations of md in order, deduplicated by
// URI. The first title seen for a URI wins.
func ExtractSources(md *genai.GroundingMetadata) []types.Source {
	if md == nil {
		return nil
	}
	var sources []types.Source
	seen := make(map[string]struct{})
	for _, chunk := range md.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		if _, ok := seen[chunk.Web.URI]; ok {
			continue
		}
		seen[chunk.Web.URI] = struct{}{}
		title := chunk.Web.Title
		if title == "" {
			title = chunk.Web.URI
		}
		sources = append(sources, types.Source{Title: title, URI: chunk.Web.URI})
	}
	return sources
}

// MergeSources appends extra to base, skipping URIs already present.
func MergeSources(base, extra []types.Source) []types.Source {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[s.URI] = struct{}{}
	}
	for _, s := range extra {
		if _, ok := seen[s.URI]; ok {
			continue
		}
		seen[s.URI] = struct{}{}
		base = append(base, s)
	}
	return base
}

func usageFrom(md *genai.GenerateContentResponseUsageMetadata) Usage {
	if md == nil {
		return Usage{}
	}
	return Usage{
		PromptTokens:     md.PromptTokenCount,
		CandidatesTokens: md.CandidatesTokenCount,
		TotalTokens:      md.TotalTokenCount,
	}
}
