package session

import "strings"

const citationPrefix = "Documents looked up to obtain this answer: "

type Citation struct {
	DisplayName string `json:"displayName"`
}

// CitationResult separates an answer backed by zero documents from one whose
// documents could not be determined. Err is ErrSourcesMissing in the latter
// case.
type CitationResult struct {
	Citations []Citation
	Err       error
}

func ExtractCitations(reply Reply) CitationResult {
	if !reply.SourcesKnown {
		return CitationResult{Err: ErrSourcesMissing}
	}
	return CitationResult{Citations: Citations(reply.Sources)}
}

// Citations converts source documents into display names. The path wins over
// the name, documents with neither are skipped and repeated display names
// keep their first position.
func Citations(docs []SourceDocument) []Citation {
	citations := make([]Citation, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		full := doc.Path
		if full == "" {
			full = doc.Name
		}
		if full == "" {
			continue
		}
		name := LastSegment(full)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		citations = append(citations, Citation{DisplayName: name})
	}
	return citations
}

// LastSegment returns the part of a slash separated path after the final
// slash, which is empty for a path ending in one.
func LastSegment(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// RenderCitations formats citations as a comma separated list of
// backquoted names.
func RenderCitations(citations []Citation) string {
	parts := make([]string, len(citations))
	for i, c := range citations {
		parts[i] = "`" + c.DisplayName + "`"
	}
	return strings.Join(parts, ", ")
}

// ComposeAnswer appends the looked-up documents to answer. An empty citation
// list leaves the answer untouched.
func ComposeAnswer(answer string, citations []Citation) string {
	if len(citations) == 0 {
		return answer
	}
	return answer + "\n\n" + citationPrefix + RenderCitations(citations)
}
