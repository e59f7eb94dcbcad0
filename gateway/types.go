package gateway

import (
	"time"

	"github.com/fabfab/docchat/session"
)

// Document is one retrieved chunk and the metadata of the file it came from.
type Document struct {
	Text     string
	Metadata map[string]any
	Distance float64
}

func (d Document) Path() string {
	return metadataString(d.Metadata, "path")
}

func (d Document) Name() string {
	return metadataString(d.Metadata, "name")
}

type Statistics struct {
	FileCount    int
	LastModified *time.Time
	LastIndexed  *time.Time
}

// InputFile is one entry of the backend's file listing. Path and Name are
// empty when the backend did not report them.
type InputFile struct {
	Path   string
	Name   string
	SeenAt time.Time
	Status string
}

// Key returns the path when present and the name otherwise.
func (f InputFile) Key() string {
	if f.Path != "" {
		return f.Path
	}
	return f.Name
}

// DisplayName returns the last path segment of Key.
func (f InputFile) DisplayName() string {
	return session.LastSegment(f.Key())
}

type retrieveRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type documentPayload struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Dist     float64        `json:"dist"`
}

type statisticsPayload struct {
	FileCount    int      `json:"file_count"`
	LastModified *float64 `json:"last_modified"`
	LastIndexed  *float64 `json:"last_indexed"`
}

type inputFilePayload struct {
	Path   *string  `json:"path"`
	Name   *string  `json:"name"`
	SeenAt *float64 `json:"seen_at"`
	Status *string  `json:"status"`
}

func (p inputFilePayload) toInputFile() (InputFile, bool) {
	if p.SeenAt == nil {
		return InputFile{}, false
	}
	file := InputFile{SeenAt: unixSeconds(*p.SeenAt)}
	if p.Path != nil {
		file.Path = *p.Path
	}
	if p.Name != nil {
		file.Name = *p.Name
	}
	if p.Status != nil {
		file.Status = *p.Status
	}
	return file, true
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key].(string)
	if !ok {
		return ""
	}
	return value
}
