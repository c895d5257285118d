package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Load reads a corpus from source.
//
// source is either a single .json/.yaml file or a doublestar pattern such as
// "data/corpus/**/*.json". Pattern matches are loaded in lexical order and
// concatenated. Files whose path or base name matches one of the exclude
// patterns are skipped. Any failure is returned as a *LoadError.
func Load(source string, exclude ...string) (*Corpus, error) {
	files, err := resolveSources(source, exclude)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	seen := make(map[string]string)
	for _, path := range files {
		fileChunks, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		for i, ch := range fileChunks {
			if err := validateChunk(ch); err != nil {
				return nil, &LoadError{Path: path, Index: i, Err: err}
			}
			if prev, ok := seen[ch.ID]; ok {
				return nil, &LoadError{Path: path, Index: i, Err: fmt.Errorf("duplicate chunk_id %q (already defined in %s)", ch.ID, prev)}
			}
			seen[ch.ID] = path
		}
		chunks = append(chunks, fileChunks...)
	}

	if len(chunks) == 0 {
		return nil, &LoadError{Path: source, Index: -1, Err: ErrEmpty}
	}

	return New(chunks)
}

// resolveSources expands source into the ordered list of files to read
func resolveSources(source string, exclude []string) ([]string, error) {
	if strings.TrimSpace(source) == "" {
		return nil, &LoadError{Index: -1, Err: fmt.Errorf("no corpus source configured")}
	}

	if !isPattern(source) {
		info, err := os.Stat(source)
		if err != nil {
			return nil, &LoadError{Path: source, Index: -1, Err: err}
		}
		if info.IsDir() {
			return nil, &LoadError{Path: source, Index: -1, Err: fmt.Errorf("is a directory; use a pattern such as %s", filepath.Join(source, "*.json"))}
		}
		return []string{source}, nil
	}

	if !doublestar.ValidatePattern(filepath.ToSlash(source)) {
		return nil, &LoadError{Path: source, Index: -1, Err: doublestar.ErrBadPattern}
	}
	matches, err := doublestar.FilepathGlob(source, doublestar.WithFilesOnly())
	if err != nil {
		return nil, &LoadError{Path: source, Index: -1, Err: err}
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if !isCorpusFile(m) || excluded(m, exclude) {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, &LoadError{Path: source, Index: -1, Err: fmt.Errorf("pattern matched no corpus files")}
	}
	return files, nil
}

func loadFile(path string) ([]Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Index: -1, Err: err}
	}

	var chunks []Chunk
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &chunks)
	default:
		err = json.Unmarshal(data, &chunks)
	}
	if err != nil {
		return nil, &LoadError{Path: path, Index: -1, Err: fmt.Errorf("decode: %w", err)}
	}
	return chunks, nil
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

func isCorpusFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func excluded(path string, patterns []string) bool {
	slashed := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, slashed); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
