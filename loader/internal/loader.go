// Package internal does the file-level work of ingestion: discovering
// documents under the per-department directories, converting them to text,
// splitting them into embedded chunks.
package internal

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"intranet/config"
	"intranet/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	cropTop    = 46.0
	cropBottom = 57.0
)

// Embedder turns chunk text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type DocLoader struct {
	cfg      config.LoaderConfig
	embedder Embedder
	client   *http.Client
	logger   *zap.Logger

	fileMutex       sync.Mutex
	fileFirstSeen   map[string]time.Time
	filesProcessing map[string]bool
}

func NewDocLoader(cfg config.LoaderConfig, embedder Embedder, logger *zap.Logger) *DocLoader {
	return &DocLoader{
		cfg:             cfg,
		embedder:        embedder,
		client:          &http.Client{Timeout: 5 * time.Minute},
		logger:          logger,
		fileFirstSeen:   make(map[string]time.Time),
		filesProcessing: make(map[string]bool),
	}
}

// CreateDirectories makes sure every department directory and the archive
// directories exist.
func (l *DocLoader) CreateDirectories() error {
	dirs := []string{l.cfg.ArchiveDir, l.cfg.BadDir}
	for _, dept := range types.SearchableDepartments {
		dirs = append(dirs, filepath.Join(l.cfg.DocsDir, string(dept)))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// ListFiles walks the department subdirectories and returns every ingestable
// file it finds.
func (l *DocLoader) ListFiles() ([]string, error) {
	var files []string
	for _, dept := range types.SearchableDepartments {
		dir := filepath.Join(l.cfg.DocsDir, string(dept))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || !ingestable(entry.Name()) {
				continue
			}
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func ingestable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".md", ".txt":
		return true
	}
	return false
}

// WatchFiles polls the department directories and sends files to fileChan
// once their mtime has been stable for a full poll interval.
func (l *DocLoader) WatchFiles(ctx context.Context, fileChan chan<- string) {
	l.logger.Info("start monitoring folder", zap.String("dir", l.cfg.DocsDir))

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	defer l.logger.Info("file watcher stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			files, err := l.ListFiles()
			if err != nil {
				l.logger.Error("error while reading source directories", zap.Error(err))
				continue
			}

			currentFiles := make(map[string]bool)
			for _, filePath := range files {
				currentFiles[filePath] = true

				l.fileMutex.Lock()
				if l.filesProcessing[filePath] {
					l.fileMutex.Unlock()
					continue
				}
				firstSeen, seen := l.fileFirstSeen[filePath]
				if !seen {
					l.fileFirstSeen[filePath] = time.Now()
					l.logger.Info("new file detected", zap.String("file", filePath))
					l.fileMutex.Unlock()
					continue
				}
				l.fileMutex.Unlock()

				if time.Since(firstSeen) < l.cfg.PollInterval {
					continue
				}

				l.fileMutex.Lock()
				l.filesProcessing[filePath] = true
				l.fileMutex.Unlock()

				select {
				case fileChan <- filePath:
				case <-ctx.Done():
					return
				}
			}

			// Forget files that disappeared from the source directories.
			l.fileMutex.Lock()
			for filePath := range l.fileFirstSeen {
				if !currentFiles[filePath] {
					delete(l.fileFirstSeen, filePath)
					delete(l.filesProcessing, filePath)
				}
			}
			l.fileMutex.Unlock()
		}
	}
}

// ProcessFiles consumes file paths, builds documents and forwards them.
func (l *DocLoader) ProcessFiles(ctx context.Context, fileChan <-chan string, docChan chan<- *types.Document) {
	defer l.logger.Info("file processor stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case filePath, ok := <-fileChan:
			if !ok {
				return
			}

			l.logger.Info("processing file", zap.String("file", filePath))
			doc, err := l.FetchFile(ctx, filePath)
			if err != nil {
				l.logger.Error("error processing file", zap.String("file", filePath), zap.Error(err))
				l.MoveToArchive(filePath, true)
			} else {
				select {
				case docChan <- doc:
				case <-ctx.Done():
					return
				}
			}

			l.fileMutex.Lock()
			delete(l.filesProcessing, filePath)
			delete(l.fileFirstSeen, filePath)
			l.fileMutex.Unlock()
		}
	}
}

// FetchFile turns one source file into a document with embedded chunks.
func (l *DocLoader) FetchFile(ctx context.Context, filePath string) (*types.Document, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("file does not exist: %s", filePath)
	}

	department := departmentFromPath(l.cfg.DocsDir, filePath)
	if !department.Valid() || department == types.DepartmentGeneral {
		return nil, fmt.Errorf("file %s is not under a department directory", filePath)
	}

	id, err := documentID(filePath)
	if err != nil {
		return nil, err
	}

	text, err := l.extractText(ctx, filePath)
	if err != nil {
		return nil, err
	}

	source := filepath.Base(filePath)
	chunks, err := l.splitByChunks(ctx, text, id, source, department)
	if err != nil {
		return nil, err
	}

	return &types.Document{
		ID:         id,
		Title:      generateTitle(filePath),
		Source:     source,
		SourcePath: filePath,
		Department: department,
		Chunks:     chunks,
		CreatedAt:  fileInfo.ModTime(),
		UpdatedAt:  fileInfo.ModTime(),
		Version:    1,
	}, nil
}

func (l *DocLoader) extractText(ctx context.Context, filePath string) (string, error) {
	if strings.EqualFold(filepath.Ext(filePath), ".pdf") {
		if err := CropHeaderFooter(filePath, filePath, cropTop, cropBottom); err != nil {
			l.logger.Warn("pdf crop failed, converting as is", zap.String("file", filePath), zap.Error(err))
		}
		return l.convertToMarkdown(ctx, filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type converterResponse struct {
	Document struct {
		MdContent string `json:"md_content"`
	} `json:"document"`
}

// convertToMarkdown sends the PDF to the converter sidecar and returns the
// markdown rendition.
func (l *DocLoader) convertToMarkdown(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("files", filepath.Base(filePath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.ConverterURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("converter request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("converter returned status %d", resp.StatusCode)
	}

	var cr converterResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("decode converter response: %w", err)
	}
	return cr.Document.MdContent, nil
}

// splitByChunks slides a word window of ChunkSize words with ChunkOverlap
// words of overlap and embeds every window.
func (l *DocLoader) splitByChunks(ctx context.Context, text string, docID uuid.UUID, source string, department types.Department) ([]types.Chunk, error) {
	var chunks []types.Chunk
	pos := 0

	for _, window := range SplitWords(text, l.cfg.ChunkSize, l.cfg.ChunkOverlap) {
		embedding, err := l.embedder.Embed(ctx, window)
		if err != nil {
			l.logger.Error("embedding error", zap.Int("position", pos), zap.Error(err))
			return nil, err
		}

		chunks = append(chunks, types.Chunk{
			ID:         uuid.New(),
			DocID:      docID,
			Position:   pos,
			Text:       window,
			Source:     source,
			Department: department,
			Embedding:  embedding,
		})
		pos++
	}
	return chunks, nil
}

// SplitWords is the chunking policy: fixed word windows with overlap.
// Empty windows are skipped.
func SplitWords(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	words := strings.Fields(text)
	var out []string

	for i := 0; i < len(words); i += chunkSize - overlap {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}

		window := strings.Join(words[i:end], " ")
		if strings.TrimSpace(window) != "" {
			out = append(out, window)
		}

		if end == len(words) {
			break
		}
	}
	return out
}

// MoveToArchive copies the file under a dated directory and removes the
// original. Failed files land in the bad directory instead.
func (l *DocLoader) MoveToArchive(filePath string, bad bool) {
	root := l.cfg.ArchiveDir
	if bad {
		root = l.cfg.BadDir
	}

	currentDate := time.Now().Format("2006-01-02")
	destDir := filepath.Join(root, currentDate)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		l.logger.Error("error creating archive directory", zap.Error(err))
		return
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))

	// Name conflicts get a numeric suffix.
	counter := 1
	for {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		ext := filepath.Ext(destPath)
		baseName := strings.TrimSuffix(filepath.Base(filePath), ext)
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
		counter++
	}

	in, err := os.Open(filePath)
	if err != nil {
		l.logger.Error("error open file", zap.Error(err))
		return
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		l.logger.Error("error create file", zap.Error(err))
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		l.logger.Error("error moving file to archive", zap.Error(err))
		return
	}

	in.Close()
	os.Remove(filePath)
	l.logger.Info("file moved to archive", zap.String("dest", destPath))
}

func generateTitle(filePath string) string {
	fileName := filepath.Base(filePath)
	fileName = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	fileName = strings.ReplaceAll(fileName, "_", " ")
	fileName = strings.ReplaceAll(fileName, "-", " ")
	return fileName
}

// documentID derives a stable id from the file path, so re-ingesting the
// same file updates the same document.
func documentID(filePath string) (uuid.UUID, error) {
	hash := md5.Sum([]byte(filePath))
	return uuid.Parse(fmt.Sprintf("%x", hash))
}

// departmentFromPath reads the department off the first directory under the
// docs root.
func departmentFromPath(docsDir, filePath string) types.Department {
	rel, err := filepath.Rel(docsDir, filePath)
	if err != nil {
		return types.DepartmentGeneral
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return types.DepartmentGeneral
	}
	return types.Department(parts[0])
}
