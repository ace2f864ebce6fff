// Package service orchestrates ingestion: one-shot runs for an initial
// index build and a watch mode that keeps the index in sync with the
// department directories.
package service

import (
	"context"
	"sync"
	"time"

	"intranet/config"
	"intranet/loader/internal"
	"intranet/store"
	"intranet/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service struct {
	cfg    config.LoaderConfig
	store  store.DBStorer
	loader *internal.DocLoader
	logger *zap.Logger
}

func New(cfg config.LoaderConfig, storer store.DBStorer, embedder internal.Embedder, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		store:  storer,
		loader: internal.NewDocLoader(cfg, embedder, logger),
		logger: logger,
	}
}

// RunOnce ingests every file currently present and returns.
func (s *Service) RunOnce(ctx context.Context) error {
	if err := s.loader.CreateDirectories(); err != nil {
		return err
	}

	files, err := s.loader.ListFiles()
	if err != nil {
		return err
	}
	s.logger.Info("ingestion run", zap.Int("files", len(files)))

	for _, filePath := range files {
		doc, err := s.loader.FetchFile(ctx, filePath)
		if err != nil {
			s.logger.Error("error processing file", zap.String("file", filePath), zap.Error(err))
			s.loader.MoveToArchive(filePath, true)
			continue
		}
		if err := s.saveDocument(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// Watch runs the watcher, processor and saver goroutines until ctx is done.
func (s *Service) Watch(ctx context.Context) error {
	if err := s.loader.CreateDirectories(); err != nil {
		return err
	}

	fileChan := make(chan string, 10)
	docChan := make(chan *types.Document)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.loader.WatchFiles(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(docChan)
		s.loader.ProcessFiles(ctx, fileChan, docChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.saveDocuments(ctx, docChan)
	}()

	<-ctx.Done()
	s.logger.Info("stopping loader service")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all loader goroutines stopped")
	case <-time.After(5 * time.Second):
		s.logger.Warn("timeout waiting for loader goroutines to stop")
	}
	return nil
}

func (s *Service) saveDocuments(ctx context.Context, docChan <-chan *types.Document) {
	for doc := range docChan {
		if err := s.saveDocument(ctx, doc); err != nil {
			s.logger.Error("error saving document",
				zap.String("title", doc.Title), zap.Error(err))
			s.loader.MoveToArchive(doc.SourcePath, true)
		}
	}
}

func (s *Service) saveDocument(ctx context.Context, doc *types.Document) error {
	if !s.shouldUpdate(ctx, doc.ID, doc.UpdatedAt) {
		s.logger.Info("document unchanged, skipping",
			zap.String("title", doc.Title))
		s.loader.MoveToArchive(doc.SourcePath, false)
		return nil
	}

	if err := s.store.SaveDocument(ctx, *doc); err != nil {
		return err
	}

	// Re-ingesting replaces the chunk set wholesale.
	if err := s.store.DeleteChunksByDocID(ctx, doc.ID); err != nil {
		return err
	}
	for i := range doc.Chunks {
		if err := s.store.SaveChunk(ctx, doc.Chunks[i]); err != nil {
			return err
		}
	}

	s.logger.Info("document saved",
		zap.String("title", doc.Title),
		zap.String("department", string(doc.Department)),
		zap.Int("chunks", len(doc.Chunks)))
	s.loader.MoveToArchive(doc.SourcePath, false)
	return nil
}

func (s *Service) shouldUpdate(ctx context.Context, docID uuid.UUID, modTime time.Time) bool {
	doc, err := s.store.GetDocumentByID(ctx, docID)
	if err != nil {
		// Not indexed yet.
		return true
	}
	return modTime.After(doc.UpdatedAt)
}
