package service_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"meetinghub/dto"
	"meetinghub/pkg/ai"
	"meetinghub/repository"
)

func newTestRepo(t *testing.T) repository.MeetingRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	repo := repository.NewWithDatabase(db)
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

// fakePublisher records processing dispatches instead of touching a broker.
type fakePublisher struct {
	mu       sync.Mutex
	messages []dto.ProcessMessage
}

func (p *fakePublisher) PublishProcess(_ context.Context, message dto.ProcessMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	return nil
}

func (p *fakePublisher) published() []dto.ProcessMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]dto.ProcessMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// fakeStore keeps objects in memory.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Put(_ context.Context, objectName string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[objectName] = data
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) PutFile(_ context.Context, objectName, localPath, _ string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[objectName] = data
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) FetchToFile(_ context.Context, objectName, localPath string) error {
	s.mu.Lock()
	data, ok := s.objects[objectName]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("object %s not found", objectName)
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (s *fakeStore) Get(_ context.Context, objectName string) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.objects[objectName]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectName)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Remove(_ context.Context, objectName string) error {
	s.mu.Lock()
	delete(s.objects, objectName)
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) object(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[name]
	return data, ok
}

// fakeTranscriber and fakeSummarizer script the capability outcomes.
type fakeTranscriber struct {
	mu     sync.Mutex
	result *ai.TranscriptResult
	err    error
	calls  int
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (*ai.TranscriptResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeSummarizer struct {
	mu     sync.Mutex
	result *ai.SummaryResult
	err    error
	calls  int
}

func (f *fakeSummarizer) Summarize(context.Context, string) (*ai.SummaryResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
