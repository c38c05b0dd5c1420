package agents

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	// MaxKnowledgeFileBytes caps a single uploaded knowledge file.
	MaxKnowledgeFileBytes = 10 << 20
	maxExcerptRunes       = 2000
)

var allowedExtensions = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".html": "text/html",
	".htm":  "text/html",
	".csv":  "text/csv",
	".json": "application/json",
}

// KnowledgeStore saves raw knowledge file bytes.
type KnowledgeStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

// S3API is the subset of the S3 client used by S3KnowledgeStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3KnowledgeStore writes knowledge files to a bucket.
type S3KnowledgeStore struct {
	client S3API
	bucket string
}

func NewS3KnowledgeStore(client S3API, bucket string) *S3KnowledgeStore {
	if client == nil {
		panic("agents: s3 client required")
	}
	if bucket == "" {
		panic("agents: knowledge bucket required")
	}
	return &S3KnowledgeStore{client: client, bucket: bucket}
}

func (s *S3KnowledgeStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("agents: s3 put %s: %w", key, err)
	}
	return nil
}

// MemoryKnowledgeStore keeps files in memory.
type MemoryKnowledgeStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryKnowledgeStore() *MemoryKnowledgeStore {
	return &MemoryKnowledgeStore{objects: make(map[string][]byte)}
}

func (s *MemoryKnowledgeStore) Put(_ context.Context, key, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

// Object returns a stored file.
func (s *MemoryKnowledgeStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}

// knowledgeKey is agents/{orgID}/{agentID}/{filename}.
func knowledgeKey(orgID, agentID, filename string) string {
	return path.Join("agents", orgID, agentID, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

// contentTypeFor resolves the stored content type from the extension.
func contentTypeFor(name string) (string, error) {
	ext := strings.ToLower(path.Ext(name))
	ct, ok := allowedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
	return ct, nil
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > maxExcerptRunes {
		return string(runes[:maxExcerptRunes])
	}
	return text
}
