// Package media loads outbound files for the dispatcher, from the local
// media directory or by downloading an http(s) URL.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kai-zer-ru/max-notify-ha/internal/usecase"
)

const (
	downloadTimeout = 60 * time.Second

	// maxFileSize caps both local reads and downloads. Platform uploads top
	// out well below this anyway.
	maxFileSize = 100 << 20
)

type Source struct {
	root string
	http *http.Client
	log  *zerolog.Logger
}

var _ usecase.FileSource = (*Source)(nil)

// NewSource creates a file source. root, when non-empty, confines local
// paths: anything resolving outside it is refused.
func NewSource(root string, logger *zerolog.Logger) *Source {
	l := logger.With().Str("component", "media").Logger()
	return &Source{
		root: root,
		http: &http.Client{Timeout: downloadTimeout},
		log:  &l,
	}
}

func (s *Source) Load(ctx context.Context, ref string) (*usecase.MediaFile, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return s.download(ctx, ref)
	}
	return s.readLocal(ref)
}

func (s *Source) readLocal(ref string) (*usecase.MediaFile, error) {
	p := filepath.Clean(ref)
	if s.root != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.root, p)
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("path %s is outside the media directory", ref)
		}
	}

	fi, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if fi.Size() > maxFileSize {
		return nil, fmt.Errorf("file %s too large (%d bytes)", ref, fi.Size())
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	return &usecase.MediaFile{
		Data:        data,
		Filename:    filepath.Base(p),
		ContentType: detectContentType(p, data),
	}, nil
}

func (s *Source) download(ctx context.Context, url string) (*usecase.MediaFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download media: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("download media: response exceeds %d bytes", maxFileSize)
	}

	clean := url
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	name := path.Base(clean)
	if name == "" || name == "." || name == "/" {
		name = "file"
	}
	ct := resp.Header.Get("Content-Type")
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = detectContentType(name, data)
	}

	s.log.Debug().Str("url", url).Int("bytes", len(data)).Str("content_type", ct).Msg("media downloaded")
	return &usecase.MediaFile{Data: data, Filename: name, ContentType: ct}, nil
}

// detectContentType prefers the file extension and falls back to content
// sniffing.
func detectContentType(name string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		if i := strings.Index(ct, ";"); i >= 0 {
			ct = strings.TrimSpace(ct[:i])
		}
		return ct
	}
	return http.DetectContentType(data)
}
