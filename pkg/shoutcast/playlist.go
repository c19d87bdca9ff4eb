package shoutcast

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// maxPlaylistSize bounds how much of a response is inspected.
const maxPlaylistSize = 64 * 1024

// Resolver follows playlist URLs to stream URLs.
type Resolver struct {
	client *http.Client
	logger *slog.Logger
}

func NewResolver(timeout time.Duration, logger *slog.Logger) *Resolver {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{DialContext: dialer.DialContext}
	return NewResolverWithClient(&http.Client{Transport: transport, Timeout: timeout}, logger)
}

func NewResolverWithClient(client *http.Client, logger *slog.Logger) *Resolver {
	return &Resolver{client: client, logger: logger.With("component", "shoutcast")}
}

// parsePLS returns the first FileN= entry of a PLS playlist.
func parsePLS(body io.Reader) (string, error) {
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "File") {
			continue
		}
		if _, url, ok := strings.Cut(line, "="); ok {
			if url = strings.TrimSpace(url); url != "" {
				return url, nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}

	return "", fmt.Errorf("no stream URL found in PLS playlist")
}

// parseM3U returns the first http(s) entry of an M3U playlist.
func parseM3U(body io.Reader) (string, error) {
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if isHTTP(line) {
			return line, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}

	return "", fmt.Errorf("no stream URL found in M3U playlist")
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isAudio(contentType string) bool {
	return strings.HasPrefix(contentType, "audio/") &&
		!strings.Contains(contentType, "mpegurl") &&
		!strings.Contains(contentType, "scpls")
}

// Resolve returns the stream URL behind url. A URL that is already a stream
// is returned unchanged. HLS master playlists (.m3u8 with #EXT-X tags) are
// streams in their own right and are also returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Add("accept", "*/*")
	req.Header.Add("user-agent", "Mozilla/5.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")

	if resp.Header.Get("icy-metaint") != "" || resp.Header.Get("icy-name") != "" || isAudio(contentType) {
		return url, nil
	}

	bodyData, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	content := string(bodyData)

	if strings.Contains(content, "#EXT-X-") {
		return url, nil
	}

	isPLS := strings.Contains(contentType, "audio/x-scpls") ||
		strings.Contains(contentType, "application/pls+xml") ||
		strings.HasSuffix(url, ".pls") ||
		strings.Contains(content, "[playlist]") ||
		strings.Contains(content, "File1=")

	isM3U := strings.Contains(contentType, "audio/mpegurl") ||
		strings.Contains(contentType, "audio/x-mpegurl") ||
		strings.Contains(contentType, "application/vnd.apple.mpegurl") ||
		strings.HasSuffix(url, ".m3u") ||
		strings.HasSuffix(url, ".m3u8") ||
		strings.Contains(content, "#EXTM3U") ||
		isHTTP(strings.TrimSpace(content))

	switch {
	case isPLS:
		streamURL, err := parsePLS(strings.NewReader(content))
		if err != nil {
			return "", fmt.Errorf("failed to parse PLS playlist: %w", err)
		}
		r.logger.Debug("resolved playlist", "playlist", url, "stream", streamURL)
		return streamURL, nil
	case isM3U:
		streamURL, err := parseM3U(strings.NewReader(content))
		if err != nil {
			return "", fmt.Errorf("failed to parse M3U playlist: %w", err)
		}
		r.logger.Debug("resolved playlist", "playlist", url, "stream", streamURL)
		return streamURL, nil
	}

	return "", fmt.Errorf("URL does not appear to be a stream or playlist (Content-Type: %s)", contentType)
}
