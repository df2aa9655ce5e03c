// Package loader extracts plain text from knowledge items so they can be
// chunked and embedded. Notes carry their text inline; url/article items
// are fetched and reduced to their main content; PDFs are parsed from the
// copied file.
package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"golang.org/x/time/rate"

	"github.com/lorebook/lorebook/internal/models"
)

type LoaderConfig struct {
	Timeout   time.Duration
	RateLimit float64 // fetches per second
}

type Loader struct {
	config  LoaderConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewWithConfig(config LoaderConfig, logger *slog.Logger) *Loader {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}
}

// Extract returns the item's plain text plus extraction metadata.
func (l *Loader) Extract(ctx context.Context, item models.KnowledgeItem) (models.ExtractedDocument, error) {
	switch item.Type {
	case models.TypeNote:
		return models.ExtractedDocument{
			Text:     item.Content,
			Metadata: map[string]string{},
		}, nil
	case models.TypeURL, models.TypeArticle:
		return l.extractURL(ctx, item.Content)
	case models.TypePDF:
		return l.extractPDF(item.Content)
	default:
		return models.ExtractedDocument{}, fmt.Errorf("unsupported knowledge item type: %q", item.Type)
	}
}

// Selectors that usually wrap the substantive part of a page, tried in
// order before falling back to the whole body.
var contentSelectors = []string{
	"main",
	"article",
	".content",
	"#content",
	".documentation",
	"#documentation",
}

func (l *Loader) extractURL(ctx context.Context, pageURL string) (models.ExtractedDocument, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return models.ExtractedDocument{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return models.ExtractedDocument{}, fmt.Errorf("invalid URL %q: %w", pageURL, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return models.ExtractedDocument{}, fmt.Errorf("failed to fetch %q: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ExtractedDocument{}, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.ExtractedDocument{}, fmt.Errorf("failed to parse %q: %w", pageURL, err)
	}

	content := extractMainContent(doc)
	title := strings.TrimSpace(doc.Find("title").Text())

	l.logger.Debug("extracted page", "url", pageURL, "title", title, "length", len(content))

	return models.ExtractedDocument{
		Text: content,
		Metadata: map[string]string{
			"sourceUrl":   pageURL,
			"pageTitle":   title,
			"contentType": resp.Header.Get("Content-Type"),
		},
	}, nil
}

func extractMainContent(doc *goquery.Document) string {
	var content string
	for _, selector := range contentSelectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	if content == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content)
}

func cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")

	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

func (l *Loader) extractPDF(path string) (models.ExtractedDocument, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return models.ExtractedDocument{}, fmt.Errorf("failed to open PDF %q: %w", path, err)
	}
	defer file.Close()

	plainText, err := reader.GetPlainText()
	if err != nil {
		return models.ExtractedDocument{}, fmt.Errorf("failed to extract PDF text: %w", err)
	}

	text, err := io.ReadAll(plainText)
	if err != nil {
		return models.ExtractedDocument{}, fmt.Errorf("failed to read PDF text: %w", err)
	}

	return models.ExtractedDocument{
		Text: string(text),
		Metadata: map[string]string{
			"pages": strconv.Itoa(reader.NumPage()),
		},
	}, nil
}
