package knowledge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aihub/ragbot/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// 下载失败原因，直接展示给用户
const (
	ReasonInvalidLink    = "invalid/empty link"
	ReasonNotInformative = "page not informative"
	ReasonDownloadError  = "download error"
)

const (
	defaultUserAgent   = "Mozilla/5.0 (compatible; ragbot/1.0)"
	maxHTMLBytes       = 10 << 20
	defaultHTTPTimeout = 30 * time.Second
)

// 清洗时整体移除的标签
var noiseTags = "script, style, footer, header, nav, aside, form, button"

// HTMLDownloader 网页下载器
type HTMLDownloader struct {
	client *http.Client
}

// NewHTMLDownloader 创建下载器
func NewHTMLDownloader(timeout time.Duration) *HTMLDownloader {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTMLDownloader{client: &http.Client{Timeout: timeout}}
}

// NewHTMLDownloaderWithClient 使用指定 http.Client
func NewHTMLDownloaderWithClient(client *http.Client) *HTMLDownloader {
	return &HTMLDownloader{client: client}
}

// Download 返回页面 HTML；失败时 html 为空，reason 为失败原因
func (d *HTMLDownloader) Download(ctx context.Context, rawURL string) (string, string) {
	if !validLink(rawURL) {
		return "", ReasonInvalidLink
	}

	page, err := d.fetch(ctx, rawURL)
	if err != nil {
		logger.Error("failed to download page", zap.String("url", rawURL), zap.Error(err))
		return "", ReasonDownloadError
	}

	if !IsInformative(page) {
		logger.Warn("page is not informative", zap.String("url", rawURL))
		return "", ReasonNotInformative
	}
	return page, ""
}

func (d *HTMLDownloader) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxHTMLBytes)
	reader, err := charset.NewReader(body, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = body
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func validLink(rawURL string) bool {
	if strings.TrimSpace(rawURL) == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// PageStats 页面信息量统计
type PageStats struct {
	Words int
	Links int
}

// Informative 大量正文，或正文适中且链接少，或链接占比低
func (s PageStats) Informative() bool {
	ratio := 0.0
	if s.Words > 0 {
		ratio = float64(s.Links) / float64(s.Words)
	}
	return s.Words > 300 ||
		(s.Words > 100 && s.Links < 15) ||
		(s.Words > 150 && ratio < 0.1)
}

// AnalyzePage 去掉 script/style 后统计词数和 a[href] 链接数
func AnalyzePage(page string) (PageStats, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return PageStats{}, err
	}
	doc.Find("script, style").Remove()

	words := 0
	for _, part := range textParts(doc.Selection) {
		words += len(strings.Fields(part))
	}
	return PageStats{Words: words, Links: doc.Find("a[href]").Length()}, nil
}

// IsInformative 判断页面是否包含有用内容
func IsInformative(page string) bool {
	stats, err := AnalyzePage(page)
	if err != nil {
		logger.Error("failed to analyze page", zap.Error(err))
		return false
	}
	logger.Debug("page analyzed",
		zap.Int("words", stats.Words),
		zap.Int("links", stats.Links),
		zap.Bool("informative", stats.Informative()))
	return stats.Informative()
}

// CleanHTML 移除导航等噪声标签，按行输出非空文本
func CleanHTML(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", err
	}
	doc.Find(noiseTags).Remove()

	joined := strings.Join(textParts(doc.Selection), "\n")
	lines := make([]string, 0)
	for _, line := range strings.Split(joined, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// textParts 按文档顺序收集去掉首尾空白后的非空文本节点
func textParts(sel *goquery.Selection) []string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return parts
}
