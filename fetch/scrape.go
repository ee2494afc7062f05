package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	config "github.com/jpxlab/jpxsync"
)

// findLink scrapes the source page for the download link. Without a section
// the first matching anchor wins (the pages list newest first); with one,
// the first matching anchor after the section heading wins.
func (d *JPXDownloader) findLink(ctx context.Context, src config.Source) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Page, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("page request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page %s returned HTTP %d", src.Page, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}

	if src.Section != "" {
		return findLinkAfterSection(doc, src)
	}
	return findFirstLink(doc, src)
}

func findFirstLink(doc *goquery.Document, src config.Source) (string, error) {
	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if matches(href, src.Match) {
			link = href
			return false
		}
		return true
	})
	if link == "" {
		return "", fmt.Errorf("no %s link found on %s", src.Match, src.Page)
	}
	return link, nil
}

// findLinkAfterSection walks the document in order, arming on the heading
// text and taking the next matching anchor.
func findLinkAfterSection(doc *goquery.Document, src config.Source) (string, error) {
	var link string
	seen := false
	doc.Find("h1, h2, h3, h4, h5, h6, div, p, a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !seen {
			if strings.Contains(strings.TrimSpace(sel.Text()), src.Section) {
				seen = true
			}
			return true
		}
		if goquery.NodeName(sel) != "a" {
			return true
		}
		href, _ := sel.Attr("href")
		if matches(href, src.Match) {
			link = href
			return false
		}
		return true
	})
	if !seen {
		return "", fmt.Errorf("section %q not found on %s", src.Section, src.Page)
	}
	if link == "" {
		return "", fmt.Errorf("no %s link found after section %q on %s", src.Match, src.Section, src.Page)
	}
	return link, nil
}

func matches(href, match string) bool {
	return href != "" && strings.Contains(strings.ToLower(href), strings.ToLower(match))
}
