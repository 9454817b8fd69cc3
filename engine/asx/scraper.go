package asx

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ratedesk/disclosure-engine/engine/domain"
)

// pubDateLayout is the listing-page date after stripping separators.
const pubDateLayout = "02012006"

var (
	controlRe  = regexp.MustCompile(`[\t\r\n\x{00A0}]+`)
	dateTrimRe = regexp.MustCompile(`[\t\r\n/\s\x{00A0}]+`)
	digitsRe   = regexp.MustCompile(`\d+`)
)

// ScrapeByCode fetches the historical announcements listing for one
// issuer code and year. Only the first three characters of the code are
// sent, matching the source's search form.
func (c *Client) ScrapeByCode(ctx context.Context, issuerCode, year string) ([]domain.Announcement, error) {
	code := strings.ToUpper(strings.TrimSpace(issuerCode))
	if year == "" {
		year = strconv.Itoa(time.Now().Year())
	}
	query := url.Values{
		"by":        {"asxCode"},
		"asxCode":   {truncate(code, 3)},
		"timeframe": {"Y"},
		"year":      {year},
	}
	u := c.base.JoinPath(searchPath)
	u.RawQuery = query.Encode()

	doc, err := c.fetchDocument(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("scrape %s/%s: %w", code, year, err)
	}

	var anns []domain.Announcement
	doc.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		ann, ok := c.parseRow(cells.Eq(0), cells.Eq(2))
		if !ok {
			return
		}
		ann.IssuerCode = code
		anns = append(anns, ann)
	})
	return anns, nil
}

// ScrapeByDay fetches the intraday listing: today's announcements or the
// previous business day's.
func (c *Client) ScrapeByDay(ctx context.Context, today bool) ([]domain.Announcement, error) {
	path := prevDayPath
	if today {
		path = todayPath
	}
	u := c.base.JoinPath(path)

	doc, err := c.fetchDocument(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("scrape daily: %w", err)
	}

	var anns []domain.Announcement
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		code := cleanText(cells.Eq(0).Text())
		if code == "" {
			return // header or spacer row
		}
		ann, ok := c.parseRow(cells.Eq(1), cells.Eq(3))
		if !ok {
			return
		}
		ann.IssuerCode = strings.ToUpper(code)
		anns = append(anns, ann)
	})
	return anns, nil
}

// parseRow extracts one announcement from a date cell and the link cell
// holding title, page count, file size, and the mask URL.
func (c *Client) parseRow(dateCell, linkCell *goquery.Selection) (domain.Announcement, bool) {
	var ann domain.Announcement

	link := linkCell.Find("a").First()
	if link.Length() == 0 {
		return ann, false
	}
	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ann, false
	}
	ann.MaskURL = c.resolveRef(strings.TrimSpace(href))

	// Title is the anchor's own text; the spans inside carry page count
	// and file size. Slashes would break downstream file naming.
	title := cleanText(directText(link))
	ann.Title = strings.TrimSpace(strings.ReplaceAll(title, "/", " - "))

	spans := link.Find("span")
	if digits := digitsRe.FindString(spans.Eq(0).Text()); digits != "" {
		ann.PageCount, _ = strconv.Atoi(digits)
	}
	ann.FileSize = cleanText(spans.Eq(1).Text())

	raw := dateTrimRe.ReplaceAllString(ownText(dateCell), "")
	pubDate, err := time.Parse(pubDateLayout, raw)
	if err != nil {
		c.log.Warn("asx: unparseable listing date", "raw", raw, "error", err)
		return ann, false
	}
	ann.PubDate = pubDate
	ann.Downloaded = domain.StateNotDownloaded

	return ann, true
}

// directText collects the text nodes that are immediate children of the
// selection, skipping nested elements such as the page/size spans.
func directText(sel *goquery.Selection) string {
	var sb strings.Builder
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			if n.Type == html.TextNode {
				sb.WriteString(n.Data)
			}
		}
	})
	return sb.String()
}

// ownText returns the selection's text with descendant anchors excluded.
func ownText(sel *goquery.Selection) string {
	if sel.Children().Length() == 0 {
		return sel.Text()
	}
	return directText(sel)
}

func cleanText(s string) string {
	return strings.TrimSpace(controlRe.ReplaceAllString(s, " "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
