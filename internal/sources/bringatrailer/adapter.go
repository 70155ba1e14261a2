// Package bringatrailer collects completed auction results from Bring a Trailer.
package bringatrailer

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aristath/carmarket/internal/domain"
	"github.com/aristath/carmarket/internal/sources/scrape"
	"github.com/rs/zerolog"
)

const (
	// SourceName tags every record produced by this adapter.
	SourceName = "bring_a_trailer"
	// DefaultBaseURL is the public site.
	DefaultBaseURL = "https://bringatrailer.com"
	// DefaultMaxResults caps the records taken from one results page.
	DefaultMaxResults = 150

	auctionHouse = "Bring a Trailer"
)

// resultPattern matches result lines such as
// "Sold for USD $120,000 on 3/14/24" or "Bid to GBP £40,500 on 11/2/23".
var resultPattern = regexp.MustCompile(`(?i)(Sold for|Bid to)\s+(USD|EUR|GBP)\s+[^0-9]*(\d[\d,]*)\s+on\s+(\d{1,2}/\d{1,2}/\d{2})`)

// Config configures the adapter.
type Config struct {
	BaseURL string
	// IncludeBidTo keeps "Bid to" results (reserve not met) alongside sales.
	IncludeBidTo bool
	MaxResults   int
}

// Adapter implements domain.SourceAdapter for Bring a Trailer.
type Adapter struct {
	cfg     Config
	fetcher *scrape.Fetcher
	now     func() time.Time
	log     zerolog.Logger
}

// New creates the adapter.
func New(cfg Config, fetcher *scrape.Fetcher, log zerolog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	return &Adapter{
		cfg:     cfg,
		fetcher: fetcher,
		now:     time.Now,
		log:     log.With().Str("source", SourceName).Logger(),
	}
}

// Name implements domain.SourceAdapter.
func (a *Adapter) Name() string {
	return SourceName
}

// ResultsURL is the results search page for vehicle, newest first.
func (a *Adapter) ResultsURL(v domain.Vehicle) string {
	return fmt.Sprintf("%s/auctions/results/?search=%s&sort=recent",
		strings.TrimRight(a.cfg.BaseURL, "/"), url.QueryEscape(v.Query()))
}

// FetchSales implements domain.SourceAdapter. A page without results
// yields no records and no error.
func (a *Adapter) FetchSales(ctx context.Context, v domain.Vehicle) ([]domain.SaleRecord, error) {
	doc, err := a.fetcher.Document(ctx, a.ResultsURL(v))
	if err != nil {
		return nil, fmt.Errorf("fetch results for %q: %w", v.Query(), err)
	}

	records := a.Parse(doc)
	a.log.Debug().Str("query", v.Query()).Int("records", len(records)).Msg("Parsed results page")
	return records, nil
}

// Parse extracts sale records from a results page. Each <article> is one
// auction card; cards without a recognisable result line are skipped.
func (a *Adapter) Parse(doc *goquery.Document) []domain.SaleRecord {
	var records []domain.SaleRecord
	now := a.now()

	doc.Find("article").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if len(records) >= a.cfg.MaxResults {
			return false
		}

		m := resultPattern.FindStringSubmatch(scrape.Text(card))
		if m == nil {
			return true
		}
		status, currency, rawPrice, rawDate := m[1], m[2], m[3], m[4]

		if !a.cfg.IncludeBidTo && strings.HasPrefix(strings.ToLower(status), "bid to") {
			return true
		}

		price, err := scrape.ParseAmount(rawPrice)
		if err != nil {
			return true
		}
		saleDate, err := ParseShortDate(rawDate, now)
		if err != nil {
			a.log.Debug().Err(err).Msg("Skipping card with unparseable date")
			return true
		}

		records = append(records, domain.SaleRecord{
			SaleDate:     saleDate,
			Price:        domain.Float(price),
			Currency:     domain.Currency(strings.ToUpper(currency)),
			Source:       SourceName,
			AuctionHouse: auctionHouse,
			URL:          domain.String(scrape.FirstLink(card, a.cfg.BaseURL)),
		})
		return true
	})

	return records
}

// ParseShortDate parses a US M/D/YY date. Two-digit years up to the current
// year's two digits fall in the current century, later ones in the previous.
func ParseShortDate(raw string, now time.Time) (domain.Date, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 3 {
		return domain.Date{}, fmt.Errorf("invalid short date %q", raw)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return domain.Date{}, fmt.Errorf("invalid short date %q: %w", raw, err)
		}
		nums[i] = n
	}
	month, day, yy := nums[0], nums[1], nums[2]

	year := now.UTC().Year()
	century := year / 100 * 100
	if yy <= year%100 {
		year = century + yy
	} else {
		year = century - 100 + yy
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return domain.Date{}, fmt.Errorf("invalid short date %q", raw)
	}
	d := domain.NewDate(year, time.Month(month), day)
	if d.Time().Day() != day {
		return domain.Date{}, fmt.Errorf("invalid short date %q", raw)
	}
	return d, nil
}
