// Package classiccom collects sold listings from a Classic.com market page.
package classiccom

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aristath/carmarket/internal/domain"
	"github.com/aristath/carmarket/internal/sources/scrape"
	"github.com/rs/zerolog"
)

// SourceName tags every record produced by this adapter.
const SourceName = "classic_com"

const dateLayout = "Jan 2, 2006"

var (
	pricePattern = regexp.MustCompile(`([€$£])([\d,]+)`)
	datePattern  = regexp.MustCompile(`(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},\s+\d{4}`)
)

var symbolCurrency = map[string]domain.Currency{
	"$": domain.CurrencyUSD,
	"€": domain.CurrencyEUR,
	"£": domain.CurrencyGBP,
}

// Adapter implements domain.SourceAdapter for Classic.com. Only vehicles
// with a ClassicMarketURL are collected.
type Adapter struct {
	fetcher *scrape.Fetcher
	log     zerolog.Logger
}

// New creates the adapter.
func New(fetcher *scrape.Fetcher, log zerolog.Logger) *Adapter {
	return &Adapter{
		fetcher: fetcher,
		log:     log.With().Str("source", SourceName).Logger(),
	}
}

// Name implements domain.SourceAdapter.
func (a *Adapter) Name() string {
	return SourceName
}

// FetchSales implements domain.SourceAdapter.
func (a *Adapter) FetchSales(ctx context.Context, v domain.Vehicle) ([]domain.SaleRecord, error) {
	if v.ClassicMarketURL == "" {
		return nil, nil
	}

	doc, err := a.fetcher.Document(ctx, v.ClassicMarketURL)
	if err != nil {
		return nil, fmt.Errorf("fetch market page: %w", err)
	}

	records := Parse(doc, v.ClassicMarketURL)
	a.log.Debug().Str("url", v.ClassicMarketURL).Int("records", len(records)).Msg("Parsed market page")
	return records, nil
}

// Parse extracts sold listings. A card is the outermost <div> that says
// "Sold" and holds exactly one price and date; wrappers around several
// cards and the nested parts of a card are skipped.
func Parse(doc *goquery.Document, pageURL string) []domain.SaleRecord {
	var records []domain.SaleRecord

	doc.Find("div").Each(func(_ int, div *goquery.Selection) {
		if !isCard(div) {
			return
		}
		if parent := div.Parent().Closest("div"); parent.Length() > 0 && isCard(parent) {
			return
		}

		if rec, ok := parseCard(div, pageURL); ok {
			records = append(records, rec)
		}
	})

	return records
}

// isCard reports whether s describes exactly one sold listing.
func isCard(s *goquery.Selection) bool {
	text := s.Text()
	return strings.Contains(text, "Sold") &&
		pricePattern.MatchString(text) &&
		len(datePattern.FindAllString(text, 2)) == 1
}

func parseCard(card *goquery.Selection, pageURL string) (domain.SaleRecord, bool) {
	text := scrape.Text(card)

	pm := pricePattern.FindStringSubmatch(text)
	dm := datePattern.FindString(text)
	if pm == nil || dm == "" {
		return domain.SaleRecord{}, false
	}

	currency, ok := symbolCurrency[pm[1]]
	if !ok {
		currency = domain.CurrencyUSD
	}

	price, err := scrape.ParseAmount(pm[2])
	if err != nil {
		return domain.SaleRecord{}, false
	}

	t, err := time.Parse(dateLayout, strings.Join(strings.Fields(dm), " "))
	if err != nil {
		return domain.SaleRecord{}, false
	}

	return domain.SaleRecord{
		SaleDate:     domain.DateOf(t),
		Price:        domain.Float(price),
		Currency:     currency,
		Source:       SourceName,
		AuctionHouse: auctionHouse(text),
		URL:          domain.String(scrape.FirstLink(card, pageURL)),
	}, true
}

// knownHouses are auction houses Classic.com aggregates, matched in card text.
var knownHouses = []string{
	"Bring a Trailer",
	"Cars & Bids",
	"Collecting Cars",
	"RM Sotheby's",
	"Gooding",
	"Bonhams",
	"Mecum",
	"Barrett-Jackson",
	"PCarMarket",
}

func auctionHouse(text string) string {
	for _, house := range knownHouses {
		if strings.Contains(text, house) {
			return house
		}
	}
	return "Classic.com"
}
