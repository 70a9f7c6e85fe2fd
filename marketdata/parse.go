package marketdata

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

var symbolPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// ValidSymbol reports whether s is an upper-case ticker of 1 to 5 letters.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

type apiStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type rawQuote struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Datetime      string `json:"datetime"`
	Open          string `json:"open"`
	High          string `json:"high"`
	Low           string `json:"low"`
	Close         string `json:"close"`
	Price         string `json:"price"`
	Volume        string `json:"volume"`
	PreviousClose string `json:"previous_close"`
}

type rawBar struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

type rawSeries struct {
	Values []rawBar `json:"values"`
}

type rawSearch struct {
	Data []SearchResult `json:"data"`
}

func (r rawQuote) toQuote(requested string, now time.Time) Quote {
	price := parseDecimal(firstNonEmpty(r.Close, r.Price))
	prev := parseDecimal(r.PreviousClose)
	change := price.Sub(prev)
	changePercent := decimal.Zero
	if prev.IsPositive() {
		changePercent = change.Div(prev).Mul(decimal.NewFromInt(100))
	}

	q := Quote{
		Symbol:        firstNonEmpty(r.Symbol, requested),
		Name:          firstNonEmpty(r.Name, requested),
		Price:         price,
		Change:        change,
		ChangePercent: changePercent,
		Volume:        parseInt64(r.Volume),
		Timestamp:     r.Datetime,
		PreviousClose: prev,
		Open:          parseDecimal(r.Open),
		High:          parseDecimal(r.High),
		Low:           parseDecimal(r.Low),
	}
	if q.Timestamp == "" {
		q.Timestamp = now.UTC().Format(time.RFC3339)
	}
	return q
}

// toBars drops rows whose datetime cannot be parsed.
func (s rawSeries) toBars() []Bar {
	bars := make([]Bar, 0, len(s.Values))
	for _, v := range s.Values {
		date, ok := parseDate(v.Datetime)
		if !ok {
			continue
		}
		bars = append(bars, Bar{
			Date:     date,
			Datetime: v.Datetime,
			Open:     parseDecimal(v.Open),
			High:     parseDecimal(v.High),
			Low:      parseDecimal(v.Low),
			Close:    parseDecimal(v.Close),
			Volume:   parseInt64(v.Volume),
		})
	}
	return bars
}

// parseDecimal returns zero for empty or unparseable input.
func parseDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

// parseDate accepts "YYYY-MM-DD" and "YYYY-MM-DD hh:mm:ss", keeping only the day.
func parseDate(s string) (time.Time, bool) {
	if len(s) < len(dateLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, s[:len(dateLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
