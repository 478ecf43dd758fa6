// Package seed writes synthetic web-shop feeds in the same NDJSON shape as
// the production feed, for demos and load tests.
package seed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"example.com/webshopsessions/internal/domain"
)

const feedTimestampLayout = "2006-01-02T15:04:05.000000"

// Config shapes the generated feed.
type Config struct {
	Customers int
	Seed      int64
	Start     time.Time
	// OrderRate is the share of customers that place at least one order.
	OrderRate float64
	// AnonymousRate is the share of extra events without customer-id.
	AnonymousRate float64
	// MalformedLines is the number of broken lines mixed in.
	MalformedLines int
}

// DefaultConfig is a small but realistic feed.
func DefaultConfig() Config {
	return Config{
		Customers:      100,
		Seed:           1,
		Start:          time.Date(2022, 4, 28, 6, 0, 0, 0, time.UTC),
		OrderRate:      0.4,
		AnonymousRate:  0.05,
		MalformedLines: 0,
	}
}

// Stats describe what was written.
type Stats struct {
	Events    int `json:"events"`
	Customers int `json:"customers"`
	Orders    int `json:"orders"`
	Anonymous int `json:"anonymous"`
	Malformed int `json:"malformed"`
}

type payload struct {
	CustomerID any     `json:"customer-id"`
	IP         *string `json:"ip"`
	Timestamp  string  `json:"timestamp"`
	UserAgent  string  `json:"user-agent"`
	Query      *string `json:"query,omitempty"`
	URL        *string `json:"url,omitempty"`
	Page       *string `json:"page,omitempty"`
	Referrer   *string `json:"referrer,omitempty"`
}

type record struct {
	ID    int64   `json:"id"`
	Type  string  `json:"type"`
	Event payload `json:"event"`

	at time.Time
}

type generator struct {
	faker *gofakeit.Faker
	cfg   Config
	stats Stats
}

func ptr(s string) *string { return &s }

// Write generates a feed and writes it to w, one JSON object per line.
func Write(w io.Writer, cfg Config) (Stats, error) {
	if cfg.Customers < 0 {
		return Stats{}, fmt.Errorf("seed: customers must not be negative, got %d", cfg.Customers)
	}
	if cfg.Start.IsZero() {
		cfg.Start = DefaultConfig().Start
	}
	g := &generator{faker: gofakeit.New(cfg.Seed), cfg: cfg}

	var records []record
	for c := 1; c <= cfg.Customers; c++ {
		records = append(records, g.customer(c)...)
	}
	anonymous := int(float64(len(records)) * cfg.AnonymousRate)
	for range anonymous {
		records = append(records, g.anonymous())
	}
	g.stats.Anonymous = anonymous

	slices.SortStableFunc(records, func(a, b record) int { return a.at.Compare(b.at) })

	bw := bufio.NewWriter(w)
	malformedEvery := 0
	if cfg.MalformedLines > 0 && len(records) > 0 {
		malformedEvery = max(1, len(records)/cfg.MalformedLines)
	}
	for i := range records {
		records[i].ID = int64(i + 1)
		line, err := json.Marshal(records[i])
		if err != nil {
			return g.stats, fmt.Errorf("seed: marshal: %w", err)
		}
		if malformedEvery > 0 && g.stats.Malformed < cfg.MalformedLines && i%malformedEvery == 0 {
			if _, err := fmt.Fprintf(bw, "%s\n", line[:len(line)/2]); err != nil {
				return g.stats, err
			}
			g.stats.Malformed++
		}
		if _, err := bw.Write(append(line, '\n')); err != nil {
			return g.stats, err
		}
		g.stats.Events++
	}
	if err := bw.Flush(); err != nil {
		return g.stats, fmt.Errorf("seed: flush: %w", err)
	}
	return g.stats, nil
}

// customer produces one customer's visits. Events inside a visit are at
// most 6 minutes apart; visits are at least 20 minutes apart.
func (g *generator) customer(n int) []record {
	f := g.faker
	g.stats.Customers++

	var id any = n
	if f.Bool() {
		id = fmt.Sprint(n)
	}
	ip := f.IPv4Address()
	ua := f.UserAgent()

	visits := f.Number(1, 5)
	orderVisit := -1
	if f.Float64Range(0, 1) < g.cfg.OrderRate {
		orderVisit = f.Number(0, visits-1)
	}

	at := g.cfg.Start.Add(time.Duration(f.Number(0, 12*60)) * time.Minute)
	var out []record
	for v := 0; v < visits; v++ {
		for e, events := 0, f.Number(1, 6); e < events; e++ {
			out = append(out, g.browse(id, ip, ua, at))
			at = at.Add(time.Duration(f.Number(10, 360)) * time.Second)
		}
		if v == orderVisit {
			out = append(out, record{
				Type:  domain.EventTypePlacedOrder,
				Event: payload{CustomerID: id, IP: ptr(ip), Timestamp: at.Format(feedTimestampLayout), UserAgent: ua},
				at:    at,
			})
			g.stats.Orders++
		}
		at = at.Add(time.Duration(f.Number(20, 24*60)) * time.Minute)
	}
	return out
}

func (g *generator) browse(id any, ip, ua string, at time.Time) record {
	f := g.faker
	p := payload{CustomerID: id, IP: ptr(ip), Timestamp: at.Format(feedTimestampLayout), UserAgent: ua}
	if f.Bool() {
		p.Query = ptr(f.Word())
		return record{Type: "search", Event: p, at: at}
	}
	p.URL = ptr(f.URL())
	p.Page = ptr(f.RandomString([]string{"home", "product", "category", "cart", "checkout"}))
	if f.Bool() {
		p.Referrer = ptr(f.URL())
	}
	return record{Type: "page_view", Event: p, at: at}
}

// anonymous is a record the normalizer must exclude.
func (g *generator) anonymous() record {
	f := g.faker
	at := g.cfg.Start.Add(time.Duration(f.Number(0, 36*60)) * time.Minute)
	p := payload{CustomerID: nil, IP: ptr(f.IPv4Address()), Timestamp: at.Format(feedTimestampLayout), UserAgent: f.UserAgent()}
	if f.Bool() {
		p.CustomerID = f.Number(1, 1000)
		p.IP = nil
	}
	return record{Type: "page_view", Event: p, at: at}
}
