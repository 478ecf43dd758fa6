// Package feed reads the newline-delimited JSON event feed of the web shop
// and turns it into normalized events.
package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"example.com/webshopsessions/internal/domain"
	"example.com/webshopsessions/internal/idempotency"
	"example.com/webshopsessions/internal/logging"
	"example.com/webshopsessions/internal/telemetry"
)

// DefaultMaxLineBytes bounds a single feed line.
const DefaultMaxLineBytes = 1 << 20

// ErrParse classifies records that could not be decoded or normalized.
var ErrParse = errors.New("feed: parse fault")

// Options tune Read.
type Options struct {
	MaxLineBytes int
	Logger       *logging.Logger
}

// Stats counts what happened to each non-blank line.
type Stats struct {
	Lines       int `json:"lines"`
	Accepted    int `json:"accepted"`
	Excluded    int `json:"excluded"`
	ParseFaults int `json:"parse_faults"`
	Duplicates  int `json:"duplicates"`
}

// Result is the outcome of one Read.
type Result struct {
	Events []domain.NormalizedEvent
	Stats  Stats
}

// Fetch opens the feed at url. The caller closes the body.
func Fetch(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("feed: fetch %s: unexpected status %s", url, resp.Status)
	}
	return resp.Body, nil
}

// Open opens a local feed file; "-" is stdin.
func Open(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open: %w", err)
	}
	return f, nil
}

// Read decodes every line of r. Malformed and excluded records are
// counted and skipped; only a failing reader aborts.
func Read(ctx context.Context, r io.Reader, opts Options) (Result, error) {
	maxLine := opts.MaxLineBytes
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	log = log.With(logging.Component("feed"))

	br := bufio.NewReaderSize(r, maxLine)

	var (
		res  Result
		seen = idempotency.NewSeen()
		n    int
	)
	for done := false; !done; {
		raw, tooLong, err := nextLine(br)
		switch {
		case errors.Is(err, io.EOF):
			done = true
		case err != nil:
			return res, fmt.Errorf("feed: read line %d: %w", n+1, err)
		}
		if len(raw) == 0 && !tooLong {
			continue
		}
		n++
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		if tooLong {
			res.Stats.Lines++
			res.Stats.ParseFaults++
			telemetry.FeedRecordsTotal.WithLabelValues(telemetry.OutcomeParseFault).Inc()
			log.WarnContext(ctx, "skipping malformed record", logging.Line(n),
				logging.Error(fmt.Errorf("%w: line longer than %d bytes", ErrParse, maxLine)))
			continue
		}
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		res.Stats.Lines++

		ev, err := decodeLine(line)
		switch {
		case errors.Is(err, domain.ErrExcluded):
			res.Stats.Excluded++
			telemetry.FeedRecordsTotal.WithLabelValues(telemetry.OutcomeExcluded).Inc()
			continue
		case err != nil:
			res.Stats.ParseFaults++
			telemetry.FeedRecordsTotal.WithLabelValues(telemetry.OutcomeParseFault).Inc()
			log.WarnContext(ctx, "skipping malformed record", logging.Line(n), logging.Error(err))
			continue
		}

		if !seen.Add(&ev) {
			res.Stats.Duplicates++
			telemetry.FeedRecordsTotal.WithLabelValues(telemetry.OutcomeDuplicate).Inc()
			log.DebugContext(ctx, "dropping duplicate record", logging.Line(n), logging.EventID(ev.ID))
			continue
		}
		res.Stats.Accepted++
		telemetry.FeedRecordsTotal.WithLabelValues(telemetry.OutcomeAccepted).Inc()
		res.Events = append(res.Events, ev)
	}

	log.InfoContext(ctx, "feed read",
		"lines", res.Stats.Lines,
		"accepted", res.Stats.Accepted,
		"excluded", res.Stats.Excluded,
		"parse_faults", res.Stats.ParseFaults,
		"duplicates", res.Stats.Duplicates,
	)
	return res, nil
}

// nextLine returns the next line including its newline. A line that does
// not fit the reader's buffer is consumed to its end and reported as
// tooLong instead. The returned slice is only valid until the next call.
func nextLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	line, err = br.ReadSlice('\n')
	if !errors.Is(err, bufio.ErrBufferFull) {
		return line, false, err
	}
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = br.ReadSlice('\n')
	}
	return nil, true, err
}

func decodeLine(line []byte) (domain.NormalizedEvent, error) {
	var raw domain.RawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return domain.NormalizedEvent{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	ev, err := domain.Normalize(raw)
	if err != nil {
		if errors.Is(err, domain.ErrExcluded) {
			return domain.NormalizedEvent{}, err
		}
		return domain.NormalizedEvent{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return ev, nil
}
