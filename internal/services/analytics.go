package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mssola/useragent"
	"github.com/shorttrack/apiserver/internal/storage"
	"github.com/shorttrack/apiserver/types"
)

const (
	statsDays      = 30
	topBuckets     = 6
	otherBucket    = "Other"
	unknownBucket  = "N/A"
	defaultDevice  = "Desktop"
	exportPrefix   = "exports"
	csvContentType = "text/csv"
	dayLayout      = "2006-01-02"
)

// ErrExportsDisabled is returned when no object storage is configured.
var ErrExportsDisabled = errors.New("exports are not configured")

// ErrInvalidExportName is returned for export names that were not issued
// by Export.
var ErrInvalidExportName = errors.New("invalid export name")

var exportNamePattern = regexp.MustCompile(`^\d{8}T\d{6}Z\.csv$`)

// VisitRepository defines persistence operations for visits.
type VisitRepository interface {
	Create(ctx context.Context, visit types.Visit) (types.Visit, error)
	ListBetween(ctx context.Context, linkID int64, from, to time.Time) ([]types.Visit, error)
}

// RequestInfo is what a redirect request tells us about the visitor.
type RequestInfo struct {
	IP        string
	UserAgent string
	Language  string
	Referer   string
}

// Export locates an uploaded CSV export.
type Export struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Name   string `json:"name"`
	Rows   int    `json:"rows"`
}

// AnalyticsService records visits and reports on them.
type AnalyticsService struct {
	links   LinkRepository
	visits  VisitRepository
	exports storage.ObjectStorage
	now     func() time.Time
}

// NewAnalyticsService builds the service. exports may be nil, which
// disables CSV exports.
func NewAnalyticsService(links LinkRepository, visits VisitRepository, exports storage.ObjectStorage) *AnalyticsService {
	return &AnalyticsService{links: links, visits: visits, exports: exports, now: time.Now}
}

// Record stores a visit to link.
func (s *AnalyticsService) Record(ctx context.Context, link types.Link, info RequestInfo) error {
	visit := describeVisitor(info)
	visit.LinkID = link.ID
	visit.CreatedAt = s.now()
	_, err := s.visits.Create(ctx, visit)
	return err
}

// Stats reports the last 30 days of traffic, today included.
func (s *AnalyticsService) Stats(ctx context.Context, userID, linkID int64) (types.LinkStats, error) {
	link, err := s.links.Get(ctx, userID, linkID)
	if err != nil {
		return types.LinkStats{}, err
	}

	start, end := s.window()
	visits, err := s.visits.ListBetween(ctx, link.ID, start, end)
	if err != nil {
		return types.LinkStats{}, err
	}

	series := make([]types.DailyCount, statsDays)
	index := make(map[string]int, statsDays)
	for i := range series {
		day := start.AddDate(0, 0, i).Format(dayLayout)
		series[i] = types.DailyCount{Date: day}
		index[day] = i
	}

	browsers := make([]string, 0, len(visits))
	systems := make([]string, 0, len(visits))
	referers := make([]string, 0, len(visits))
	for _, v := range visits {
		if i, ok := index[v.CreatedAt.In(start.Location()).Format(dayLayout)]; ok {
			series[i].Value++
		}
		browsers = append(browsers, v.Browser)
		systems = append(systems, v.OS)
		referers = append(referers, v.Referer)
	}

	return types.LinkStats{
		Link:      link,
		Series:    series,
		ByBrowser: topCounts(browsers, topBuckets),
		ByOS:      topCounts(systems, topBuckets),
		ByRef:     topCounts(referers, topBuckets),
	}, nil
}

// Export writes the last 30 days of visits as CSV to object storage.
func (s *AnalyticsService) Export(ctx context.Context, userID, linkID int64) (Export, error) {
	if s.exports == nil {
		return Export{}, ErrExportsDisabled
	}
	link, err := s.links.Get(ctx, userID, linkID)
	if err != nil {
		return Export{}, err
	}

	start, end := s.window()
	visits, err := s.visits.ListBetween(ctx, link.ID, start, end)
	if err != nil {
		return Export{}, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"created_at", "ip", "browser", "os", "device", "country", "language", "referer", "user_agent"})
	for _, v := range visits {
		_ = w.Write([]string{
			v.CreatedAt.UTC().Format(time.RFC3339),
			v.IP,
			v.Browser,
			v.OS,
			v.Device,
			v.Country,
			v.Language,
			v.Referer,
			v.UserAgent,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Export{}, err
	}

	name := s.now().UTC().Format("20060102T150405Z") + ".csv"
	key := exportKey(userID, link.ID, name)
	if err := s.exports.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), csvContentType); err != nil {
		return Export{}, fmt.Errorf("upload export: %w", err)
	}
	return Export{Bucket: s.exports.Bucket(), Key: key, Name: name, Rows: len(visits)}, nil
}

// OpenExport streams back an export of a link the user owns.
func (s *AnalyticsService) OpenExport(ctx context.Context, userID, linkID int64, name string) (io.ReadCloser, error) {
	if s.exports == nil {
		return nil, ErrExportsDisabled
	}
	if !exportNamePattern.MatchString(name) {
		return nil, ErrInvalidExportName
	}
	if _, err := s.links.Get(ctx, userID, linkID); err != nil {
		return nil, err
	}
	return s.exports.Get(ctx, exportKey(userID, linkID, name))
}

// window spans whole days, from the start of the day 29 days ago to the
// end of today.
func (s *AnalyticsService) window() (time.Time, time.Time) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start := today.AddDate(0, 0, -(statsDays - 1))
	end := today.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}

func exportKey(userID, linkID int64, name string) string {
	return strings.Join([]string{
		exportPrefix,
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(linkID, 10),
		name,
	}, "/")
}

// describeVisitor fills the visitor fields of a Visit from request data.
func describeVisitor(info RequestInfo) types.Visit {
	visit := types.Visit{
		IP:        info.IP,
		UserAgent: info.UserAgent,
		Language:  info.Language,
		Referer:   info.Referer,
		Device:    defaultDevice,
		Country:   countryFromLanguage(info.Language),
	}
	if info.UserAgent == "" {
		return visit
	}

	ua := useragent.New(info.UserAgent)
	visit.Browser, _ = ua.Browser()
	visit.OS = ua.OSInfo().Name
	switch {
	case ua.Bot():
		visit.Device = "bot"
	case ua.Mobile():
		visit.Device = "mobile"
	}
	return visit
}

// countryFromLanguage returns the region subtag of the first language in an
// Accept-Language header, e.g. "BR" for "pt-BR,pt;q=0.9".
func countryFromLanguage(header string) string {
	first, _, _ := strings.Cut(header, ",")
	first, _, _ = strings.Cut(first, ";")
	parts := strings.Split(strings.TrimSpace(first), "-")
	if len(parts) < 2 {
		return ""
	}
	region := parts[len(parts)-1]
	if len(region) != 2 {
		return ""
	}
	return strings.ToUpper(region)
}

// topCounts tallies values, keeps the max most frequent and folds the rest
// into a single "Other" bucket. Empty values count as "N/A".
func topCounts(values []string, max int) []types.KeyCount {
	counts := make(map[string]int)
	for _, v := range values {
		if v == "" {
			v = unknownBucket
		}
		counts[v]++
	}

	all := make([]types.KeyCount, 0, len(counts))
	for k, v := range counts {
		all = append(all, types.KeyCount{Key: k, Value: v})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Value != all[j].Value {
			return all[i].Value > all[j].Value
		}
		return all[i].Key < all[j].Key
	})

	if len(all) <= max {
		return all
	}
	top := all[:max]
	other := 0
	for _, kc := range all[max:] {
		other += kc.Value
	}
	return append(top, types.KeyCount{Key: otherBucket, Value: other})
}
