package canary

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/domain"
)

type fakeViews struct {
	mu      sync.Mutex
	calls   map[string]int
	bodies  map[string][]string
	replies map[string][]string
}

func newFakeViews() *fakeViews {
	return &fakeViews{
		calls:   map[string]int{},
		bodies:  map[string][]string{},
		replies: map[string][]string{},
	}
}

func (f *fakeViews) reply(op string, bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[op] = append(f.replies[op], bodies...)
}

func (f *fakeViews) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeViews) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	op := strings.TrimPrefix(r.URL.Path, "/api/v2/")
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.calls[op]++
	f.bodies[op] = append(f.bodies[op], string(body))
	var out string
	if q := f.replies[op]; len(q) > 0 {
		out = q[0]
		if len(q) > 1 {
			f.replies[op] = q[1:]
		}
	}
	f.mu.Unlock()

	if out == "" {
		out = `{"statusCode":"Good"}`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, out)
}

func newTestSource(t *testing.T, views *fakeViews) *Source {
	t.Helper()
	srv := httptest.NewServer(views)
	t.Cleanup(srv.Close)

	src, err := NewSource(Config{Host: srv.URL, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	return src
}

func TestBrowseTagsFollowsContinuation(t *testing.T) {
	views := newFakeViews()
	views.reply("browseTags",
		`{"statusCode":"Good","tags":["Plant.A.T1","Plant.A.T2"],"continuation":"page2"}`,
		`{"statusCode":"Good","tags":["Plant.B.T3"],"continuation":null}`,
	)
	src := newTestSource(t, views)

	sess, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	tags, err := sess.BrowseTags(context.Background(), "Plant", true)
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	if len(tags) != 3 || tags[2] != "Plant.B.T3" {
		t.Fatalf("unexpected tags %v", tags)
	}

	var second browseTagsRequest
	if err := json.Unmarshal([]byte(views.bodies["browseTags"][1]), &second); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if second.Continuation != "page2" || !second.Deep || second.Path != "Plant" {
		t.Fatalf("unexpected continuation request %+v", second)
	}
}

func TestBrowseTagsBadStatus(t *testing.T) {
	views := newFakeViews()
	views.reply("browseTags", `{"statusCode":"BadRequest","errors":["no such path"]}`)
	src := newTestSource(t, views)

	sess, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	_, err = sess.BrowseTags(context.Background(), "Missing", true)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != "BadRequest" {
		t.Fatalf("expected APIError, got %v", err)
	}
}

func TestLiveSnapshotTokenLifecycle(t *testing.T) {
	views := newFakeViews()
	views.reply("getLiveDataToken", `{"statusCode":"Good","liveDataToken":"tok-1"}`)
	views.reply("getLiveData",
		`{"statusCode":"Good","data":{
			"Plant.A.T1":[{"t":"2024-05-01T12:00:00Z","v":21.5,"q":192},{"t":"2024-05-01T12:00:01Z","v":22,"q":192}],
			"Plant.A.T2":[],
			"Plant.A.T3":[{"t":"yesterday","v":1}]
		}}`,
		`{"statusCode":"Good","data":{}}`,
	)
	src := newTestSource(t, views)
	tags := []domain.Tag{"Plant.A.T1", "Plant.A.T2", "Plant.A.T3"}

	sess, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	snap, err := sess.LiveSnapshot(context.Background(), tags, true)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	first, ok := snap["Plant.A.T1"].First()
	if !ok || first.Value != 21.5 || !first.HasQuality() || *first.Quality != 192 {
		t.Fatalf("unexpected first record %+v", first)
	}
	if want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC); !first.Timestamp.Equal(want) {
		t.Fatalf("unexpected timestamp %v", first.Timestamp)
	}
	if len(snap["Plant.A.T1"].Records) != 2 {
		t.Fatalf("expected both records to be decoded")
	}
	if _, ok := snap["Plant.A.T2"].First(); ok {
		t.Fatalf("expected empty entry for T2")
	}
	if snap["Plant.A.T3"].Err == nil {
		t.Fatalf("expected malformed timestamp to be reported on the entry")
	}

	if _, err := sess.LiveSnapshot(context.Background(), tags, true); err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if n := views.count("getLiveDataToken"); n != 1 {
		t.Fatalf("expected one token request per session, got %d", n)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := views.count("revokeLiveDataToken"); n != 1 {
		t.Fatalf("expected token revoke on close, got %d", n)
	}
	if _, err := sess.LiveSnapshot(context.Background(), tags, true); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestLiveSnapshotRejectedTokenIsRenewed(t *testing.T) {
	views := newFakeViews()
	views.reply("getLiveDataToken",
		`{"statusCode":"Good","liveDataToken":"tok-1"}`,
		`{"statusCode":"Good","liveDataToken":"tok-2"}`,
	)
	views.reply("getLiveData",
		`{"statusCode":"BadLiveDataToken","errors":["expired"]}`,
		`{"statusCode":"Good","data":{}}`,
	)
	src := newTestSource(t, views)
	tags := []domain.Tag{"A.B"}

	sess, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	if _, err := sess.LiveSnapshot(context.Background(), tags, true); err == nil {
		t.Fatalf("expected rejected token error")
	}
	if _, err := sess.LiveSnapshot(context.Background(), tags, true); err != nil {
		t.Fatalf("expected renewed token to succeed: %v", err)
	}
	if n := views.count("getLiveDataToken"); n != 2 {
		t.Fatalf("expected token to be requested again, got %d", n)
	}
}

func TestOpenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	src, err := NewSource(Config{Host: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if _, err := src.Open(context.Background()); err == nil {
		t.Fatalf("expected open to fail against a closed server")
	}
}

func TestBaseURL(t *testing.T) {
	cases := map[string]string{
		"historian":                  "http://historian:55235/api/v2/",
		"historian:9000":             "http://historian:9000/api/v2/",
		"https://historian/":         "https://historian/api/v2/",
		"https://historian:55236/cv": "https://historian:55236/cv/api/v2/",
	}
	for in, want := range cases {
		cfg := Config{Host: in}
		u, err := cfg.BaseURL()
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if u.String() != want {
			t.Fatalf("%s: expected %s, got %s", in, want, u)
		}
	}
}

func TestParseQuality(t *testing.T) {
	if q, err := parseQuality(float64(192)); err != nil || q != 192 {
		t.Fatalf("unexpected %v %v", q, err)
	}
	if q, err := parseQuality("0xC0"); err != nil || q != 192 {
		t.Fatalf("unexpected %v %v", q, err)
	}
	if _, err := parseQuality(1.5); err == nil {
		t.Fatalf("expected fractional quality to be rejected")
	}
	if _, err := parseQuality(true); err == nil {
		t.Fatalf("expected bool quality to be rejected")
	}
	for _, v := range []float64{1e19, -1e19, math.Exp2(63), math.Inf(1), math.NaN()} {
		if _, err := parseQuality(v); err == nil {
			t.Fatalf("expected quality %v to be rejected", v)
		}
	}
	if q, err := parseQuality(-math.Exp2(63)); err != nil || q != math.MinInt64 {
		t.Fatalf("expected smallest int64 code to be accepted, got %v %v", q, err)
	}
}
