package canary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"

	"github.com/go-json-experiment/json"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/domain"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/ports"
)

// ErrSessionClosed is returned by calls on a closed session.
var ErrSessionClosed = errors.New("canary: session closed")

// Source opens sessions against a Canary Views server.
type Source struct {
	cfg  Config
	base *url.URL
	http *http.Client
}

func NewSource(cfg Config) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := cfg.BaseURL()
	if err != nil {
		return nil, err
	}
	return &Source{
		cfg:  cfg,
		base: base,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *Source) Name() string { return "canary" }

// Open checks the server is reachable and returns a session. Live data tokens
// are requested lazily by the first LiveSnapshot.
func (s *Source) Open(ctx context.Context) (ports.Session, error) {
	var resp struct {
		Status `json:",inline"`
	}
	if err := s.call(ctx, "getVersion", struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("canary open %s: %w", s.base.Host, err)
	}
	return &session{src: s}, nil
}

func (s *Source) call(ctx context.Context, op string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("canary %s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base.JoinPath(op).String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("canary %s: read response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("canary %s: unexpected status %s", op, resp.Status)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("canary %s: decode response: %w", op, err)
	}
	return nil
}

type session struct {
	src       *Source
	liveToken string
	tokenTags []domain.Tag
	closed    bool
}

func (s *session) BrowseTags(ctx context.Context, root string, deep bool) ([]domain.Tag, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	var (
		tags []domain.Tag
		req  = browseTagsRequest{Path: root, Deep: deep}
	)
	for {
		var resp browseTagsResponse
		if err := s.src.call(ctx, "browseTags", req, &resp); err != nil {
			return nil, err
		}
		if err := resp.err("browseTags"); err != nil {
			return nil, err
		}
		for _, t := range resp.Tags {
			tags = append(tags, domain.Tag(t))
		}
		if resp.Continuation == nil || *resp.Continuation == "" {
			return tags, nil
		}
		req.Continuation = *resp.Continuation
	}
}

func (s *session) LiveSnapshot(ctx context.Context, tags []domain.Tag, includeQuality bool) (domain.Snapshot, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if err := s.ensureToken(ctx, tags, includeQuality); err != nil {
		return nil, err
	}

	var resp liveDataResponse
	err := s.src.call(ctx, "getLiveData", liveDataRequest{
		LiveDataToken:  s.liveToken,
		IncludeQuality: includeQuality,
	}, &resp)
	if err == nil {
		err = resp.err("getLiveData")
	}
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			// the server no longer honours the token; ask for a new one next cycle
			s.liveToken = ""
		}
		return nil, err
	}

	snap := make(domain.Snapshot, len(resp.Data))
	for name, records := range resp.Data {
		snap[domain.Tag(name)] = decodeEntry(records)
	}
	return snap, nil
}

func (s *session) ensureToken(ctx context.Context, tags []domain.Tag, includeQuality bool) error {
	if s.liveToken != "" && slices.Equal(s.tokenTags, tags) {
		return nil
	}
	if s.liveToken != "" {
		_ = s.revoke(ctx)
	}

	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = string(t)
	}
	var resp liveDataTokenResponse
	if err := s.src.call(ctx, "getLiveDataToken", liveDataTokenRequest{
		Tags:           names,
		Mode:           s.src.cfg.LiveMode,
		IncludeQuality: includeQuality,
	}, &resp); err != nil {
		return err
	}
	if err := resp.err("getLiveDataToken"); err != nil {
		return err
	}
	if resp.LiveDataToken == "" {
		return errors.New("canary getLiveDataToken: empty token")
	}
	s.liveToken = resp.LiveDataToken
	s.tokenTags = tags
	return nil
}

func (s *session) revoke(ctx context.Context) error {
	token := s.liveToken
	s.liveToken = ""
	s.tokenTags = nil
	var resp struct {
		Status `json:",inline"`
	}
	if err := s.src.call(ctx, "revokeLiveDataToken", revokeRequest{LiveDataToken: token}, &resp); err != nil {
		return err
	}
	return resp.err("revokeLiveDataToken")
}

// Close revokes the live data token, if one was issued.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.liveToken == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.src.cfg.Timeout)
	defer cancel()
	return s.revoke(ctx)
}

var _ ports.Source = (*Source)(nil)
