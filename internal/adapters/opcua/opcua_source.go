package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/domain"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/ports"
)

// Config captures the runtime details required to open an OPC UA session.
type Config struct {
	Endpoint        string        `yaml:"endpoint"`
	SecurityMode    string        `yaml:"security_mode"`
	SecurityPolicy  string        `yaml:"security_policy"`
	ApplicationName string        `yaml:"application_name"`
	Timeout         time.Duration `yaml:"timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "Canary MQTT Forwarder"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if !strings.HasPrefix(c.Endpoint, "opc.tcp://") {
		return fmt.Errorf("endpoint %q must use opc.tcp://", c.Endpoint)
	}
	return nil
}

// Source browses and reads an OPC UA server. Tags are the dot-joined browse
// names below the dataset root; the node each tag resolves to is remembered
// across sessions so the polling session can read what the loading session
// enumerated.
type Source struct {
	cfg Config

	mu    sync.Mutex
	nodes map[domain.Tag]*ua.NodeID
}

func NewSource(cfg Config) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Source{cfg: cfg, nodes: make(map[domain.Tag]*ua.NodeID)}, nil
}

func (s *Source) Name() string { return "opcua" }

func (s *Source) Open(ctx context.Context) (ports.Session, error) {
	client, err := opcua.NewClient(s.cfg.Endpoint, s.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect: %w", err)
	}
	return &session{src: s, client: client}, nil
}

func (s *Source) clientOptions() []opcua.Option {
	return []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(s.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(s.cfg.SecurityPolicy)),
		opcua.ApplicationName(s.cfg.ApplicationName),
		opcua.RequestTimeout(s.cfg.Timeout),
		opcua.AuthAnonymous(),
	}
}

func (s *Source) remember(tag domain.Tag, node *ua.NodeID) {
	s.mu.Lock()
	s.nodes[tag] = node
	s.mu.Unlock()
}

// resolve maps a tag to a node. Tags that were never browsed are parsed as
// node ids so a tag list can also be given in ns=..;s=.. form.
func (s *Source) resolve(tag domain.Tag) (*ua.NodeID, error) {
	s.mu.Lock()
	node, ok := s.nodes[tag]
	s.mu.Unlock()
	if ok {
		return node, nil
	}
	return ua.ParseNodeID(string(tag))
}

type session struct {
	src    *Source
	client *opcua.Client
}

// BrowseTags walks hierarchical references from root, which is a node id.
// Variables become tags; objects are descended into when deep is set.
func (s *session) BrowseTags(ctx context.Context, root string, deep bool) ([]domain.Tag, error) {
	rootID, err := ua.ParseNodeID(root)
	if err != nil {
		return nil, fmt.Errorf("parse root node id %q: %w", root, err)
	}
	var (
		tags    []domain.Tag
		visited = map[string]bool{rootID.String(): true}
	)
	var walk func(node *opcua.Node, prefix string) error
	walk = func(node *opcua.Node, prefix string) error {
		children, err := node.ReferencedNodes(ctx, id.HierarchicalReferences, ua.BrowseDirectionForward, ua.NodeClassAll, true)
		if err != nil {
			return fmt.Errorf("browse %s: %w", node.ID, err)
		}
		for _, child := range children {
			key := child.ID.String()
			if visited[key] {
				continue
			}
			visited[key] = true

			name, err := child.BrowseName(ctx)
			if err != nil {
				return fmt.Errorf("browse name %s: %w", child.ID, err)
			}
			path := joinPath(prefix, name.Name)

			class, err := child.NodeClass(ctx)
			if err != nil {
				return fmt.Errorf("node class %s: %w", child.ID, err)
			}
			switch class {
			case ua.NodeClassVariable:
				tag := domain.Tag(path)
				s.src.remember(tag, child.ID)
				tags = append(tags, tag)
			case ua.NodeClassObject:
				if deep {
					if err := walk(child, path); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	if err := walk(s.client.Node(rootID), ""); err != nil {
		return nil, err
	}
	return tags, nil
}

// LiveSnapshot reads the Value attribute of every tag in one request.
func (s *session) LiveSnapshot(ctx context.Context, tags []domain.Tag, includeQuality bool) (domain.Snapshot, error) {
	snap := make(domain.Snapshot, len(tags))
	req := &ua.ReadRequest{
		TimestampsToReturn: ua.TimestampsToReturnBoth,
	}
	readTags := make([]domain.Tag, 0, len(tags))
	for _, tag := range tags {
		node, err := s.src.resolve(tag)
		if err != nil {
			snap[tag] = domain.Entry{Err: fmt.Errorf("resolve node: %w", err)}
			continue
		}
		req.NodesToRead = append(req.NodesToRead, &ua.ReadValueID{
			NodeID:      node,
			AttributeID: ua.AttributeIDValue,
		})
		readTags = append(readTags, tag)
	}
	if len(readTags) == 0 {
		return snap, nil
	}

	resp, err := s.client.Read(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("opcua read: %w", err)
	}
	if len(resp.Results) != len(readTags) {
		return nil, fmt.Errorf("opcua read: %d results for %d nodes", len(resp.Results), len(readTags))
	}
	for i, dv := range resp.Results {
		snap[readTags[i]] = dataValueToEntry(dv, includeQuality)
	}
	return snap, nil
}

func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func dataValueToEntry(dv *ua.DataValue, includeQuality bool) domain.Entry {
	if dv == nil {
		return domain.Entry{}
	}
	rec := domain.TVQ{}
	if dv.Value != nil {
		rec.Value = dv.Value.Value()
	}
	ts := dv.SourceTimestamp
	if ts.IsZero() {
		ts = dv.ServerTimestamp
	}
	if !ts.IsZero() {
		rec.Timestamp = &ts
	}
	if includeQuality {
		q := domain.Quality(dv.Status)
		rec.Quality = &q
	}
	return domain.Entry{Records: []domain.TVQ{rec}}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.Source = (*Source)(nil)
