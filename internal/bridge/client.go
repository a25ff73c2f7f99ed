package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattjoyce/foldermon/internal/config"
	"github.com/mattjoyce/foldermon/internal/events"
	"github.com/mattjoyce/foldermon/internal/protocol"
	"github.com/mattjoyce/foldermon/internal/registry"
	"github.com/mattjoyce/foldermon/internal/router"
)

// Client is the typed command surface over the worker protocol. It keeps the
// folder registry in step with confirmed worker state.
type Client struct {
	sender    Sender
	registry  *registry.Registry
	protocol  config.ProtocolConfig
	picker    FolderPicker
	opener    Opener
	publisher Publisher
	logger    *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPicker sets the folder picker used by AddFolder.
func WithPicker(p FolderPicker) ClientOption {
	return func(c *Client) { c.picker = p }
}

// WithOpener overrides the platform file manager opener.
func WithOpener(o Opener) ClientOption {
	return func(c *Client) { c.opener = o }
}

// WithPublisher sets the sink for scan.completed events.
func WithPublisher(p Publisher) ClientOption {
	return func(c *Client) { c.publisher = p }
}

// NewClient creates a Client sending through sender and updating reg.
func NewClient(sender Sender, reg *registry.Registry, proto config.ProtocolConfig, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		sender:    sender,
		registry:  reg,
		protocol:  proto,
		opener:    SystemOpener{},
		publisher: nopPublisher{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scan asks the worker for a scan and returns the raw SCAN_RESULTS payload.
// The registry is not touched.
func (c *Client) Scan(ctx context.Context) (string, error) {
	payload, err := c.send(ctx, protocol.VerbScan, "")
	if err != nil {
		return "", err
	}
	c.publisher.Publish(events.ScanCompleted, map[string]any{
		"items": len(ParseScanItems(payload)),
	})
	return payload, nil
}

// ParseScanItems splits a scan payload into non-empty trimmed lines.
func ParseScanItems(payload string) []string {
	return protocol.SplitLines(payload)
}

// List fetches the worker's folder list and replaces the registry with it.
func (c *Client) List(ctx context.Context) ([]string, error) {
	payload, err := c.send(ctx, protocol.VerbList, "")
	if err != nil {
		return nil, err
	}
	paths, err := protocol.ParseList(payload)
	if err != nil {
		return nil, err
	}
	c.registry.Replace(paths)
	return c.registry.Snapshot(), nil
}

// AddFolder asks the picker for a folder and adds it. ok is false when the
// user cancelled; nothing is sent in that case.
func (c *Client) AddFolder(ctx context.Context) (path string, ok bool, err error) {
	if c.picker == nil {
		return "", false, ErrNoPicker
	}
	path, ok, err = c.picker.PickFolder(ctx)
	if err != nil {
		return "", false, fmt.Errorf("pick folder: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	if err := c.AddFolderPath(ctx, path); err != nil {
		return path, true, err
	}
	return path, true, nil
}

// AddFolderPath sends add for path. Without acknowledgments the registry is
// updated once the command is delivered; with them, once ADD_OK confirms it.
func (c *Client) AddFolderPath(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	payload, err := c.send(ctx, protocol.VerbAdd, path)
	if err != nil {
		return err
	}
	if c.protocol.Acks {
		if err := checkAck(payload, path); err != nil {
			return err
		}
	}
	c.registry.Upsert(path)
	return nil
}

// RemoveFolder sends remove for path and drops it from the registry under the
// same delivery rules as AddFolderPath. Removing an unknown path is not an error.
func (c *Client) RemoveFolder(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	payload, err := c.send(ctx, protocol.VerbRemove, path)
	if err != nil {
		return err
	}
	if c.protocol.Acks {
		if err := checkAck(payload, path); err != nil {
			return err
		}
	}
	c.registry.Remove(path)
	return nil
}

// OpenInFileManager reveals path in the platform file manager. It does not
// involve the worker.
func (c *Client) OpenInFileManager(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	return c.opener.Open(ctx, path)
}

// Folders returns the cached folder list without a worker round trip.
func (c *Client) Folders() []string {
	return c.registry.Snapshot()
}

// Acks reports whether add/remove wait for acknowledgments.
func (c *Client) Acks() bool {
	return c.protocol.Acks
}

func (c *Client) send(ctx context.Context, verb protocol.Verb, arg string) (string, error) {
	req := router.NewRequest(verb, arg, verb.ResponseTag(c.protocol.Acks), c.protocol.TimeoutFor(verb))
	payload, err := c.sender.Send(ctx, req)
	if err != nil {
		c.logger.Warn("command failed", "verb", string(verb), "request_id", req.ID, "error", err)
		return "", err
	}
	return payload, nil
}

func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if strings.ContainsAny(path, "\r\n") {
		return fmt.Errorf("%w: contains a line break", ErrInvalidPath)
	}
	return nil
}

// checkAck interprets an ADD_OK/REMOVE_OK payload: the echoed path, empty,
// or "ERR <reason>".
func checkAck(payload, path string) error {
	ack := strings.TrimSpace(payload)
	if reason, ok := strings.CutPrefix(ack, "ERR"); ok && (reason == "" || reason[0] == ' ') {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = "no reason given"
		}
		return fmt.Errorf("%w: %s", ErrRejected, reason)
	}
	if ack != "" && ack != strings.TrimSpace(path) {
		return fmt.Errorf("%w: acknowledged %q, sent %q", ErrRejected, ack, path)
	}
	return nil
}
