// Package monitor is the reference worker: it reads commands from stdin and
// answers with tagged frames on stdout.
package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattjoyce/foldermon/internal/protocol"
	"github.com/mattjoyce/foldermon/internal/scan"
)

// maxLineBytes bounds one command line.
const maxLineBytes = 64 * 1024

// Folders is the persisted folder list.
type Folders interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, path string) (bool, error)
	Remove(ctx context.Context, path string) (bool, error)
}

// Scanner reports changed files under the given folders.
type Scanner interface {
	Scan(ctx context.Context, folders []string) (scan.Result, error)
}

// Server handles one command stream.
type Server struct {
	folders Folders
	scanner Scanner
	acks    bool
	logger  *slog.Logger
}

type Option func(*Server)

// WithAcks makes add and remove answer with ADD_OK / REMOVE_OK frames.
func WithAcks(enabled bool) Option {
	return func(s *Server) { s.acks = enabled }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func New(folders Folders, scanner Scanner, opts ...Option) *Server {
	s := &Server{folders: folders, scanner: scanner, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve processes commands until in is exhausted or ctx is done. A command
// already read is always finished before Serve returns. Bad command lines are
// logged and skipped. Only a failed read or write ends the loop with an error.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	w := bufio.NewWriter(out)

	// The reader may stay blocked on in after ctx ends; it exits with the process.
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read commands: %w", err)
					}
				default:
				}
				return nil
			}
			line = l
		}
		if ctx.Err() != nil {
			return nil
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			s.logger.Warn("ignoring command", "line", line, "error", err)
			continue
		}
		// Handlers run to completion even if ctx ends meanwhile.
		if err := s.handle(context.WithoutCancel(ctx), w, cmd); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush output: %w", err)
		}
	}
}

func (s *Server) handle(ctx context.Context, w io.Writer, cmd protocol.Command) error {
	switch cmd.Verb {
	case protocol.VerbList:
		folders, err := s.folders.List(ctx)
		if err != nil {
			s.logger.Error("list folders failed", "error", err)
		}
		return s.reply(w, protocol.TagList, joinFrameSafe(s.logger, folders))

	case protocol.VerbScan:
		folders, err := s.folders.List(ctx)
		if err != nil {
			s.logger.Error("list folders failed", "error", err)
			return s.reply(w, protocol.TagScanResults, "")
		}
		res, err := s.scanner.Scan(ctx, folders)
		if err != nil {
			s.logger.Error("scan failed", "error", err)
		}
		s.logger.Info("scan finished", "folders", len(folders), "walked", res.Walked, "changed", len(res.Changed), "removed", len(res.Removed))
		return s.reply(w, protocol.TagScanResults, joinFrameSafe(s.logger, res.Changed))

	case protocol.VerbAdd:
		err := s.add(ctx, cmd.Arg)
		return s.ack(w, protocol.TagAddOK, cmd.Arg, err)

	case protocol.VerbRemove:
		removed, err := s.folders.Remove(ctx, cmd.Arg)
		if err == nil {
			s.logger.Info("folder removed", "path", cmd.Arg, "was_present", removed)
		}
		return s.ack(w, protocol.TagRemoveOK, cmd.Arg, err)
	}
	return nil
}

func (s *Server) add(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.New("no such directory")
		}
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory")
	}
	added, err := s.folders.Add(ctx, path)
	if err != nil {
		return err
	}
	s.logger.Info("folder added", "path", path, "new", added)
	return nil
}

// ack answers an add or remove. Without acks only failures are logged.
func (s *Server) ack(w io.Writer, tag, path string, opErr error) error {
	if opErr != nil {
		s.logger.Warn("folder change refused", "tag", tag, "path", path, "error", opErr)
	}
	if !s.acks {
		return nil
	}
	payload := path
	if opErr != nil {
		payload = "ERR " + oneLine(opErr.Error())
	}
	return s.reply(w, tag, payload)
}

func (s *Server) reply(w io.Writer, tag, payload string) error {
	err := protocol.WriteFrame(w, tag, payload)
	if errors.Is(err, protocol.ErrMalformedFrame) {
		// Unframeable payload; answer so the caller is not left waiting.
		s.logger.Error("cannot frame reply", "tag", tag, "error", err)
		return protocol.WriteFrame(w, tag, "ERR unframeable payload")
	}
	return err
}

// joinFrameSafe joins items one per line, dropping any that cannot appear
// inside a frame.
func joinFrameSafe(logger *slog.Logger, items []string) string {
	kept := make([]string, 0, len(items))
	for _, it := range items {
		if strings.Contains(it, protocol.EndSentinel) || strings.ContainsAny(it, "\r\n") {
			logger.Warn("item omitted from frame", "item", it)
			continue
		}
		kept = append(kept, it)
	}
	return strings.Join(kept, "\n")
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, protocol.EndSentinel, "")
}
