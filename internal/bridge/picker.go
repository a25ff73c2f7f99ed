package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// StaticPicker always picks Path. An empty Path behaves like a cancelled dialog.
type StaticPicker struct {
	Path string
}

func (p StaticPicker) PickFolder(context.Context) (string, bool, error) {
	if p.Path == "" {
		return "", false, nil
	}
	return p.Path, true, nil
}

// PromptPicker reads a folder path from a line-oriented terminal. An empty
// line cancels. Paths starting with ~/ are expanded and relative paths made
// absolute.
type PromptPicker struct {
	In     io.Reader
	Out    io.Writer
	Prompt string
}

func (p PromptPicker) PickFolder(ctx context.Context) (string, bool, error) {
	prompt := p.Prompt
	if prompt == "" {
		prompt = "Folder to monitor (empty to cancel): "
	}
	if p.Out != nil {
		fmt.Fprint(p.Out, prompt)
	}

	type line struct {
		text string
		err  error
	}
	ch := make(chan line, 1)
	go func() {
		text, err := bufio.NewReader(p.In).ReadString('\n')
		ch <- line{text, err}
	}()

	var got line
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case got = <-ch:
	}
	if got.err != nil && got.err != io.EOF {
		return "", false, got.err
	}

	path := strings.TrimSpace(got.text)
	if path == "" {
		return "", false, nil
	}
	path, err := expandPath(path)
	if err != nil {
		return "", false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !info.IsDir() {
		return "", false, fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, path)
	}
	return path, true, nil
}

func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

// SystemOpener opens paths with the platform's file manager launcher.
type SystemOpener struct{}

func (SystemOpener) Open(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	name, args := openCommand(runtime.GOOS, path, info.IsDir())
	// Not tied to ctx: the file manager must survive the request.
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s with %s: %w", path, name, err)
	}
	// The launcher may outlive the request; reap it in the background.
	go func() { _ = cmd.Wait() }()
	return nil
}

// openCommand returns the launcher that reveals path selected in its
// enclosing folder. xdg-open cannot select an entry, so elsewhere a file
// reveals as its parent directory.
func openCommand(goos, path string, isDir bool) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{"-R", path}
	case "windows":
		return "explorer", []string{"/select," + path}
	default:
		if !isDir {
			path = filepath.Dir(path)
		}
		return "xdg-open", []string{path}
	}
}
