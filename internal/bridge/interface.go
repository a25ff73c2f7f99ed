package bridge

import (
	"context"
	"errors"

	"github.com/mattjoyce/foldermon/internal/router"
)

//go:generate mockgen -destination=mocks/mock_bridge.go -package=mocks github.com/mattjoyce/foldermon/internal/bridge FolderPicker,Opener,Sender

var (
	// ErrRejected means the worker acknowledged a change with an error or
	// for a different path than the one sent.
	ErrRejected = errors.New("worker rejected change")
	// ErrInvalidPath reports an empty or multi-line folder path.
	ErrInvalidPath = errors.New("invalid folder path")
	// ErrNoPicker is returned by AddFolder when no FolderPicker is configured.
	ErrNoPicker = errors.New("no folder picker configured")
)

// FolderPicker asks the user for a folder. ok is false when the user cancelled.
type FolderPicker interface {
	PickFolder(ctx context.Context) (path string, ok bool, err error)
}

// Opener reveals a path in the platform file manager.
type Opener interface {
	Open(ctx context.Context, path string) error
}

// Sender delivers a request to the worker and waits for its response.
// *router.Router implements it.
type Sender interface {
	Send(ctx context.Context, req *router.Request) (string, error)
}

// Publisher receives bridge events.
type Publisher interface {
	Publish(eventType string, data any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}
