// Package hosting describes the file-hosting service the distributable
// archive is published on. The update engine only depends on the Client
// capability surface.
package hosting

import (
	"context"
	"errors"
)

var (
	// ErrNotLoggedIn is returned by operations that need an open session.
	ErrNotLoggedIn = errors.New("no open hosting session")

	// ErrInvalidLink is returned for links the host cannot resolve.
	ErrInvalidLink = errors.New("invalid hosting link")
)

// PercentFunc receives download progress as a percentage in [0, 100].
type PercentFunc func(percent float64)

// Node is a file published on the host.
type Node struct {
	Name string
	// Size in bytes, or -1 when the host does not advertise it.
	Size int64
}

// Client is an anonymous session against a file host.
type Client interface {
	LoginAnonymous(ctx context.Context) error
	IsLoggedIn() bool
	Logout(ctx context.Context) error
	NodeFromLink(ctx context.Context, link string) (Node, error)
	Download(ctx context.Context, link, dest string, progress PercentFunc) error
}
