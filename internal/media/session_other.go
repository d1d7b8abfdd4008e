//go:build !linux

package media

import (
	"context"

	"github.com/five82/flyover/internal/state"
)

// Start reports ErrUnsupported; only Linux has a media session.
func Start(context.Context, *state.Store, Controller) (*Session, error) {
	return nil, ErrUnsupported
}
