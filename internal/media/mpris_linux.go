//go:build linux

package media

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/five82/flyover/internal/state"
)

// Start claims the flyover MPRIS name on the session bus and mirrors store
// until ctx is cancelled or Close is called.
func Start(ctx context.Context, store *state.Store, ctrl Controller) (*Session, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	reply, err := conn.RequestName(mprisBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", mprisBusName)
	}

	p := newPlayer(ctrl)
	p.emit = func(name string, values ...any) error {
		return conn.Emit(mprisObjectPath, name, values...)
	}
	for _, iface := range []string{mprisInterface, mprisPlayerInterface, propertiesInterface} {
		if err := conn.Export(p, mprisObjectPath, iface); err != nil {
			conn.Close()
			return nil, fmt.Errorf("export %s: %w", iface, err)
		}
	}

	s := &Session{conn: conn, player: p}
	s.unsubscribe = mirror(store, p)
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	log.Infow("media session started", "name", mprisBusName)
	return s, nil
}
