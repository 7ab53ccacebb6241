package arbiter

import (
	"fmt"

	"github.com/nurseryrun/nursery/nurseryerr"
	"github.com/nurseryrun/nursery/uid"
	"github.com/nurseryrun/nursery/wire"
)

// Register opens a channel to the arbiter at arbiterAddr, performs the
// handshake, and sends register(uid, listenAddr). The caller owns the
// returned channel and must keep it open for as long as it wants to stay
// registered (spec §4.1: "There is no explicit unregister RPC — closure is
// the signal").
func Register(arbiterAddr string, self uid.UID, listenAddr string) (wire.Channel, error) {
	ch, err := wire.Dial(arbiterAddr)
	if err != nil {
		return nil, fmt.Errorf("arbiter: dial %s: %w", arbiterAddr, err)
	}
	if _, err := wire.Handshake(ch, self, true); err != nil {
		ch.Close()
		return nil, fmt.Errorf("arbiter: handshake: %w", err)
	}
	if err := ch.Send(wire.Message{Tag: wire.TagRegister, UID: self, Addr: listenAddr}); err != nil {
		ch.Close()
		return nil, fmt.Errorf("arbiter: register: %w", err)
	}
	return ch, nil
}

// FindActor opens a transient channel to the arbiter and asks for the
// address list of any UID whose name matches. Fails with nurseryerr.NotFound
// if the registry has no match (spec §4.1 find_actor).
func FindActor(arbiterAddr string, self uid.UID, name string) (uid.UID, []string, error) {
	ch, err := wire.Dial(arbiterAddr)
	if err != nil {
		return uid.UID{}, nil, fmt.Errorf("arbiter: dial %s: %w", arbiterAddr, err)
	}
	defer ch.Close()

	if _, err := wire.Handshake(ch, self, true); err != nil {
		return uid.UID{}, nil, fmt.Errorf("arbiter: handshake: %w", err)
	}
	if err := ch.Send(wire.Message{Tag: wire.TagFind, Name: name}); err != nil {
		return uid.UID{}, nil, fmt.Errorf("arbiter: find request: %w", err)
	}
	reply, err := ch.Recv()
	if err != nil {
		return uid.UID{}, nil, fmt.Errorf("arbiter: find reply: %w", err)
	}
	if len(reply.Addrs) == 0 {
		return uid.UID{}, nil, &nurseryerr.NotFound{Name: name}
	}
	return reply.UID, reply.Addrs, nil
}
