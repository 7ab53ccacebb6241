package actorproc

import (
	"context"
	"errors"
	"io"

	"github.com/nurseryrun/nursery/rpcreg"
	"github.com/nurseryrun/nursery/uid"
	"github.com/nurseryrun/nursery/wire"
)

// serveChannel is the server-side RPC dispatch loop: it reads rpc-call and
// cancel-actor messages off ch and replies over the same channel, whether
// ch was accepted inbound or dialed out to a parent — the protocol is
// symmetric once the handshake is done (spec §4.1 step 4, §6).
func (h *Host) serveChannel(ch wire.Channel, peerUID uid.UID) {
	defer ch.Close()
	log := h.logger.With("peer", peerUID.String())

	for {
		msg, err := ch.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("peer channel closed with error", "err", err)
			}
			return
		}
		switch msg.Tag {
		case wire.TagRPCCall:
			h.spawnTask("rpc-call", func() { h.dispatchCall(ch, msg) })
		case wire.TagCancelActor:
			log.Info("received cancel_actor")
			h.cancel()
			return
		default:
			log.Warn("unexpected tag on peer channel", "tag", msg.Tag)
		}
	}
}

func (h *Host) dispatchCall(ch wire.Channel, msg wire.Message) {
	fn, gen, err := h.registry.Resolve(h.config.RPCModules, msg.Module, msg.Function)
	if err != nil {
		h.sendError(ch, msg.CID, err)
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	call := &rpcreg.Call{Ctx: ctx, Kwargs: msg.Kwargs}

	if gen != nil {
		yielded := false
		yield := func(value any) error {
			yielded = true
			return ch.Send(wire.Message{Tag: wire.TagRPCYield, CID: msg.CID, Value: value})
		}
		if err := gen(call, yield); err != nil {
			h.sendError(ch, msg.CID, err)
			return
		}
		_ = yielded
		if err := ch.Send(wire.Message{Tag: wire.TagRPCStop, CID: msg.CID}); err != nil {
			h.logger.Debug("rpc-stop send failed", "err", err)
		}
		return
	}

	value, err := fn(call)
	if err != nil {
		h.sendError(ch, msg.CID, err)
		return
	}
	if err := ch.Send(wire.Message{Tag: wire.TagRPCReturn, CID: msg.CID, Value: value}); err != nil {
		h.logger.Debug("rpc-return send failed", "err", err)
	}
}

func (h *Host) sendError(ch wire.Channel, cid string, err error) {
	kind := "Error"
	switch err.(type) {
	case *rpcreg.ErrNotAllowed:
		kind = "NotAllowed"
	case *rpcreg.ErrNotFound:
		kind = "NotFound"
	}
	if sendErr := ch.Send(wire.Message{
		Tag:        wire.TagRPCError,
		CID:        cid,
		ErrKind:    kind,
		ErrMessage: err.Error(),
	}); sendErr != nil {
		h.logger.Debug("rpc-error send failed", "err", sendErr)
	}
}
