package ws

import (
	"errors"
	"fmt"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/protocol"
)

// MessageHandler is the callback signature for handling a parsed client
// message. msg is the concrete value returned by
// protocol.ParseClientMessage (protocol.JoinMsg, protocol.ChatMsg, ...).
type MessageHandler func(conn *Connection, msg any)

// MessageDispatcher routes incoming frames to registered handlers by
// message type. Ping is answered internally. Malformed frames and
// unregistered types are logged and dropped without a reply.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
}

// NewMessageDispatcher creates an empty MessageDispatcher.
func NewMessageDispatcher() *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
	}
}

// Register associates a MessageHandler with a message type. A handler
// already registered for the type is replaced. Register is not safe to call
// once the server is dispatching.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the onMessage callback implementation. A panicking handler is
// recovered and logged so one bad frame cannot take down a worker.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	log := conn.Logger()

	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			log.Debug().Str("type", msgType).Msg("dropping unknown message type")
		} else {
			log.Debug().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
		}
		return
	}

	if msgType == protocol.TypePing {
		d.sendPong(conn)
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		log.Debug().Str("type", msgType).Msg("no handler registered")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("type", msgType).
				Err(fmt.Errorf("%v", r)).
				Msg("handler panicked")
		}
	}()
	handler(conn, msg)
}

// sendPong answers an application-level ping.
func (d *MessageDispatcher) sendPong(conn *Connection) {
	data, err := protocol.NewServerMessage(protocol.TypePong, nil)
	if err != nil {
		conn.Logger().Error().Err(err).Msg("failed to build pong")
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		conn.Logger().Debug().Err(err).Msg("failed to send pong")
	}
}
