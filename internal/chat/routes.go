package chat

import (
	"github.com/mridulmehra/CyberGaurd-Backend/internal/protocol"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/ws"
)

// Routes binds the client event types to the pipeline's handlers. Each
// handler runs with the connection's logging context.
func Routes(d *ws.MessageDispatcher, p *Pipeline) {
	d.Register(protocol.TypeJoin, func(conn *ws.Connection, msg any) {
		p.Join(conn.Context(), conn.ID, msg.(protocol.JoinMsg))
	})
	d.Register(protocol.TypeLeave, func(conn *ws.Connection, msg any) {
		p.Leave(conn.Context(), conn.ID, msg.(protocol.LeaveMsg))
	})
	d.Register(protocol.TypeMessage, func(conn *ws.Connection, msg any) {
		p.Message(conn.Context(), conn.ID, msg.(protocol.ChatMsg))
	})
	d.Register(protocol.TypeClearChat, func(conn *ws.Connection, msg any) {
		p.ClearChat(conn.Context(), conn.ID, msg.(protocol.ClearChatMsg))
	})
	d.Register(protocol.TypeReportMessage, func(conn *ws.Connection, msg any) {
		p.ReportMessage(conn.Context(), conn.ID, msg.(protocol.ReportMsg))
	})
}
