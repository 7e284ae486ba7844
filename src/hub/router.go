package hub

import (
	"encoding/json"

	"github.com/pelican-im/messenger/src/types"
)

// Route decodes one inbound frame from origin and dispatches it. Malformed
// input earns the sender an error event and nothing else; the connection
// stays active. typing and message_read frames with missing routing fields
// are dropped silently rather than erroring.
func (h *Hub) Route(sender types.Identity, frame []byte, origin *Client) {
	var ev types.ClientEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		h.SendToConnection(origin, types.Error("Invalid JSON format"))
		return
	}

	switch ev.Type {
	case types.EventPing:
		// Echo to all of the sender's devices, not just the origin.
		h.SendToUser(sender.ID, types.Pong(ev.Timestamp))

	case types.EventTyping:
		if ev.RecipientID == 0 {
			return
		}
		h.SendToUser(ev.RecipientID, types.Typing(sender.ID, ev.IsTyping))

	case types.EventMessageRead:
		if ev.RecipientID == 0 || ev.MessageID == 0 {
			return
		}
		h.SendToUser(ev.RecipientID, types.MessageRead(ev.MessageID, sender.ID))

	case types.EventGetOnlineStatus:
		status := make(map[int64]bool, len(ev.UserIDs))
		for _, id := range ev.UserIDs {
			status[id] = h.IsOnline(id)
		}
		h.SendToUser(sender.ID, types.OnlineStatus(status))

	default:
		h.SendToUser(sender.ID, types.Error("Unknown message type: "+ev.Type))
	}
}
