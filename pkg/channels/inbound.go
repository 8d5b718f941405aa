package channels

import (
	"go.mau.fi/whatsmeow/types/events"

	"wabridge/pkg/relay"
)

// inboundRecord builds the relay payload for a received message. Own
// messages and events without a message body are skipped.
func inboundRecord(evt *events.Message) (relay.Message, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe {
		return relay.Message{}, false
	}

	text := evt.Message.GetConversation()
	if text == "" {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}

	return relay.Message{
		Sender:    bareSender(evt.Info.Chat),
		Text:      text,
		Timestamp: evt.Info.Timestamp.Unix(),
	}, true
}
