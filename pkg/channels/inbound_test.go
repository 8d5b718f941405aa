package channels

import (
	"strings"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func messageEvent(chat types.JID, fromMe bool, msg *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:     chat,
				Sender:   chat,
				IsFromMe: fromMe,
			},
			Timestamp: time.Unix(1000, 0),
		},
		Message: msg,
	}
}

func TestInboundRecordScenario(t *testing.T) {
	evt := messageEvent(
		types.NewJID("628111", types.DefaultUserServer),
		false,
		&waE2E.Message{Conversation: proto.String("hello")},
	)

	got, ok := inboundRecord(evt)
	if !ok {
		t.Fatalf("expected message to be relayed")
	}
	if got.Sender != "628111" || got.Text != "hello" || got.Timestamp != 1000 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestInboundRecordSkips(t *testing.T) {
	user := types.NewJID("628111", types.DefaultUserServer)
	tests := []struct {
		name string
		evt  *events.Message
	}{
		{"nil event", nil},
		{"from me", messageEvent(user, true, &waE2E.Message{Conversation: proto.String("hi")})},
		{"from me empty", messageEvent(user, true, nil)},
		{"no payload", messageEvent(user, false, nil)},
	}
	for _, tt := range tests {
		if _, ok := inboundRecord(tt.evt); ok {
			t.Fatalf("%s: expected event to be skipped", tt.name)
		}
	}
}

func TestInboundRecordTextPrecedence(t *testing.T) {
	user := types.NewJID("628111", types.DefaultUserServer)
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{
			name: "conversation wins",
			msg: &waE2E.Message{
				Conversation:        proto.String("plain"),
				ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("extended")},
			},
			want: "plain",
		},
		{
			name: "extended text fallback",
			msg: &waE2E.Message{
				ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("extended")},
			},
			want: "extended",
		},
		{
			name: "non-text message",
			msg: &waE2E.Message{
				ImageMessage: &waE2E.ImageMessage{Caption: proto.String("ignored")},
			},
			want: "",
		},
	}
	for _, tt := range tests {
		got, ok := inboundRecord(messageEvent(user, false, tt.msg))
		if !ok {
			t.Fatalf("%s: expected message to be relayed", tt.name)
		}
		if got.Text != tt.want {
			t.Fatalf("%s: text = %q, want %q", tt.name, got.Text, tt.want)
		}
	}
}

func TestInboundRecordSenderNeverHasUserSuffix(t *testing.T) {
	jids := []types.JID{
		types.NewJID("628111", types.DefaultUserServer),
		types.NewADJID("628222", 0, 3),
	}
	for _, jid := range jids {
		got, ok := inboundRecord(messageEvent(jid, false, &waE2E.Message{Conversation: proto.String("x")}))
		if !ok {
			t.Fatalf("expected %s to be relayed", jid)
		}
		if strings.Contains(got.Sender, "@") || strings.Contains(got.Sender, types.DefaultUserServer) {
			t.Fatalf("sender %q still carries a server suffix", got.Sender)
		}
	}
}

func TestInboundRecordKeepsGroupJID(t *testing.T) {
	group := types.NewJID("120363000000000000", types.GroupServer)
	got, ok := inboundRecord(messageEvent(group, false, &waE2E.Message{Conversation: proto.String("x")}))
	if !ok {
		t.Fatalf("expected group message to be relayed")
	}
	if got.Sender != group.String() {
		t.Fatalf("expected full group jid, got %q", got.Sender)
	}
}
