package channels

import (
	"context"
	"fmt"
	"net/http"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"wabridge/pkg/logger"
)

// DeviceStore loads and persists the linked-device credentials.
type DeviceStore interface {
	Device(ctx context.Context) (*store.Device, error)
	Save(ctx context.Context, device *store.Device) error
}

// connection is what the adapter needs from one dialed client.
type connection interface {
	Sender
	AddEventHandler(handler func(evt interface{}))
	Connect() error
	Disconnect()
	IsRegistered() bool
	QRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
	PairPhone(ctx context.Context, phone, displayName string) (string, error)
	Persist(ctx context.Context) error
}

type dialFunc func(ctx context.Context) (connection, error)

// link adapts *whatsmeow.Client to connection.
type link struct {
	client *whatsmeow.Client
	store  DeviceStore
}

func dialWhatsmeow(st DeviceStore, proxyURL string) dialFunc {
	return func(ctx context.Context) (connection, error) {
		device, err := st.Device(ctx)
		if err != nil {
			return nil, err
		}

		client := whatsmeow.NewClient(device, logger.WhatsmeowLogger("whatsmeow"))
		// The supervision loop owns reconnection.
		client.EnableAutoReconnect = false

		kind, err := applyProxy(client, proxyURL)
		if err != nil {
			return nil, err
		}
		logger.DebugCF("whatsapp", "Client prepared", map[string]interface{}{
			"proxy":      kind,
			"registered": device.ID != nil,
		})

		return &link{client: client, store: st}, nil
	}
}

func (l *link) AddEventHandler(handler func(evt interface{})) {
	l.client.AddEventHandler(handler)
}

func (l *link) Connect() error {
	return l.client.Connect()
}

func (l *link) Disconnect() {
	l.client.Disconnect()
}

func (l *link) IsRegistered() bool {
	return l.client.Store.ID != nil
}

func (l *link) QRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	return l.client.GetQRChannel(ctx)
}

func (l *link) PairPhone(ctx context.Context, phone, displayName string) (string, error) {
	return l.client.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, displayName)
}

func (l *link) Persist(ctx context.Context) error {
	return l.store.Save(ctx, l.client.Store)
}

func (l *link) SendText(ctx context.Context, to types.JID, text string) error {
	if !l.client.IsConnected() {
		return ErrNotConnected
	}
	_, err := l.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

func (l *link) SendImage(ctx context.Context, to types.JID, img Image) error {
	if !l.client.IsConnected() {
		return ErrNotConnected
	}
	uploaded, err := l.client.Upload(ctx, img.Data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}

	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(img.Data)
	}

	imageMsg := &waE2E.ImageMessage{
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		Mimetype:      proto.String(mimeType),
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
	}
	if img.Caption != "" {
		imageMsg.Caption = proto.String(img.Caption)
	}

	if _, err := l.client.SendMessage(ctx, to, &waE2E.Message{ImageMessage: imageMsg}); err != nil {
		return fmt.Errorf("send image: %w", err)
	}
	return nil
}
