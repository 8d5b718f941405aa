package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"wabridge/pkg/channels"
	"wabridge/pkg/logger"
	"wabridge/pkg/relay"
)

type sendTextRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type sendImageRequest struct {
	To       string `json:"to"`
	ImageURL string `json:"imageUrl"`
	Caption  string `json:"caption,omitempty"`
}

var sentResponse = map[string]string{"status": "sent"}

// authorize enforces the command preconditions in order: shared secret,
// then a live connection. It writes the rejection itself.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (channels.Sender, bool) {
	if !secretMatches(r.Header.Get(relay.TokenHeader), s.config.Bot.Secret) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	sender := s.holder.Current()
	if sender == nil {
		writeError(w, http.StatusServiceUnavailable, "Bot not ready")
		return nil, false
	}
	return sender, true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Gateway.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("request body is empty")
		default:
			return fmt.Errorf("invalid JSON body: %v", err)
		}
	}
	return nil
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	sender, ok := s.authorize(w, r)
	if !ok {
		return
	}

	var req sendTextRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := channels.RecipientJID(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := sender.SendText(r.Context(), to, req.Text); err != nil {
		logger.ErrorCF("server", "Send text failed", map[string]interface{}{
			logger.FieldRecipient: to.User,
			logger.FieldError:     err.Error(),
		})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.InfoCF("server", "Text sent", map[string]interface{}{
		logger.FieldRecipient: to.User,
	})
	writeJSON(w, http.StatusOK, sentResponse)
}

func (s *Server) handleSendImage(w http.ResponseWriter, r *http.Request) {
	sender, ok := s.authorize(w, r)
	if !ok {
		return
	}

	var req sendImageRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := channels.RecipientJID(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		writeError(w, http.StatusBadRequest, "imageUrl is required")
		return
	}

	img, err := s.fetchImage(r, req.ImageURL)
	if err == nil {
		img.Caption = req.Caption
		err = sender.SendImage(r.Context(), to, img)
	}
	if err != nil {
		logger.ErrorCF("server", "Send image failed", map[string]interface{}{
			logger.FieldRecipient: to.User,
			logger.FieldURL:       req.ImageURL,
			logger.FieldError:     err.Error(),
		})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.InfoCF("server", "Image sent", map[string]interface{}{
		logger.FieldRecipient: to.User,
		logger.FieldBytes:     len(img.Data),
	})
	writeJSON(w, http.StatusOK, sentResponse)
}

// fetchImage downloads the picture to forward. The gateway's fetch timeout
// bounds the call in addition to the request context, and bodies above
// MaxImageBytes are rejected before they are fully read.
func (s *Server) fetchImage(r *http.Request, imageURL string) (channels.Image, error) {
	limit := s.config.Gateway.MaxImageBytes
	resp, err := s.images.R().
		SetContext(r.Context()).
		Get(imageURL)
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return channels.Image{}, fmt.Errorf("fetch image: larger than %d bytes", limit)
	}
	if err != nil {
		return channels.Image{}, fmt.Errorf("fetch image: %w", err)
	}
	if !resp.IsSuccess() {
		return channels.Image{}, fmt.Errorf("fetch image: %s", resp.Status())
	}
	data := resp.Body()
	if len(data) == 0 {
		return channels.Image{}, fmt.Errorf("fetch image: empty body")
	}

	mimeType := ""
	if ct := resp.Header().Get("Content-Type"); ct != "" {
		if parsed, _, err := mime.ParseMediaType(ct); err == nil && strings.HasPrefix(parsed, "image/") {
			mimeType = parsed
		}
	}
	return channels.Image{Data: data, MimeType: mimeType}, nil
}
