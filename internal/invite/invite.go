// Package invite builds join links for sessions and the QR codes that carry them.
package invite

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/spotthespy/game-engine/internal/types"
	"github.com/spotthespy/game-engine/pkg/logger"
)

const (
	startPrefix = "join:"
	// QRSize is the edge length of rendered codes, in pixels.
	QRSize = 512
)

var ErrInvalidStart = errors.New("invalid start payload")

// Link returns the bot deep link that makes a player join sessionID.
func Link(botURL, sessionID string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(startPrefix + sessionID))
	return strings.TrimRight(botURL, "?") + "?start=" + payload
}

// ParseStart extracts the session id from a deep-link start payload.
func ParseStart(payload string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStart, err)
	}
	id, ok := strings.CutPrefix(string(raw), startPrefix)
	if !ok || id == "" {
		return "", ErrInvalidStart
	}
	return id, nil
}

// RenderQR encodes content as a PNG QR code.
func RenderQR(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, QRSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}
	return png, nil
}

// ObjectStore keeps rendered codes somewhere clients can fetch them.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Service issues invites. Without an ObjectStore the QR code is served by
// the API itself and QRCodeURL is left empty.
type Service struct {
	botURL  string
	objects ObjectStore
	logger  *logger.Logger
}

// NewService creates an invite service. objects may be nil.
func NewService(botURL string, objects ObjectStore, log *logger.Logger) *Service {
	return &Service{botURL: botURL, objects: objects, logger: log}
}

// Create builds the join link for a session and, when storage is configured,
// uploads its QR code.
func (s *Service) Create(ctx context.Context, sessionID string) (*types.InviteResponse, error) {
	resp := &types.InviteResponse{
		SessionID: sessionID,
		Link:      Link(s.botURL, sessionID),
	}
	if s.objects == nil {
		return resp, nil
	}

	png, err := RenderQR(resp.Link)
	if err != nil {
		return nil, err
	}
	url, err := s.objects.Put(ctx, objectKey(sessionID), png, "image/png")
	if err != nil {
		return nil, fmt.Errorf("failed to upload QR code: %w", err)
	}
	resp.QRCodeURL = url
	return resp, nil
}

// QR renders the QR code of a session's join link.
func (s *Service) QR(sessionID string) ([]byte, error) {
	return RenderQR(Link(s.botURL, sessionID))
}

// Remove deletes the uploaded QR code of a closed session. Failures are logged.
func (s *Service) Remove(ctx context.Context, sessionID string) {
	if s.objects == nil {
		return
	}
	if err := s.objects.Delete(ctx, objectKey(sessionID)); err != nil {
		s.logger.Warn("Failed to delete QR code", logger.F("session_id", sessionID), logger.Err(err))
	}
}

func objectKey(sessionID string) string {
	return "qr_codes/" + sessionID + ".png"
}
