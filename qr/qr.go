// Package qr renders QR authentication challenges for operators.
//
// The raw challenge string issued by the messaging engine is what a phone
// scans. Browsers get a PNG (optionally as a data URL); terminals get a
// half-block rendering.
package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/mdp/qrterminal"
	"github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 256

// ErrEmptyChallenge is returned when there is nothing to render.
var ErrEmptyChallenge = errors.New("qr: empty challenge")

// Challenge is a rendered QR challenge.
type Challenge struct {
	Raw     string `json:"raw"`
	PNG     []byte `json:"-"`
	DataURL string `json:"dataUrl"`
}

// Render encodes code as a PNG of the given size. A non-positive size
// selects DefaultSize.
func Render(code string, size int) (*Challenge, error) {
	if code == "" {
		return nil, ErrEmptyChallenge
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr challenge: %w", err)
	}
	return &Challenge{
		Raw:     code,
		PNG:     png,
		DataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// WriteTerminal draws code to w using half-block characters.
func WriteTerminal(code string, w io.Writer) error {
	if code == "" {
		return ErrEmptyChallenge
	}
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
	return nil
}
