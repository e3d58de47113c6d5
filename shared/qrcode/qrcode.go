// Package qrcode renders configuration exports as QR codes.
package qrcode

import (
	"fmt"
	"strings"

	goqrcode "github.com/skip2/go-qrcode"
)

const defaultModuleSize = 4

// Encoder turns text into a scalable image
type Encoder interface {
	SVG(content string) ([]byte, error)
}

// SVGEncoder renders one <rect> per dark module on a white background
type SVGEncoder struct {
	// ModuleSize is the edge length of one module in SVG units
	ModuleSize int
	// Level is the error recovery level
	Level goqrcode.RecoveryLevel
}

// NewEncoder returns an SVGEncoder with default settings
func NewEncoder() *SVGEncoder {
	return &SVGEncoder{ModuleSize: defaultModuleSize, Level: goqrcode.Medium}
}

// SVG encodes content. Content that does not fit into a QR code is an error.
func (e *SVGEncoder) SVG(content string) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("empty content")
	}
	q, err := goqrcode.New(content, e.Level)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return renderSVG(q.Bitmap(), e.moduleSize()), nil
}

// PNG encodes content as a size x size PNG image
func (e *SVGEncoder) PNG(content string, size int) ([]byte, error) {
	png, err := goqrcode.Encode(content, e.Level, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}

// Terminal renders content with unicode half blocks for printing to a terminal
func (e *SVGEncoder) Terminal(content string) (string, error) {
	q, err := goqrcode.New(content, e.Level)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return q.ToSmallString(false), nil
}

func (e *SVGEncoder) moduleSize() int {
	if e.ModuleSize <= 0 {
		return defaultModuleSize
	}
	return e.ModuleSize
}

func renderSVG(bitmap [][]bool, moduleSize int) []byte {
	size := len(bitmap) * moduleSize

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d" shape-rendering="crispEdges">`, size, size, size, size)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#ffffff"/>`, size, size)
	for y, row := range bitmap {
		for x, dark := range row {
			if dark {
				fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="#000000"/>`, x*moduleSize, y*moduleSize, moduleSize, moduleSize)
			}
		}
	}
	b.WriteString("</svg>\n")
	return []byte(b.String())
}
