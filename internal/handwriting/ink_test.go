package handwriting

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"
)

func TestCanvasStrokeInksPixels(t *testing.T) {
	t.Parallel()

	c := NewCanvas(40, 40)
	if !c.Empty() {
		t.Fatalf("new canvas should be transparent")
	}
	c.MoveTo(5, 20)
	c.LineTo(35, 20)
	c.Lift()

	if c.Empty() {
		t.Fatalf("expected ink after a stroke")
	}
	if _, _, _, a := c.Image().At(20, 20).RGBA(); a == 0 {
		t.Fatalf("expected opaque pixel on the stroke")
	}
	if _, _, _, a := c.Image().At(20, 5).RGBA(); a != 0 {
		t.Fatalf("expected transparent pixel away from the stroke")
	}
}

func TestCanvasEraserRemovesInk(t *testing.T) {
	t.Parallel()

	c := NewCanvas(40, 40)
	c.MoveTo(5, 20)
	c.LineTo(35, 20)
	c.Lift()

	c.SetEraser(true)
	c.MoveTo(0, 20)
	c.LineTo(40, 20)
	c.Lift()

	if _, _, _, a := c.Image().At(20, 20).RGBA(); a != 0 {
		t.Fatalf("expected eraser to clear the stroke, alpha=%d", a)
	}
}

func TestCanvasClearAndDataURL(t *testing.T) {
	t.Parallel()

	c := NewCanvas(0, 0)
	c.MoveTo(100, 100)
	c.LineTo(150, 150)
	c.Clear()
	if !c.Empty() {
		t.Fatalf("expected clear to wipe the surface")
	}

	url, err := c.DataURL()
	if err != nil {
		t.Fatalf("data url failed: %v", err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("unexpected data url prefix: %.40s", url)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("invalid png: %v", err)
	}
	if img.Bounds().Dx() != DefaultCanvasSize {
		t.Fatalf("expected default canvas size, got %d", img.Bounds().Dx())
	}
}
