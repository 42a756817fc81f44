package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/joseph-ayodele/invoices-tracker/constants"
)

// Rendered is an image suitable for a multimodal model.
type Rendered struct {
	Data        []byte
	MimeType    string
	Placeholder bool // rendering failed; Data is a blank page
}

// RenderForVision turns the first PDF page into a PNG, or bounds an image's
// size. It never fails outright: when rendering is impossible a blank page is
// returned and Placeholder is set.
func (e *Extractor) RenderForVision(ctx context.Context, filename string, data []byte) Rendered {
	var (
		out Rendered
		err error
	)
	switch constants.FormatFor(filename, "") {
	case constants.FormatPDF:
		out, err = e.renderFirstPage(ctx, filename, data)
	case constants.FormatImage:
		out, err = e.fitImage(filename, data)
	default:
		err = fmt.Errorf("cannot render %q", filename)
	}
	if err != nil {
		e.logger.Warn("ocr.render.placeholder", "filename", filename, "err", err)
		return placeholder()
	}
	return out
}

func (e *Extractor) renderFirstPage(ctx context.Context, filename string, data []byte) (Rendered, error) {
	path, cleanup, err := spool(filename, data)
	if err != nil {
		return Rendered{}, err
	}
	defer cleanup()

	prefix := filepath.Join(filepath.Dir(path), "first")
	// pdftoppm -f 1 -l 1 -r 150 -png <in.pdf> <tmp/first>
	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-f", "1", "-l", "1", "-r", fmt.Sprintf("%d", e.cfg.RenderDPI), "-png", path, prefix); err != nil {
		return Rendered{}, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}
	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		return Rendered{}, fmt.Errorf("pdftoppm produced no image")
	}
	png, err := os.ReadFile(matches[0])
	if err != nil {
		return Rendered{}, err
	}
	return e.fitImage("page.png", png)
}

func (e *Extractor) fitImage(filename string, data []byte) (Rendered, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		// formats imaging cannot decode go through untouched if the model accepts them
		if mt := constants.MimeTypeFor(filename); mt == "image/webp" {
			return Rendered{Data: data, MimeType: mt}, nil
		}
		return Rendered{}, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() > e.cfg.MaxImageEdge || b.Dy() > e.cfg.MaxImageEdge {
		img = imaging.Fit(img, e.cfg.MaxImageEdge, e.cfg.MaxImageEdge, imaging.Lanczos)
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) (Rendered, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return Rendered{}, err
	}
	return Rendered{Data: buf.Bytes(), MimeType: "image/png"}, nil
}

// placeholder is a white A4-ish page at 150 dpi.
func placeholder() Rendered {
	out, err := encodePNG(imaging.New(1240, 1754, color.White))
	if err != nil {
		return Rendered{MimeType: "image/png", Placeholder: true}
	}
	out.Placeholder = true
	return out
}
