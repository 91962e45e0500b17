// Package imaging prepares captured frames for the cloud translation call:
// downscale the longest side to a bound, encode as JPEG at a fixed quality,
// and base64-encode the result. This is shared by pkg/cloudtranslate (the
// wire payload) and pkg/forkjoin (the image hash is computed over the same
// downscaled bytes so it is only derived once per iteration).
package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/image/draw"
)

const (
	// CloudMaxDimension is the longest-side bound for the cloud JPEG
	// payload (spec §6).
	CloudMaxDimension = 960
	// CloudJpegQuality is the fixed JPEG quality for the cloud payload.
	CloudJpegQuality = 85
	// CloudMimeType is the MIME type the cloud payload is tagged with.
	CloudMimeType = "image/jpeg"
)

var bufPool bytebufferpool.Pool

// Prepared holds the result of downscaling+encoding a frame for the cloud
// call: the raw JPEG bytes (used for hashing) and its base64 form (used for
// the wire payload), plus the dimensions actually submitted.
type Prepared struct {
	JpegBytes []byte
	Base64    string
	Width     int
	Height    int
}

// PrepareForCloud downscales RGBA pixel data (width x height) so its
// longest side is at most CloudMaxDimension, encodes it as JPEG at
// CloudJpegQuality, and returns both the raw and base64 forms.
func PrepareForCloud(pixels []byte, width, height int) (Prepared, error) {
	src := &image.RGBA{
		Pix:    pixels,
		Stride: 4 * width,
		Rect:   image.Rect(0, 0, width, height),
	}

	dstW, dstH := scaledDimensions(width, height, CloudMaxDimension)

	var encodeSrc image.Image = src
	if dstW != width || dstH != height {
		dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
		encodeSrc = dst
	}

	buf := bufPool.Get()
	defer bufPool.Put(buf)
	buf.Reset()

	if err := jpeg.Encode(buf, encodeSrc, &jpeg.Options{Quality: CloudJpegQuality}); err != nil {
		return Prepared{}, err
	}

	raw := make([]byte, buf.Len())
	copy(raw, buf.Bytes())

	return Prepared{
		JpegBytes: raw,
		Base64:    base64.StdEncoding.EncodeToString(raw),
		Width:     dstW,
		Height:    dstH,
	}, nil
}

// scaledDimensions returns the (width, height) to downscale to so the
// longest side is at most maxDim, preserving aspect ratio. Images already
// within bounds are returned unchanged.
func scaledDimensions(w, h, maxDim int) (int, int) {
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxDim || longest == 0 {
		return w, h
	}
	scale := float64(maxDim) / float64(longest)
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	return newW, newH
}

// Luma returns the standard-definition luma (ITU-R BT.601) of an RGB pixel,
// with the same weights pkg/changedetect applies in its own luma delta.
func Luma(c color.RGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}
