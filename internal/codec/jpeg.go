package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	"github.com/nfnt/resize"
	"github.com/pixiv/go-libjpeg/jpeg"

	"github.com/supermarsx/sortOfRemoteNG-sub005/internal/protocol/rfb"
)

// decodeJPEG handles the Apple JPEG encoding: a u32-length-prefixed JPEG
// image. Servers sometimes emit images padded to block alignment, so a
// decoded size that disagrees with the rectangle is resized, not rejected.
func (d *Decoder) decodeJPEG(r *rfb.Reader, rect rfb.Rectangle) (*Update, error) {
	dataLen, err := r.U32()
	if err != nil {
		return nil, err
	}
	data, err := r.Exact(int(dataLen))
	if err != nil {
		return nil, err
	}

	img, err := jpeg.DecodeIntoRGBA(bytes.NewReader(data), &jpeg.DecoderOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: jpeg: %v", ErrDecoding, err)
	}

	width := int(rect.Width)
	height := int(rect.Height)
	if img.Bounds().Dx() != width || img.Bounds().Dy() != height {
		img = toRGBA(resize.Resize(uint(width), uint(height), img, resize.NearestNeighbor))
	}

	return pixelUpdate(rect, rgbaBytes(img, width, height)), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}

// rgbaBytes flattens an RGBA image into a tightly packed width*height*4
// buffer.
func rgbaBytes(img *image.RGBA, width, height int) []byte {
	if img.Rect.Min.X == 0 && img.Rect.Min.Y == 0 && img.Stride == width*4 {
		return img.Pix[:width*height*4]
	}

	out := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		row := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(out[y*width*4:(y+1)*width*4], img.Pix[row:row+width*4])
	}
	return out
}
