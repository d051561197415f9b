// Package imgconv converts between raw I420 frame buffers and image.Image
// values without copying where the layout allows it.
package imgconv

import (
	"fmt"
	"image"
	"image/color"

	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
)

// View returns an image.YCbCr that aliases the frame's memory. The view is
// only valid while the frame's handle is checked out.
func View(f buffer.RawFrame) (*image.YCbCr, error) {
	y, u, v, err := f.Planes()
	if err != nil {
		return nil, fmt.Errorf("imgconv: %w", err)
	}
	return &image.YCbCr{
		Y:              y,
		Cb:             u,
		Cr:             v,
		YStride:        f.Info.Stride,
		CStride:        f.Info.ChromaStride(),
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Info.Width, f.Info.Height),
	}, nil
}

// ToI420 writes img into dst laid out as described by info. img must be at
// least as large as info; anything beyond is cropped.
func ToI420(img image.Image, dst []byte, info buffer.StreamInfo) error {
	if img == nil {
		return fmt.Errorf("imgconv: nil image")
	}
	if len(dst) < info.FrameSize() {
		return fmt.Errorf("imgconv: destination holds %d bytes, need %d", len(dst), info.FrameSize())
	}
	b := img.Bounds()
	if b.Dx() < info.Width || b.Dy() < info.Height {
		return fmt.Errorf("imgconv: image %dx%d smaller than stream %dx%d",
			b.Dx(), b.Dy(), info.Width, info.Height)
	}

	// Route to the cheapest copy for the concrete type
	switch im := img.(type) {
	case *image.YCbCr:
		if im.SubsampleRatio == image.YCbCrSubsampleRatio420 {
			copyYCbCr420(im, dst, info)
			return nil
		}
	case *image.Gray:
		copyGray(im, dst, info)
		return nil
	}
	convertGeneric(img, dst, info)
	return nil
}

func planes(dst []byte, info buffer.StreamInfo) (y, u, v []byte) {
	ls, cs := info.LumaSize(), info.ChromaSize()
	return dst[:ls], dst[ls : ls+cs], dst[ls+cs : ls+2*cs]
}

// copyYCbCr420 copies plane rows, honouring both strides and origin.
func copyYCbCr420(im *image.YCbCr, dst []byte, info buffer.StreamInfo) {
	y, u, v := planes(dst, info)
	x0, y0 := im.Rect.Min.X, im.Rect.Min.Y
	for row := 0; row < info.Height; row++ {
		src := im.YOffset(x0, y0+row)
		copy(y[row*info.Stride:row*info.Stride+info.Width], im.Y[src:src+info.Width])
	}
	cw, cs := info.Width/2, info.ChromaStride()
	for row := 0; row < info.Height/2; row++ {
		src := im.COffset(x0, y0+2*row)
		copy(u[row*cs:row*cs+cw], im.Cb[src:src+cw])
		copy(v[row*cs:row*cs+cw], im.Cr[src:src+cw])
	}
}

func copyGray(im *image.Gray, dst []byte, info buffer.StreamInfo) {
	y, u, v := planes(dst, info)
	x0, y0 := im.Rect.Min.X, im.Rect.Min.Y
	for row := 0; row < info.Height; row++ {
		src := (y0+row)*im.Stride + x0
		copy(y[row*info.Stride:row*info.Stride+info.Width], im.Pix[src:src+info.Width])
	}
	for i := range u {
		u[i] = 128
		v[i] = 128
	}
}

// convertGeneric goes through color.RGBToYCbCr. Chroma is taken from the
// top-left pixel of each 2x2 block.
func convertGeneric(img image.Image, dst []byte, info buffer.StreamInfo) {
	y, u, v := planes(dst, info)
	b := img.Bounds()
	cs := info.ChromaStride()
	for row := 0; row < info.Height; row++ {
		for col := 0; col < info.Width; col++ {
			r, g, bl, _ := img.At(b.Min.X+col, b.Min.Y+row).RGBA()
			yy, cb, cr := color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			y[row*info.Stride+col] = yy
			if row%2 == 0 && col%2 == 0 {
				ci := (row/2)*cs + col/2
				u[ci] = cb
				v[ci] = cr
			}
		}
	}
}
