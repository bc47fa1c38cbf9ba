package normalizer

import (
	"image"
	"image/color"
)

// toRGB drops alpha and palette information, which JPEG cannot carry.
// Straight (non-premultiplied) color values are kept, so a transparent red
// pixel stays red instead of collapsing to black. Images already in an
// opaque model are returned as is.
func toRGB(img image.Image) image.Image {
	if !needsRGB(img) {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xFF
		}
	}
	return dst
}

func needsRGB(img image.Image) bool {
	switch img.(type) {
	case *image.Paletted, *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64:
		return true
	case *image.YCbCr, *image.Gray, *image.Gray16, *image.CMYK:
		return false
	}
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}
