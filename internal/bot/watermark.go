package bot

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	// Форматы исходных изображений.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Параметры наложения.
const (
	// MaxImages — изображений в посте, обрабатываемых за раз.
	MaxImages = 4

	// tilesAcross — копий водяного знака по ширине.
	tilesAcross = 6

	markAlpha    = 128
	backdropFill = 200
	blendFactor  = 0.2
)

// DecodeImage декодирует изображение любого зарегистрированного формата.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodePNG кодирует изображение в PNG. Результат детерминирован.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// toNRGBA копирует изображение в NRGBA с началом координат в (0, 0).
func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// PrepareMark готовит водяной знак: чисто белые пиксели становятся
// прозрачными.
func PrepareMark(src image.Image) *image.NRGBA {
	mark := toNRGBA(src)
	p := mark.Pix
	for i := 0; i < len(p); i += 4 {
		if p[i] == 255 && p[i+1] == 255 && p[i+2] == 255 {
			p[i+3] = 0
		}
	}
	return mark
}

// tile заполняет холст w×h копиями mark, tilesAcross по ширине.
// Высота копии сохраняет пропорции; неполная нижняя полоса прозрачна.
func tile(w, h int, mark *image.NRGBA) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))

	mw, mh := mark.Bounds().Dx(), mark.Bounds().Dy()
	if mw == 0 || mh == 0 {
		return canvas
	}

	tw := max(w/tilesAcross, 1)
	th := max(int(math.RoundToEven(float64(mh)*float64(tw)/float64(mw))), 1)
	rows := int(math.RoundToEven(float64(h) / float64(th)))

	scaled := image.NewNRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), mark, mark.Bounds(), draw.Src, nil)

	for i := 0; i < tilesAcross; i++ {
		for k := 0; k < rows; k++ {
			r := image.Rect(i*tw, k*th, (i+1)*tw, (k+1)*th)
			draw.Draw(canvas, r, scaled, image.Point{}, draw.Src)
		}
	}
	return canvas
}

// Watermark накладывает водяной знак на изображение.
//
// Водяной знак (после PrepareMark) раскладывается плиткой поверх
// полупрозрачной белой подложки, подложка смешивается с исходным
// изображением с коэффициентом 0.2. Одинаковый вход даёт одинаковый
// результат.
func Watermark(src image.Image, mark *image.NRGBA) *image.NRGBA {
	dst := toNRGBA(src)
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	tiles := tile(w, h, mark)

	for i := 0; i < len(dst.Pix); i += 4 {
		a := float64(tiles.Pix[i+3])

		// Альфа водяного знака, подтянутая к markAlpha.
		scaled := a + (markAlpha-a)*a/255
		// Маска наложения на подложку.
		m := a * (1 - scaled/255) / 255

		back := [4]float64{255, 255, 255, backdropFill}
		for c := 0; c < 4; c++ {
			over := back[c]*(1-m) + float64(tiles.Pix[i+c])*m
			out := float64(dst.Pix[i+c])*(1-blendFactor) + over*blendFactor
			dst.Pix[i+c] = clamp(out)
		}
	}
	return dst
}

func clamp(v float64) uint8 {
	v = math.Round(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
