package capture

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"rollcall/internal/apiclient"
)

// Image is a captured frame, downscaled and re-encoded as JPEG.
type Image struct {
	Handle string
	Data   []byte
	Width  int
	Height int
}

// Upload returns the multipart payload for the API client.
func (i Image) Upload() apiclient.Image {
	return apiclient.Image{Data: i.Data, Filename: i.Handle + ".jpg", ContentType: "image/jpeg"}
}

// normalize decodes raw, honours EXIF orientation, shrinks it to at most
// maxWidth pixels wide and re-encodes it as JPEG.
func normalize(raw []byte, maxWidth int) (Image, error) {
	src, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return Image{}, fmt.Errorf("decode frame: %w", err)
	}
	if maxWidth > 0 && src.Bounds().Dx() > maxWidth {
		src = imaging.Resize(src, maxWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return Image{}, fmt.Errorf("encode frame: %w", err)
	}
	b := src.Bounds()
	return Image{
		Handle: uuid.NewString(),
		Data:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}
