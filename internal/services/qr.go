package services

import (
	"bytes"
	"context"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const defaultQRSize = 300

// QRCode renders content as a square PNG QR code of size pixels.
func QRCode(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, err
	}
	code, err = barcode.Scale(code, size, size)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LinkQR renders the short URL of a link the user owns.
func (s *LinkService) LinkQR(ctx context.Context, userID, id int64) ([]byte, error) {
	link, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return QRCode(s.ShortURL(link.Slug), defaultQRSize)
}

// SlugQR renders the short URL for any slug, whether or not it exists.
func (s *LinkService) SlugQR(slug string) ([]byte, error) {
	if !slugPattern.MatchString(slug) {
		return nil, ErrInvalidSlug
	}
	return QRCode(s.ShortURL(slug), defaultQRSize)
}
