package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// PageImage is one raster image embedded in a document page.
type PageImage struct {
	Page     int
	Name     string
	FileType string
	Data     []byte
}

// ImageSource lists embedded images, at most limit of them (0 means no limit).
type ImageSource interface {
	Images(ctx context.Context, path string, limit int) ([]PageImage, error)
}

// PDFImageSource reads embedded images with pdfcpu. A page or image that cannot be
// extracted is logged and skipped.
type PDFImageSource struct {
	Logger *slog.Logger
}

func (s PDFImageSource) Images(ctx context.Context, path string, limit int) ([]PageImage, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pdfCtx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	var out []PageImage
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		imgs, err := pdfcpu.ExtractPageImages(pdfCtx, pageNr, false)
		if err != nil {
			logger.Warn("skip page images", "path", path, "page", pageNr, "err", err)
			continue
		}
		objNrs := make([]int, 0, len(imgs))
		for nr := range imgs {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)
		for _, nr := range objNrs {
			img := imgs[nr]
			data, err := io.ReadAll(img)
			if err != nil {
				logger.Warn("skip image", "path", path, "page", pageNr, "object", nr, "err", err)
				continue
			}
			out = append(out, PageImage{Page: pageNr, Name: img.Name, FileType: img.FileType, Data: data})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// decodeImage accepts png, jpeg, gif, tiff and bmp.
func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
