package api

import (
	"io"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// compressionLevel is the gzip-scale level handed to every encoder.
const compressionLevel = 5

// compressibleTypes are the response types worth compressing. Images and
// fonts from the SPA bundle are already compressed.
var compressibleTypes = []string{
	"application/json",
	"text/plain",
	"text/html",
	"text/css",
	"text/javascript",
	"application/javascript",
	"image/svg+xml",
}

// newCompressor negotiates br, zstd and gzip (in that order of preference)
// from Accept-Encoding. Encoders registered later take precedence.
func newCompressor() *middleware.Compressor {
	c := middleware.NewCompressor(compressionLevel, compressibleTypes...)
	c.SetEncoder("gzip", encoderGzip)
	c.SetEncoder("zstd", encoderZstd)
	c.SetEncoder("br", encoderBrotli)
	return c
}

func encoderGzip(w io.Writer, level int) io.Writer {
	gw, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil
	}
	return gw
}

func encoderZstd(w io.Writer, level int) io.Writer {
	zw, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil
	}
	return zw
}

func encoderBrotli(w io.Writer, level int) io.Writer {
	return brotli.NewWriterLevel(w, level)
}
