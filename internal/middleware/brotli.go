package middleware

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliConfig configures response compression.
type BrotliConfig struct {
	Quality   int
	MinLength int
	Skipper   func(c *gin.Context) bool
}

// DefaultBrotliConfig compresses bodies of 1 KiB or more.
var DefaultBrotliConfig = BrotliConfig{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
}

// brotliWriter buffers the body and decides at the end whether to compress.
// A Flush switches it to pass-through for the rest of the response.
type brotliWriter struct {
	gin.ResponseWriter
	buf         bytes.Buffer
	passthrough bool
}

func (bw *brotliWriter) Write(data []byte) (int, error) {
	if bw.passthrough {
		return bw.ResponseWriter.Write(data)
	}
	return bw.buf.Write(data)
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

func (bw *brotliWriter) Flush() {
	if !bw.passthrough {
		bw.passthrough = true
		_, _ = bw.ResponseWriter.Write(bw.buf.Bytes())
		bw.buf.Reset()
	}
	bw.ResponseWriter.Flush()
}

// Brotli compresses responses with the default configuration.
func Brotli() gin.HandlerFunc {
	return BrotliWithConfig(DefaultBrotliConfig)
}

// BrotliWithConfig compresses responses for clients that accept "br".
func BrotliWithConfig(cfg BrotliConfig) gin.HandlerFunc {
	if cfg.Quality < brotli.BestSpeed || cfg.Quality > brotli.BestCompression {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultBrotliConfig.MinLength
	}

	return func(c *gin.Context) {
		if shouldSkip(c) || (cfg.Skipper != nil && cfg.Skipper(c)) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		original := c.Writer
		bw := &brotliWriter{ResponseWriter: original}
		c.Writer = bw
		c.Next()
		c.Writer = original

		if bw.passthrough {
			return
		}
		body := bw.buf.Bytes()
		if len(body) < cfg.MinLength || original.Header().Get("Content-Encoding") != "" {
			_, _ = original.Write(body)
			return
		}

		var out bytes.Buffer
		w := brotli.NewWriterLevel(&out, cfg.Quality)
		if _, err := w.Write(body); err != nil || w.Close() != nil {
			_, _ = original.Write(body)
			return
		}
		original.Header().Set("Content-Encoding", "br")
		original.Header().Set("Content-Length", strconv.Itoa(out.Len()))
		_, _ = original.Write(out.Bytes())
	}
}

// shouldSkip passes through streaming protocols that cannot be buffered.
func shouldSkip(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return true
	}
	return false
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if name, _, _ := strings.Cut(strings.TrimSpace(enc), ";"); strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}
