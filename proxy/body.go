package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/andybalholm/brotli"
	"github.com/c2h5oh/datasize"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/html/charset"
)

// errBodyTooLarge is returned when a body exceeds the size limit.
const errBodyTooLarge errors.Error = "body is too large"

// readCloser combines a reader with a closer.
type readCloser struct {
	io.Reader
	io.Closer
}

// readBody returns the decompressed and UTF-8 decoded body of res.  On error,
// res.Body is left readable from the start, so that the response can be
// passed as is.
func readBody(res *http.Response, maxSize datasize.ByteSize) (body []byte, err error) {
	limit := int64(maxSize.Bytes())
	if res.ContentLength > limit {
		return nil, errBodyTooLarge
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil || int64(len(raw)) > limit {
		res.Body = &readCloser{
			Reader: io.MultiReader(bytes.NewReader(raw), res.Body),
			Closer: res.Body,
		}

		if err != nil {
			return nil, fmt.Errorf("reading: %w", err)
		}

		return nil, errBodyTooLarge
	}

	err = res.Body.Close()
	res.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("closing: %w", err)
	}

	body, err = decodeBody(raw, res.Header.Get("Content-Encoding"), res.Header.Get("Content-Type"), limit)
	if err != nil {
		return nil, err
	}

	return body, nil
}

// decodeBody decompresses raw and converts it into UTF-8.  The result must
// not be longer than limit.
func decodeBody(raw []byte, encoding, contentType string, limit int64) (body []byte, err error) {
	dec, err := decompressReader(bytes.NewReader(raw), encoding)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.WithDeferred(err, dec.Close()) }()

	r, err := charset.NewReader(dec, contentType)
	if err != nil {
		return nil, fmt.Errorf("decoding charset: %w", err)
	}

	body, err = io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	} else if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}

	return body, nil
}

// zstdReadCloser makes a *zstd.Decoder an io.ReadCloser.
type zstdReadCloser struct {
	*zstd.Decoder
}

// Close implements the io.Closer interface for zstdReadCloser.
func (z zstdReadCloser) Close() (err error) {
	z.Decoder.Close()

	return nil
}

// decompressReader returns the reader of the data of r encoded with the
// content encoding.  Multiple encodings are not supported.
func decompressReader(r io.Reader, encoding string) (rc io.ReadCloser, err error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.NopCloser(r), nil
	case "gzip", "x-gzip":
		rc, err = gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}

		return rc, nil
	case "deflate":
		return flate.NewReader(r), nil
	case "br":
		return io.NopCloser(brotli.NewReader(r)), nil
	case "zstd":
		var d *zstd.Decoder
		d, err = zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}

		return zstdReadCloser{Decoder: d}, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// setBody replaces the body of res with the HTML page body.
func setBody(res *http.Response, body []byte) {
	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))
	res.TransferEncoding = nil
	res.Header.Del("Content-Encoding")
	res.Header.Set("Content-Length", strconv.Itoa(len(body)))
	res.Header.Set("Content-Type", "text/html; charset=utf-8")
}
