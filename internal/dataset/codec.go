package dataset

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
)

// encodeFrame serializes f in format, gzipped when compress is set.
func encodeFrame(f *frame.Frame, format string, compress bool) ([]byte, error) {
	var buf bytes.Buffer
	var w io.Writer = &buf
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(&buf)
		w = gz
	}

	var err error
	switch format {
	case constants.FileFormatCSV:
		err = frame.WriteCSV(w, f)
	case constants.FileFormatJSON:
		err = frame.WriteJSON(w, f)
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidFormat, fmt.Sprintf("unsupported file format '%s'", format))
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, "SERIALIZATION_FAILED", "Failed to serialize dataset")
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, "COMPRESSION_FAILED", "Failed to compress dataset")
		}
	}
	return buf.Bytes(), nil
}

// decodeFrame is the inverse of encodeFrame.
func decodeFrame(payload []byte, format string, compressed bool) (*frame.Frame, error) {
	var r io.Reader = bytes.NewReader(payload)
	if compressed {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, "DECOMPRESSION_FAILED", "Failed to decompress dataset")
		}
		defer gz.Close()
		r = gz
	}

	var (
		f   *frame.Frame
		err error
	)
	switch format {
	case constants.FileFormatCSV:
		f, err = frame.ReadCSV(r)
	case constants.FileFormatJSON:
		f, err = frame.ReadJSON(r)
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidFormat, fmt.Sprintf("unsupported file format '%s'", format))
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, "DESERIALIZATION_FAILED", "Failed to deserialize dataset")
	}
	return f, nil
}

func fileExtension(format string, compressed bool) string {
	if compressed {
		return format + ".gz"
	}
	return format
}
