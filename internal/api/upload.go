package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"

	"github.com/dharsanguruparan/SiteVault/internal/apperr"
)

// tempUpload is a multipart file spooled to disk so its size is known
// before it reaches object storage.
type tempUpload struct {
	f           *os.File
	size        int64
	contentType string
	filename    string
	fields      map[string]string
}

func (t *tempUpload) Close() {
	t.f.Close()
	os.Remove(t.f.Name())
}

// readUpload consumes a multipart request. Form fields before and after the
// "file" part are collected; the file itself is capped at maxBytes.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (*tempUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+64*1024)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperr.Validation("expecting multipart form")
	}
	up := &tempUpload{fields: map[string]string{}}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			up.discard()
			return nil, apperr.Validation(fmt.Sprintf("read multipart: %v", err))
		}
		if part.FormName() == "file" && up.f == nil {
			err = up.spool(part, maxBytes)
		} else {
			var v []byte
			v, err = io.ReadAll(io.LimitReader(part, 4096))
			up.fields[part.FormName()] = string(v)
		}
		part.Close()
		if err != nil {
			up.discard()
			return nil, err
		}
	}
	if up.f == nil {
		return nil, apperr.Validation("file part is required")
	}
	if _, err := up.f.Seek(0, io.SeekStart); err != nil {
		up.Close()
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	return up, nil
}

func (t *tempUpload) discard() {
	if t.f != nil {
		t.Close()
	}
}

func (t *tempUpload) spool(part *multipart.Part, maxBytes int64) error {
	f, err := os.CreateTemp("", "sitevault-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	t.f = f
	sniff := make([]byte, 0, 512)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			t.size += int64(n)
			if t.size > maxBytes {
				return apperr.Validation(fmt.Sprintf("file exceeds limit (%d bytes)", maxBytes))
			}
			if remain := 512 - len(sniff); remain > 0 {
				sniff = append(sniff, buf[:min(n, remain)]...)
			}
			if _, err := f.Write(buf[:n]); err != nil {
				return fmt.Errorf("write temp file: %w", err)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return apperr.Validation(fmt.Sprintf("read file: %v", readErr))
		}
	}
	if t.size == 0 {
		return apperr.Validation("empty file")
	}
	t.contentType = http.DetectContentType(sniff)
	t.filename = path.Base(part.FileName())
	if t.filename == "." || t.filename == "/" {
		t.filename = "upload"
	}
	return nil
}
