// SPDX-License-Identifier: MPL-2.0

package api

import (
	"io"
	"mime/multipart"
)

// ProgressFunc receives the bytes sent so far and the total, which is 0 when
// unknown.
type ProgressFunc func(sent, total int64)

type formField struct {
	name  string
	value string
}

type progressReader struct {
	r        io.Reader
	sent     int64
	total    int64
	progress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.progress(p.sent, p.total)
	}
	return n, err
}

// multipartBody streams fields followed by a single file part through a pipe.
func multipartBody(fields []formField, fileField, fileName string, r io.Reader, size int64, progress ProgressFunc) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	if progress != nil {
		r = &progressReader{r: r, total: size, progress: progress}
	}

	go func() {
		err := func() error {
			for _, f := range fields {
				if err := mw.WriteField(f.name, f.value); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile(fileField, fileName)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, r); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}
