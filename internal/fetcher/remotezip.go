package fetcher

import (
	"archive/zip"
	"context"
	"io"

	"github.com/rotisserie/eris"
)

// RemoteZip reads members of a ZIP archive over HTTP without downloading the
// archive. archive/zip walks the central directory at the end of the file
// and then reads only the requested member, so a single e-file costs a HEAD
// plus a handful of Range requests against a multi-hundred-megabyte archive.
type RemoteZip struct {
	reader *zip.Reader
}

// remoteReaderAt adapts ranged HTTP GETs to io.ReaderAt for archive/zip.
// The context is captured at open time because ReaderAt has no context
// parameter.
type remoteReaderAt struct {
	ctx     context.Context
	fetcher *HTTPFetcher
	url     string
	size    int64
}

func (r *remoteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}
	if max := r.size - off; int64(len(p)) > max {
		p = p[:max]
	}
	n, err := r.fetcher.ReadRange(r.ctx, r.url, p, off)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// OpenRemoteZip opens a remote archive's central directory.
func OpenRemoteZip(ctx context.Context, f *HTTPFetcher, url string) (*RemoteZip, error) {
	size, err := f.ContentLength(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "remotezip: size of %s", url)
	}

	ra := &remoteReaderAt{ctx: ctx, fetcher: f, url: url, size: size}
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, eris.Wrapf(err, "remotezip: open directory of %s", url)
	}

	return &RemoteZip{reader: zr}, nil
}

// Names lists the member paths in the archive.
func (z *RemoteZip) Names() []string {
	names := make([]string, 0, len(z.reader.File))
	for _, f := range z.reader.File {
		names = append(names, f.Name)
	}
	return names
}

// Read fetches and decompresses a single member by exact name.
func (z *RemoteZip) Read(name string) ([]byte, error) {
	for _, f := range z.reader.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, eris.Wrapf(err, "remotezip: open member %s", name)
		}
		defer rc.Close() //nolint:errcheck

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, eris.Wrapf(err, "remotezip: read member %s", name)
		}
		return data, nil
	}
	return nil, eris.Errorf("remotezip: member %q not found", name)
}
