package xls

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"github.com/richardlehane/mscfb"
)

// Names of the workbook stream inside the compound document. BIFF8 files
// use "Workbook"; BIFF5 and some generators write "Book".
var workbookStreamNames = []string{"Workbook", "Book"}

// WorkbookStream returns the BIFF workbook stream of an .xls file. OLE2
// compound documents are searched for the workbook stream; a file that
// starts with a BOF record is taken as a bare BIFF stream.
func WorkbookStream(ra io.ReaderAt, size int64) ([]byte, error) {
	peek := make([]byte, PEEK_SIZE)
	n, err := ra.ReadAt(peek, 0)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "reading file signature")
	}
	peek = peek[:n]

	if !bytes.HasPrefix(peek, XLS_SIGNATURE) {
		if !isRawBIFF(peek) {
			return nil, NewXLSError(ErrWorkbookNotFound, "not a compound document or BIFF stream")
		}
		mem := make([]byte, size)
		if _, err := ra.ReadAt(mem, 0); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "reading BIFF stream")
		}
		return mem, nil
	}

	doc, err := mscfb.New(ra)
	if err != nil {
		return nil, errors.Wrap(err, "opening compound document")
	}
	found := make(map[string][]byte, len(workbookStreamNames))
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if !isWorkbookStreamName(entry.Name) {
			continue
		}
		if _, ok := found[entry.Name]; ok {
			continue
		}
		mem := make([]byte, entry.Size)
		if _, err := io.ReadFull(entry, mem); err != nil {
			return nil, errors.Wrapf(err, "reading %s stream", entry.Name)
		}
		found[entry.Name] = mem
	}
	for _, name := range workbookStreamNames {
		if mem, ok := found[name]; ok {
			return mem, nil
		}
	}
	return nil, ErrWorkbookNotFound
}

func isWorkbookStreamName(name string) bool {
	for _, n := range workbookStreamNames {
		if n == name {
			return true
		}
	}
	return false
}

// isRawBIFF reports whether peek starts with a BOF record header.
func isRawBIFF(peek []byte) bool {
	if len(peek) < 4 {
		return false
	}
	code := uint16(peek[0]) | uint16(peek[1])<<8
	return bofcodes[code]
}
