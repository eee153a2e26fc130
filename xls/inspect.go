package xls

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"strings"
)

// FileFormatDescriptions provides descriptions of the file types that can be inspected.
var FileFormatDescriptions = map[string]string{
	"xls":  "Excel xls",
	"biff": "Raw BIFF stream",
	"xlsb": "Excel 2007 xlsb file",
	"xlsx": "Excel xlsx file",
	"ods":  "Openoffice.org ODS file",
	"zip":  "Unknown ZIP file",
	"":     "Unknown file type",
}

// XLS_SIGNATURE is the magic cookie that starts an OLE2 compound document.
var XLS_SIGNATURE = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// ZIP_SIGNATURE is the magic cookie for ZIP files.
var ZIP_SIGNATURE = []byte("PK\x03\x04")

// PEEK_SIZE is the number of bytes needed to tell the formats apart.
const PEEK_SIZE = 8

// InspectFormat returns the type of the file at path, or of content when
// content is non-nil. The result is a key of FileFormatDescriptions; ""
// means the format could not be determined.
func InspectFormat(path string, content []byte) (string, error) {
	if content != nil {
		return inspectReaderAt(bytes.NewReader(content), int64(len(content)))
	}
	f, err := os.Open(expandHome(path))
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	return inspectReaderAt(f, info.Size())
}

func inspectReaderAt(ra io.ReaderAt, size int64) (string, error) {
	peek := make([]byte, PEEK_SIZE)
	n, err := ra.ReadAt(peek, 0)
	if err != nil && err != io.EOF {
		return "", err
	}
	peek = peek[:n]

	switch {
	case bytes.HasPrefix(peek, XLS_SIGNATURE):
		return "xls", nil
	case isRawBIFF(peek):
		return "biff", nil
	case bytes.HasPrefix(peek, ZIP_SIGNATURE):
		return inspectZip(ra, size)
	}
	return "", nil
}

func inspectZip(ra io.ReaderAt, size int64) (string, error) {
	zf, err := zip.NewReader(ra, size)
	if err != nil {
		return "", err
	}
	// Some generators use backslashes or odd casing in member names.
	names := make(map[string]bool, len(zf.File))
	for _, f := range zf.File {
		names[strings.ToLower(strings.ReplaceAll(f.Name, "\\", "/"))] = true
	}
	switch {
	case names["xl/workbook.xml"]:
		return "xlsx", nil
	case names["xl/workbook.bin"]:
		return "xlsb", nil
	case names["content.xml"]:
		return "ods", nil
	}
	return "zip", nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return strings.Replace(path, "~", home, 1)
}
