package xls

import (
	"fmt"
	"io"
	"sort"
)

// Dump writes one line per BIFF record of stream to w: offset, type name,
// length and the first payload bytes in hex.
//
// unnumbered: if true, omit offsets (for meaningful diffs).
func Dump(stream RecordStream, w io.Writer, unnumbered bool) error {
	if err := stream.Seek(0); err != nil {
		return err
	}
	for {
		rec, err := stream.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !unnumbered {
			if _, err := fmt.Fprintf(w, "%8d: ", rec.Offset); err != nil {
				return err
			}
		}
		head := rec.Data
		if len(head) > 16 {
			head = head[:16]
		}
		if _, err := fmt.Fprintf(w, "%-10s len=%-5d % X\n", RecordName(rec.Type), rec.Length, head); err != nil {
			return err
		}
	}
}

// CountRecords writes a summary of (record name, count) sorted by name.
func CountRecords(stream RecordStream, w io.Writer) error {
	if err := stream.Seek(0); err != nil {
		return err
	}
	counts := make(map[string]int)
	for {
		rec, err := stream.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		counts[RecordName(rec.Type)]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%8d %s\n", counts[name], name); err != nil {
			return err
		}
	}
	return nil
}
