package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultSheetDelimiter = "--------"

var version = "dev"

type quotingMode int

const (
	quotingNone quotingMode = iota
	quotingMinimal
	quotingNonNumeric
	quotingAll
)

// Output formats and the file extension each one writes.
var formatExtensions = map[string]string{
	"csv":   ".csv",
	"tsv":   ".tsv",
	"json":  ".json",
	"xlsx":  ".xlsx",
	"table": ".txt",
}

type options struct {
	format              string
	allSheets           bool
	sheetID             int
	sheetName           string
	visibleOnly         bool
	delimiter           rune
	lineTerminator      string
	dateFormat          string
	floatFormat         string
	ignoreEmpty         bool
	escape              bool
	sheetDelimiter      string
	quoting             quotingMode
	includeSheetPattern []*regexp.Regexp
	excludeSheetPattern []*regexp.Regexp
	header              bool
	raw                 bool
	codepage            uint16
	jobs                int
	summary             bool
	dump                bool
	countRecords        bool
}

// flagValues holds the command line as typed, before validation.
type flagValues struct {
	configPath      string
	format          string
	allSheets       bool
	sheetID         int
	sheetName       string
	visibleOnly     bool
	delimiter       string
	lineTerminator  string
	dateFormat      string
	floatFormat     string
	ignoreEmpty     bool
	escape          bool
	sheetDelimiter  string
	quoting         string
	includePatterns []string
	excludePatterns []string
	header          bool
	raw             bool
	codepage        uint16
	jobs            int
	summary         bool
	verbose         bool
	dump            bool
	countRecords    bool
}

// usageError marks a bad command line; run exits with status 2.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...interface{}) error {
	return usageError{fmt.Errorf(format, args...)}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdin, stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, err)
		var uerr usageError
		if errors.As(err, &uerr) {
			return 2
		}
		return 1
	}
	return 0
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	fv := &flagValues{}
	cmd := &cobra.Command{
		Use:           "xls2csv [flags] xlsfile [outfile]",
		Short:         "Convert legacy Excel .xls workbooks to csv, tsv, json, xlsx or text tables",
		Long:          longHelp,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return usagef("expected xlsfile [outfile], got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if fv.configPath != "" {
				cfg, err := loadConfig(fv.configPath)
				if err != nil {
					return usageError{err}
				}
				cfg.apply(cmd.Flags().Changed, fv)
			}
			opts, err := resolveOptions(fv)
			if err != nil {
				return err
			}
			log := newLogger(stderr, fv.verbose)

			input := args[0]
			output := ""
			if len(args) > 1 {
				output = args[1]
			}
			c := newConverter(opts, log, stdout, stderr)
			return c.convertPath(context.Background(), input, output, stdin)
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	f := cmd.Flags()
	f.SortFlags = false
	f.StringVar(&fv.configPath, "config", "", "YAML file with default option values")
	f.StringVarP(&fv.format, "format", "o", "csv", "output format: csv, tsv, json, xlsx or table")
	f.BoolVarP(&fv.allSheets, "all", "a", false, "export all sheets")
	f.IntVarP(&fv.sheetID, "sheet", "s", -1, "sheet number to convert, 0 for all")
	f.StringVarP(&fv.sheetName, "sheetname", "n", "", "sheet name to convert")
	f.BoolVar(&fv.visibleOnly, "visible-only", false, "skip hidden sheets when exporting several")
	f.StringVarP(&fv.delimiter, "delimiter", "d", ",", "column delimiter, 'tab' or 'x09' for a tab")
	f.StringVarP(&fv.lineTerminator, "lineterminator", "l", "", "line terminator, '\\n' '\\r\\n' or '\\r' (default: os line separator)")
	f.StringVarP(&fv.dateFormat, "dateformat", "f", "", "override date/time layout (ex. DD.MM.YYYY hh:mm)")
	f.StringVar(&fv.floatFormat, "floatformat", "", "override float format (ex. %.15f)")
	f.BoolVarP(&fv.ignoreEmpty, "ignoreempty", "i", false, "skip empty lines")
	f.BoolVarP(&fv.escape, "escape", "e", false, "escape \\r\\n\\t characters")
	f.StringVarP(&fv.sheetDelimiter, "sheetdelimiter", "p", defaultSheetDelimiter, "line written between sheets, '' for none, 'x07' or '\\f' for form feed")
	f.StringVarP(&fv.quoting, "quoting", "q", "minimal", "field quoting: none, minimal, nonnumeric or all")
	f.StringArrayVarP(&fv.includePatterns, "include_sheet_pattern", "I", nil, "only include sheets whose names match the pattern (with -a)")
	f.StringArrayVarP(&fv.excludePatterns, "exclude_sheet_pattern", "E", nil, "exclude sheets whose names match the pattern (with -a)")
	f.BoolVarP(&fv.header, "header", "H", false, "use the first row as column names")
	f.BoolVar(&fv.raw, "raw", false, "keep date cells as serial numbers")
	f.Uint16Var(&fv.codepage, "codepage", 0, "decode byte strings with this code page instead of the workbook's")
	f.IntVarP(&fv.jobs, "jobs", "j", runtime.NumCPU(), "files converted in parallel in directory mode")
	f.BoolVar(&fv.summary, "summary", false, "print a per-file summary to stderr")
	f.BoolVar(&fv.verbose, "verbose", false, "log decoding diagnostics to stderr")
	f.BoolVar(&fv.dump, "dump", false, "list the BIFF records of the workbook stream instead of converting")
	f.BoolVar(&fv.countRecords, "count-records", false, "count the BIFF records by type instead of converting")
	return cmd
}

const longHelp = `Convert legacy Excel .xls workbooks (BIFF2 to BIFF8).

xlsfile is an .xls path, '-' to read from STDIN, or a directory: every
.xls file in it is converted into outfile (a directory, default the input
directory), several files at a time.

outfile is the output path, or a directory when -s 0 is given; without it
output goes to STDOUT.`

func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetLevel(logrus.WarnLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func resolveOptions(fv *flagValues) (options, error) {
	if fv.sheetName != "" && (fv.allSheets || fv.sheetID >= 0) {
		return options{}, usagef("cannot combine --sheetname with --sheet or --all")
	}
	format := strings.ToLower(fv.format)
	if _, ok := formatExtensions[format]; !ok {
		return options{}, usagef("unsupported format: %s", fv.format)
	}
	if fv.jobs < 1 {
		return options{}, usagef("--jobs must be at least 1")
	}

	delimiter, err := parseDelimiter(fv.delimiter)
	if err != nil {
		return options{}, usagef("invalid delimiter: %v", err)
	}
	if format == "tsv" {
		delimiter = '\t'
	}

	lineTerminator := fv.lineTerminator
	if lineTerminator == "" {
		lineTerminator = osLineSep()
	} else if lineTerminator, err = parseEscapedString(lineTerminator); err != nil {
		return options{}, usagef("invalid line terminator: %v", err)
	}

	sheetDelimiter := fv.sheetDelimiter
	if sheetDelimiter != "" {
		if sheetDelimiter, err = parseSheetDelimiter(sheetDelimiter); err != nil {
			return options{}, usagef("invalid sheet delimiter: %v", err)
		}
	}

	quoting, err := parseQuoting(fv.quoting)
	if err != nil {
		return options{}, usagef("invalid quoting: %v", err)
	}
	include, err := compilePatterns(fv.includePatterns)
	if err != nil {
		return options{}, usagef("invalid include pattern: %v", err)
	}
	exclude, err := compilePatterns(fv.excludePatterns)
	if err != nil {
		return options{}, usagef("invalid exclude pattern: %v", err)
	}

	return options{
		format:              format,
		allSheets:           fv.allSheets || fv.sheetID == 0,
		sheetID:             fv.sheetID,
		sheetName:           fv.sheetName,
		visibleOnly:         fv.visibleOnly,
		delimiter:           delimiter,
		lineTerminator:      lineTerminator,
		dateFormat:          fv.dateFormat,
		floatFormat:         fv.floatFormat,
		ignoreEmpty:         fv.ignoreEmpty,
		escape:              fv.escape,
		sheetDelimiter:      sheetDelimiter,
		quoting:             quoting,
		includeSheetPattern: include,
		excludeSheetPattern: exclude,
		header:              fv.header,
		raw:                 fv.raw,
		codepage:            fv.codepage,
		jobs:                fv.jobs,
		summary:             fv.summary,
		dump:                fv.dump,
		countRecords:        fv.countRecords,
	}, nil
}

func parseDelimiter(value string) (rune, error) {
	switch strings.ToLower(value) {
	case "tab", "x09":
		return '\t', nil
	}
	if value == "" {
		return 0, fmt.Errorf("delimiter cannot be empty")
	}
	if strings.HasPrefix(value, "x") && len(value) == 3 {
		decoded, err := strconv.ParseUint(value[1:], 16, 8)
		if err != nil {
			return 0, err
		}
		return rune(decoded), nil
	}
	r, size := utf8.DecodeRuneInString(value)
	if r == utf8.RuneError && size == 1 {
		return rune(value[0]), nil
	}
	return r, nil
}

func parseSheetDelimiter(value string) (string, error) {
	if value == "\\f" {
		return "\f", nil
	}
	if strings.HasPrefix(value, "x") && len(value) == 3 {
		decoded, err := strconv.ParseUint(value[1:], 16, 8)
		if err != nil {
			return "", err
		}
		return string([]byte{byte(decoded)}), nil
	}
	return value, nil
}

func parseEscapedString(value string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] != '\\' {
			b.WriteByte(value[i])
			continue
		}
		if i+1 >= len(value) {
			return "", fmt.Errorf("dangling escape")
		}
		i++
		switch value[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '\\':
			b.WriteByte('\\')
		default:
			return "", fmt.Errorf("unknown escape \\%c", value[i])
		}
	}
	return b.String(), nil
}

func parseQuoting(value string) (quotingMode, error) {
	switch strings.ToLower(value) {
	case "none":
		return quotingNone, nil
	case "minimal":
		return quotingMinimal, nil
	case "nonnumeric":
		return quotingNonNumeric, nil
	case "all":
		return quotingAll, nil
	default:
		return quotingMinimal, fmt.Errorf("unsupported quoting: %s", value)
	}
}

func compilePatterns(values []string) ([]*regexp.Regexp, error) {
	if len(values) == 0 {
		return nil, nil
	}
	patterns := make([]*regexp.Regexp, 0, len(values))
	for _, value := range values {
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

func osLineSep() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}
