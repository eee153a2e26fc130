package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML form of the command line options. Unset fields
// leave the flag defaults alone, and flags given explicitly always win.
type fileConfig struct {
	Format         string   `yaml:"format"`
	Delimiter      string   `yaml:"delimiter"`
	LineTerminator string   `yaml:"lineterminator"`
	DateFormat     string   `yaml:"dateformat"`
	FloatFormat    string   `yaml:"floatformat"`
	Quoting        string   `yaml:"quoting"`
	SheetDelimiter *string  `yaml:"sheetdelimiter"`
	IgnoreEmpty    *bool    `yaml:"ignoreempty"`
	Escape         *bool    `yaml:"escape"`
	Header         *bool    `yaml:"header"`
	Raw            *bool    `yaml:"raw"`
	VisibleOnly    *bool    `yaml:"visible_only"`
	Codepage       uint16   `yaml:"codepage"`
	Jobs           int      `yaml:"jobs"`
	Include        []string `yaml:"include_sheet_pattern"`
	Exclude        []string `yaml:"exclude_sheet_pattern"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	cfg := &fileConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// apply copies configured values into fv for every flag that changed
// reports as not given on the command line.
func (c *fileConfig) apply(changed func(name string) bool, fv *flagValues) {
	setString := func(name, value string, dst *string) {
		if value != "" && !changed(name) {
			*dst = value
		}
	}
	setBool := func(name string, value *bool, dst *bool) {
		if value != nil && !changed(name) {
			*dst = *value
		}
	}

	setString("format", c.Format, &fv.format)
	setString("delimiter", c.Delimiter, &fv.delimiter)
	setString("lineterminator", c.LineTerminator, &fv.lineTerminator)
	setString("dateformat", c.DateFormat, &fv.dateFormat)
	setString("floatformat", c.FloatFormat, &fv.floatFormat)
	setString("quoting", c.Quoting, &fv.quoting)
	if c.SheetDelimiter != nil && !changed("sheetdelimiter") {
		fv.sheetDelimiter = *c.SheetDelimiter
	}
	setBool("ignoreempty", c.IgnoreEmpty, &fv.ignoreEmpty)
	setBool("escape", c.Escape, &fv.escape)
	setBool("header", c.Header, &fv.header)
	setBool("raw", c.Raw, &fv.raw)
	setBool("visible-only", c.VisibleOnly, &fv.visibleOnly)
	if c.Codepage != 0 && !changed("codepage") {
		fv.codepage = c.Codepage
	}
	if c.Jobs != 0 && !changed("jobs") {
		fv.jobs = c.Jobs
	}
	if len(c.Include) > 0 && !changed("include_sheet_pattern") {
		fv.includePatterns = c.Include
	}
	if len(c.Exclude) > 0 && !changed("exclude_sheet_pattern") {
		fv.excludePatterns = c.Exclude
	}
}
