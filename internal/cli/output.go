package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output печатает результаты команд таблицей или, с --json, как есть.
// Данные идут в stdout, сообщения для человека в stderr.
type Output struct {
	jsonMode bool
	stdout   io.Writer
	stderr   io.Writer
}

// NewOutput создаёт Output поверх os.Stdout и os.Stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output поверх заданных writer'ов.
func NewOutputTo(jsonMode bool, stdout, stderr io.Writer) *Output {
	return &Output{jsonMode: jsonMode, stdout: stdout, stderr: stderr}
}

// JSONMode сообщает, включён ли --json.
func (o *Output) JSONMode() bool { return o.jsonMode }

// Render печатает rows под headers или v в режиме --json.
func (o *Output) Render(headers []string, rows [][]string, v any) {
	if o.jsonMode {
		o.JSON(v)
		return
	}
	o.Table(headers, rows)
}

// Detail печатает пары "ключ: значение" или v в режиме --json.
// Пустые значения пропускаются.
func (o *Output) Detail(fields [][2]string, v any) {
	if o.jsonMode {
		o.JSON(v)
		return
	}
	o.tabbed(func(tw io.Writer) {
		for _, f := range fields {
			if f[1] != "" {
				fmt.Fprintf(tw, "%s:\t%s\n", f[0], f[1])
			}
		}
	})
}

// Table печатает таблицу с подчёркнутыми заголовками.
func (o *Output) Table(headers []string, rows [][]string) {
	o.tabbed(func(tw io.Writer) {
		underline := make([]string, len(headers))
		for i, h := range headers {
			underline[i] = strings.Repeat("-", len(h))
		}
		for _, line := range append([][]string{headers, underline}, rows...) {
			fmt.Fprintln(tw, strings.Join(line, "\t"))
		}
	})
}

// JSON печатает v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Notice печатает сообщение для человека в stderr.
func (o *Output) Notice(format string, args ...any) {
	fmt.Fprintf(o.stderr, format+"\n", args...)
}

func (o *Output) tabbed(write func(tw io.Writer)) {
	tw := tabwriter.NewWriter(o.stdout, 0, 0, 2, ' ', 0)
	write(tw)
	tw.Flush()
}
