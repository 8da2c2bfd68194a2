package data

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// CostWriter returns a sink that collects every cost sent on a channel and,
// once the channel is closed, writes them to <dir>/<name>.txt one per line.
// The sink drains the channel even when the file cannot be written.
func CostWriter(dir string) func(name string, costs <-chan float64) error {
	return func(name string, costs <-chan float64) error {
		var values []float64
		for c := range costs {
			values = append(values, c)
		}

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		path := filepath.Join(dir, name+".txt")
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()

		w := bufio.NewWriter(f)
		for _, v := range values {
			w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			w.WriteByte('\n')
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		return f.Close()
	}
}
