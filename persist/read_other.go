//go:build !unix

package persist

import "os"

func viewFile(path string, fn func(raw []byte) error) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return fn(raw)
}
