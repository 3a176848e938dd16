package report

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"go.aimuz.me/ergowatch/internal/types"
)

// YAMLRenderer writes each report to W as a YAML document.
type YAMLRenderer struct {
	W io.Writer
}

func (r YAMLRenderer) Render(rep types.SessionReport) error {
	enc := yaml.NewEncoder(r.W)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}
