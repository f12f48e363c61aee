package layout

import (
	"context"
	"fmt"
	"strings"

	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/odt"
)

// ODTAnalyzer reads OpenDocument text with tabula. The document becomes one
// page; its tables are declared in the markup, so they are exact rather than
// detected.
type ODTAnalyzer struct{}

func (ODTAnalyzer) Analyze(ctx context.Context, data []byte, fileName, _ string) (*Result, error) {
	var (
		text  string
		found []*model.Table
	)
	err := withTempFile(data, "contexta-*.odt", func(path string) error {
		r, err := odt.Open(path)
		if err != nil {
			return err
		}
		defer r.Close()

		if text, err = r.Text(); err != nil {
			return err
		}
		found = r.ModelTables()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open odt %s: %w", fileName, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: %w", fileName, ErrNoContent)
	}

	var pb pageBuilder
	pb.add(text)
	res := pb.result()
	placeTables(res, map[int][]*model.Table{0: found})
	return res, nil
}
