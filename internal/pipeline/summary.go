package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
)

// Column names accepted in the batch summary table. The helper writes either set.
var (
	workflowColumns = []string{"workflow_file", "工作流文件"}
	missingColumns  = []string{"missing_count", "缺失数量"}
)

const rowStatusAnalyzed = "analyzed"

// ReadSummaryRows reads the per-workflow rows of a batch summary CSV
func ReadSummaryRows(path string) ([]models.BatchRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open summary %s: %w", path, err)
	}
	defer file.Close()

	return parseSummary(file)
}

func parseSummary(r io.Reader) ([]models.BatchRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read summary header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	workflowIdx := columnIndex(header, workflowColumns)
	missingIdx := columnIndex(header, missingColumns)
	if workflowIdx < 0 {
		return nil, fmt.Errorf("summary has no workflow column (header %v)", header)
	}

	var rows []models.BatchRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("failed to read summary row: %w", err)
		}

		row := models.BatchRow{Status: rowStatusAnalyzed}
		if workflowIdx < len(record) {
			row.File = strings.TrimSpace(record[workflowIdx])
		}
		if missingIdx >= 0 && missingIdx < len(record) {
			if n, err := strconv.Atoi(strings.TrimSpace(record[missingIdx])); err == nil {
				row.Missing = n
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func columnIndex(header []string, names []string) int {
	for i, column := range header {
		column = strings.TrimSpace(column)
		for _, name := range names {
			if strings.EqualFold(column, name) {
				return i
			}
		}
	}
	return -1
}
