package gpu

import (
	"encoding/json"
	"fmt"

	"gpuwatch/internal/fsutil"
	"gpuwatch/internal/logging"
)

func saveReportToFile(logger *logging.Logger, report DeviceReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := fsutil.AtomicWriteFile(path, data, fsutil.ReportFilePermissions, logger); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	if logger != nil {
		logger.Info("gpu.report.saved", "GPU report saved", map[string]interface{}{
			"filepath": path,
		})
	}

	return nil
}
