package convert

import (
	"context"
	"time"

	"github.com/sourcegraph/repo-converter-sub000/internal/job"
)

// TFVCDriver handles inventory entries with `type: tfs`/`type: tfvc`,
// grounded on original_source/src/repo-converter/repo/tfvc.py's
// TFVCRepo.clone/update, both of which raise NotImplementedError. This
// keeps the `type` dispatch table complete while being explicit that the
// conversion itself hasn't been built.
type TFVCDriver struct{}

// NewTFVCDriver constructs a TFVCDriver.
func NewTFVCDriver() *TFVCDriver { return &TFVCDriver{} }

// Convert always fails the job with a typed "not yet implemented" reason,
// rather than silently skipping it the way an unregistered type would.
func (d *TFVCDriver) Convert(ctx context.Context, j *job.Job) error {
	now := time.Now()
	j.MarkStarted(now)
	j.MarkFinished(time.Now(), false, "error", "TFVC conversion is not yet implemented")
	return nil
}
