package data

import (
	"context"

	"github.com/opfromthestart/loan-mining/internal/value"
)

// BatchProcessor walks records in fixed-size slices.
type BatchProcessor struct {
	batchSize int
}

func NewBatchProcessor(batchSize int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &BatchProcessor{batchSize: batchSize}
}

// ProcessBatches calls processFn with consecutive batches and the offset of
// each batch's first record. It stops at the first error or when ctx ends.
func (bp *BatchProcessor) ProcessBatches(ctx context.Context, records []value.Record, processFn func(offset int, batch []value.Record) error) error {
	for start := 0; start < len(records); start += bp.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+bp.batchSize, len(records))
		if err := processFn(start, records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (bp *BatchProcessor) GetBatchSize() int {
	return bp.batchSize
}
