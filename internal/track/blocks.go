package track

import "fmt"

// SamplingBlock is an ordered group of joint-state indices belonging to one
// tracked body. The coordinate filter updates one block at a time, holding
// the coordinates of all other blocks fixed.
type SamplingBlock []int

// SamplingBlocks partitions the joint state index range
// [0, blocks*blockSize) into `blocks` contiguous groups of `blockSize`
// indices each, in body order. The concatenation of the returned blocks is
// exactly 0..blocks*blockSize-1 with no gaps or overlaps; that cover
// property is what makes a full block pass equivalent to one joint update.
func SamplingBlocks(blocks, blockSize int) ([]SamplingBlock, error) {
	if blocks <= 0 {
		return nil, fmt.Errorf("sampling blocks: block count must be positive, got %d", blocks)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("sampling blocks: block size must be positive, got %d", blockSize)
	}

	out := make([]SamplingBlock, blocks)
	next := 0
	for b := range out {
		block := make(SamplingBlock, blockSize)
		for i := range block {
			block[i] = next
			next++
		}
		out[b] = block
	}
	return out, nil
}

// StateDim returns the total joint-state dimension covered by the blocks.
func StateDim(blocks []SamplingBlock) int {
	dim := 0
	for _, b := range blocks {
		dim += len(b)
	}
	return dim
}
