package ethereum

import (
	"context"
	"errors"
	"fmt"

	"github.com/feral-file/ff-marketplace-ledger/internal/adapter"
	"github.com/feral-file/ff-marketplace-ledger/internal/block"
)

type headFetcher struct {
	client adapter.EthClient
}

// NewEthereumBlockFetcher returns a block.BlockFetcher reading the head header of the marketplace's chain
func NewEthereumBlockFetcher(client adapter.EthClient) block.BlockFetcher {
	return &headFetcher{client: client}
}

func (f *headFetcher) FetchLatestBlock(ctx context.Context) (uint64, error) {
	header, err := f.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block header: %w", err)
	}
	if header == nil || header.Number == nil {
		return 0, errors.New("node returned an empty head header")
	}
	return header.Number.Uint64(), nil
}
