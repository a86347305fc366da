package leaderboard_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-marketplace-ledger/internal/leaderboard"
	"github.com/feral-file/ff-marketplace-ledger/internal/mocks"
)

const boardKey = "leaderboard:xp:mainnet"

func TestLeaderboard_UpdateNormalizesMemberAndRanksFromOne(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := mocks.NewMockRedisClient(ctrl)
	board := leaderboard.NewRedisLeaderboard(client, "mainnet")

	gomock.InOrder(
		client.EXPECT().ZAddGT(gomock.Any(), boardKey, float64(1200), "0xabc").Return(nil),
		client.EXPECT().ZRevRank(gomock.Any(), boardKey, "0xabc").Return(int64(0), nil),
	)

	rank, err := board.Update(context.Background(), "0xABC", 1200)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rank)
}

func TestLeaderboard_UpdateStopsOnWriteError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := mocks.NewMockRedisClient(ctrl)
	board := leaderboard.NewRedisLeaderboard(client, "mainnet")

	client.EXPECT().ZAddGT(gomock.Any(), boardKey, float64(50), "0xabc").Return(errors.New("READONLY"))
	client.EXPECT().ZRevRank(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := board.Update(context.Background(), "0xabc", 50)
	assert.ErrorContains(t, err, "failed to update leaderboard")
	assert.ErrorContains(t, err, "READONLY")
}

func TestLeaderboard_RankWrapsReadError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := mocks.NewMockRedisClient(ctrl)
	board := leaderboard.NewRedisLeaderboard(client, "mainnet")

	client.EXPECT().ZRevRank(gomock.Any(), boardKey, "0xabc").Return(int64(0), errors.New("i/o timeout"))

	_, err := board.Rank(context.Background(), "0xABC")
	assert.ErrorContains(t, err, "failed to read leaderboard rank")
}
