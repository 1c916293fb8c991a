package amm

import (
	"bytes"
	"context"
	"math/big"
	"testing"
	"time"

	"amm-entrypoint-bot/internal/chain"
	"amm-entrypoint-bot/internal/chain/chaintest"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const signerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var signer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func newUniswap(t *testing.T) (*UniswapV2, *chaintest.Backend) {
	t.Helper()
	backend := chaintest.New()
	sender, err := chain.NewSender(backend, signerKey, big.NewInt(5), 0, time.Second, zap.NewNop())
	require.NoError(t, err)
	v2, err := NewUniswapV2(sender, routerAddr)
	require.NoError(t, err)
	return v2, backend
}

func TestUniswapGetAmountsOut(t *testing.T) {
	v2, backend := newUniswap(t)

	uintSlice, err := abi.NewType("uint256[]", "", nil)
	require.NoError(t, err)
	backend.OnCall = func(msg ethereum.CallMsg) ([]byte, error) {
		assert.Equal(t, routerAddr, *msg.To)
		assert.True(t, bytes.Equal(msg.Data[:4], v2.abi.Methods["getAmountsOut"].ID))
		return abi.Arguments{{Type: uintSlice}}.Pack([]*big.Int{big.NewInt(1000), big.NewInt(996)})
	}

	amounts, err := v2.GetAmountsOut(context.Background(), big.NewInt(1000), []common.Address{weth, token})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(996), amounts[1])

	_, err = v2.GetAmountsOut(context.Background(), big.NewInt(1000), []common.Address{weth, token, trader})
	assert.Error(t, err, "a reply shorter than the path is rejected")
}

func TestUniswapSwapPacksDeadline(t *testing.T) {
	v2, backend := newUniswap(t)
	deadline := time.Unix(1_700_000_000, 0)

	_, err := v2.SwapExactTokensForTokens(context.Background(), signer, big.NewInt(1e17), nil, []common.Address{weth, token}, signer, deadline)
	require.NoError(t, err)

	sent := backend.Sent()
	require.Len(t, sent, 1)
	method := v2.abi.Methods["swapExactTokensForTokens"]
	args, err := method.Inputs.Unpack(sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1e17), args[0])
	assert.Equal(t, 0, args[1].(*big.Int).Sign(), "nil minimum becomes zero")
	assert.Equal(t, signer, args[3])
	assert.Equal(t, big.NewInt(deadline.Unix()), args[4])

	_, err = v2.SwapExactTokensForTokens(context.Background(), trader, big.NewInt(1), big.NewInt(0), []common.Address{weth, token}, trader, deadline)
	assert.Error(t, err, "only the signer can swap")
}
