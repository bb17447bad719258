// Package maker reads Single-Collateral-Dai CDPs from the Tub, Pip and Vox
// contracts.
package maker

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cdpwatch/internal/model"
	"cdpwatch/internal/oracle"
)

// Caller executes eth_call. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Oracle implements oracle.Oracle on top of the Sai contracts.
type Oracle struct {
	caller Caller
	tub    common.Address
	pip    common.Address
	vox    common.Address
	logger *zap.Logger

	tubABI abi.ABI
	pipABI abi.ABI
	voxABI abi.ABI
}

var _ oracle.Oracle = (*Oracle)(nil)

// NewOracle binds the Tub at tub and discovers its price feed (pip) and
// target price (vox) contracts.
func NewOracle(ctx context.Context, caller Caller, tub common.Address, logger *zap.Logger) (*Oracle, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tubABI, err := TubABI()
	if err != nil {
		return nil, fmt.Errorf("parse tub abi: %w", err)
	}
	pipABI, err := PipABI()
	if err != nil {
		return nil, fmt.Errorf("parse pip abi: %w", err)
	}
	voxABI, err := VoxABI()
	if err != nil {
		return nil, fmt.Errorf("parse vox abi: %w", err)
	}

	o := &Oracle{
		caller: caller,
		tub:    tub,
		logger: logger,
		tubABI: tubABI,
		pipABI: pipABI,
		voxABI: voxABI,
	}

	values, err := o.call(ctx, tub, tubABI, "pip")
	if err != nil {
		return nil, err
	}
	if o.pip, err = asAddress(values[0]); err != nil {
		return nil, fmt.Errorf("pip: %w", err)
	}

	values, err = o.call(ctx, tub, tubABI, "vox")
	if err != nil {
		return nil, err
	}
	if o.vox, err = asAddress(values[0]); err != nil {
		return nil, fmt.Errorf("vox: %w", err)
	}

	logger.Debug("maker contracts resolved",
		zap.String("tub", tub.Hex()),
		zap.String("pip", o.pip.Hex()),
		zap.String("vox", o.vox.Hex()),
	)
	return o, nil
}

// PriceFeed reads the ETH/USD feed and the Dai target price.
func (o *Oracle) PriceFeed(ctx context.Context) (model.PriceFeed, error) {
	values, err := o.call(ctx, o.pip, o.pipABI, "read")
	if err != nil {
		return model.PriceFeed{}, err
	}
	raw, err := asBytes32(values[0])
	if err != nil {
		return model.PriceFeed{}, unavailable("read", err)
	}

	values, err = o.call(ctx, o.vox, o.voxABI, "par")
	if err != nil {
		return model.PriceFeed{}, err
	}
	par, err := asBigInt(values[0])
	if err != nil {
		return model.PriceFeed{}, unavailable("par", err)
	}

	return model.PriceFeed{
		Par:       fromRay(par),
		Reference: fromWad(new(big.Int).SetBytes(raw[:])),
	}, nil
}

// Position reads CDP id and the Tub risk parameters.
func (o *Oracle) Position(ctx context.Context, id uint64) (model.Position, error) {
	cup := [32]byte(common.BigToHash(new(big.Int).SetUint64(id)))
	values, err := o.call(ctx, o.tub, o.tubABI, "cups", cup)
	if err != nil {
		return model.Position{}, err
	}
	if len(values) < 3 {
		return model.Position{}, unavailable("cups", fmt.Errorf("unexpected output length %d", len(values)))
	}
	lad, err := asAddress(values[0])
	if err != nil {
		return model.Position{}, unavailable("cups", err)
	}
	ink, err := asBigInt(values[1])
	if err != nil {
		return model.Position{}, unavailable("cups", err)
	}
	art, err := asBigInt(values[2])
	if err != nil {
		return model.Position{}, unavailable("cups", err)
	}

	tag, err := o.callUint(ctx, "tag")
	if err != nil {
		return model.Position{}, err
	}
	mat, err := o.callUint(ctx, "mat")
	if err != nil {
		return model.Position{}, err
	}
	per, err := o.callUint(ctx, "per")
	if err != nil {
		return model.Position{}, err
	}

	return model.Position{
		ID:         id,
		Owner:      lad,
		Collateral: fromWad(ink),
		Debt:       fromWad(art),
		Tag:        fromRay(tag),
		Mat:        fromRay(mat),
		Per:        fromRay(per),
	}, nil
}

func (o *Oracle) callUint(ctx context.Context, method string) (*big.Int, error) {
	values, err := o.call(ctx, o.tub, o.tubABI, method)
	if err != nil {
		return nil, err
	}
	value, err := asBigInt(values[0])
	if err != nil {
		return nil, unavailable(method, err)
	}
	return value, nil
}

func (o *Oracle) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := o.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, unavailable(method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, unavailable(method, fmt.Errorf("unpack: %w", err))
	}
	if len(values) == 0 {
		return nil, unavailable(method, fmt.Errorf("empty response"))
	}
	return values, nil
}

func unavailable(method string, err error) error {
	return fmt.Errorf("%w: call %s: %w", oracle.ErrUnavailable, method, err)
}
