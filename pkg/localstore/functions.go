package localstore

import (
	"database/sql/driver"
	"encoding/hex"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	sqlite "modernc.org/sqlite"

	"github.com/rainorder/obcore/pkg/obcoreerr"
)

// ScalarFunction is the signature modernc.org/sqlite expects for a
// custom scalar function registered against the driver.
type ScalarFunction func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error)

var registerDefaultsOnce sync.Once
var registerDefaultsErr error

// RegisterDefaultFunctions registers the schema's required scalar
// functions exactly once per process: modernc.org/sqlite's function
// registry is global to the driver, not per connection, so a second
// NewStore in the same process must not re-register.
func RegisterDefaultFunctions() error {
	registerDefaultsOnce.Do(func() {
		registerDefaultsErr = sqlite.RegisterDeterministicScalarFunction("keccak256_hex", 1, keccak256Hex)
	})
	return registerDefaultsErr
}

func keccak256Hex(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 1 {
		return nil, obcoreerr.New(obcoreerr.KindInvalidInput, "keccak256_hex takes exactly one argument")
	}
	var data []byte
	switch v := args[0].(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		data = nil
	default:
		return nil, obcoreerr.New(obcoreerr.KindInvalidInput, "keccak256_hex expects a blob or text argument")
	}
	hash := crypto.Keccak256(data)
	return "0x" + hex.EncodeToString(hash), nil
}

// RegisterScalarFunction exposes the design's generic
// "register any custom scalar function" capability. fn must already
// be a ScalarFunction; nArg describes its SQLite-visible arity and is
// fixed at -1 (variadic) since the design does not specify per-function
// arity for caller-supplied functions.
func (s *Store) RegisterScalarFunction(name string, fn any) error {
	typed, ok := fn.(ScalarFunction)
	if !ok {
		return obcoreerr.New(obcoreerr.KindInvalidInput, "fn must be a localstore.ScalarFunction")
	}
	if err := sqlite.RegisterScalarFunction(name, -1, typed); err != nil {
		return obcoreerr.Wrap(obcoreerr.KindStorage, "register scalar function", err)
	}
	return nil
}
