package redis_functions

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//go:embed *.lua
var fs embed.FS

// Sources returns the embedded Lua libraries keyed by file name.
func Sources() (map[string]string, error) {
	files, err := fs.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read embed dir: %w", err)
	}
	out := make(map[string]string, len(files))
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".lua") {
			continue
		}
		code, err := fs.ReadFile(f.Name())
		if err != nil {
			return nil, err
		}
		out[f.Name()] = string(code)
	}
	return out, nil
}

// LoadAll loads (or replaces) every embedded Lua library in Redis.
func LoadAll(ctx context.Context, rdb *redis.Client) error {
	libs, err := Sources()
	if err != nil {
		return err
	}
	for name, code := range libs {
		if err := rdb.FunctionLoadReplace(ctx, code).Err(); err != nil {
			return fmt.Errorf("load lua %s: %w", name, err)
		}
		zap.L().Info("lua_function_loaded", zap.String("file", name))
	}
	return nil
}
