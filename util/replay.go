package util

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
	"github.com/pkg/errors"
)

// ReplayRow is one resolved decision of a replayed episode. Board holds the
// rendered map on the first decision of each turn when logging is stateful.
type ReplayRow struct {
	Turn      int32   `parquet:"turn"`
	Team      int32   `parquet:"team"`
	ActorID   string  `parquet:"actor_id,dict"`
	ActorKind string  `parquet:"actor_kind,dict"`
	Action    int32   `parquet:"action"`
	X         int32   `parquet:"x"`
	Y         int32   `parquet:"y"`
	Score0    float32 `parquet:"score_0"`
	Score1    float32 `parquet:"score_1"`
	Board     []byte  `parquet:"board,optional,zstd"`
}

// WriteReplayParquet writes rows to outPath through a temp file and rename.
// The seed is stored in the file metadata so the episode can be reproduced.
func WriteReplayParquet(outPath string, rows []ReplayRow, seed int64) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return errors.Wrap(err, "create replay dir")
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", "replay_row_v1"),
		parquet.KeyValueMetadata("seed", strconv.FormatInt(seed, 10)),
	); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "write parquet")
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "rename parquet")
	}
	return nil
}

func ReadReplayParquet(path string) ([]ReplayRow, error) {
	rows, err := parquet.ReadFile[ReplayRow](path)
	if err != nil {
		return nil, errors.Wrapf(err, "read replay %s", path)
	}
	return rows, nil
}
