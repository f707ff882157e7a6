package replay

import (
	"bytes"
	"fmt"
	"os"
	"path"

	"github.com/pkg/errors"

	"github.com/zeu5/lux-rl-env/util"
)

// ErrorReporter writes one text report per failed replay under <dir>/errors.
type ErrorReporter struct {
	savePath string
}

func NewErrorReporter(savePath string) (*ErrorReporter, error) {
	dir := path.Join(savePath, "errors")
	if err := util.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &ErrorReporter{savePath: dir}, nil
}

func (r *ErrorReporter) Dir() string {
	return r.savePath
}

// Report writes err with its stack and the board at the time of failure.
func (r *ErrorReporter) Report(name string, seed int64, err error, board string) (string, error) {
	buf := new(bytes.Buffer)
	buf.WriteString(fmt.Sprintf("Replay: %s\nSeed: %d\n", name, seed))
	buf.WriteString(fmt.Sprintf("Error: %+v\n", err))
	if board != "" {
		buf.WriteString("Board:\n")
		buf.WriteString(board)
	}

	file := path.Join(r.savePath, name+".txt")
	if werr := os.WriteFile(file, buf.Bytes(), 0644); werr != nil {
		return "", errors.Wrapf(werr, "write error report %s", file)
	}
	return file, nil
}
