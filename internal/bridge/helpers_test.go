package bridge

import (
	"bytes"
	"io"
	"strings"
)

func newPipeInput(text string) (io.Reader, io.Writer) {
	return strings.NewReader(text), &bytes.Buffer{}
}
