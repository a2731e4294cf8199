package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mesh-intelligence/keepstate/pkg/types"
)

// entryView is the printed form of one stored entry.
type entryView struct {
	Key     string          `json:"key"`
	Field   string          `json:"field"`
	Value   json.RawMessage `json:"value,omitempty"`
	Expire  string          `json:"expire,omitempty"`
	Expired bool            `json:"expired"`
	Error   string          `json:"error,omitempty"`
}

// describe decodes a stored entry for display. Corrupt entries are reported
// rather than rejected.
func describe(namespace, key, raw string, now time.Time) entryView {
	view := entryView{Key: key, Field: strings.TrimPrefix(key, namespace)}
	env, err := types.DecodeEnvelope(raw)
	if err != nil {
		view.Error = err.Error()
		return view
	}
	view.Value = env.Value
	view.Expire = env.Expire
	view.Expired = !env.Live(now)
	return view
}

func (e entryView) String() string {
	if e.Error != "" {
		return fmt.Sprintf("%s\t<%s>", e.Key, e.Error)
	}
	var b strings.Builder
	b.WriteString(e.Key)
	b.WriteByte('\t')
	b.Write(e.Value)
	switch {
	case e.Expired:
		fmt.Fprintf(&b, "\t(expired %s)", e.Expire)
	case e.Expire != "":
		fmt.Fprintf(&b, "\t(expires %s)", e.Expire)
	}
	return b.String()
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysErr(fmt.Errorf("marshal output: %w", err))
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
