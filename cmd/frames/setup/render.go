package setup

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/frames/pkg/cliui"
	"github.com/papercomputeco/frames/pkg/frame"
	"github.com/papercomputeco/frames/pkg/storage"
	"github.com/papercomputeco/frames/pkg/utils"
	"github.com/papercomputeco/frames/pkg/view"
)

// HeadsTable renders heads one per row.
func HeadsTable(heads []storage.Head) string {
	rows := make([][]string, 0, len(heads))
	for _, h := range heads {
		rows = append(rows, []string{
			h.AgentID,
			utils.ShortID(h.FrameID.String()),
			strconv.FormatUint(h.Seq, 10),
			h.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	return cliui.Table([]string{"AGENT", "FRAME", "SEQ", "UPDATED"}, rows)
}

// ViewTable renders view entries in selection order.
func ViewTable(entries []view.Entry) string {
	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		head := ""
		if e.IsHead {
			head = "✓"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			e.AgentID,
			utils.ShortID(e.FrameID.String()),
			strconv.FormatUint(e.Seq, 10),
			head,
		})
	}
	return cliui.Table([]string{"#", "AGENT", "FRAME", "SEQ", "HEAD"}, rows)
}

// FrameMarkdown renders a frame as a markdown document: a header block of
// identity and metadata followed by the content.
func FrameMarkdown(f *frame.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## frame %s\n\n", utils.ShortID(f.ID.String()))
	fmt.Fprintf(&b, "- **node** `%s`\n", f.NodeID)
	fmt.Fprintf(&b, "- **agent** `%s`\n", f.AgentID)
	fmt.Fprintf(&b, "- **created** %s\n", f.CreatedAt.UTC().Format(time.RFC3339))

	for _, fld := range f.Fields {
		fmt.Fprintf(&b, "- **%s** %s\n", fld.Name, utils.Truncate(string(fld.Value), 80))
	}

	keys := make([]string, 0, len(f.Metadata))
	for k := range f.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- _%s_ %s\n", k, f.Metadata[k])
	}

	b.WriteString("\n---\n\n")
	b.Write(f.Content)
	b.WriteString("\n")
	return b.String()
}
