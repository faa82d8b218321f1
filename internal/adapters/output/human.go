package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/mikey-austin/clautify/internal/core"
	"github.com/mikey-austin/clautify/internal/ports"
	"github.com/mikey-austin/clautify/pkg/dsl"
	"github.com/mikey-austin/clautify/pkg/mu"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct {
	Out io.Writer
}

// Item name and uri locations across the catalog documents, tried in
// order.
var (
	namePaths = []string{"item.data.name", "data.name", "data.profile.name", "itemV2.data.name", "item.data.profile.name", "name"}
	uriPaths  = []string{"item.data.uri", "data.uri", "itemV2.data.uri", "item._uri", "uri"}
)

// Print renders human output.
func (p HumanPrinter) Print(v any) error {
	w := writerOr(p.Out)
	switch data := v.(type) {
	case core.Result:
		return printResult(w, data)
	case core.HealthResult:
		return printHealth(w, data)
	case dsl.Command:
		return printCommand(w, data)
	case []mu.Presence:
		return printNodes(w, data)
	case json.RawMessage:
		return printRaw(w, data)
	default:
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
}

func printResult(w io.Writer, res core.Result) error {
	switch res.Query {
	case dsl.QueryStatus:
		return printStatus(w, res)
	case dsl.QuerySearch, dsl.QueryLibraryList:
		return printItems(w, res.Data)
	case dsl.QueryInfo, dsl.QueryRecommend:
		return printRaw(w, res.Data)
	}
	return printAction(w, res)
}

func printAction(w io.Writer, res core.Result) error {
	parts := []string{res.Status + ":", res.Name()}
	if res.Kind != "" {
		parts = append(parts, string(res.Kind))
	}
	switch {
	case res.Target != "":
		parts = append(parts, strconv.Quote(res.Target))
	case len(res.Targets) > 0:
		quoted := make([]string, len(res.Targets))
		for i, target := range res.Targets {
			quoted[i] = strconv.Quote(target)
		}
		parts = append(parts, strings.Join(quoted, " "))
	}
	if res.Context != "" {
		parts = append(parts, "in", string(res.ContextKind), strconv.Quote(res.Context))
	}
	if res.ResolvedURI != "" {
		parts = append(parts, "->", res.ResolvedURI)
	}
	if res.PlaylistID != "" {
		parts = append(parts, "id", res.PlaylistID)
	}
	if res.N != nil {
		parts = append(parts, strconv.Itoa(*res.N))
	}
	if res.PositionSeconds != nil {
		parts = append(parts, "at", formatSeconds(*res.PositionSeconds))
	}
	if res.Volume != nil {
		parts = append(parts, fmt.Sprintf("volume %.0f%%", *res.Volume))
	}
	if res.VolumeRel != nil {
		parts = append(parts, fmt.Sprintf("volume %+d", *res.VolumeRel))
	}
	if res.Mode != "" {
		parts = append(parts, "mode", res.Mode)
	}
	if res.Device != "" {
		parts = append(parts, "device", strconv.Quote(res.Device))
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}

func printStatus(w io.Writer, res core.Result) error {
	now := "nothing playing"
	if res.NowPlaying != nil {
		now = formatTrack(*res.NowPlaying)
	}
	if _, err := fmt.Fprintf(w, "Now playing: %s\n", now); err != nil {
		return err
	}

	if len(res.Devices) > 0 {
		rows := pterm.TableData{{"DEVICE", "TYPE", "VOLUME", "ACTIVE", "ID"}}
		for _, d := range res.Devices {
			active := ""
			if d.Active {
				active = "*"
			}
			rows = append(rows, []string{d.Name, d.Type, fmt.Sprintf("%d%%", d.Volume*100/65535), active, d.ID})
		}
		if err := renderTable(w, rows); err != nil {
			return err
		}
	}
	if err := printTracks(w, "Queue", res.Queue); err != nil {
		return err
	}
	return printTracks(w, "History", res.History)
}

func printTracks(w io.Writer, title string, tracks []ports.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	rows := pterm.TableData{{"#", title, "URI"}}
	for i, t := range tracks {
		rows = append(rows, []string{strconv.Itoa(i + 1), formatTrack(t), t.URI})
	}
	return renderTable(w, rows)
}

func printItems(w io.Writer, data json.RawMessage) error {
	items := gjson.ParseBytes(data).Array()
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "no results")
		return err
	}
	rows := pterm.TableData{{"#", "NAME", "URI"}}
	for i, item := range items {
		rows = append(rows, []string{strconv.Itoa(i + 1), firstString(item, namePaths), firstString(item, uriPaths)})
	}
	return renderTable(w, rows)
}

func printHealth(w io.Writer, res core.HealthResult) error {
	if res.Authenticated {
		_, err := fmt.Fprintf(w, "%s: authenticated\n", res.Status)
		return err
	}
	_, err := fmt.Fprintf(w, "%s: not authenticated: %s\n", res.Status, res.Error)
	return err
}

func printCommand(w io.Writer, cmd dsl.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return err
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := fmt.Fprintf(w, "%s: %s\n", key, fields[key]); err != nil {
			return err
		}
	}
	return nil
}

func printNodes(w io.Writer, nodes []mu.Presence) error {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
	rows := pterm.TableData{{"NAME", "KIND", "NODE_ID"}}
	for _, node := range nodes {
		rows = append(rows, []string{node.Name, node.Kind, node.NodeID})
	}
	return renderTable(w, rows)
}

func printRaw(w io.Writer, data json.RawMessage) error {
	if len(data) == 0 {
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
	_, err := w.Write(pretty.Pretty(data))
	return err
}

func renderTable(w io.Writer, rows pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func formatTrack(t ports.Track) string {
	name := t.Name
	if name == "" {
		name = t.URI
	}
	if len(t.Artists) == 0 {
		return name
	}
	return fmt.Sprintf("%s - %s", name, strings.Join(t.Artists, ", "))
}

func formatSeconds(total int) string {
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func firstString(item gjson.Result, paths []string) string {
	for _, path := range paths {
		if v := item.Get(path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
