// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetsync

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/certasset/lib/asset"
)

// WriteReport prints one line per operation followed by a summary.
// Colors are used only when w is a terminal that supports them.
func WriteReport(w io.Writer, operations []asset.BatchOperation) error {
	renderer := lipgloss.NewRenderer(w)
	styles := map[asset.OperationKind]lipgloss.Style{
		asset.KindDeleteAsset:        renderer.NewStyle().Foreground(lipgloss.Color("1")),
		asset.KindCreateAsset:        renderer.NewStyle().Foreground(lipgloss.Color("2")),
		asset.KindUnsetAssetContent:  renderer.NewStyle().Foreground(lipgloss.Color("3")),
		asset.KindSetAssetContent:    renderer.NewStyle().Foreground(lipgloss.Color("4")),
		asset.KindSetAssetProperties: renderer.NewStyle().Foreground(lipgloss.Color("5")),
		asset.KindClear:              renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
	summaryStyle := renderer.NewStyle().Bold(true)

	var builder strings.Builder
	counts := make(map[asset.OperationKind]int)
	for _, operation := range operations {
		kind := operation.Kind()
		counts[kind]++
		builder.WriteString(styles[kind].Render(describeOperation(operation)))
		builder.WriteByte('\n')
	}
	builder.WriteString(summaryStyle.Render(summarize(len(operations), counts)))
	builder.WriteByte('\n')

	_, err := io.WriteString(w, builder.String())
	return err
}

func describeOperation(operation asset.BatchOperation) string {
	switch operation.Kind() {
	case asset.KindDeleteAsset:
		return "delete  " + operation.DeleteAsset.Key
	case asset.KindCreateAsset:
		arguments := operation.CreateAsset
		return fmt.Sprintf("create  %s (%s)", arguments.Key, arguments.ContentType)
	case asset.KindUnsetAssetContent:
		arguments := operation.UnsetAssetContent
		return fmt.Sprintf("unset   %s [%s]", arguments.Key, arguments.ContentEncoding)
	case asset.KindSetAssetContent:
		arguments := operation.SetAssetContent
		line := fmt.Sprintf("upload  %s [%s]", arguments.Key, arguments.ContentEncoding)
		if arguments.SHA256 != nil {
			line += " sha256:" + arguments.SHA256.String()[:12]
		}
		return line
	case asset.KindSetAssetProperties:
		arguments := operation.SetAssetProperties
		var changed []string
		if !arguments.MaxAge.IsUnchanged() {
			changed = append(changed, "max_age")
		}
		if !arguments.Headers.IsUnchanged() {
			changed = append(changed, "headers")
		}
		if !arguments.AllowRawAccess.IsUnchanged() {
			changed = append(changed, "allow_raw_access")
		}
		if !arguments.IsAliased.IsUnchanged() {
			changed = append(changed, "is_aliased")
		}
		return fmt.Sprintf("update  %s (%s)", arguments.Key, strings.Join(changed, ", "))
	case asset.KindClear:
		return "clear"
	default:
		return operation.String()
	}
}

var summaryOrder = []struct {
	kind  asset.OperationKind
	label string
}{
	{asset.KindClear, "clear"},
	{asset.KindDeleteAsset, "delete"},
	{asset.KindCreateAsset, "create"},
	{asset.KindUnsetAssetContent, "unset"},
	{asset.KindSetAssetContent, "upload"},
	{asset.KindSetAssetProperties, "update"},
}

func summarize(total int, counts map[asset.OperationKind]int) string {
	if total == 0 {
		return "no changes"
	}
	var parts []string
	for _, entry := range summaryOrder {
		if counts[entry.kind] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[entry.kind], entry.label))
		}
	}
	noun := "operations"
	if total == 1 {
		noun = "operation"
	}
	return fmt.Sprintf("%d %s: %s", total, noun, strings.Join(parts, ", "))
}
