package controller

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"

	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

func newTable(buf *bytes.Buffer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(buf)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	return table
}

func renderProgramTable(class string, methods []*m.Method) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "class %s\n", class)

	for _, method := range methods {
		fmt.Fprintf(&buf, "\n%s  (%d instructions, %d code positions, %d locals)\n",
			method.Name, len(method.Instructions), method.CodePositions, method.LocalSlots)

		table := newTable(&buf, []string{"Seq", "Pos", "Kind", "Payload", "Def/Use"})
		table.SetColumnAlignment([]int{
			tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT,
			tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		})

		for _, insn := range method.Instructions {
			table.Append([]string{
				strconv.Itoa(insn.Sequence),
				strconv.Itoa(insn.CodePosition),
				insn.Kind.String(),
				insn.Payload,
				insn.DefUseKey,
			})
		}

		table.Render()
	}

	return buf.String()
}

func renderRecordsTable(records []m.Record, verdict func(m.Verdict) string) string {
	var buf bytes.Buffer

	table := newTable(&buf, []string{"Artifact", "Operator", "Method", "Coverage", "P", "Verdict"})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_CENTER,
	})

	for _, r := range records {
		table.Append([]string{
			r.Artifact,
			string(r.Mutation.Operator),
			r.Mutation.Method,
			fmt.Sprintf("%.3f", r.Coverage),
			fmt.Sprintf("%.3f", r.Probability),
			verdict(r.Verdict),
		})
	}

	summary := m.Summarize(records)
	table.SetFooter([]string{
		fmt.Sprintf("Total %d", summary.Total()), "", "",
		fmt.Sprintf("ACC %d", summary[m.Accepted]),
		fmt.Sprintf("REJ %d", summary[m.Rejected]),
		fmt.Sprintf("NONLIVE %d", summary[m.NonLive]),
	})
	table.Render()

	return buf.String()
}
